package domain

// CallState is the lifecycle position of the local call session.
type CallState string

const (
	StateIdle            CallState = "idle"
	StateOutgoingPending CallState = "outgoing_pending"
	StateIncomingRinging CallState = "incoming_ringing"
	StateActive          CallState = "active"
	// StateEnded is terminal: the controller has been closed and accepts no
	// further transitions.
	StateEnded CallState = "ended"
)

// CallInvite is the one-shot notice announcing an incoming call request.
// It is consumed exactly once by the router and never persisted.
type CallInvite struct {
	From    UserID
	To      UserID
	Channel string
}

// CallDecline notifies a caller that the callee rejected the invite.
type CallDecline struct {
	Caller  UserID
	Channel string
}

// MediaCredentials authorize joining one media session.
type MediaCredentials struct {
	AppID string
	Token string
}

// CallSession is the local user's view of the (at most one) current call.
type CallSession struct {
	Channel     string
	State       CallState
	LocalUser   UserID
	RemoteUser  UserID
	RemoteName  string
	Credentials MediaCredentials
}

// MediaTrackState holds the local mute flags. Toggling them never affects
// the remote side's tracks.
type MediaTrackState struct {
	AudioEnabled bool
	VideoEnabled bool
}
