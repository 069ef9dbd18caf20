package domain

// SignalType tags the messages exchanged on the media signaling socket.
type SignalType string

const (
	SignalOffer     SignalType = "offer"
	SignalAnswer    SignalType = "answer"
	SignalCandidate SignalType = "candidate"
)

// Signal is an opaque SDP or ICE payload in transit between a peer and the
// media relay.
type Signal struct {
	Type    SignalType
	Payload string
}

func NewSignal(t SignalType, payload string) Signal {
	return Signal{
		Type:    t,
		Payload: payload,
	}
}
