package port

import (
	"context"

	"github.com/callglue/callglue/internal/core/domain"
)

// MediaDialer establishes media sessions. Every Join yields an independent
// MediaSession handle, so releasing a superseded attempt's handle never
// touches a newer session.
//
// Join acquires local capture (audio and video independently; either may be
// missing) and connects to the media relay.
type MediaDialer interface {
	Join(ctx context.Context, creds domain.MediaCredentials, channel string, localUser domain.UserID) (MediaSession, error)
}

// MediaSession is one joined media attempt.
//
// PublishLocalTracks completes negotiation with whatever tracks were
// acquired; zero tracks is a valid, receive-only outcome. Leave releases
// every resource the attempt acquired, is idempotent, and is safe to call
// on a partially established session.
type MediaSession interface {
	PublishLocalTracks(ctx context.Context) error
	SetAudioEnabled(enabled bool) error
	SetVideoEnabled(enabled bool) error
	Leave() error
}

// MediaEngine is the relay-side media termination: one peer connection per
// (session, user), offers originated by the engine, tracks forwarded between
// peers of a session.
type MediaEngine interface {
	AddPeer(sessionID domain.SessionID, userID domain.UserID) (offer domain.Signal, err error)
	HandleSignal(sessionID domain.SessionID, userID domain.UserID, signal domain.Signal) error
	RemovePeer(sessionID domain.SessionID, userID domain.UserID)
	SetSignalCallback(cb func(sessionID domain.SessionID, userID domain.UserID, signal domain.Signal))
}

// SignalGateway pushes relay-originated signals back to a connected peer.
type SignalGateway interface {
	SendSignal(ctx context.Context, sessionID domain.SessionID, userID domain.UserID, signal domain.Signal) error
}
