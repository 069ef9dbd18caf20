package service

import (
	"context"

	"github.com/callglue/callglue/internal/core/domain"
	"github.com/callglue/callglue/internal/core/port"
	"github.com/rs/zerolog/log"
)

// MediaRelay bridges the relay-side media engine and the signaling sockets
// of connected peers. The engine originates offers; answers and candidates
// flow back in through HandleSignal.
type MediaRelay struct {
	engine  port.MediaEngine
	gateway port.SignalGateway
}

func NewMediaRelay(engine port.MediaEngine, gateway port.SignalGateway) *MediaRelay {
	s := &MediaRelay{
		engine:  engine,
		gateway: gateway,
	}

	engine.SetSignalCallback(func(sessionID domain.SessionID, userID domain.UserID, signal domain.Signal) {
		if err := gateway.SendSignal(context.Background(), sessionID, userID, signal); err != nil {
			log.Error().Err(err).
				Str("session_id", sessionID.String()).
				Str("user_id", userID.String()).
				Msg("failed to push signal to peer")
		}
	})

	return s
}

// JoinSession admits a peer into the channel's media session and sends the
// resulting offer back to it.
func (s *MediaRelay) JoinSession(ctx context.Context, channel string, userID domain.UserID) error {
	sessionID := domain.SessionID(channel)

	offer, err := s.engine.AddPeer(sessionID, userID)
	if err != nil {
		return err
	}
	return s.gateway.SendSignal(ctx, sessionID, userID, offer)
}

// HandleSignal forwards a peer's answer or candidate to the engine.
func (s *MediaRelay) HandleSignal(ctx context.Context, channel string, userID domain.UserID, signal domain.Signal) error {
	return s.engine.HandleSignal(domain.SessionID(channel), userID, signal)
}

// LeaveSession removes a peer and its tracks from the channel's session.
func (s *MediaRelay) LeaveSession(ctx context.Context, channel string, userID domain.UserID) error {
	s.engine.RemovePeer(domain.SessionID(channel), userID)
	return nil
}
