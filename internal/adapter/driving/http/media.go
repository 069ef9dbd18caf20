package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/callglue/callglue/internal/core/domain"
	"github.com/callglue/callglue/internal/core/port"
	"github.com/callglue/callglue/internal/wire"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// MediaGateway routes relay-originated signals (offers, candidates) to the
// media socket of the peer they are addressed to. Implements
// port.SignalGateway.
type MediaGateway struct {
	mu    sync.Mutex
	conns map[string]*mediaConn
}

func NewMediaGateway() *MediaGateway {
	return &MediaGateway{
		conns: make(map[string]*mediaConn),
	}
}

type mediaConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *mediaConn) send(msg wire.SignalMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

func mediaKey(sessionID domain.SessionID, userID domain.UserID) string {
	return sessionID.String() + "|" + userID.String()
}

func (g *MediaGateway) SendSignal(ctx context.Context, sessionID domain.SessionID, userID domain.UserID, signal domain.Signal) error {
	g.mu.Lock()
	c := g.conns[mediaKey(sessionID, userID)]
	g.mu.Unlock()

	if c == nil {
		return fmt.Errorf("no media socket for user %s in session %s", userID, sessionID)
	}
	return c.send(wire.SignalMessage{Type: string(signal.Type), Payload: signal.Payload})
}

func (g *MediaGateway) register(sessionID domain.SessionID, userID domain.UserID, conn *websocket.Conn) {
	g.mu.Lock()
	g.conns[mediaKey(sessionID, userID)] = &mediaConn{conn: conn}
	g.mu.Unlock()
}

func (g *MediaGateway) unregister(sessionID domain.SessionID, userID domain.UserID) {
	g.mu.Lock()
	delete(g.conns, mediaKey(sessionID, userID))
	g.mu.Unlock()
}

var _ port.SignalGateway = (*MediaGateway)(nil)

// ServeMedia terminates a peer's media signaling socket. The join is
// authorized by the minted token; once admitted, the relay pushes its offer
// and this loop forwards the peer's answers and candidates back to it.
func (h *Handler) ServeMedia(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	channel := q.Get("channel")
	if channel == "" {
		http.Error(w, "missing channel", http.StatusBadRequest)
		return
	}
	uid, err := domain.ParseUserID(q.Get("uid"))
	if err != nil {
		http.Error(w, "missing or invalid uid", http.StatusBadRequest)
		return
	}
	if err := h.Tokens.Verify(q.Get("token"), channel); err != nil {
		http.Error(w, "invalid media token", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("upgrading media connection")
		return
	}

	sessionID := domain.SessionID(channel)
	l := log.With().Str("channel", channel).Str("user_id", uid.String()).Logger()
	l.Info().Msg("peer joining media session")

	h.Media.register(sessionID, uid, conn)
	defer func() {
		h.Media.unregister(sessionID, uid)
		if err := h.Relay.LeaveSession(r.Context(), channel, uid); err != nil {
			l.Error().Err(err).Msg("removing peer from session")
		}
		conn.Close()
		l.Info().Msg("peer left media session")
	}()

	if err := h.Relay.JoinSession(r.Context(), channel, uid); err != nil {
		l.Error().Err(err).Msg("admitting peer to session")
		return
	}

	for {
		var msg wire.SignalMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("unexpected close error")
			}
			return
		}

		sig := domain.NewSignal(domain.SignalType(msg.Type), msg.Payload)
		if err := h.Relay.HandleSignal(r.Context(), channel, uid, sig); err != nil {
			l.Error().Err(err).Str("type", msg.Type).Msg("handling peer signal")
		}
	}
}
