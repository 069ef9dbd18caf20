package http

import (
	"net/http"
	"sync"

	gws "github.com/callglue/callglue/internal/adapter/driven/gateway/ws"
	"github.com/callglue/callglue/internal/core/domain"
	"github.com/callglue/callglue/internal/wire"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// TODO: restrict origins outside dev
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSClient is one presence connection; implements gateway ws.Client.
type WSClient struct {
	id   string
	user domain.User

	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *WSClient) ID() string {
	return c.id
}

func (c *WSClient) User() domain.User {
	return c.user
}

func (c *WSClient) SendEvent(ev wire.PresenceEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(ev)
}

func (c *WSClient) Close() error {
	return c.conn.Close()
}

var _ gws.Client = (*WSClient)(nil)

// ServePresence upgrades a presence subscription. The subscriber announces
// itself with id and name query params; everything it needs afterwards is
// pushed, so the read loop only watches for the connection to close.
func (h *Handler) ServePresence(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseUserID(r.URL.Query().Get("id"))
	if err != nil {
		http.Error(w, "missing or invalid id", http.StatusBadRequest)
		return
	}
	user := domain.User{ID: id, Name: r.URL.Query().Get("name")}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("upgrading presence connection")
		return
	}

	client := &WSClient{
		id:   uuid.New().String(),
		user: user,
		conn: conn,
	}

	l := log.With().Str("client_id", client.id).Str("user_id", id.String()).Logger()
	l.Info().Msg("presence subscriber connected")

	h.Hub.Register(client)
	defer func() {
		l.Info().Msg("presence subscriber disconnected")
		h.Hub.Unregister(client)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("unexpected close error")
			}
			return
		}
	}
}
