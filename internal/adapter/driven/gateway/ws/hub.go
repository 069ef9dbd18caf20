package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/callglue/callglue/internal/core/domain"
	"github.com/callglue/callglue/internal/wire"
	"github.com/rs/zerolog/log"
)

// Hub owns the presence topic: it tracks connected clients, sends the full
// roster to every newcomer, and broadcasts membership changes. A user with
// several connections counts as online until the last one is gone, so the
// roster never carries duplicate ids.
type Hub struct {
	mu      sync.Mutex
	clients map[Client]bool
	online  map[domain.UserID]int

	register   chan Client
	unregister chan Client
	quit       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[Client]bool),
		online:     make(map[domain.UserID]int),
		register:   make(chan Client),
		unregister: make(chan Client),
		quit:       make(chan struct{}),
	}
}

func (h *Hub) Register(c Client) {
	h.register <- c
}

func (h *Hub) Unregister(c Client) {
	h.unregister <- c
}

func (h *Hub) Stop() {
	close(h.quit)
}

// Roster returns the distinct online users.
func (h *Hub) Roster() []domain.User {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rosterLocked()
}

func (h *Hub) rosterLocked() []domain.User {
	seen := make(map[domain.UserID]bool, len(h.online))
	var out []domain.User
	for c := range h.clients {
		u := c.User()
		if seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		out = append(out, u)
	}
	return out
}

// SendToUser delivers an event to every connection of one user. All
// connections are attempted; write failures are joined, so one dead socket
// never swallows the event for a user connected twice. An offline recipient
// is an error the caller may choose to ignore.
func (h *Hub) SendToUser(ctx context.Context, id domain.UserID, ev wire.PresenceEvent) error {
	h.mu.Lock()
	var conns []Client
	for c := range h.clients {
		if c.User().ID == id {
			conns = append(conns, c)
		}
	}
	h.mu.Unlock()

	if len(conns) == 0 {
		return fmt.Errorf("user %s is not connected to the presence topic", id)
	}
	var errs []error
	for _, c := range conns {
		if err := c.SendEvent(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for c := range h.clients {
				c.Close()
				delete(h.clients, c)
			}
			h.online = make(map[domain.UserID]int)
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			u := c.User()
			first := h.online[u.ID] == 0
			h.online[u.ID]++
			roster := h.rosterLocked()
			h.mu.Unlock()

			log.Info().Str("client_id", c.ID()).Str("user_id", u.ID.String()).Msg("client joined presence topic")

			members := make([]wire.UserDTO, 0, len(roster))
			for _, m := range roster {
				members = append(members, wire.FromUser(m))
			}
			if err := c.SendEvent(wire.PresenceEvent{Event: wire.EventSync, Members: members}); err != nil {
				log.Error().Err(err).Str("client_id", c.ID()).Msg("sending roster sync")
			}
			if first {
				dto := wire.FromUser(u)
				h.broadcast(wire.PresenceEvent{Event: wire.EventMemberAdded, User: &dto}, c)
			}

		case c := <-h.unregister:
			h.mu.Lock()
			if !h.clients[c] {
				h.mu.Unlock()
				continue
			}
			delete(h.clients, c)
			u := c.User()
			h.online[u.ID]--
			last := h.online[u.ID] <= 0
			if last {
				delete(h.online, u.ID)
			}
			h.mu.Unlock()

			c.Close()
			log.Info().Str("client_id", c.ID()).Str("user_id", u.ID.String()).Msg("client left presence topic")

			if last {
				dto := wire.FromUser(u)
				h.broadcast(wire.PresenceEvent{Event: wire.EventMemberRemoved, User: &dto}, nil)
			}
		}
	}
}

// broadcast sends ev to every client except skip. A failed write is only
// logged; the connection's own read loop unregisters it when it dies.
func (h *Hub) broadcast(ev wire.PresenceEvent, skip Client) {
	h.mu.Lock()
	conns := make([]Client, 0, len(h.clients))
	for c := range h.clients {
		if c != skip {
			conns = append(conns, c)
		}
	}
	h.mu.Unlock()

	for _, c := range conns {
		if err := c.SendEvent(ev); err != nil {
			log.Error().Err(err).Str("client_id", c.ID()).Msg("broadcasting presence event")
		}
	}
}
