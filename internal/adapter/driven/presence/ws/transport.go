// Package ws subscribes the local user to the presence topic over a
// websocket and dispatches decoded events to a port.PresenceHandler.
package ws

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/callglue/callglue/internal/core/domain"
	"github.com/callglue/callglue/internal/core/port"
	"github.com/callglue/callglue/internal/wire"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Transport struct {
	serverURL string
	user      domain.User

	mu     sync.Mutex
	conn   *websocket.Conn
	closed atomic.Bool
}

// NewTransport builds a transport for the backend at serverURL (http or
// https; the scheme is rewritten for the websocket dial).
func NewTransport(serverURL string, user domain.User) *Transport {
	return &Transport{
		serverURL: serverURL,
		user:      user,
	}
}

// Subscribe dials the presence endpoint and starts dispatching events to h
// until Unsubscribe is called or the connection drops. Read errors other
// than a deliberate unsubscribe are reported through OnSubscriptionError.
func (t *Transport) Subscribe(ctx context.Context, h port.PresenceHandler) error {
	endpoint, err := t.endpoint()
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.conn != nil {
		t.mu.Unlock()
		return errors.New("already subscribed to presence topic")
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	t.conn = conn
	t.closed.Store(false)
	t.mu.Unlock()

	log.Info().Str("user_id", t.user.ID.String()).Msg("subscribed to presence topic")
	go t.readLoop(conn, h)
	return nil
}

// Unsubscribe drops the presence subscription. Safe to call when not
// subscribed.
func (t *Transport) Unsubscribe() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	t.closed.Store(true)
	if err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil {
		log.Debug().Err(err).Msg("writing close message")
	}
	return conn.Close()
}

func (t *Transport) endpoint() (string, error) {
	u, err := url.Parse(t.serverURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/presence"
	q := u.Query()
	q.Set("id", t.user.ID.String())
	q.Set("name", t.user.Name)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (t *Transport) readLoop(conn *websocket.Conn, h port.PresenceHandler) {
	for {
		var ev wire.PresenceEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if !t.closed.Load() {
				h.OnSubscriptionError(err)
			}
			return
		}
		t.dispatch(ev, h)
	}
}

// dispatch validates one envelope and hands it to the matching handler
// method. Malformed or unknown events are dropped at this boundary.
func (t *Transport) dispatch(ev wire.PresenceEvent, h port.PresenceHandler) {
	switch ev.Event {
	case wire.EventSync:
		members := make([]domain.User, 0, len(ev.Members))
		for _, m := range ev.Members {
			members = append(members, m.ToDomain())
		}
		h.OnSyncMembers(members)

	case wire.EventMemberAdded:
		if ev.User == nil {
			log.Warn().Msg("member_added event without user")
			return
		}
		h.OnMemberAdded(ev.User.ToDomain())

	case wire.EventMemberRemoved:
		if ev.User == nil {
			log.Warn().Msg("member_removed event without user")
			return
		}
		h.OnMemberRemoved(domain.UserID(ev.User.ID))

	case wire.EventInvite:
		if ev.Invite == nil {
			log.Warn().Msg("invite event without payload")
			return
		}
		inv, err := ev.Invite.ToDomain()
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed invite")
			return
		}
		h.OnInvite(inv)

	case wire.EventDeclined:
		if ev.Decline == nil {
			log.Warn().Msg("declined event without payload")
			return
		}
		dec, err := ev.Decline.ToDomain()
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed decline")
			return
		}
		h.OnDeclined(dec)

	default:
		log.Debug().Str("event", ev.Event).Msg("ignoring unknown presence event")
	}
}
