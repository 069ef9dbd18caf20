package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/callglue/callglue/internal/core/domain"
	"github.com/callglue/callglue/internal/wire"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	syncs    chan []domain.User
	added    chan domain.User
	removed  chan domain.UserID
	invites  chan domain.CallInvite
	declines chan domain.CallDecline
	errs     chan error
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		syncs:    make(chan []domain.User, 4),
		added:    make(chan domain.User, 4),
		removed:  make(chan domain.UserID, 4),
		invites:  make(chan domain.CallInvite, 4),
		declines: make(chan domain.CallDecline, 4),
		errs:     make(chan error, 4),
	}
}

func (h *recordingHandler) OnSyncMembers(members []domain.User)     { h.syncs <- members }
func (h *recordingHandler) OnMemberAdded(user domain.User)          { h.added <- user }
func (h *recordingHandler) OnMemberRemoved(id domain.UserID)        { h.removed <- id }
func (h *recordingHandler) OnInvite(invite domain.CallInvite)       { h.invites <- invite }
func (h *recordingHandler) OnDeclined(decline domain.CallDecline)   { h.declines <- decline }
func (h *recordingHandler) OnSubscriptionError(err error)           { h.errs <- err }

var upgrader = websocket.Upgrader{}

// presenceServer upgrades one connection and hands it to serve.
func presenceServer(t *testing.T, serve func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		serve(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handler callback")
		var zero T
		return zero
	}
}

func TestSubscribeSendsIdentityQuery(t *testing.T) {
	gotQuery := make(chan map[string]string, 1)
	srv := presenceServer(t, func(conn *websocket.Conn, r *http.Request) {
		gotQuery <- map[string]string{
			"id":   r.URL.Query().Get("id"),
			"name": r.URL.Query().Get("name"),
		}
		conn.ReadMessage()
	})

	tr := NewTransport(srv.URL, domain.User{ID: 7, Name: "Greta"})
	require.NoError(t, tr.Subscribe(context.Background(), newRecordingHandler()))
	defer tr.Unsubscribe()

	q := waitFor(t, gotQuery)
	assert.Equal(t, "7", q["id"])
	assert.Equal(t, "Greta", q["name"])
}

func TestDispatchesTypedEvents(t *testing.T) {
	srv := presenceServer(t, func(conn *websocket.Conn, r *http.Request) {
		events := []wire.PresenceEvent{
			{Event: wire.EventSync, Members: []wire.UserDTO{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}}},
			{Event: wire.EventMemberAdded, User: &wire.UserDTO{ID: 3, Name: "C"}},
			{Event: wire.EventMemberRemoved, User: &wire.UserDTO{ID: 1, Name: "A"}},
			{Event: wire.EventInvite, Invite: &wire.InviteDTO{UserToCall: 7, From: 2, ChannelName: "call-2-7"}},
			{Event: wire.EventDeclined, Decline: &wire.DeclineDTO{Caller: 7, ChannelName: "call-2-7"}},
		}
		for _, ev := range events {
			require.NoError(t, conn.WriteJSON(ev))
		}
		conn.ReadMessage()
	})

	h := newRecordingHandler()
	tr := NewTransport(srv.URL, domain.User{ID: 7, Name: "Greta"})
	require.NoError(t, tr.Subscribe(context.Background(), h))
	defer tr.Unsubscribe()

	members := waitFor(t, h.syncs)
	assert.Len(t, members, 2)

	added := waitFor(t, h.added)
	assert.Equal(t, domain.UserID(3), added.ID)

	removed := waitFor(t, h.removed)
	assert.Equal(t, domain.UserID(1), removed)

	inv := waitFor(t, h.invites)
	assert.Equal(t, domain.CallInvite{From: 2, To: 7, Channel: "call-2-7"}, inv)

	dec := waitFor(t, h.declines)
	assert.Equal(t, domain.CallDecline{Caller: 7, Channel: "call-2-7"}, dec)
}

// Envelopes missing their payload, or carrying an unknown event name, are
// dropped without reaching the handler.
func TestMalformedEventsAreDropped(t *testing.T) {
	srv := presenceServer(t, func(conn *websocket.Conn, r *http.Request) {
		events := []wire.PresenceEvent{
			{Event: wire.EventMemberAdded},
			{Event: wire.EventInvite, Invite: &wire.InviteDTO{UserToCall: 7, From: 2}},
			{Event: "nonsense"},
			{Event: wire.EventInvite, Invite: &wire.InviteDTO{UserToCall: 7, From: 2, ChannelName: "call-2-7"}},
		}
		for _, ev := range events {
			require.NoError(t, conn.WriteJSON(ev))
		}
		conn.ReadMessage()
	})

	h := newRecordingHandler()
	tr := NewTransport(srv.URL, domain.User{ID: 7, Name: "Greta"})
	require.NoError(t, tr.Subscribe(context.Background(), h))
	defer tr.Unsubscribe()

	inv := waitFor(t, h.invites)
	assert.Equal(t, "call-2-7", inv.Channel)
	assert.Empty(t, h.added)
}

func TestUnsubscribeIsQuiet(t *testing.T) {
	srv := presenceServer(t, func(conn *websocket.Conn, r *http.Request) {
		conn.ReadMessage()
	})

	h := newRecordingHandler()
	tr := NewTransport(srv.URL, domain.User{ID: 7, Name: "Greta"})
	require.NoError(t, tr.Subscribe(context.Background(), h))
	require.NoError(t, tr.Unsubscribe())

	select {
	case err := <-h.errs:
		t.Fatalf("deliberate unsubscribe reported as error: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	assert.NoError(t, tr.Unsubscribe(), "unsubscribe is safe when not subscribed")
}

func TestDroppedConnectionIsReported(t *testing.T) {
	srv := presenceServer(t, func(conn *websocket.Conn, r *http.Request) {
		// Return immediately so the deferred Close drops the connection.
	})

	h := newRecordingHandler()
	tr := NewTransport(srv.URL, domain.User{ID: 7, Name: "Greta"})
	require.NoError(t, tr.Subscribe(context.Background(), h))

	err := waitFor(t, h.errs)
	assert.Error(t, err)
}

func TestSecondSubscribeRejected(t *testing.T) {
	srv := presenceServer(t, func(conn *websocket.Conn, r *http.Request) {
		conn.ReadMessage()
	})

	tr := NewTransport(srv.URL, domain.User{ID: 7, Name: "Greta"})
	require.NoError(t, tr.Subscribe(context.Background(), newRecordingHandler()))
	defer tr.Unsubscribe()

	assert.Error(t, tr.Subscribe(context.Background(), newRecordingHandler()))
}
