package service

import (
	"sort"
	"sync"

	"github.com/callglue/callglue/internal/core/domain"
)

// Roster tracks the set of currently-online users as reported by the
// presence topic. Mutations mirror the transport's events: a sync replaces
// the set wholesale, add and remove apply incrementally in arrival order.
type Roster struct {
	mu    sync.RWMutex
	users map[domain.UserID]domain.User
}

func NewRoster() *Roster {
	return &Roster{
		users: make(map[domain.UserID]domain.User),
	}
}

// Sync replaces the roster atomically with the given membership.
func (r *Roster) Sync(members []domain.User) {
	next := make(map[domain.UserID]domain.User, len(members))
	for _, u := range members {
		next[u.ID] = u
	}
	r.mu.Lock()
	r.users = next
	r.mu.Unlock()
}

// Add inserts a user. Adding an already-present id is a no-op.
func (r *Roster) Add(u domain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.ID]; ok {
		return
	}
	r.users[u.ID] = u
}

// Remove deletes a user. Removing an absent id is a no-op.
func (r *Roster) Remove(id domain.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, id)
}

// Status reports Online iff the id is currently in the roster.
func (r *Roster) Status(id domain.UserID) domain.PresenceStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.users[id]; ok {
		return domain.StatusOnline
	}
	return domain.StatusOffline
}

// Lookup returns the user for id, if online.
func (r *Roster) Lookup(id domain.UserID) (domain.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	return u, ok
}

// Users returns a snapshot of the roster, ordered by id.
func (r *Roster) Users() []domain.User {
	r.mu.RLock()
	out := make([]domain.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
