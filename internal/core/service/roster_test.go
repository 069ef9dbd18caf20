package service

import (
	"testing"

	"github.com/callglue/callglue/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

func TestRosterSyncReplacesWholesale(t *testing.T) {
	r := NewRoster()
	r.Add(domain.User{ID: 9, Name: "Stale"})

	r.Sync([]domain.User{
		{ID: 1, Name: "A"},
		{ID: 2, Name: "B"},
	})

	assert.Equal(t, domain.StatusOnline, r.Status(1))
	assert.Equal(t, domain.StatusOnline, r.Status(2))
	assert.Equal(t, domain.StatusOffline, r.Status(9))
}

func TestRosterAddIsIdempotent(t *testing.T) {
	r := NewRoster()
	r.Add(domain.User{ID: 1, Name: "A"})
	r.Add(domain.User{ID: 1, Name: "A again"})

	u, ok := r.Lookup(1)
	assert.True(t, ok)
	assert.Equal(t, "A", u.Name)
	assert.Len(t, r.Users(), 1)
}

func TestRosterRemoveAbsentIsNoop(t *testing.T) {
	r := NewRoster()
	r.Add(domain.User{ID: 1, Name: "A"})

	r.Remove(2)

	assert.Equal(t, domain.StatusOnline, r.Status(1))
	assert.Len(t, r.Users(), 1)
}

// Replaying any event sequence must equal applying the events one by one to
// an empty set.
func TestRosterEventReplay(t *testing.T) {
	r := NewRoster()

	r.Sync([]domain.User{{ID: 1, Name: "A"}})
	assert.Equal(t, domain.StatusOnline, r.Status(1))
	assert.Equal(t, domain.StatusOffline, r.Status(2))

	r.Add(domain.User{ID: 2, Name: "B"})
	r.Add(domain.User{ID: 2, Name: "B"})
	r.Remove(3)
	r.Remove(1)

	assert.Equal(t, domain.StatusOffline, r.Status(1))
	assert.Equal(t, domain.StatusOnline, r.Status(2))

	r.Sync(nil)
	assert.Empty(t, r.Users())
	assert.Equal(t, domain.StatusOffline, r.Status(2))
}

func TestRosterUsersSortedByID(t *testing.T) {
	r := NewRoster()
	r.Add(domain.User{ID: 3, Name: "C"})
	r.Add(domain.User{ID: 1, Name: "A"})
	r.Add(domain.User{ID: 2, Name: "B"})

	users := r.Users()
	assert.Equal(t, []domain.User{
		{ID: 1, Name: "A"},
		{ID: 2, Name: "B"},
		{ID: 3, Name: "C"},
	}, users)
}
