package ws

import (
	"github.com/callglue/callglue/internal/core/domain"
	"github.com/callglue/callglue/internal/wire"
)

// Client is one connection to the presence topic.
type Client interface {
	ID() string
	User() domain.User
	SendEvent(ev wire.PresenceEvent) error
	Close() error
}
