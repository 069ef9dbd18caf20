package port

import (
	"context"

	"github.com/callglue/callglue/internal/core/domain"
)

// PresenceHandler receives decoded presence-topic events, one method per
// event. Implementations must be safe against events arriving in any order
// relative to other channels; within the topic, delivery order is preserved.
type PresenceHandler interface {
	OnSyncMembers(members []domain.User)
	OnMemberAdded(user domain.User)
	OnMemberRemoved(id domain.UserID)
	OnInvite(invite domain.CallInvite)
	OnDeclined(decline domain.CallDecline)
	OnSubscriptionError(err error)
}

// PresenceTransport subscribes the local user to the presence topic and
// dispatches inbound events to the handler until Unsubscribe is called.
type PresenceTransport interface {
	Subscribe(ctx context.Context, h PresenceHandler) error
	Unsubscribe() error
}
