package port

import (
	"context"

	"github.com/callglue/callglue/internal/core/domain"
)

// SignalingClient is the thin request/response surface of the backend.
// It holds no state; errors are opaque network or service failures.
type SignalingClient interface {
	RequestToken(ctx context.Context, channel string) (domain.MediaCredentials, error)
	PlaceCall(ctx context.Context, target domain.UserID, channel string) error
	DeclineCall(ctx context.Context, caller domain.UserID, channel string) error
}
