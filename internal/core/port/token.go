package port

import "github.com/callglue/callglue/internal/core/domain"

// TokenService mints and checks short-lived media-session credentials.
type TokenService interface {
	Mint(channel string) (domain.MediaCredentials, error)
	Verify(token, channel string) error
}
