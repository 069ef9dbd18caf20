// Package jwtoken mints and verifies the short-lived credentials that
// authorize joining a media session. Tokens are HS256 JWTs bound to one
// channel and one application id.
package jwtoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/callglue/callglue/internal/core/domain"
	"github.com/golang-jwt/jwt/v5"
)

type Service struct {
	secret []byte
	appID  string
	ttl    time.Duration
}

func New(secret, appID string, ttl time.Duration) *Service {
	return &Service{
		secret: []byte(secret),
		appID:  appID,
		ttl:    ttl,
	}
}

type sessionClaims struct {
	Channel string `json:"chan"`
	AppID   string `json:"app"`
	jwt.RegisteredClaims
}

// Mint issues credentials for one channel.
func (s *Service) Mint(channel string) (domain.MediaCredentials, error) {
	if channel == "" {
		return domain.MediaCredentials{}, errors.New("channel name required")
	}
	now := time.Now()
	claims := sessionClaims{
		Channel: channel,
		AppID:   s.appID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return domain.MediaCredentials{}, err
	}
	return domain.MediaCredentials{AppID: s.appID, Token: signed}, nil
}

// Verify checks that token authorizes joining channel.
func (s *Service) Verify(token, channel string) error {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return err
	}
	if !parsed.Valid {
		return errors.New("invalid media token")
	}
	if claims.Channel != channel {
		return errors.New("token not issued for this channel")
	}
	if claims.AppID != s.appID {
		return errors.New("token issued for a different application")
	}
	return nil
}
