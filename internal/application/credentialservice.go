package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ericfisherdev/blocksync/internal/domain/model"
	"github.com/ericfisherdev/blocksync/internal/domain/port/driven"
)

// DefaultCredentialTTL is the lifetime given to captured credentials that
// carry no expiry of their own.
const DefaultCredentialTTL = 24 * time.Hour

// ErrEmptyCredentials is returned when a capture carries no token at all.
var ErrEmptyCredentials = errors.New("credential bundle is empty")

// SessionInvalidator is implemented by adapter sessions that cache
// credentials for one platform.
type SessionInvalidator interface {
	Platform() model.Platform
	Invalidate()
}

// CredentialService stores credentials observed by the capture flow.
type CredentialService struct {
	store    driven.CredentialStore
	ttl      time.Duration
	sessions []SessionInvalidator
	now      func() time.Time
}

// NewCredentialService creates a new CredentialService. Sessions for the
// captured platform are invalidated after every successful capture.
func NewCredentialService(store driven.CredentialStore, ttl time.Duration, sessions ...SessionInvalidator) *CredentialService {
	if ttl <= 0 {
		ttl = DefaultCredentialTTL
	}
	return &CredentialService{
		store:    store,
		ttl:      ttl,
		sessions: sessions,
		now:      time.Now,
	}
}

// Capture upserts bundle for platform. The expiry is taken from the bundle if
// set, otherwise from the bearer token's exp claim, otherwise now plus the TTL.
func (s *CredentialService) Capture(ctx context.Context, platform model.Platform, bundle model.CredentialBundle) error {
	if _, ok := model.NetworkFor(platform); !ok {
		return fmt.Errorf("%w: %q", model.ErrUnknownPlatform, platform)
	}
	if bundle.IsEmpty() {
		return ErrEmptyCredentials
	}

	source := "explicit"
	if bundle.Expires.IsZero() {
		if exp, ok := jwtExpiry(bundle.JWT); ok {
			bundle.Expires = exp
			source = "jwt"
		} else {
			bundle.Expires = s.now().Add(s.ttl)
			source = "ttl"
		}
	}

	if err := s.store.Upsert(ctx, bundle, platform); err != nil {
		return fmt.Errorf("store credentials for %s: %w", platform, err)
	}

	for _, sess := range s.sessions {
		if sess.Platform() == platform {
			sess.Invalidate()
		}
	}

	slog.Info("credentials captured",
		"platform", platform,
		"expires", bundle.Expires.UTC().Format(time.RFC3339),
		"expiry_source", source,
	)
	return nil
}

// jwtExpiry reads the exp claim without verifying the signature. Bearer tokens
// for some platforms are opaque, in which case ok is false.
func jwtExpiry(token string) (time.Time, bool) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return time.Time{}, false
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
