// Package session holds the credential bundle a platform adapter authenticates with.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/blocksync/internal/domain/model"
	"github.com/ericfisherdev/blocksync/internal/domain/port/driven"
)

// ErrNoCredentials is returned when the credential store has no unexpired
// secrets for the platform.
var ErrNoCredentials = errors.New("no credentials available")

// DefaultRefresh bounds how long a loaded bundle is reused before the store
// is consulted again, so freshly captured credentials are picked up.
const DefaultRefresh = 5 * time.Minute

// Session caches one platform's credential bundle. It reloads from the
// credential store once the cached bundle expires or is invalidated.
type Session struct {
	store    driven.CredentialStore
	platform model.Platform
	refresh  time.Duration
	now      func() time.Time

	mu      sync.Mutex
	bundle  model.CredentialBundle
	expires time.Time
}

// New creates a Session for platform. A non-positive refresh uses DefaultRefresh.
func New(store driven.CredentialStore, platform model.Platform, refresh time.Duration) *Session {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	return &Session{
		store:    store,
		platform: platform,
		refresh:  refresh,
		now:      time.Now,
	}
}

// Platform returns the platform this session loads credentials for.
func (s *Session) Platform() model.Platform {
	return s.platform
}

// Bundle returns the current credential bundle, reloading it from the store
// when the cached copy has expired. Expired records are ignored.
func (s *Session) Bundle(ctx context.Context) (model.CredentialBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !s.bundle.IsEmpty() && now.Before(s.expires) {
		return s.bundle, nil
	}

	records, err := s.store.GetByPlatform(ctx, s.platform)
	if err != nil {
		return model.CredentialBundle{}, fmt.Errorf("load %s credentials: %w", s.platform, err)
	}

	var bundle model.CredentialBundle
	expires := now.Add(s.refresh)
	for _, rec := range records {
		if rec.IsExpired(now) {
			slog.Debug("ignoring expired credential", "platform", s.platform, "token_type", rec.TokenType)
			continue
		}
		bundle.Set(rec.TokenType, rec.Value)
		if rec.Expires.Before(expires) {
			expires = rec.Expires
		}
	}
	bundle.Expires = expires

	if bundle.IsEmpty() {
		s.bundle = model.CredentialBundle{}
		s.expires = time.Time{}
		return model.CredentialBundle{}, fmt.Errorf("%s: %w", s.platform, ErrNoCredentials)
	}

	s.bundle = bundle
	s.expires = expires
	slog.Debug("credentials loaded", "platform", s.platform, "expires", expires)
	return bundle, nil
}

// Invalidate drops the cached bundle so the next Bundle call reloads it.
// Adapters call this when the remote rejects the credentials.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundle = model.CredentialBundle{}
	s.expires = time.Time{}
}
