package application

import (
	"context"
	"time"
)

// SetSleep replaces the reconciler's sleep function.
func (r *Reconciler) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	r.sleep = fn
}

// SetNow replaces the credential service clock.
func (s *CredentialService) SetNow(fn func() time.Time) {
	s.now = fn
}
