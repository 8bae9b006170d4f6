package driven

import (
	"context"

	"github.com/ericfisherdev/blocksync/internal/domain/model"
)

// PlatformAccountAdapter performs block actions for the authenticated account
// on one social platform.
//
// Block and Unblock never return errors: a remote 2xx or 404 is success, and
// every other outcome, including missing credentials and transport errors,
// is reported as false after being logged.
type PlatformAccountAdapter interface {
	// Platform returns the platform this adapter acts on.
	Platform() model.Platform

	// Block blocks the handle.
	Block(ctx context.Context, handle string) bool

	// Unblock resolves the handle to its platform identifier and unblocks it.
	Unblock(ctx context.Context, handle string) bool

	// BlockedAccounts lists the accounts currently blocked by the authenticated user.
	BlockedAccounts(ctx context.Context) ([]model.RemoteAccount, error)
}
