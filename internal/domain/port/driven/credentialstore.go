package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/blocksync/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by CredentialStore operations when
// BLOCKSYNC_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set BLOCKSYNC_SECRET_KEY")

// CredentialStore defines the driven port for per-platform secret persistence.
// Each token type is an independent row so partial credentials are representable.
// The adapter layer is responsible for encryption; this interface operates on
// plaintext values at the domain boundary.
type CredentialStore interface {
	// Upsert writes every non-empty token in bundle for the platform, replacing
	// the stored value and resetting its expiry from bundle.Expires. Token types
	// absent from the bundle keep their existing records.
	Upsert(ctx context.Context, bundle model.CredentialBundle, platform model.Platform) error

	// GetByPlatform returns all stored records for the platform, including expired ones.
	GetByPlatform(ctx context.Context, platform model.Platform) ([]model.CredentialRecord, error)

	// Get returns a single record. Returns (nil, nil) if none exists.
	Get(ctx context.Context, platform model.Platform, tokenType model.TokenType) (*model.CredentialRecord, error)
}
