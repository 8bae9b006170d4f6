// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"context"

	"github.com/ericfisherdev/blocksync/internal/domain/model"
)

// HandleStore defines the driven port for durable handle state persistence.
// There is exactly one record per (platform, handle) pair.
type HandleStore interface {
	// Add inserts a new record. If the pair already exists the existing record is
	// kept untouched and Add returns (false, nil).
	Add(ctx context.Context, handle string, platform model.Platform, blockStatus model.BlockStatus, platformStatus model.PlatformStatus) (bool, error)

	// UpdateStatus unconditionally upserts the record and refreshes last_changed.
	// Transition legality is the caller's concern.
	UpdateStatus(ctx context.Context, handle string, platform model.Platform, blockStatus model.BlockStatus, platformStatus model.PlatformStatus) error

	// UpdatePlatformStatus sets only the observed platform status of an existing
	// record. The block status is never touched. A missing pair is a no-op.
	UpdatePlatformStatus(ctx context.Context, handle string, platform model.Platform, platformStatus model.PlatformStatus) error

	// TransitionStatus moves the record from one block status to another only if
	// it is still in from, and reports whether the write happened. An empty
	// platformStatus keeps the stored one.
	TransitionStatus(ctx context.Context, handle string, platform model.Platform, from, to model.BlockStatus, platformStatus model.PlatformStatus) (bool, error)

	// Get returns the record for the pair, or (nil, nil) if it does not exist.
	Get(ctx context.Context, handle string, platform model.Platform) (*model.HandleRecord, error)

	// GetByStatus returns records whose block status is any of statuses, in
	// insertion order.
	GetByStatus(ctx context.Context, statuses ...model.BlockStatus) ([]model.HandleRecord, error)

	// GetByPlatform returns all records for the platform.
	GetByPlatform(ctx context.Context, platform model.Platform) ([]model.HandleRecord, error)

	// GetByPlatformAndStatus returns records for the platform with the given block status.
	GetByPlatformAndStatus(ctx context.Context, platform model.Platform, status model.BlockStatus) ([]model.HandleRecord, error)

	// CountByStatus returns the number of records per block status for the platform.
	CountByStatus(ctx context.Context, platform model.Platform) (map[model.BlockStatus]int, error)
}
