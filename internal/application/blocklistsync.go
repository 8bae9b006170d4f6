package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/blocksync/internal/domain/model"
	"github.com/ericfisherdev/blocksync/internal/domain/port/driven"
)

// ErrNoAdapter is returned when no account adapter is registered for a platform.
var ErrNoAdapter = errors.New("no adapter registered for platform")

// SyncResult summarizes a remote block list sync.
type SyncResult struct {
	Platform model.Platform `json:"platform"`
	Remote   int            `json:"remote"`
	Matched  int            `json:"matched"`
	Blocked  int            `json:"marked_blocked"`
	Cleared  int            `json:"marked_unblocked"`
}

// BlockListSync refreshes the platform_status of local records from the
// account's remote block list. It never changes block_status.
type BlockListSync struct {
	store    driven.HandleStore
	registry *AdapterRegistry
}

// NewBlockListSync creates a new BlockListSync.
func NewBlockListSync(store driven.HandleStore, registry *AdapterRegistry) *BlockListSync {
	return &BlockListSync{store: store, registry: registry}
}

// Remote returns the accounts currently blocked on the platform.
func (s *BlockListSync) Remote(ctx context.Context, platform model.Platform) ([]model.RemoteAccount, error) {
	adapter, ok := s.registry.Get(platform)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoAdapter, platform)
	}
	accounts, err := adapter.BlockedAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list blocked accounts on %s: %w", platform, err)
	}
	return accounts, nil
}

// Sync marks local records found on the remote block list as BLOCKED and
// records previously seen as BLOCKED but now absent as UNBLOCKED.
func (s *BlockListSync) Sync(ctx context.Context, platform model.Platform) (SyncResult, error) {
	res := SyncResult{Platform: platform}

	remote, err := s.Remote(ctx, platform)
	if err != nil {
		return res, err
	}
	res.Remote = len(remote)

	blocked := make(map[string]bool, len(remote))
	for _, acct := range remote {
		blocked[model.NormalizeHandle(acct.Handle)] = true
	}

	local, err := s.store.GetByPlatform(ctx, platform)
	if err != nil {
		return res, fmt.Errorf("list local handles on %s: %w", platform, err)
	}

	for _, rec := range local {
		var observed model.PlatformStatus
		switch {
		case blocked[rec.Handle]:
			res.Matched++
			if rec.PlatformStatus == model.PlatformStatusBlocked {
				continue
			}
			observed = model.PlatformStatusBlocked
		case rec.PlatformStatus == model.PlatformStatusBlocked:
			observed = model.PlatformStatusUnblocked
		default:
			continue
		}

		if err := s.store.UpdatePlatformStatus(ctx, rec.Handle, rec.Platform, observed); err != nil {
			return res, fmt.Errorf("update platform status %s: %w", rec.Key, err)
		}
		if observed == model.PlatformStatusBlocked {
			res.Blocked++
		} else {
			res.Cleared++
		}
	}

	slog.Info("block list synced",
		"platform", platform,
		"remote", res.Remote,
		"matched", res.Matched,
		"marked_blocked", res.Blocked,
		"marked_unblocked", res.Cleared,
	)
	return res, nil
}
