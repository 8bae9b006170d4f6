package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ericfisherdev/blocksync/internal/domain/model"
	"github.com/ericfisherdev/blocksync/internal/domain/port/driven"
)

var (
	// ErrUnblockDisabled is returned when an unblock intent is requested while
	// the unblock capability is turned off.
	ErrUnblockDisabled = errors.New("unblock is disabled")

	// ErrInvalidHandle is returned for handles that are empty after
	// normalization or contain characters no supported network allows.
	ErrInvalidHandle = errors.New("invalid handle")

	// ErrStatusChanged is returned when a record kept changing under a
	// conditional write.
	ErrStatusChanged = errors.New("handle status changed concurrently")
)

const maxTransitionAttempts = 3

// EnqueueResult summarizes one subscription import.
type EnqueueResult struct {
	Queued    int      `json:"queued"`
	Duplicate int      `json:"duplicate"`
	Invalid   []string `json:"invalid"`
}

// Progress is the per-status handle count for one platform.
type Progress struct {
	Platform model.Platform            `json:"platform"`
	Total    int                       `json:"total"`
	Counts   map[model.BlockStatus]int `json:"counts"`
}

// SubscriptionService seeds and re-queues block intents on behalf of the list
// subscription flow. It never writes ATTEMPTED_* or terminal statuses.
type SubscriptionService struct {
	store          driven.HandleStore
	unblockEnabled bool
}

// NewSubscriptionService creates a new SubscriptionService.
func NewSubscriptionService(store driven.HandleStore, unblockEnabled bool) *SubscriptionService {
	return &SubscriptionService{store: store, unblockEnabled: unblockEnabled}
}

// Enqueue adds a TO_BLOCK record for every valid handle. Handles already known
// for the platform keep their existing status and are counted as duplicates.
func (s *SubscriptionService) Enqueue(ctx context.Context, platform model.Platform, handles []string) (EnqueueResult, error) {
	res := EnqueueResult{Invalid: []string{}}

	if _, ok := model.NetworkFor(platform); !ok {
		return res, fmt.Errorf("%w: %q", model.ErrUnknownPlatform, platform)
	}

	for _, raw := range handles {
		handle, err := validHandle(raw)
		if err != nil {
			res.Invalid = append(res.Invalid, raw)
			continue
		}

		added, err := s.store.Add(ctx, handle, platform, model.BlockStatusToBlock, model.PlatformStatusUnknown)
		if err != nil {
			return res, fmt.Errorf("enqueue %s: %w", model.HandleKey(platform, handle), err)
		}
		if added {
			res.Queued++
		} else {
			res.Duplicate++
		}
	}

	slog.Info("handles enqueued",
		"platform", platform,
		"queued", res.Queued,
		"duplicate", res.Duplicate,
		"invalid", len(res.Invalid),
	)
	return res, nil
}

// RequestUnblock queues an unblock intent for the handle. Records already
// waiting for or done with an unblock are left alone.
func (s *SubscriptionService) RequestUnblock(ctx context.Context, platform model.Platform, raw string) error {
	if !s.unblockEnabled {
		return ErrUnblockDisabled
	}
	if _, ok := model.NetworkFor(platform); !ok {
		return fmt.Errorf("%w: %q", model.ErrUnknownPlatform, platform)
	}
	handle, err := validHandle(raw)
	if err != nil {
		return err
	}

	key := model.HandleKey(platform, handle)
	for range maxTransitionAttempts {
		existing, err := s.store.Get(ctx, handle, platform)
		if err != nil {
			return fmt.Errorf("load %s: %w", key, err)
		}

		var queued bool
		if existing == nil {
			queued, err = s.store.Add(ctx, handle, platform, model.BlockStatusToUnblock, model.PlatformStatusUnknown)
		} else {
			switch existing.BlockStatus {
			case model.BlockStatusToUnblock, model.BlockStatusUnblocked:
				return nil
			}
			queued, err = s.store.TransitionStatus(ctx, handle, platform, existing.BlockStatus, model.BlockStatusToUnblock, "")
		}
		if err != nil {
			return fmt.Errorf("queue unblock %s: %w", key, err)
		}
		if queued {
			slog.Info("unblock requested", "platform", platform, "handle", handle)
			return nil
		}
		slog.Debug("handle changed while queueing unblock, retrying", "key", key)
	}
	return fmt.Errorf("queue unblock %s: %w", key, ErrStatusChanged)
}

// Requeue moves every ATTEMPTED_* record of the platform back to its pending
// status so the reconciler retries it. It returns the number of records moved.
func (s *SubscriptionService) Requeue(ctx context.Context, platform model.Platform) (int, error) {
	moved := 0
	for _, status := range []model.BlockStatus{model.BlockStatusAttemptedBlock, model.BlockStatusAttemptedUnblock} {
		records, err := s.store.GetByPlatformAndStatus(ctx, platform, status)
		if err != nil {
			return moved, fmt.Errorf("list %s %s: %w", platform, status, err)
		}
		for _, rec := range records {
			ok, err := s.store.TransitionStatus(ctx, rec.Handle, rec.Platform, rec.BlockStatus, rec.BlockStatus.Pending(), "")
			if err != nil {
				return moved, fmt.Errorf("requeue %s: %w", rec.Key, err)
			}
			if !ok {
				slog.Debug("handle no longer in flight, not requeued", "key", rec.Key)
				continue
			}
			moved++
		}
	}

	if moved > 0 {
		slog.Info("handles requeued", "platform", platform, "count", moved)
	}
	return moved, nil
}

// Progress returns the per-status counts for the platform.
func (s *SubscriptionService) Progress(ctx context.Context, platform model.Platform) (Progress, error) {
	counts, err := s.store.CountByStatus(ctx, platform)
	if err != nil {
		return Progress{}, fmt.Errorf("count %s: %w", platform, err)
	}
	p := Progress{Platform: platform, Counts: counts}
	for _, n := range counts {
		p.Total += n
	}
	return p, nil
}

// List returns records filtered by platform and status. Empty filters match
// everything.
func (s *SubscriptionService) List(ctx context.Context, platform model.Platform, status model.BlockStatus) ([]model.HandleRecord, error) {
	switch {
	case platform != "" && status != "":
		return s.store.GetByPlatformAndStatus(ctx, platform, status)
	case platform != "":
		return s.store.GetByPlatform(ctx, platform)
	case status != "":
		return s.store.GetByStatus(ctx, status)
	default:
		return s.store.GetByStatus(ctx, model.AllBlockStatuses()...)
	}
}

// Get returns the record for the handle, or (nil, nil) if it is unknown.
func (s *SubscriptionService) Get(ctx context.Context, platform model.Platform, raw string) (*model.HandleRecord, error) {
	return s.store.Get(ctx, model.NormalizeHandle(raw), platform)
}

func validHandle(raw string) (string, error) {
	h := model.NormalizeHandle(raw)
	if h == "" || strings.ContainsAny(h, " \t\r\n/:?#") {
		return "", fmt.Errorf("%w: %q", ErrInvalidHandle, raw)
	}
	return h, nil
}
