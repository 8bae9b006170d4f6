// Package application contains use-case orchestration services.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/blocksync/internal/domain/model"
	"github.com/ericfisherdev/blocksync/internal/domain/port/driven"
)

// DefaultIdleInterval is how long the reconciler sleeps when no actionable
// work is queued.
const DefaultIdleInterval = 60 * time.Second

// DefaultCallTimeout bounds a single adapter call.
const DefaultCallTimeout = 30 * time.Second

// ReconcilerConfig holds the pacing and capability settings of a Reconciler.
// Zero durations fall back to the package defaults.
type ReconcilerConfig struct {
	IdleInterval   time.Duration
	BackoffFloor   time.Duration
	BackoffCeiling time.Duration
	CallTimeout    time.Duration
	UnblockEnabled bool
}

// BatchSummary describes one pass over the pending queue.
type BatchSummary struct {
	Pending   int       `json:"pending"`   // records in TO_BLOCK or TO_UNBLOCK
	Ignored   int       `json:"ignored"`   // no adapter, or unblock disabled
	Skipped   int       `json:"skipped"`   // write-ahead claim failed or lost
	Processed int       `json:"processed"` // adapter was invoked
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// ReconcilerSnapshot is a point-in-time view of the reconciler for health reporting.
type ReconcilerSnapshot struct {
	Running        bool             `json:"running"`
	WaitTimeMS     int64            `json:"wait_time_ms"`
	UnblockEnabled bool             `json:"unblock_enabled"`
	Platforms      []model.Platform `json:"platforms"`
	Batches        int              `json:"batches"`
	LastBatch      *BatchSummary    `json:"last_batch,omitempty"`
	LastError      string           `json:"last_error,omitempty"`
}

// Reconciler drives pending handle intents toward convergence against the
// remote platforms. Records are processed one at a time and every remote call
// shares a single Backoff.
type Reconciler struct {
	store    driven.HandleStore
	registry *AdapterRegistry
	backoff  *Backoff
	cfg      ReconcilerConfig
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time

	mu        sync.Mutex
	running   bool
	batches   int
	lastBatch *BatchSummary
	lastErr   error
}

// NewReconciler creates a Reconciler over the given store and adapters.
func NewReconciler(store driven.HandleStore, registry *AdapterRegistry, cfg ReconcilerConfig) *Reconciler {
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = DefaultIdleInterval
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	return &Reconciler{
		store:    store,
		registry: registry,
		backoff:  NewBackoff(cfg.BackoffFloor, cfg.BackoffCeiling),
		cfg:      cfg,
		sleep:    sleepContext,
		now:      time.Now,
	}
}

// Start runs the reconciliation loop until ctx is canceled. A batch that found
// no actionable work is followed by the idle interval; otherwise the next
// batch starts immediately, paced only by the shared backoff.
func (r *Reconciler) Start(ctx context.Context) {
	r.setRunning(true)
	defer r.setRunning(false)

	slog.Info("reconciler started",
		"idle_interval", r.cfg.IdleInterval,
		"unblock_enabled", r.cfg.UnblockEnabled,
	)

	for {
		summary, err := r.ReconcileOnce(ctx)
		if ctx.Err() != nil {
			slog.Info("reconciler stopped")
			return
		}
		if err != nil {
			slog.Error("reconcile batch failed", "error", err)
		}

		if err != nil || summary.Processed == 0 {
			if err := r.sleep(ctx, r.cfg.IdleInterval); err != nil {
				slog.Info("reconciler stopped")
				return
			}
		}
	}
}

// ReconcileOnce processes every actionable pending record once, sleeping the
// current backoff after each adapter call. It returns an error only when the
// pending queue cannot be read or ctx is canceled.
func (r *Reconciler) ReconcileOnce(ctx context.Context) (BatchSummary, error) {
	summary := BatchSummary{StartedAt: r.now()}

	pending, err := r.store.GetByStatus(ctx, model.BlockStatusToBlock, model.BlockStatusToUnblock)
	if err != nil {
		err = fmt.Errorf("query pending handles: %w", err)
		r.finish(summary, err)
		return summary, err
	}
	summary.Pending = len(pending)

	for _, rec := range pending {
		if err := ctx.Err(); err != nil {
			r.finish(summary, err)
			return summary, err
		}

		adapter, ok := r.actionable(rec)
		if !ok {
			summary.Ignored++
			continue
		}

		attempted := rec.BlockStatus.Attempted()
		claimed, err := r.store.TransitionStatus(ctx, rec.Handle, rec.Platform, rec.BlockStatus, attempted, "")
		if err != nil {
			slog.Error("mark attempt failed, skipping handle",
				"platform", rec.Platform, "handle", rec.Handle, "error", err)
			summary.Skipped++
			continue
		}
		if !claimed {
			slog.Info("handle changed since batch start, skipping",
				"platform", rec.Platform, "handle", rec.Handle, "was", rec.BlockStatus)
			summary.Skipped++
			continue
		}

		summary.Processed++
		var wait time.Duration
		if r.invoke(ctx, adapter, rec) {
			summary.Succeeded++
			wait = r.backoff.Succeeded()
			r.markConverged(ctx, rec)
		} else {
			summary.Failed++
			wait = r.backoff.Failed()
			slog.Warn("reconcile attempt failed",
				"platform", rec.Platform,
				"handle", rec.Handle,
				"status", attempted,
				"next_wait", wait,
			)
		}

		if err := r.sleep(ctx, wait); err != nil {
			r.finish(summary, err)
			return summary, err
		}
	}

	if summary.Pending > 0 {
		slog.Info("reconcile batch complete",
			"pending", summary.Pending,
			"processed", summary.Processed,
			"succeeded", summary.Succeeded,
			"failed", summary.Failed,
			"ignored", summary.Ignored,
			"skipped", summary.Skipped,
			"wait", r.backoff.Current(),
		)
	}

	r.finish(summary, nil)
	return summary, nil
}

// Snapshot returns the current reconciler state.
func (r *Reconciler) Snapshot() ReconcilerSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := ReconcilerSnapshot{
		Running:        r.running,
		WaitTimeMS:     r.backoff.Current().Milliseconds(),
		UnblockEnabled: r.cfg.UnblockEnabled,
		Platforms:      r.registry.Platforms(),
		Batches:        r.batches,
	}
	if r.lastBatch != nil {
		b := *r.lastBatch
		snap.LastBatch = &b
	}
	if r.lastErr != nil {
		snap.LastError = r.lastErr.Error()
	}
	return snap
}

// actionable returns the adapter for rec, or false if the record must stay
// queued untouched.
func (r *Reconciler) actionable(rec model.HandleRecord) (driven.PlatformAccountAdapter, bool) {
	if rec.BlockStatus.IsUnblockIntent() && !r.cfg.UnblockEnabled {
		return nil, false
	}
	adapter, ok := r.registry.Get(rec.Platform)
	if !ok {
		slog.Debug("no adapter for platform", "platform", rec.Platform, "handle", rec.Handle)
		return nil, false
	}
	return adapter, true
}

// invoke runs the adapter operation for rec under the per-call timeout. A
// panicking adapter counts as a failed call.
func (r *Reconciler) invoke(ctx context.Context, adapter driven.PlatformAccountAdapter, rec model.HandleRecord) (ok bool) {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			slog.Error("adapter panicked",
				"platform", rec.Platform, "handle", rec.Handle, "panic", p)
			ok = false
		}
	}()

	if rec.BlockStatus.IsUnblockIntent() {
		return adapter.Unblock(callCtx, rec.Handle)
	}
	return adapter.Block(callCtx, rec.Handle)
}

// markConverged records the terminal status after a successful call. A
// failed write leaves the ATTEMPTED_* status in place. If the intent was
// changed while the call ran, the new intent is kept and only the observed
// platform status is recorded.
func (r *Reconciler) markConverged(ctx context.Context, rec model.HandleRecord) {
	attempted := rec.BlockStatus.Attempted()
	terminal := rec.BlockStatus.Terminal()
	observed := model.PlatformStatusBlocked
	if terminal == model.BlockStatusUnblocked {
		observed = model.PlatformStatusUnblocked
	}
	ok, err := r.store.TransitionStatus(ctx, rec.Handle, rec.Platform, attempted, terminal, observed)
	if err != nil {
		slog.Error("record converged status failed",
			"platform", rec.Platform, "handle", rec.Handle, "status", terminal, "error", err)
		return
	}
	if !ok {
		slog.Info("intent changed during call, keeping new intent",
			"platform", rec.Platform, "handle", rec.Handle, "observed", observed)
		if err := r.store.UpdatePlatformStatus(ctx, rec.Handle, rec.Platform, observed); err != nil {
			slog.Error("record observed platform status failed",
				"platform", rec.Platform, "handle", rec.Handle, "error", err)
		}
		return
	}
	slog.Info("handle reconciled", "platform", rec.Platform, "handle", rec.Handle, "status", terminal)
}

func (r *Reconciler) finish(summary BatchSummary, err error) {
	summary.EndedAt = r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches++
	r.lastBatch = &summary
	r.lastErr = err
}

func (r *Reconciler) setRunning(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = v
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
