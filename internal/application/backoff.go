package application

import (
	"sync"
	"time"
)

// Default pacing bounds for the reconciler.
const (
	DefaultBackoffFloor   = 1 * time.Second
	DefaultBackoffCeiling = 300 * time.Second
)

// Backoff is the single pacing value shared by every remote call of the
// reconciler. Remote rate limits apply to the whole authenticated account,
// so there is one Backoff per reconciler rather than one per handle.
type Backoff struct {
	mu      sync.Mutex
	floor   time.Duration
	ceiling time.Duration
	current time.Duration
}

// NewBackoff creates a Backoff starting at floor. Non-positive bounds fall
// back to the defaults; a ceiling below the floor is raised to the floor.
func NewBackoff(floor, ceiling time.Duration) *Backoff {
	if floor <= 0 {
		floor = DefaultBackoffFloor
	}
	if ceiling <= 0 {
		ceiling = DefaultBackoffCeiling
	}
	if ceiling < floor {
		ceiling = floor
	}
	return &Backoff{floor: floor, ceiling: ceiling, current: floor}
}

// Current returns the wait applied before the next remote call.
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Succeeded halves the wait, clamped to the floor, and returns it.
func (b *Backoff) Succeeded() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current /= 2
	if b.current < b.floor {
		b.current = b.floor
	}
	return b.current
}

// Failed doubles the wait, clamped to the ceiling, and returns it.
func (b *Backoff) Failed() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current *= 2
	if b.current > b.ceiling {
		b.current = b.ceiling
	}
	return b.current
}
