// Package cooldown enforces the minimum interval between a user's successive
// point-earning actions.
package cooldown

import (
	"sync"
	"time"
)

// Tracker keeps the last qualifying-action timestamp per user. TryConsume is
// a single atomic check-and-set so two near-simultaneous qualifying actions
// cannot both pass. Entries are pruned by staleness via Prune, not deleted
// explicitly.
type Tracker struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

// NewTracker constructs an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		last: make(map[string]time.Time),
		now:  time.Now,
	}
}

// SetNow overrides the time source. It is intended for tests.
func (t *Tracker) SetNow(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// TryConsume reports whether the user may perform a qualifying action. When
// allowed it records the current time as the new last-action time in the same
// step; when denied it returns the remaining wait without mutating state.
func (t *Tracker) TryConsume(userID string, window time.Duration) (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	last, ok := t.last[userID]
	if ok && window > 0 {
		elapsed := now.Sub(last)
		if elapsed < window {
			return false, window - elapsed
		}
	}
	t.last[userID] = now
	return true, 0
}

// Prune drops entries older than the window. Safe to call from a janitor
// loop; correctness never depends on it.
func (t *Tracker) Prune(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for user, last := range t.last {
		if now.Sub(last) >= window {
			delete(t.last, user)
			removed++
		}
	}
	return removed
}
