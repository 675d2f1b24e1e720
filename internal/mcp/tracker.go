package mcp

import (
	"sync"
	"time"
)

// checkTracker records recent pltm_check calls so handleAssert can detect
// when a caller skips the check-before-assert workflow and nudge them.
//
// The tracker is keyed on (sourceUser, domain) with a configurable time
// window. If a check was recorded within the window, WasChecked returns true.
// This is an in-memory, per-process structure — it does not survive restarts,
// which is acceptable because the nudge is advisory, not a hard gate (the
// epistemic gate itself always runs inside pltm_assert regardless).
type checkTracker struct {
	mu     sync.Mutex
	checks map[checkKey]time.Time
	window time.Duration // how long a check is considered "recent"
}

type checkKey struct {
	sourceUser string
	domain     string
}

func newCheckTracker(window time.Duration) *checkTracker {
	return &checkTracker{
		checks: make(map[checkKey]time.Time),
		window: window,
	}
}

// Record notes that sourceUser checked this domain before asserting.
func (t *checkTracker) Record(sourceUser, domain string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.checks[checkKey{sourceUser, domain}] = time.Now()

	// Lazy cleanup: if the map has grown large, purge stale entries to prevent
	// unbounded growth from many distinct (user, domain) pairs over time.
	if len(t.checks) > 1000 {
		t.purgeStale()
	}
}

// WasChecked reports whether sourceUser checked this domain within the
// configured time window.
func (t *checkTracker) WasChecked(sourceUser, domain string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts, ok := t.checks[checkKey{sourceUser, domain}]
	if !ok {
		return false
	}
	if time.Since(ts) > t.window {
		delete(t.checks, checkKey{sourceUser, domain})
		return false
	}
	return true
}

// purgeStale removes entries older than the window. Must be called with mu held.
func (t *checkTracker) purgeStale() {
	now := time.Now()
	for k, ts := range t.checks {
		if now.Sub(ts) > t.window {
			delete(t.checks, k)
		}
	}
}
