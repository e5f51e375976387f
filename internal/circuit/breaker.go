// Package circuit provides a small failure-threshold breaker. The poller
// uses it as its consecutive-transient-failure budget; the session uses it
// to refuse submissions during a cooldown after repeated browser faults.
package circuit

import (
	"sync"
	"time"
)

// Breaker counts consecutive failures and, once the threshold is reached,
// blocks further work for a cooldown period.
type Breaker struct {
	mu            sync.RWMutex
	threshold     int
	cooldown      time.Duration
	failures      int
	cooldownUntil time.Time
}

// NewBreaker returns a breaker that trips after threshold consecutive
// failures and stays tripped for the cooldown duration.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{threshold: threshold, cooldown: cooldown}
}

// RecordFailure notes one failure. It returns true when this failure reached
// the threshold and the breaker entered cooldown.
func (b *Breaker) RecordFailure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.failures >= b.threshold {
		b.cooldownUntil = time.Now().Add(b.cooldown)
		b.failures = 0
		return true
	}
	return false
}

// RecordSuccess clears the consecutive-failure count. The count is
// consecutive by design: one good poll resets the budget.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	b.failures = 0
	b.mu.Unlock()
}

// Tripped reports whether the breaker is currently in cooldown.
func (b *Breaker) Tripped() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return time.Now().Before(b.cooldownUntil)
}

// CooldownRemaining returns how long the current cooldown still has to run,
// or 0 when the breaker is closed.
func (b *Breaker) CooldownRemaining() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if time.Now().Before(b.cooldownUntil) {
		return time.Until(b.cooldownUntil)
	}
	return 0
}

// FailureCount returns the current consecutive-failure count.
func (b *Breaker) FailureCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.failures
}

// Reset clears both the failure count and any active cooldown.
func (b *Breaker) Reset() {
	b.mu.Lock()
	b.failures = 0
	b.cooldownUntil = time.Time{}
	b.mu.Unlock()
}
