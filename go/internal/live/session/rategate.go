package session

import (
	"fmt"
	"sync"
	"time"
)

// RateLimitedError is returned when a fire is rejected for being too
// frequent. It is never retried automatically.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("Too many fires. Try again in %ds", e.Seconds())
}

// Seconds is RetryAfter rounded up to whole seconds
func (e *RateLimitedError) Seconds() int {
	secs := int(e.RetryAfter / time.Second)
	if e.RetryAfter%time.Second != 0 {
		secs++
	}
	return secs
}

// RateGate remembers how long the backend asked us to hold off
type RateGate struct {
	mu           sync.Mutex
	blockedUntil time.Time
}

// Block closes the gate for d from now. A shorter block never shortens an
// existing one.
func (g *RateGate) Block(now time.Time, d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if until := now.Add(d); until.After(g.blockedUntil) {
		g.blockedUntil = until
	}
}

// Allow reports whether an action may be issued at now
func (g *RateGate) Allow(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !now.Before(g.blockedUntil)
}

// Remaining is how long the gate stays closed after now
func (g *RateGate) Remaining(now time.Time) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if d := g.blockedUntil.Sub(now); d > 0 {
		return d
	}
	return 0
}
