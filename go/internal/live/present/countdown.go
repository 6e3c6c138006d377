package present

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// StartingNow is shown once the countdown target has been reached
const StartingNow = "Starting now!"

// DefaultConfirmDelay is how long after reaching zero the countdown asks for
// a confirming snapshot fetch
const DefaultConfirmDelay = 2 * time.Second

// FormatCountdown renders the time left until target as "Dd Hh Mm Ss".
// The second return value reports whether the target has been reached.
func FormatCountdown(target, now time.Time) (string, bool) {
	remaining := target.Sub(now)
	if remaining <= 0 {
		return StartingNow, true
	}

	secs := int64(remaining / time.Second)
	if secs <= 0 {
		// under one second left still counts as not started
		return "0d 0h 0m 0s", false
	}

	days := secs / 86400
	hours := (secs % 86400) / 3600
	minutes := (secs % 3600) / 60
	seconds := secs % 60
	return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds), false
}

// Countdown derives the pre-show countdown text for a scheduled start. It is
// a read-only consumer: reaching zero only fires callbacks, the session
// decides what to fetch.
type Countdown struct {
	clock        clockwork.Clock
	confirmDelay time.Duration
	onStart      func()
	onConfirm    func()

	mu      sync.Mutex
	target  *time.Time
	text    string
	fired   bool
	confirm clockwork.Timer
}

// NewCountdown creates a countdown. onStart runs once per target when it is
// reached; onConfirm runs confirmDelay later.
func NewCountdown(clock clockwork.Clock, confirmDelay time.Duration, onStart, onConfirm func()) *Countdown {
	if confirmDelay <= 0 {
		confirmDelay = DefaultConfirmDelay
	}
	return &Countdown{
		clock:        clock,
		confirmDelay: confirmDelay,
		onStart:      onStart,
		onConfirm:    onConfirm,
	}
}

// SetTarget replaces the target. A different target re-arms the one-shot;
// nil clears the countdown.
func (c *Countdown) SetTarget(target *time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case target == nil && c.target == nil:
		return
	case target != nil && c.target != nil && target.Equal(*c.target):
		return
	}

	c.stopConfirmLocked()
	c.fired = false
	c.text = ""
	if target == nil {
		c.target = nil
		return
	}
	t := *target
	c.target = &t
}

// Tick recomputes the text for now and fires the one-shot when zero is crossed
func (c *Countdown) Tick(now time.Time) string {
	c.mu.Lock()
	if c.target == nil {
		c.mu.Unlock()
		return ""
	}

	text, reached := FormatCountdown(*c.target, now)
	c.text = text

	fire := reached && !c.fired
	if fire {
		c.fired = true
		if c.onConfirm != nil {
			c.confirm = c.clock.AfterFunc(c.confirmDelay, c.onConfirm)
		}
	}
	c.mu.Unlock()

	if fire && c.onStart != nil {
		c.onStart()
	}
	return text
}

// Text returns the text computed by the last Tick
func (c *Countdown) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// Active reports whether a target is set
func (c *Countdown) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target != nil
}

// Stop cancels a pending confirmation
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopConfirmLocked()
}

func (c *Countdown) stopConfirmLocked() {
	if c.confirm != nil {
		c.confirm.Stop()
		c.confirm = nil
	}
}
