package present

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// RoundTimer is the local round clock. It counts down once per second while
// running and stops itself at zero. Every Reset, Start or Stop cancels the
// previous decrement loop first, so at most one loop ever runs.
type RoundTimer struct {
	clock    clockwork.Clock
	onChange func(remaining int, running bool)

	mu        sync.Mutex
	remaining int
	running   bool
	ticker    clockwork.Ticker
	stop      chan struct{}
}

// NewRoundTimer creates a stopped timer at zero
func NewRoundTimer(clock clockwork.Clock, onChange func(remaining int, running bool)) *RoundTimer {
	return &RoundTimer{clock: clock, onChange: onChange}
}

// Reset sets a new duration. An authoritative value from the hub always
// replaces whatever the local loop has extrapolated.
func (t *RoundTimer) Reset(seconds int, running bool) {
	if seconds < 0 {
		seconds = 0
	}

	t.mu.Lock()
	t.cancelLocked()
	t.remaining = seconds
	t.running = running && seconds > 0
	if t.running {
		t.startLocked()
	}
	remaining, isRunning := t.remaining, t.running
	t.mu.Unlock()

	t.notify(remaining, isRunning)
}

// Start resumes counting from the current value
func (t *RoundTimer) Start() {
	t.mu.Lock()
	if t.running || t.remaining <= 0 {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.startLocked()
	remaining := t.remaining
	t.mu.Unlock()

	t.notify(remaining, true)
}

// Pause freezes the current value
func (t *RoundTimer) Pause() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.cancelLocked()
	t.running = false
	remaining := t.remaining
	t.mu.Unlock()

	t.notify(remaining, false)
}

// Stop cancels the loop without notifying; used on teardown
func (t *RoundTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
	t.running = false
}

// Remaining returns the current value and whether the timer is running
func (t *RoundTimer) Remaining() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining, t.running
}

// startLocked creates the ticker synchronously so a caller advancing a fake
// clock right after Reset always hits the new loop.
func (t *RoundTimer) startLocked() {
	ticker := t.clock.NewTicker(time.Second)
	stop := make(chan struct{})
	t.ticker = ticker
	t.stop = stop
	go t.loop(ticker, stop)
}

func (t *RoundTimer) cancelLocked() {
	if t.ticker != nil {
		t.ticker.Stop()
		t.ticker = nil
	}
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}

func (t *RoundTimer) loop(ticker clockwork.Ticker, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			t.mu.Lock()
			if t.stop != stop {
				// superseded between the tick and the lock
				t.mu.Unlock()
				return
			}
			t.remaining--
			if t.remaining <= 0 {
				t.remaining = 0
				t.running = false
				t.cancelLocked()
			}
			remaining, running := t.remaining, t.running
			t.mu.Unlock()

			t.notify(remaining, running)
			if !running {
				return
			}
		}
	}
}

func (t *RoundTimer) notify(remaining int, running bool) {
	if t.onChange != nil {
		t.onChange(remaining, running)
	}
}

// FormatClock renders remaining seconds as m:ss
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
