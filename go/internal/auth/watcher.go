package auth

import (
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ExpiryWatcher logs the user out at the token's exp instead of waiting for
// the backend to reject a request
type ExpiryWatcher struct {
	clock    clockwork.Clock
	onExpire func()

	mu    sync.Mutex
	timer clockwork.Timer
}

func NewExpiryWatcher(clock clockwork.Clock, onExpire func()) *ExpiryWatcher {
	return &ExpiryWatcher{clock: clock, onExpire: onExpire}
}

// Watch arms the watcher for id, replacing any previous token. An already
// expired token fires right away.
func (w *ExpiryWatcher) Watch(id Identity) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopLocked()

	if id.ExpiresAt == nil {
		return
	}

	d := id.ExpiresAt.Sub(w.clock.Now())
	if d < 0 {
		d = 0
	}
	log.Debug().Str("subject", id.Subject).Dur("expires_in", d).Msg("watching token expiry")
	w.timer = w.clock.AfterFunc(d, w.expire)
}

func (w *ExpiryWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopLocked()
}

func (w *ExpiryWatcher) expire() {
	log.Info().Msg("token expired, logging out")
	if w.onExpire != nil {
		w.onExpire()
	}
}

func (w *ExpiryWatcher) stopLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
