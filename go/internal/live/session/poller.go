package session

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Poller runs fetch immediately and then on a fixed interval. Failed
// fetches are logged and retried on the next tick; there is no backoff.
type Poller struct {
	name     string
	interval time.Duration
	clock    clockwork.Clock
	fetch    func(ctx context.Context) error
	trigger  chan struct{}
}

// NewPoller creates a poller. Nothing runs until Run.
func NewPoller(name string, interval time.Duration, clock clockwork.Clock, fetch func(ctx context.Context) error) *Poller {
	return &Poller{
		name:     name,
		interval: interval,
		clock:    clock,
		fetch:    fetch,
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger asks for one extra fetch. Triggers that arrive while one is
// already pending collapse into it.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is done
func (p *Poller) Run(ctx context.Context) {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.poll(ctx)
		case <-p.trigger:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	if err := p.fetch(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Warn().Err(err).Str("poller", p.name).Msg("poll failed")
	}
}
