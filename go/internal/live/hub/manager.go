package hub

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/debatelive/go/internal/live/events"
)

// DefaultRetryDelay is the fixed wait between connection attempts
const DefaultRetryDelay = 5 * time.Second

var (
	ErrNotConnected   = errors.New("hub connection is not connected")
	ErrAlreadyStarted = errors.New("hub connection already started")
)

// Handler receives one push event
type Handler func(events.Event)

// Subscription is returned by Subscribe and OnStateChange. Unsubscribe is
// idempotent and safe on a nil Subscription.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe removes the handler
func (s *Subscription) Unsubscribe() {
	if s == nil || s.cancel == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Option configures a Manager
type Option func(*Manager)

// WithClock sets the clock used for retry delays
func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithRetryDelay overrides the fixed retry delay
func WithRetryDelay(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.retryDelay = d
		}
	}
}

// Manager owns the single hub connection of a mounted view. It reconnects
// forever with a fixed delay and fans push events out to typed subscribers.
type Manager struct {
	dialer     Dialer
	clock      clockwork.Clock
	retryDelay time.Duration

	mu        sync.RWMutex
	state     ConnectionState
	transport Transport
	started   bool
	cancel    context.CancelFunc
	done      chan struct{}

	subsMu        sync.RWMutex
	handlers      map[events.Kind]map[uint64]Handler
	stateHandlers map[uint64]func(StateChange)
	nextID        uint64
}

// NewManager creates a connection manager. Nothing is dialed until Start.
func NewManager(dialer Dialer, opts ...Option) *Manager {
	m := &Manager{
		dialer:        dialer,
		clock:         clockwork.NewRealClock(),
		retryDelay:    DefaultRetryDelay,
		state:         StateDisconnected,
		handlers:      make(map[events.Kind]map[uint64]Handler),
		stateHandlers: make(map[uint64]func(StateChange)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins the connection loop. It returns immediately; connection
// failures are retried in the background and never returned here.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.mu.Unlock()

	m.setState(StateConnecting)
	go m.run(runCtx)
	return nil
}

// State returns the current connection state
func (m *Manager) State() ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Subscribe registers a handler for one event kind
func (m *Manager) Subscribe(kind events.Kind, h Handler) *Subscription {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	id := m.nextID
	m.nextID++
	if m.handlers[kind] == nil {
		m.handlers[kind] = make(map[uint64]Handler)
	}
	m.handlers[kind][id] = h

	return &Subscription{cancel: func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()
		if hs, ok := m.handlers[kind]; ok {
			delete(hs, id)
			if len(hs) == 0 {
				delete(m.handlers, kind)
			}
		}
	}}
}

// OnStateChange registers a handler for connection state transitions
func (m *Manager) OnStateChange(h func(StateChange)) *Subscription {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	id := m.nextID
	m.nextID++
	m.stateHandlers[id] = h

	return &Subscription{cancel: func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()
		delete(m.stateHandlers, id)
	}}
}

// HandlerCount returns the number of registered event and state handlers
func (m *Manager) HandlerCount() int {
	m.subsMu.RLock()
	defer m.subsMu.RUnlock()

	n := len(m.stateHandlers)
	for _, hs := range m.handlers {
		n += len(hs)
	}
	return n
}

// Invoke calls a hub method. It is a logged no-op returning ErrNotConnected
// unless the connection is up. Failures are never retried.
func (m *Manager) Invoke(ctx context.Context, target string, args ...any) error {
	m.mu.RLock()
	t, state := m.transport, m.state
	m.mu.RUnlock()

	if state != StateConnected || t == nil {
		log.Warn().
			Str("target", target).
			Str("state", state.String()).
			Msg("hub invoke skipped, not connected")
		return ErrNotConnected
	}

	raw, err := MarshalArgs(args...)
	if err != nil {
		return fmt.Errorf("invoke %s: %w", target, err)
	}

	if err := t.Send(ctx, Message{Target: target, Arguments: raw}); err != nil {
		log.Error().Err(err).Str("target", target).Msg("hub invoke failed")
		return fmt.Errorf("invoke %s: %w", target, err)
	}

	log.Debug().Str("target", target).Msg("hub invoke sent")
	return nil
}

// Close stops the connection and releases every subscription so a remount
// starts from zero handlers.
func (m *Manager) Close() error {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	m.subsMu.Lock()
	clear(m.handlers)
	clear(m.stateHandlers)
	m.subsMu.Unlock()

	return nil
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)
	defer m.setState(StateDisconnected)

	attempt := 0
	for {
		attempt++
		t, err := m.dialer.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().
				Err(err).
				Int("attempt", attempt).
				Dur("retry_in", m.retryDelay).
				Msg("hub connect failed")
			if !m.wait(ctx) {
				return
			}
			continue
		}

		attempt = 0
		m.mu.Lock()
		m.transport = t
		m.mu.Unlock()
		m.setState(StateConnected)
		log.Info().Msg("hub connected")

		err = m.readLoop(ctx, t)

		m.mu.Lock()
		m.transport = nil
		m.mu.Unlock()
		_ = t.Close()

		if ctx.Err() != nil {
			return
		}

		log.Warn().Err(err).Dur("retry_in", m.retryDelay).Msg("hub connection lost")
		m.setState(StateReconnecting)
		if !m.wait(ctx) {
			return
		}
	}
}

func (m *Manager) readLoop(ctx context.Context, t Transport) error {
	stop := make(chan struct{})
	defer close(stop)

	// Receive may block inside the transport; closing it unblocks the read
	go func() {
		select {
		case <-ctx.Done():
			_ = t.Close()
		case <-stop:
		}
	}()

	for {
		msg, err := t.Receive(ctx)
		if err != nil {
			return err
		}
		m.dispatch(msg)
	}
}

func (m *Manager) dispatch(msg Message) {
	ev, err := events.Decode(msg.Target, msg.Arguments)
	if err != nil {
		log.Warn().Err(err).Str("event", msg.Target).Msg("dropping undecodable hub event")
		return
	}
	if ev == nil {
		log.Debug().Str("event", msg.Target).Msg("ignoring unknown hub event")
		return
	}

	m.subsMu.RLock()
	hs := m.handlers[ev.Kind()]
	ids := make([]uint64, 0, len(hs))
	for id := range hs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	targets := make([]Handler, 0, len(ids))
	for _, id := range ids {
		targets = append(targets, hs[id])
	}
	m.subsMu.RUnlock()

	for _, h := range targets {
		h(ev)
	}
}

func (m *Manager) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-m.clock.After(m.retryDelay):
		return true
	}
}

func (m *Manager) setState(s ConnectionState) {
	m.mu.Lock()
	old := m.state
	if old == s {
		m.mu.Unlock()
		return
	}
	m.state = s
	m.mu.Unlock()

	log.Debug().Str("from", old.String()).Str("to", s.String()).Msg("hub state changed")

	m.subsMu.RLock()
	ids := make([]uint64, 0, len(m.stateHandlers))
	for id := range m.stateHandlers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	targets := make([]func(StateChange), 0, len(ids))
	for _, id := range ids {
		targets = append(targets, m.stateHandlers[id])
	}
	m.subsMu.RUnlock()

	change := StateChange{Old: old, New: s}
	for _, h := range targets {
		h(change)
	}
}
