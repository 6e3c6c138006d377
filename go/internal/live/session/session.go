package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/debatelive/go/clients"
	"github.com/mcdev12/debatelive/go/clients/debate_client"
	"github.com/mcdev12/debatelive/go/internal/live/events"
	"github.com/mcdev12/debatelive/go/internal/live/hub"
	"github.com/mcdev12/debatelive/go/internal/live/present"
)

const (
	DefaultStatusInterval    = 5 * time.Second
	DefaultHeatmapInterval   = 10 * time.Second
	DefaultCountdownInterval = time.Second
	DefaultShakeDuration     = 500 * time.Millisecond
	// used when a 429 arrives without any retry-after hint
	DefaultFallbackRetryAfter = 5 * time.Second
)

var (
	ErrAlreadyMounted  = errors.New("session already mounted")
	ErrInvalidPosition = errors.New("fire position must be between 0 and 1")
)

// Backend is the REST surface the session polls and posts fires to
type Backend interface {
	GetLiveStatus(ctx context.Context, sessionID string) (*debate_client.LiveStatus, error)
	GetHeatmap(ctx context.Context, sessionID string) (*debate_client.Heatmap, error)
	SendFire(ctx context.Context, sessionID string, position float64) (*debate_client.FireResult, error)
}

// Conn is the hub connection surface. *hub.Manager satisfies it.
type Conn interface {
	Start(ctx context.Context) error
	State() hub.ConnectionState
	Subscribe(kind events.Kind, h hub.Handler) *hub.Subscription
	OnStateChange(h func(hub.StateChange)) *hub.Subscription
	Invoke(ctx context.Context, target string, args ...any) error
	Close() error
}

type Config struct {
	SessionID string
	// UserID suppresses the echo burst of our own reactions
	UserID string

	StatusInterval     time.Duration
	HeatmapInterval    time.Duration
	CountdownInterval  time.Duration
	BurstTTL           time.Duration
	ShakeDuration      time.Duration
	ConfirmDelay       time.Duration
	FallbackRetryAfter time.Duration

	Clock clockwork.Clock
}

// DefaultConfig returns the intervals used by the live views
func DefaultConfig(sessionID string) Config {
	return Config{
		SessionID:          sessionID,
		StatusInterval:     DefaultStatusInterval,
		HeatmapInterval:    DefaultHeatmapInterval,
		CountdownInterval:  DefaultCountdownInterval,
		BurstTTL:           present.DefaultBurstTTL,
		ShakeDuration:      DefaultShakeDuration,
		ConfirmDelay:       present.DefaultConfirmDelay,
		FallbackRetryAfter: DefaultFallbackRetryAfter,
		Clock:              clockwork.NewRealClock(),
	}
}

func (c *Config) fill() {
	d := DefaultConfig(c.SessionID)
	if c.StatusInterval <= 0 {
		c.StatusInterval = d.StatusInterval
	}
	if c.HeatmapInterval <= 0 {
		c.HeatmapInterval = d.HeatmapInterval
	}
	if c.CountdownInterval <= 0 {
		c.CountdownInterval = d.CountdownInterval
	}
	if c.BurstTTL <= 0 {
		c.BurstTTL = d.BurstTTL
	}
	if c.ShakeDuration <= 0 {
		c.ShakeDuration = d.ShakeDuration
	}
	if c.ConfirmDelay <= 0 {
		c.ConfirmDelay = d.ConfirmDelay
	}
	if c.FallbackRetryAfter <= 0 {
		c.FallbackRetryAfter = d.FallbackRetryAfter
	}
	if c.Clock == nil {
		c.Clock = d.Clock
	}
}

// FireOutcome is the result of an accepted fire
type FireOutcome struct {
	TotalFires int
	Burst      present.Burst
}

// Session reconciles polled snapshots and hub pushes for one mounted view
type Session struct {
	cfg     Config
	clock   clockwork.Clock
	backend Backend
	conn    Conn

	store     *Store
	timer     *present.RoundTimer
	countdown *present.Countdown
	bursts    *present.Bursts
	shake     present.Shake
	gate      RateGate

	statusPoller  *Poller
	heatmapPoller *Poller

	mu        sync.RWMutex
	mounted   bool
	unmounted bool
	heatmap   []present.HeatmapBucket
	loadErr   error
	connState hub.ConnectionState

	listenMu  sync.RWMutex
	listeners map[uint64]func()
	nextID    uint64
}

// New creates a session. Nothing runs until Run.
func New(cfg Config, backend Backend, conn Conn) *Session {
	cfg.fill()
	s := &Session{
		cfg:       cfg,
		clock:     cfg.Clock,
		backend:   backend,
		conn:      conn,
		store:     NewStore(),
		bursts:    present.NewBursts(cfg.BurstTTL),
		connState: hub.StateDisconnected,
		listeners: make(map[uint64]func()),
	}
	s.timer = present.NewRoundTimer(s.clock, func(int, bool) { s.notify() })
	s.statusPoller = NewPoller("status", cfg.StatusInterval, s.clock, s.fetchStatus)
	s.heatmapPoller = NewPoller("heatmap", cfg.HeatmapInterval, s.clock, s.fetchHeatmap)
	s.countdown = present.NewCountdown(s.clock, cfg.ConfirmDelay, nil, s.statusPoller.Trigger)
	return s
}

// Run mounts the session and blocks until ctx is done, then unmounts:
// every subscription is removed, every timer stopped and late responses
// are ignored.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.mounted {
		s.mu.Unlock()
		return ErrAlreadyMounted
	}
	s.mounted = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := log.With().Str("session_id", s.cfg.SessionID).Logger()

	subs := make([]*hub.Subscription, 0, len(events.AllKinds)+1)
	for _, kind := range events.AllKinds {
		subs = append(subs, s.conn.Subscribe(kind, s.handleEvent))
	}
	subs = append(subs, s.conn.OnStateChange(func(c hub.StateChange) {
		s.handleStateChange(ctx, c)
	}))
	unsubStore := s.store.Subscribe(func(snap Snapshot) {
		s.countdown.SetTarget(snap.ScheduledStartTime)
		s.countdown.Tick(s.clock.Now())
		s.notify()
	})

	defer func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
		unsubStore()
		s.unmount()

		leaveCtx, leaveCancel := context.WithTimeout(context.Background(), 2*time.Second)
		if s.conn.State() == hub.StateConnected {
			_ = s.conn.Invoke(leaveCtx, events.ActionLeaveSession, s.cfg.SessionID)
		}
		leaveCancel()
		if err := s.conn.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close hub connection")
		}
		logger.Info().Msg("session unmounted")
	}()

	// the connection outlives ctx so LeaveSession can still go out on unmount;
	// Close in the deferred teardown stops it
	if err := s.conn.Start(context.WithoutCancel(ctx)); err != nil {
		if !errors.Is(err, hub.ErrAlreadyStarted) {
			return fmt.Errorf("failed to start hub connection: %w", err)
		}
		// started by someone else; pick up the state we missed
		if state := s.conn.State(); state == hub.StateConnected {
			s.handleStateChange(ctx, hub.StateChange{Old: hub.StateDisconnected, New: state})
		}
	}
	logger.Info().Msg("session mounted")

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		s.statusPoller.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		s.heatmapPoller.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		s.runCountdown(ctx)
	}()

	<-ctx.Done()
	// flag first so fetches still in flight drop their results
	s.unmount()
	wg.Wait()
	return nil
}

func (s *Session) unmount() {
	s.mu.Lock()
	s.unmounted = true
	s.mu.Unlock()

	s.timer.Stop()
	s.countdown.Stop()
	s.store.Close()

	s.listenMu.Lock()
	clear(s.listeners)
	s.listenMu.Unlock()
}

func (s *Session) isUnmounted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unmounted
}

func (s *Session) handleStateChange(ctx context.Context, c hub.StateChange) {
	s.mu.Lock()
	s.connState = c.New
	s.mu.Unlock()

	log.Debug().
		Str("session_id", s.cfg.SessionID).
		Str("state", c.New.String()).
		Msg("connection state changed")

	if c.New == hub.StateConnected {
		if err := s.conn.Invoke(ctx, events.ActionJoinSession, s.cfg.SessionID); err != nil {
			log.Warn().Err(err).Str("session_id", s.cfg.SessionID).Msg("failed to join session")
		}
		// anything pushed while we were away is lost; refetch everything
		s.statusPoller.Trigger()
		s.heatmapPoller.Trigger()
	}
	s.notify()
}

func (s *Session) handleEvent(ev events.Event) {
	if s.isUnmounted() {
		return
	}
	at := s.clock.Now()

	switch e := ev.(type) {
	case events.FireReaction:
		if !s.ours(e.SessionID) {
			return
		}
		if e.TotalFires != nil {
			s.store.Apply(Patch{TotalFires: e.TotalFires}, at)
		} else {
			s.store.AddFires(1, at)
		}
		if e.UserID == "" || e.UserID != s.cfg.UserID {
			s.bursts.Add(e.Position, at)
		}

	case events.RoundStarted:
		if !s.ours(e.SessionID) {
			return
		}
		live, status := true, StatusLive
		p := Patch{CurrentRound: &e.Round, IsLive: &live, Status: &status}
		if e.TotalRounds > 0 {
			p.TotalRounds = &e.TotalRounds
		}
		if e.Question != "" {
			q := &e.Question
			p.CurrentQuestion = &q
		}
		s.store.Apply(p, at)
		s.timer.Reset(e.DurationSeconds, e.AutoStart)

	case events.RoundEnded:
		if !s.ours(e.SessionID) {
			return
		}
		s.timer.Stop()

	case events.TimerUpdate:
		if !s.ours(e.SessionID) {
			return
		}
		s.timer.Reset(e.RemainingSeconds, e.Running)

	case events.NextQuestion:
		if !s.ours(e.SessionID) {
			return
		}
		q := &e.Question
		p := Patch{CurrentQuestion: &q}
		if e.Round > 0 {
			p.CurrentRound = &e.Round
		}
		s.store.Apply(p, at)

	case events.ViewerCountUpdate:
		if !s.ours(e.SessionID) {
			return
		}
		s.store.Apply(Patch{ViewerCount: &e.Count}, at)

	case events.SessionStatusChanged:
		if !s.ours(e.SessionID) {
			return
		}
		status := ParseStatus(e.Status)
		p := Patch{IsLive: &e.IsLive, Status: &status}
		if e.Title != "" {
			p.Title = &e.Title
		}
		if e.ScheduledStartTime != nil {
			p.ScheduledStartTime = &e.ScheduledStartTime
		}
		s.store.Apply(p, at)
		if status == StatusOffline {
			s.timer.Stop()
		}

	default:
		return
	}

	s.notify()
}

func (s *Session) ours(sessionID string) bool {
	return sessionID == "" || sessionID == s.cfg.SessionID
}

func (s *Session) fetchStatus(ctx context.Context) error {
	at := s.clock.Now()
	status, err := s.backend.GetLiveStatus(ctx, s.cfg.SessionID)
	if s.isUnmounted() {
		return nil
	}
	if err != nil {
		if _, loaded := s.store.Snapshot(); !loaded {
			s.mu.Lock()
			s.loadErr = err
			s.mu.Unlock()
			s.notify()
		}
		return fmt.Errorf("failed to fetch live status: %w", err)
	}

	s.mu.Lock()
	hadErr := s.loadErr != nil
	s.loadErr = nil
	s.mu.Unlock()

	if !s.store.Replace(snapshotFromStatus(status), at) && hadErr {
		s.notify()
	}
	return nil
}

func (s *Session) fetchHeatmap(ctx context.Context) error {
	heatmap, err := s.backend.GetHeatmap(ctx, s.cfg.SessionID)
	if s.isUnmounted() {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to fetch heatmap: %w", err)
	}

	buckets := make([]present.HeatmapBucket, len(heatmap.Buckets))
	for i, b := range heatmap.Buckets {
		buckets[i] = present.HeatmapBucket{
			Label:            b.Label,
			IntervalTotal:    b.IntervalTotal,
			WindowCumulative: b.WindowCumulative,
		}
	}

	s.mu.Lock()
	s.heatmap = present.AggregateHeatmap(buckets, heatmap.Total)
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *Session) runCountdown(ctx context.Context) {
	ticker := s.clock.NewTicker(s.cfg.CountdownInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if !s.countdown.Active() {
				continue
			}
			before := s.countdown.Text()
			if s.countdown.Tick(s.clock.Now()) != before {
				s.notify()
			}
		}
	}
}

func snapshotFromStatus(st *debate_client.LiveStatus) Snapshot {
	return Snapshot{
		IsLive:             st.IsLive,
		SessionID:          st.SessionID,
		Title:              st.Title,
		CurrentRound:       st.CurrentRound,
		TotalRounds:        st.TotalRounds,
		CurrentQuestion:    st.CurrentQuestion,
		TotalFires:         st.TotalFires,
		ScheduledStartTime: st.ScheduledStartTime,
		Status:             ParseStatus(st.Status),
		ViewerCount:        st.ViewerCount,
	}
}

// SendFire posts one fire reaction. While a retry-after is pending it
// fails with *RateLimitedError without touching the network.
func (s *Session) SendFire(ctx context.Context, position float64) (FireOutcome, error) {
	if position < 0 || position > 1 {
		return FireOutcome{}, ErrInvalidPosition
	}

	now := s.clock.Now()
	if !s.gate.Allow(now) {
		s.shake.Trigger(now, s.cfg.ShakeDuration)
		s.notify()
		return FireOutcome{}, &RateLimitedError{RetryAfter: s.gate.Remaining(now)}
	}

	res, err := s.backend.SendFire(ctx, s.cfg.SessionID, position)
	if err != nil {
		var rl *clients.RateLimitError
		if errors.As(err, &rl) {
			retry := rl.RetryAfter
			if retry <= 0 {
				retry = s.cfg.FallbackRetryAfter
			}
			now = s.clock.Now()
			s.gate.Block(now, retry)
			s.shake.Trigger(now, s.cfg.ShakeDuration)
			s.notify()
			log.Info().
				Str("session_id", s.cfg.SessionID).
				Dur("retry_after", retry).
				Msg("fire rate limited")
			return FireOutcome{}, &RateLimitedError{RetryAfter: retry}
		}
		return FireOutcome{}, fmt.Errorf("failed to send fire: %w", err)
	}

	at := s.clock.Now()
	burst := s.bursts.Add(position, at)
	s.store.Apply(Patch{TotalFires: &res.TotalFires}, at)
	s.notify()
	return FireOutcome{TotalFires: res.TotalFires, Burst: burst}, nil
}

// StartRound asks the hub to start a round. Fire-and-forget: failures are
// logged and the next push or poll shows what actually happened.
func (s *Session) StartRound(ctx context.Context, round, durationSeconds int) {
	s.invoke(ctx, events.ActionStartRound, s.cfg.SessionID, round, durationSeconds)
}

func (s *Session) GoLive(ctx context.Context) {
	s.invoke(ctx, events.ActionGoLiveWithSession, s.cfg.SessionID)
}

func (s *Session) PauseSession(ctx context.Context) {
	s.invoke(ctx, events.ActionPauseSession, s.cfg.SessionID)
}

func (s *Session) EndSession(ctx context.Context) {
	s.invoke(ctx, events.ActionEndSession, s.cfg.SessionID)
}

func (s *Session) invoke(ctx context.Context, target string, args ...any) {
	if err := s.conn.Invoke(ctx, target, args...); err != nil {
		log.Warn().
			Err(err).
			Str("session_id", s.cfg.SessionID).
			Str("action", target).
			Msg("hub action failed")
	}
}

// Snapshot returns the reconciled state and whether it has loaded
func (s *Session) Snapshot() (Snapshot, bool) {
	return s.store.Snapshot()
}

// Heatmap returns the aggregated heatmap from the last successful poll
func (s *Session) Heatmap() []present.HeatmapBucket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.heatmap)
}

func (s *Session) Timer() *present.RoundTimer {
	return s.timer
}

func (s *Session) Countdown() *present.Countdown {
	return s.countdown
}

func (s *Session) Bursts(now time.Time) []present.Burst {
	return s.bursts.Active(now)
}

func (s *Session) Shaking(now time.Time) bool {
	return s.shake.Active(now)
}

// ConnectionState is the last state reported by the hub connection
func (s *Session) ConnectionState() hub.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connState
}

// OnChange registers fn to run whenever anything visible changes. The
// returned func removes it.
func (s *Session) OnChange(fn func()) func() {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenMu.Lock()
			delete(s.listeners, id)
			s.listenMu.Unlock()
		})
	}
}

func (s *Session) notify() {
	s.listenMu.RLock()
	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.listeners[id])
	}
	s.listenMu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}
