package session

import (
	"sync"
	"time"
)

// Status is the lifecycle status of a debate session
type Status string

const (
	StatusOffline Status = "Offline"
	StatusLive    Status = "Live"
	StatusPaused  Status = "Paused"
)

// ParseStatus maps a backend status string onto Status. Unknown values are
// treated as Offline.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusLive, StatusPaused:
		return Status(s)
	default:
		return StatusOffline
	}
}

// Snapshot is the reconciled session state shown to the user
type Snapshot struct {
	IsLive             bool       `json:"isLive"`
	SessionID          string     `json:"sessionId"`
	Title              string     `json:"title"`
	CurrentRound       int        `json:"currentRound"`
	TotalRounds        int        `json:"totalRounds"`
	CurrentQuestion    *string    `json:"currentQuestion"`
	TotalFires         int        `json:"totalFires"`
	ScheduledStartTime *time.Time `json:"scheduledStartTime"`
	Status             Status     `json:"status"`
	ViewerCount        int        `json:"viewerCount"`
}

// Patch is a partial update from a push event. Nil fields are not covered.
// A non-nil CurrentQuestion pointing at nil clears the question.
type Patch struct {
	IsLive             *bool
	SessionID          *string
	Title              *string
	CurrentRound       *int
	TotalRounds        *int
	CurrentQuestion    **string
	TotalFires         *int
	ScheduledStartTime **time.Time
	Status             *Status
	ViewerCount        *int
}

type field int

const (
	fieldIsLive field = iota
	fieldSessionID
	fieldTitle
	fieldCurrentRound
	fieldTotalRounds
	fieldCurrentQuestion
	fieldTotalFires
	fieldScheduledStartTime
	fieldStatus
	fieldViewerCount
	numFields
)

// Store holds the reconciled snapshot. Every field carries the time of the
// write that produced it and only accepts writes that are not older, so a
// slow poll can never roll back a newer push regardless of which arrives
// first.
type Store struct {
	mu     sync.Mutex
	snap   Snapshot
	stamps [numFields]time.Time
	loaded bool
	closed bool

	subs   map[uint64]func(Snapshot)
	nextID uint64
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{subs: make(map[uint64]func(Snapshot))}
}

// Replace writes a full polled snapshot taken at at
func (s *Store) Replace(snap Snapshot, at time.Time) bool {
	return s.write(func() bool {
		changed := false
		set(s, fieldIsLive, at, &s.snap.IsLive, snap.IsLive, &changed)
		set(s, fieldSessionID, at, &s.snap.SessionID, snap.SessionID, &changed)
		set(s, fieldTitle, at, &s.snap.Title, snap.Title, &changed)
		set(s, fieldCurrentRound, at, &s.snap.CurrentRound, snap.CurrentRound, &changed)
		set(s, fieldTotalRounds, at, &s.snap.TotalRounds, snap.TotalRounds, &changed)
		setPtr(s, fieldCurrentQuestion, at, &s.snap.CurrentQuestion, snap.CurrentQuestion, &changed)
		set(s, fieldTotalFires, at, &s.snap.TotalFires, snap.TotalFires, &changed)
		setPtr(s, fieldScheduledStartTime, at, &s.snap.ScheduledStartTime, snap.ScheduledStartTime, &changed)
		set(s, fieldStatus, at, &s.snap.Status, snap.Status, &changed)
		set(s, fieldViewerCount, at, &s.snap.ViewerCount, snap.ViewerCount, &changed)
		if !s.loaded {
			s.loaded = true
			changed = true
		}
		return changed
	})
}

// Apply writes the fields covered by p
func (s *Store) Apply(p Patch, at time.Time) bool {
	return s.write(func() bool {
		changed := false
		if p.IsLive != nil {
			set(s, fieldIsLive, at, &s.snap.IsLive, *p.IsLive, &changed)
		}
		if p.SessionID != nil {
			set(s, fieldSessionID, at, &s.snap.SessionID, *p.SessionID, &changed)
		}
		if p.Title != nil {
			set(s, fieldTitle, at, &s.snap.Title, *p.Title, &changed)
		}
		if p.CurrentRound != nil {
			set(s, fieldCurrentRound, at, &s.snap.CurrentRound, *p.CurrentRound, &changed)
		}
		if p.TotalRounds != nil {
			set(s, fieldTotalRounds, at, &s.snap.TotalRounds, *p.TotalRounds, &changed)
		}
		if p.CurrentQuestion != nil {
			setPtr(s, fieldCurrentQuestion, at, &s.snap.CurrentQuestion, *p.CurrentQuestion, &changed)
		}
		if p.TotalFires != nil {
			set(s, fieldTotalFires, at, &s.snap.TotalFires, *p.TotalFires, &changed)
		}
		if p.ScheduledStartTime != nil {
			setPtr(s, fieldScheduledStartTime, at, &s.snap.ScheduledStartTime, *p.ScheduledStartTime, &changed)
		}
		if p.Status != nil {
			set(s, fieldStatus, at, &s.snap.Status, *p.Status, &changed)
		}
		if p.ViewerCount != nil {
			set(s, fieldViewerCount, at, &s.snap.ViewerCount, *p.ViewerCount, &changed)
		}
		return changed
	})
}

// AddFires bumps the fire total for reactions that carry no absolute total.
// It needs a known total to add to; before one arrives the next poll
// carries the count anyway.
func (s *Store) AddFires(n int, at time.Time) bool {
	return s.write(func() bool {
		if n == 0 || s.stamps[fieldTotalFires].IsZero() {
			return false
		}
		s.snap.TotalFires += n
		if at.After(s.stamps[fieldTotalFires]) {
			s.stamps[fieldTotalFires] = at
		}
		return true
	})
}

// Snapshot returns the normalised state and whether a full snapshot has
// been loaded yet
func (s *Store) Snapshot() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return normalise(s.snap), s.loaded
}

// Subscribe registers fn to run after every change. The returned func
// removes it.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return func() {}
	}

	id := s.nextID
	s.nextID++
	s.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Close drops all subscribers. Writes after Close are ignored, so a
// response that lands after the view went away changes nothing.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	clear(s.subs)
}

func (s *Store) write(apply func() bool) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if !apply() {
		s.mu.Unlock()
		return false
	}

	snap := normalise(s.snap)
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
	return true
}

func set[T comparable](s *Store, f field, at time.Time, dst *T, v T, changed *bool) {
	if at.Before(s.stamps[f]) {
		return
	}
	s.stamps[f] = at
	if *dst != v {
		*dst = v
		*changed = true
	}
}

func setPtr[T comparable](s *Store, f field, at time.Time, dst **T, v *T, changed *bool) {
	if at.Before(s.stamps[f]) {
		return
	}
	s.stamps[f] = at
	if !equalPtr(*dst, v) {
		*dst = clonePtr(v)
		*changed = true
	}
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// normalise applies the invariants the views rely on. Raw fields keep their
// stamped values so a later write can still undo a derived change.
func normalise(snap Snapshot) Snapshot {
	snap.CurrentQuestion = clonePtr(snap.CurrentQuestion)
	snap.ScheduledStartTime = clonePtr(snap.ScheduledStartTime)
	if snap.Status == "" {
		snap.Status = StatusOffline
	}
	if !snap.IsLive {
		return snap
	}

	if snap.Status == StatusOffline {
		snap.Status = StatusLive
	}
	snap.ScheduledStartTime = nil
	if snap.TotalRounds > 0 && snap.CurrentRound > snap.TotalRounds {
		snap.CurrentRound = snap.TotalRounds
	}
	if snap.CurrentRound < 1 {
		snap.CurrentRound = 1
	}
	return snap
}
