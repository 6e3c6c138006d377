package present

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultBurstTTL is how long a fire burst stays on screen
const DefaultBurstTTL = 1500 * time.Millisecond

// Burst is one on-screen fire animation. Client only, never persisted.
type Burst struct {
	ID        string    `json:"id"`
	Position  float64   `json:"position"`
	CreatedAt time.Time `json:"createdAt"`
}

// Bursts is the ordered set of live fire animations
type Bursts struct {
	ttl time.Duration

	mu    sync.Mutex
	items []Burst
}

// NewBursts creates an empty burst queue
func NewBursts(ttl time.Duration) *Bursts {
	if ttl <= 0 {
		ttl = DefaultBurstTTL
	}
	return &Bursts{ttl: ttl}
}

// Add appends a burst created at now
func (b *Bursts) Add(position float64, now time.Time) Burst {
	burst := Burst{
		ID:        uuid.New().String(),
		Position:  position,
		CreatedAt: now,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked(now)
	b.items = append(b.items, burst)
	return burst
}

// Active drops expired bursts and returns the rest, oldest first
func (b *Bursts) Active(now time.Time) []Burst {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked(now)
	out := make([]Burst, len(b.items))
	copy(out, b.items)
	return out
}

func (b *Bursts) pruneLocked(now time.Time) {
	i := 0
	for i < len(b.items) && now.Sub(b.items[i].CreatedAt) >= b.ttl {
		i++
	}
	if i > 0 {
		b.items = append(b.items[:0], b.items[i:]...)
	}
}

// Shake marks a window during which the fire button shakes after a rejection
type Shake struct {
	mu    sync.Mutex
	until time.Time
}

// Trigger starts or extends the shake
func (s *Shake) Trigger(now time.Time, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if end := now.Add(d); end.After(s.until) {
		s.until = end
	}
}

// Active reports whether the shake is still running at now
func (s *Shake) Active(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Before(s.until)
}
