package session

import (
	"time"

	"github.com/mcdev12/debatelive/go/internal/live/present"
)

// View is everything a renderer needs for one frame
type View struct {
	Snapshot          Snapshot                `json:"snapshot"`
	Loaded            bool                    `json:"loaded"`
	LoadError         string                  `json:"loadError,omitempty"`
	Connection        string                  `json:"connection"`
	Countdown         string                  `json:"countdown,omitempty"`
	TimerSeconds      int                     `json:"timerSeconds"`
	TimerRunning      bool                    `json:"timerRunning"`
	TimerText         string                  `json:"timerText"`
	Heatmap           []present.HeatmapBucket `json:"heatmap"`
	Bursts            []present.Burst         `json:"bursts"`
	Shaking           bool                    `json:"shaking"`
	RetryAfterSeconds int                     `json:"retryAfterSeconds,omitempty"`
	GeneratedAt       time.Time               `json:"generatedAt"`
}

// View derives the render model at the session clock's now
func (s *Session) View() View {
	now := s.clock.Now()
	snap, loaded := s.store.Snapshot()
	remaining, running := s.timer.Remaining()

	s.mu.RLock()
	loadErr := s.loadErr
	conn := s.connState
	s.mu.RUnlock()

	v := View{
		Snapshot:     snap,
		Loaded:       loaded,
		Connection:   conn.String(),
		TimerSeconds: remaining,
		TimerRunning: running,
		TimerText:    present.FormatClock(remaining),
		Heatmap:      s.Heatmap(),
		Bursts:       s.bursts.Active(now),
		Shaking:      s.shake.Active(now),
		GeneratedAt:  now,
	}
	if loadErr != nil {
		v.LoadError = loadErr.Error()
	}
	if s.countdown.Active() {
		v.Countdown = s.countdown.Text()
	}
	if d := s.gate.Remaining(now); d > 0 {
		v.RetryAfterSeconds = (&RateLimitedError{RetryAfter: d}).Seconds()
	}
	return v
}
