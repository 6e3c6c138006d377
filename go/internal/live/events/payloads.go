package events

import (
	"time"
)

// Event payload types pushed by the debate hub. Field names follow the hub's
// camelCase serializer.

// FireReactionPayload is the payload for a FireReaction event
type FireReactionPayload struct {
	SessionID  string    `json:"sessionId"`
	UserID     string    `json:"userId,omitempty"`
	TotalFires *int      `json:"totalFires,omitempty"` // absent on hubs that only relay the reaction
	Position   float64   `json:"position"`
	SentAt     time.Time `json:"sentAt"`
}

// RoundStartedPayload is the payload for a RoundStarted event
type RoundStartedPayload struct {
	SessionID       string    `json:"sessionId"`
	Round           int       `json:"round"`
	TotalRounds     int       `json:"totalRounds"`
	Question        string    `json:"question,omitempty"`
	DurationSeconds int       `json:"durationSeconds"`
	AutoStart       bool      `json:"autoStart"`
	StartedAt       time.Time `json:"startedAt"`
}

// RoundEndedPayload is the payload for a RoundEnded event
type RoundEndedPayload struct {
	SessionID string    `json:"sessionId"`
	Round     int       `json:"round"`
	EndedAt   time.Time `json:"endedAt"`
}

// TimerUpdatePayload carries the authoritative remaining time of the round clock
type TimerUpdatePayload struct {
	SessionID        string    `json:"sessionId"`
	RemainingSeconds int       `json:"remainingSeconds"`
	Running          bool      `json:"running"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// NextQuestionPayload is the payload for a NextQuestion event
type NextQuestionPayload struct {
	SessionID string    `json:"sessionId"`
	Question  string    `json:"question"`
	Round     int       `json:"round,omitempty"`
	AskedAt   time.Time `json:"askedAt"`
}

// ViewerCountPayload is the payload for a ViewerCountUpdate event
type ViewerCountPayload struct {
	SessionID string `json:"sessionId"`
	Count     int    `json:"count"`
}

// SessionStatusPayload is the payload for a SessionStatusChanged event
type SessionStatusPayload struct {
	SessionID          string     `json:"sessionId"`
	Status             string     `json:"status"`
	IsLive             bool       `json:"isLive"`
	Title              string     `json:"title,omitempty"`
	ScheduledStartTime *time.Time `json:"scheduledStartTime,omitempty"`
	ChangedAt          time.Time  `json:"changedAt"`
}
