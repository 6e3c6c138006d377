package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind identifies a push event by its hub method name
type Kind string

const (
	KindFireReaction         Kind = "FireReaction"
	KindRoundStarted         Kind = "RoundStarted"
	KindRoundEnded           Kind = "RoundEnded"
	KindTimerUpdate          Kind = "TimerUpdate"
	KindNextQuestion         Kind = "NextQuestion"
	KindViewerCountUpdate    Kind = "ViewerCountUpdate"
	KindSessionStatusChanged Kind = "SessionStatusChanged"
)

// AllKinds lists every push event the client understands
var AllKinds = []Kind{
	KindFireReaction,
	KindRoundStarted,
	KindRoundEnded,
	KindTimerUpdate,
	KindNextQuestion,
	KindViewerCountUpdate,
	KindSessionStatusChanged,
}

// Hub methods the client may invoke
const (
	ActionSendFireReaction  = "SendFireReaction"
	ActionStartRound        = "StartRound"
	ActionGoLiveWithSession = "GoLiveWithSession"
	ActionPauseSession      = "PauseSession"
	ActionEndSession        = "EndSession"
	ActionJoinSession       = "JoinSession"
	ActionLeaveSession      = "LeaveSession"
)

// ErrMissingPayload is returned when a known event arrives without arguments
var ErrMissingPayload = errors.New("event has no payload")

// Event is the tagged union of push events. The concrete type is one of the
// structs below; switch on it or on Kind().
type Event interface {
	Kind() Kind
}

type FireReaction struct{ FireReactionPayload }
type RoundStarted struct{ RoundStartedPayload }
type RoundEnded struct{ RoundEndedPayload }
type TimerUpdate struct{ TimerUpdatePayload }
type NextQuestion struct{ NextQuestionPayload }
type ViewerCountUpdate struct{ ViewerCountPayload }
type SessionStatusChanged struct{ SessionStatusPayload }

func (FireReaction) Kind() Kind         { return KindFireReaction }
func (RoundStarted) Kind() Kind         { return KindRoundStarted }
func (RoundEnded) Kind() Kind           { return KindRoundEnded }
func (TimerUpdate) Kind() Kind          { return KindTimerUpdate }
func (NextQuestion) Kind() Kind         { return KindNextQuestion }
func (ViewerCountUpdate) Kind() Kind    { return KindViewerCountUpdate }
func (SessionStatusChanged) Kind() Kind { return KindSessionStatusChanged }

// Decode parses the arguments of a hub invocation into a typed event.
// The payload is the first argument. Unknown targets return (nil, nil).
func Decode(target string, args []json.RawMessage) (Event, error) {
	kind := Kind(target)
	if !known(kind) {
		return nil, nil
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("%s: %w", target, ErrMissingPayload)
	}
	raw := args[0]

	var (
		ev  Event
		err error
	)
	switch kind {
	case KindFireReaction:
		var p FireReactionPayload
		err = json.Unmarshal(raw, &p)
		ev = FireReaction{p}

	case KindRoundStarted:
		var p RoundStartedPayload
		err = json.Unmarshal(raw, &p)
		ev = RoundStarted{p}

	case KindRoundEnded:
		var p RoundEndedPayload
		err = json.Unmarshal(raw, &p)
		ev = RoundEnded{p}

	case KindTimerUpdate:
		var p TimerUpdatePayload
		err = json.Unmarshal(raw, &p)
		ev = TimerUpdate{p}

	case KindNextQuestion:
		var p NextQuestionPayload
		err = json.Unmarshal(raw, &p)
		ev = NextQuestion{p}

	case KindViewerCountUpdate:
		var p ViewerCountPayload
		err = json.Unmarshal(raw, &p)
		ev = ViewerCountUpdate{p}

	case KindSessionStatusChanged:
		var p SessionStatusPayload
		err = json.Unmarshal(raw, &p)
		ev = SessionStatusChanged{p}
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", target, err)
	}
	return ev, nil
}

func known(kind Kind) bool {
	for _, k := range AllKinds {
		if k == kind {
			return true
		}
	}
	return false
}
