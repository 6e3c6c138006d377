package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name   string
		target string
		arg    string
		check  func(t *testing.T, ev Event)
	}{
		{
			name:   "fire reaction with total",
			target: "FireReaction",
			arg:    `{"sessionId":"s1","totalFires":42,"position":0.25}`,
			check: func(t *testing.T, ev Event) {
				fr, ok := ev.(FireReaction)
				require.True(t, ok)
				require.NotNil(t, fr.TotalFires)
				assert.Equal(t, 42, *fr.TotalFires)
				assert.Equal(t, 0.25, fr.Position)
			},
		},
		{
			name:   "fire reaction without total",
			target: "FireReaction",
			arg:    `{"sessionId":"s1"}`,
			check: func(t *testing.T, ev Event) {
				fr := ev.(FireReaction)
				assert.Nil(t, fr.TotalFires)
			},
		},
		{
			name:   "round started",
			target: "RoundStarted",
			arg:    `{"sessionId":"s1","round":2,"totalRounds":4,"question":"Why?","durationSeconds":180}`,
			check: func(t *testing.T, ev Event) {
				rs := ev.(RoundStarted)
				assert.Equal(t, KindRoundStarted, rs.Kind())
				assert.Equal(t, 2, rs.Round)
				assert.Equal(t, 4, rs.TotalRounds)
				assert.Equal(t, 180, rs.DurationSeconds)
			},
		},
		{
			name:   "timer update",
			target: "TimerUpdate",
			arg:    `{"sessionId":"s1","remainingSeconds":37,"running":true}`,
			check: func(t *testing.T, ev Event) {
				tu := ev.(TimerUpdate)
				assert.Equal(t, 37, tu.RemainingSeconds)
				assert.True(t, tu.Running)
			},
		},
		{
			name:   "session status",
			target: "SessionStatusChanged",
			arg:    `{"sessionId":"s1","status":"Paused","isLive":true}`,
			check: func(t *testing.T, ev Event) {
				ss := ev.(SessionStatusChanged)
				assert.Equal(t, "Paused", ss.Status)
				assert.True(t, ss.IsLive)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode(tt.target, []json.RawMessage{json.RawMessage(tt.arg)})
			require.NoError(t, err)
			require.NotNil(t, ev)
			assert.Equal(t, Kind(tt.target), ev.Kind())
			tt.check(t, ev)
		})
	}
}

func TestDecode_UnknownTargetIsSkipped(t *testing.T) {
	ev, err := Decode("SomethingNew", []json.RawMessage{json.RawMessage(`{}`)})
	assert.NoError(t, err)
	assert.Nil(t, ev)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode("NextQuestion", nil)
	assert.ErrorIs(t, err, ErrMissingPayload)

	_, err = Decode("ViewerCountUpdate", []json.RawMessage{json.RawMessage(`{"count":"many"}`)})
	assert.Error(t, err)
}
