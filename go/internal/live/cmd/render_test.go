package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mcdev12/debatelive/go/internal/live/present"
	"github.com/mcdev12/debatelive/go/internal/live/session"
)

func TestRenderView(t *testing.T) {
	q := "Is Go boring?"
	v := session.View{
		Loaded: true,
		Snapshot: session.Snapshot{
			IsLive:          true,
			Title:           "Finals",
			CurrentRound:    2,
			TotalRounds:     3,
			CurrentQuestion: &q,
			TotalFires:      1041,
			Status:          session.StatusLive,
			ViewerCount:     12,
		},
		TimerText:         "2:59",
		TimerRunning:      true,
		RetryAfterSeconds: 8,
		Heatmap: present.AggregateHeatmap([]present.HeatmapBucket{
			{Label: "12:00", IntervalTotal: 5},
			{Label: "12:01", IntervalTotal: 10},
		}, 20),
		Connection: "connected",
	}

	out := renderView(v)
	assert.Contains(t, out, "Finals")
	assert.Contains(t, out, "LIVE")
	assert.Contains(t, out, "2 / 3")
	assert.Contains(t, out, q)
	assert.Contains(t, out, "2:59")
	assert.Contains(t, out, "1,041")
	assert.Contains(t, out, "Try again in 8s")
	assert.Contains(t, out, "(20)")
}

func TestRenderView_NotLoaded(t *testing.T) {
	assert.Contains(t, renderView(session.View{}), "Loading")
	assert.Contains(t, renderView(session.View{LoadError: "boom"}), "Could not load session: boom")
}

func TestBurstLine(t *testing.T) {
	assert.Empty(t, burstLine(nil))
	line := burstLine([]present.Burst{{Position: 0}, {Position: 1}, {Position: 7}})
	assert.Contains(t, line, "*")
}
