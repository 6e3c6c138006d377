package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/debatelive/go/internal/live/present"
	"github.com/mcdev12/debatelive/go/internal/live/session"
)

const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	dim    = "\033[2m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	cyan   = "\033[36m"

	clearScreen = "\033[H\033[2J"
	frameRate   = 250 * time.Millisecond
	barWidth    = 40
)

type renderer struct {
	out     io.Writer
	jsonOut bool
	dirty   atomic.Bool
}

func newRenderer(out io.Writer, jsonOut bool) *renderer {
	return &renderer{out: out, jsonOut: jsonOut}
}

// loop redraws on change, and every frame while something is animating
func (r *renderer) loop(ctx context.Context, clock clockwork.Clock, sess *session.Session) {
	unsubscribe := sess.OnChange(func() { r.dirty.Store(true) })
	defer unsubscribe()

	ticker := clock.NewTicker(frameRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			v := sess.View()
			animating := len(v.Bursts) > 0 || v.Shaking
			if !r.dirty.Swap(false) && !animating {
				continue
			}
			if r.jsonOut {
				_ = json.NewEncoder(r.out).Encode(v)
				continue
			}
			fmt.Fprint(r.out, clearScreen+renderView(v))
		}
	}
}

func renderView(v session.View) string {
	var b strings.Builder
	s := v.Snapshot

	title := s.Title
	if title == "" {
		title = s.SessionID
	}
	fmt.Fprintf(&b, "\n  %s%s%s  %s\n", bold, title, reset, statusBadge(s))
	fmt.Fprintf(&b, "  %s%s%s\n\n", dim, strings.Repeat("─", 48), reset)

	switch {
	case v.LoadError != "" && !v.Loaded:
		fmt.Fprintf(&b, "  %sCould not load session: %s%s\n", red, v.LoadError, reset)
		return b.String()
	case !v.Loaded:
		fmt.Fprintf(&b, "  %sLoading...%s\n", dim, reset)
		return b.String()
	}

	if v.Countdown != "" {
		fmt.Fprintf(&b, "  %-12s %s%s%s\n", label("Starts in:"), cyan, v.Countdown, reset)
	}
	if s.IsLive {
		fmt.Fprintf(&b, "  %-12s %d / %d\n", label("Round:"), s.CurrentRound, s.TotalRounds)
		if s.CurrentQuestion != nil {
			fmt.Fprintf(&b, "  %-12s %s\n", label("Question:"), *s.CurrentQuestion)
		}
		clock := v.TimerText
		if !v.TimerRunning {
			clock += dim + " (paused)" + reset
		}
		fmt.Fprintf(&b, "  %-12s %s\n", label("Timer:"), clock)
	}
	fmt.Fprintf(&b, "  %-12s %s\n", label("Viewers:"), humanize.Comma(int64(s.ViewerCount)))

	fires := humanize.Comma(int64(s.TotalFires))
	if v.Shaking {
		fires = red + "~" + fires + "~" + reset
	}
	fmt.Fprintf(&b, "  %-12s %s %s\n", label("Fires:"), fires, burstLine(v.Bursts))
	if v.RetryAfterSeconds > 0 {
		fmt.Fprintf(&b, "  %sToo many fires. Try again in %ds%s\n", yellow, v.RetryAfterSeconds, reset)
	}

	if len(v.Heatmap) > 0 {
		b.WriteString("\n")
		b.WriteString(renderHeatmap(v.Heatmap))
	}

	fmt.Fprintf(&b, "\n  %s%s%s\n", dim, v.Connection, reset)
	return b.String()
}

func statusBadge(s session.Snapshot) string {
	switch s.Status {
	case session.StatusLive:
		return green + "● LIVE" + reset
	case session.StatusPaused:
		return yellow + "❚❚ PAUSED" + reset
	default:
		return dim + "OFFLINE" + reset
	}
}

func label(s string) string {
	return dim + s + reset
}

// burstLine places one flame per active burst along a fixed width track
func burstLine(bursts []present.Burst) string {
	if len(bursts) == 0 {
		return ""
	}
	track := []rune(strings.Repeat(" ", barWidth))
	for _, burst := range bursts {
		i := int(burst.Position * float64(barWidth-1))
		i = max(0, min(barWidth-1, i))
		track[i] = '*'
	}
	return red + string(track) + reset
}

func renderHeatmap(buckets []present.HeatmapBucket) string {
	peak := 0
	for _, bucket := range buckets {
		peak = max(peak, bucket.IntervalTotal)
	}

	var b strings.Builder
	for _, bucket := range buckets {
		width := 0
		if peak > 0 {
			width = bucket.IntervalTotal * barWidth / peak
		}
		fmt.Fprintf(&b, "  %-8s %s%s%s %d %s(%d)%s\n",
			bucket.Label, red, strings.Repeat("█", width), reset,
			bucket.IntervalTotal, dim, bucket.ActualTotal, reset)
	}
	return b.String()
}
