package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoller_FixedIntervalAndTrigger(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var calls atomic.Int32
	p := NewPoller("test", 5*time.Second, clock, func(ctx context.Context) error {
		calls.Add(1)
		return errors.New("backend down")
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond, "fetches immediately")

	// failures never change the interval
	for want := int32(2); want <= 4; want++ {
		clock.Advance(5 * time.Second)
		require.Eventually(t, func() bool { return calls.Load() == want }, time.Second, time.Millisecond)
	}

	p.Trigger()
	require.Eventually(t, func() bool { return calls.Load() == 5 }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestPoller_TriggersCoalesce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	release := make(chan struct{})
	var calls atomic.Int32
	p := NewPoller("test", time.Hour, clock, func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			<-release
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	p.Trigger()
	p.Trigger()
	p.Trigger()
	close(release)

	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 2, calls.Load())
}

func TestRateGate(t *testing.T) {
	now := time.Now()
	var g RateGate
	assert.True(t, g.Allow(now))
	assert.Zero(t, g.Remaining(now))

	g.Block(now, 8*time.Second)
	assert.False(t, g.Allow(now.Add(7*time.Second)))
	assert.Equal(t, 3*time.Second, g.Remaining(now.Add(5*time.Second)))
	assert.True(t, g.Allow(now.Add(8*time.Second)))

	// a shorter block does not shorten the window
	g.Block(now, time.Second)
	assert.False(t, g.Allow(now.Add(2*time.Second)))
}

func TestRateLimitedError_Message(t *testing.T) {
	err := &RateLimitedError{RetryAfter: 8 * time.Second}
	assert.Equal(t, 8, err.Seconds())
	assert.Contains(t, err.Error(), "8")

	assert.Equal(t, 3, (&RateLimitedError{RetryAfter: 2500 * time.Millisecond}).Seconds())
}
