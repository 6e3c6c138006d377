package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/debatelive/go/internal/live/events"
)

type fakeTransport struct {
	in     chan Message
	sent   chan Message
	closed chan struct{}
	once   sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan Message, 16),
		sent:   make(chan Message, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) Receive(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case <-f.closed:
		return Message{}, ErrTransportClosed
	case msg := <-f.in:
		return msg, nil
	}
}

func (f *fakeTransport) Send(ctx context.Context, msg Message) error {
	select {
	case <-f.closed:
		return ErrTransportClosed
	default:
	}
	f.sent <- msg
	return nil
}

func (f *fakeTransport) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) push(t *testing.T, target string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	f.in <- Message{Target: target, Arguments: []json.RawMessage{raw}}
}

type fakeDialer struct {
	mu       sync.Mutex
	failNext int
	dials    int
	dialed   chan *fakeTransport
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dialed: make(chan *fakeTransport, 8)}
}

func (d *fakeDialer) Dial(ctx context.Context) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.failNext > 0 {
		d.failNext--
		return nil, errors.New("connection refused")
	}
	ft := newFakeTransport()
	d.dialed <- ft
	return ft, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func recvTransport(t *testing.T, d *fakeDialer) *fakeTransport {
	t.Helper()
	select {
	case ft := <-d.dialed:
		return ft
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for dial")
		return nil
	}
}

func waitState(t *testing.T, m *Manager, want ConnectionState) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State() == want }, time.Second, time.Millisecond,
		"want state %s, have %s", want, m.State())
}

func TestManager_DispatchesTypedEvents(t *testing.T) {
	d := newFakeDialer()
	m := NewManager(d, WithClock(clockwork.NewFakeClock()))
	defer m.Close()

	got := make(chan events.Event, 4)
	m.Subscribe(events.KindViewerCountUpdate, func(ev events.Event) { got <- ev })

	require.NoError(t, m.Start(context.Background()))
	ft := recvTransport(t, d)
	waitState(t, m, StateConnected)

	ft.push(t, "ViewerCountUpdate", map[string]any{"sessionId": "s1", "count": 12})
	ft.push(t, "SomethingElse", map[string]any{})

	select {
	case ev := <-got:
		vc, ok := ev.(events.ViewerCountUpdate)
		require.True(t, ok)
		assert.Equal(t, 12, vc.Count)
	case <-time.After(time.Second):
		t.Fatal("event not dispatched")
	}
}

func TestManager_StartTwice(t *testing.T) {
	m := NewManager(newFakeDialer(), WithClock(clockwork.NewFakeClock()))
	defer m.Close()

	require.NoError(t, m.Start(context.Background()))
	assert.ErrorIs(t, m.Start(context.Background()), ErrAlreadyStarted)
}

func TestManager_InvokeRequiresConnection(t *testing.T) {
	d := newFakeDialer()
	d.failNext = 1
	clock := clockwork.NewFakeClock()
	m := NewManager(d, WithClock(clock))
	defer m.Close()

	err := m.Invoke(context.Background(), events.ActionSendFireReaction, "s1")
	assert.ErrorIs(t, err, ErrNotConnected)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Start(ctx))

	// first dial fails: still connecting, invoke stays a no-op
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, StateConnecting, m.State())
	assert.ErrorIs(t, m.Invoke(ctx, events.ActionSendFireReaction, "s1"), ErrNotConnected)

	clock.Advance(DefaultRetryDelay)
	ft := recvTransport(t, d)
	waitState(t, m, StateConnected)

	require.NoError(t, m.Invoke(ctx, events.ActionSendFireReaction, "s1"))
	sent := <-ft.sent
	assert.Equal(t, events.ActionSendFireReaction, sent.Target)
	require.Len(t, sent.Arguments, 1)
	assert.JSONEq(t, `"s1"`, string(sent.Arguments[0]))
}

func TestManager_RetriesWithFixedDelay(t *testing.T) {
	d := newFakeDialer()
	d.failNext = 3
	clock := clockwork.NewFakeClock()
	m := NewManager(d, WithClock(clock))
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Start(ctx))

	for i := 1; i <= 3; i++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		assert.Equal(t, i, d.dialCount())

		// nothing happens before the full delay elapses
		clock.Advance(DefaultRetryDelay - time.Millisecond)
		assert.Equal(t, i, d.dialCount())
		clock.Advance(time.Millisecond)
	}

	recvTransport(t, d)
	waitState(t, m, StateConnected)
	assert.Equal(t, 4, d.dialCount())
}

func TestManager_ReconnectKeepsSingleHandlers(t *testing.T) {
	d := newFakeDialer()
	clock := clockwork.NewFakeClock()
	m := NewManager(d, WithClock(clock))
	defer m.Close()

	var (
		mu       sync.Mutex
		received int
		changes  []StateChange
	)
	m.Subscribe(events.KindFireReaction, func(events.Event) {
		mu.Lock()
		received++
		mu.Unlock()
	})
	m.OnStateChange(func(c StateChange) {
		mu.Lock()
		changes = append(changes, c)
		mu.Unlock()
	})
	handlers := m.HandlerCount()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Start(ctx))

	ft := recvTransport(t, d)
	waitState(t, m, StateConnected)

	for cycle := 1; cycle <= 2; cycle++ {
		// server drops the connection
		ft.Close()
		waitState(t, m, StateReconnecting)

		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(DefaultRetryDelay)
		ft = recvTransport(t, d)
		waitState(t, m, StateConnected)

		ft.push(t, "FireReaction", map[string]any{"sessionId": "s1"})
		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return received == cycle
		}, time.Second, time.Millisecond)
		assert.Equal(t, handlers, m.HandlerCount())
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []StateChange{
		{Old: StateDisconnected, New: StateConnecting},
		{Old: StateConnecting, New: StateConnected},
		{Old: StateConnected, New: StateReconnecting},
		{Old: StateReconnecting, New: StateConnected},
		{Old: StateConnected, New: StateReconnecting},
		{Old: StateReconnecting, New: StateConnected},
	}, changes)
}

func TestManager_UnsubscribeStopsDelivery(t *testing.T) {
	d := newFakeDialer()
	m := NewManager(d, WithClock(clockwork.NewFakeClock()))
	defer m.Close()

	var mu sync.Mutex
	var first, second int
	sub := m.Subscribe(events.KindNextQuestion, func(events.Event) { mu.Lock(); first++; mu.Unlock() })
	m.Subscribe(events.KindNextQuestion, func(events.Event) { mu.Lock(); second++; mu.Unlock() })

	require.NoError(t, m.Start(context.Background()))
	ft := recvTransport(t, d)
	waitState(t, m, StateConnected)

	sub.Unsubscribe()
	sub.Unsubscribe()
	ft.push(t, "NextQuestion", map[string]any{"sessionId": "s1", "question": "Q2"})

	require.Eventually(t, func() bool { mu.Lock(); defer mu.Unlock(); return second == 1 }, time.Second, time.Millisecond)
	mu.Lock()
	assert.Equal(t, 0, first)
	mu.Unlock()
}

func TestManager_CloseReleasesEverything(t *testing.T) {
	d := newFakeDialer()
	m := NewManager(d, WithClock(clockwork.NewFakeClock()))

	m.Subscribe(events.KindTimerUpdate, func(events.Event) {})
	m.OnStateChange(func(StateChange) {})
	require.NoError(t, m.Start(context.Background()))
	ft := recvTransport(t, d)
	waitState(t, m, StateConnected)

	require.NoError(t, m.Close())
	assert.Equal(t, StateDisconnected, m.State())
	assert.Equal(t, 0, m.HandlerCount())

	select {
	case <-ft.closed:
	default:
		t.Fatal("transport left open after Close")
	}
	assert.ErrorIs(t, m.Invoke(context.Background(), events.ActionStartRound), ErrNotConnected)
}
