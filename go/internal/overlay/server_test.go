package overlay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/debatelive/go/internal/live/session"
)

type fakeSource struct {
	mu       sync.Mutex
	view     session.View
	listener func()
}

func (f *fakeSource) View() session.View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view
}

func (f *fakeSource) OnChange(fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = fn
	return func() {
		f.mu.Lock()
		f.listener = nil
		f.mu.Unlock()
	}
}

func (f *fakeSource) set(t *testing.T, title string, fires int) {
	t.Helper()
	f.mu.Lock()
	f.view.Snapshot.Title = title
	f.view.Snapshot.TotalFires = fires
	fn := f.listener
	f.mu.Unlock()
	require.NotNil(t, fn, "server not attached")
	fn()
}

func newTestServer(t *testing.T) (*fakeSource, *Server, *httptest.Server) {
	t.Helper()
	src := &fakeSource{view: session.View{Loaded: true, Connection: "Connected"}}
	srv := NewServer(DefaultConfig("127.0.0.1:0"), src)

	ctx, cancel := context.WithCancel(context.Background())
	detach := srv.Attach(ctx)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		detach()
		cancel()
		ts.Close()
	})
	return src, srv, ts
}

func TestServer_StateAndHealth(t *testing.T) {
	src, _, ts := newTestServer(t)
	src.set(t, "Finals", 12)

	resp, err := http.Get(ts.URL + "/api/live/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var view session.View
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, "Finals", view.Snapshot.Title)
	assert.Equal(t, 12, view.Snapshot.TotalFires)

	health, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(health.Body)
	health.Body.Close()
	assert.Equal(t, "OK", string(body))
}

func TestServer_CORS(t *testing.T) {
	_, _, ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/live/state", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://obs.local")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServer_OverlayBroadcast(t *testing.T) {
	src, srv, ts := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/overlay"

	dial := func() *websocket.Conn {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		return conn
	}
	read := func(conn *websocket.Conn) session.View {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var v session.View
		require.NoError(t, json.Unmarshal(data, &v))
		return v
	}

	a, b := dial(), dial()
	assert.Equal(t, "Connected", read(a).Connection, "current view sent on connect")
	read(b)
	require.Eventually(t, func() bool { return srv.connections.ConnectionCount() == 2 }, time.Second, time.Millisecond)

	src.set(t, "Round two", 30)
	for _, conn := range []*websocket.Conn{a, b} {
		v := read(conn)
		assert.Equal(t, "Round two", v.Snapshot.Title)
		assert.Equal(t, 30, v.Snapshot.TotalFires)
	}

	a.Close()
	require.Eventually(t, func() bool { return srv.connections.ConnectionCount() == 1 }, 2*time.Second, time.Millisecond)
}
