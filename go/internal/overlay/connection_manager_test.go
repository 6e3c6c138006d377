package overlay

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mcdev12/debatelive/go/internal/live/session"
)

func TestConnectionManager_BroadcastDuringUnregister(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())

	for i := 0; i < 200; i++ {
		conn := &Connection{ID: "overlay", Send: make(chan []byte, 8), Manager: cm}
		cm.registerConnection(conn)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NotPanics(t, func() { cm.handleBroadcast(session.View{}) })
		}()
		go func() {
			defer wg.Done()
			cm.unregisterConnection(conn)
		}()
		wg.Wait()

		assert.Equal(t, 0, cm.ConnectionCount())
	}
}

func TestConnectionManager_BroadcastReachesEveryConnection(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	a := &Connection{ID: "a", Send: make(chan []byte, 1), Manager: cm}
	b := &Connection{ID: "b", Send: make(chan []byte, 1), Manager: cm}
	cm.registerConnection(a)
	cm.registerConnection(b)

	cm.handleBroadcast(session.View{Loaded: true})

	assert.Len(t, a.Send, 1)
	assert.Len(t, b.Send, 1)
}
