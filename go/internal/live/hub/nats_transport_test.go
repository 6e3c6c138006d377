package hub

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNATSTransport() *natsTransport {
	return &natsTransport{
		config: DefaultNATSConfig("s1"),
		msgs:   make(chan *nats.Msg, 4),
		closed: make(chan struct{}),
	}
}

func TestNATSConfig_Subjects(t *testing.T) {
	cfg := DefaultNATSConfig("s1")
	assert.Equal(t, "debate.s1.events.*", cfg.EventsSubject())
	assert.Equal(t, "debate.s1.actions.JoinSession", cfg.ActionSubject("JoinSession"))

	cfg.SubjectPrefix = "staging.debate"
	assert.Equal(t, "staging.debate.s1.events.*", cfg.EventsSubject())
}

func TestNATSTransport_ReceiveMapsSubjectToTarget(t *testing.T) {
	tr := newTestNATSTransport()
	tr.msgs <- &nats.Msg{
		Subject: "debate.s1.events.FireReaction",
		Data:    []byte(`{"sessionId":"s1","position":0.4}`),
	}

	msg, err := tr.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "FireReaction", msg.Target)
	require.Len(t, msg.Arguments, 1)
	assert.JSONEq(t, `{"sessionId":"s1","position":0.4}`, string(msg.Arguments[0]))
}

func TestNATSTransport_ReceiveAfterClose(t *testing.T) {
	tr := newTestNATSTransport()
	require.NoError(t, tr.Close())

	_, err := tr.Receive(context.Background())
	assert.ErrorIs(t, err, ErrTransportClosed)
	assert.ErrorIs(t, tr.Send(context.Background(), Message{Target: "JoinSession"}), ErrTransportClosed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newTestNATSTransport().Receive(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNATSTransport_ActionMessage(t *testing.T) {
	tr := newTestNATSTransport()
	args, err := MarshalArgs("s1", 2, 120)
	require.NoError(t, err)

	out, err := tr.actionMsg(Message{Target: "StartRound", Arguments: args})
	require.NoError(t, err)
	assert.Equal(t, "debate.s1.actions.StartRound", out.Subject)
	assert.JSONEq(t, `["s1",2,120]`, string(out.Data))

	empty, err := tr.actionMsg(Message{Target: "GoLive"})
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(empty.Data))

	var decoded []json.RawMessage
	require.NoError(t, json.Unmarshal(out.Data, &decoded))
	assert.Len(t, decoded, 3)
}

func TestNATSDialer_Errors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewNATSDialer(DefaultNATSConfig("s1")).Dial(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	// a port nothing listens on
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	cfg := DefaultNATSConfig("s1")
	cfg.URL = "nats://" + addr
	cfg.Timeout = 200 * time.Millisecond
	_, err = NewNATSDialer(cfg).Dial(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to NATS")
}
