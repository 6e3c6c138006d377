package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSConfig holds configuration for the NATS push transport
type NATSConfig struct {
	URL           string
	SubjectPrefix string // e.g. "debate"
	SessionID     string
	Token         func() string
	Name          string
	Timeout       time.Duration
	BufferSize    int
}

// DefaultNATSConfig returns default NATS transport configuration
func DefaultNATSConfig(sessionID string) NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "debate",
		SessionID:     sessionID,
		Name:          "debatelive",
		Timeout:       5 * time.Second,
		BufferSize:    256,
	}
}

// EventsSubject is the wildcard subject carrying push events for a session
func (c NATSConfig) EventsSubject() string {
	return fmt.Sprintf("%s.%s.events.*", c.SubjectPrefix, c.SessionID)
}

// ActionSubject is the subject an invoke of target is published to
func (c NATSConfig) ActionSubject(target string) string {
	return fmt.Sprintf("%s.%s.actions.%s", c.SubjectPrefix, c.SessionID, target)
}

// NATSDialer receives hub events relayed onto NATS subjects. The client's
// own reconnect is disabled; the Manager owns retry.
type NATSDialer struct {
	config NATSConfig
}

// NewNATSDialer creates a new NATS dialer
func NewNATSDialer(config NATSConfig) *NATSDialer {
	if config.BufferSize <= 0 {
		config.BufferSize = 256
	}
	return &NATSDialer{config: config}
}

// Dial connects to NATS and subscribes to the session's event subjects
func (d *NATSDialer) Dial(ctx context.Context) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t := &natsTransport{
		config: d.config,
		msgs:   make(chan *nats.Msg, d.config.BufferSize),
		closed: make(chan struct{}),
	}

	opts := []nats.Option{
		nats.Name(d.config.Name),
		nats.Timeout(d.config.Timeout),
		nats.NoReconnect(),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			t.markClosed()
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}
	if d.config.Token != nil {
		if token := d.config.Token(); token != "" {
			opts = append(opts, nats.Token(token))
		}
	}

	nc, err := nats.Connect(d.config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	sub, err := nc.ChanSubscribe(d.config.EventsSubject(), t.msgs)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe %s: %w", d.config.EventsSubject(), err)
	}

	t.nc = nc
	t.sub = sub

	log.Debug().
		Str("url", nc.ConnectedUrl()).
		Str("subject", d.config.EventsSubject()).
		Msg("NATS transport subscribed")

	return t, nil
}

type natsTransport struct {
	config NATSConfig
	nc     *nats.Conn
	sub    *nats.Subscription
	msgs   chan *nats.Msg

	closeOnce sync.Once
	closed    chan struct{}
}

func (t *natsTransport) markClosed() {
	t.closeOnce.Do(func() { close(t.closed) })
}

func (t *natsTransport) Receive(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case <-t.closed:
		return Message{}, ErrTransportClosed
	case msg := <-t.msgs:
		return eventMessage(msg), nil
	}
}

// eventMessage maps <prefix>.<session>.events.<Target> to a single-argument
// message carrying the raw payload
func eventMessage(msg *nats.Msg) Message {
	target := msg.Subject
	if i := strings.LastIndexByte(target, '.'); i >= 0 {
		target = target[i+1:]
	}
	return Message{
		Target:    target,
		Arguments: []json.RawMessage{json.RawMessage(msg.Data)},
	}
}

func (t *natsTransport) Send(ctx context.Context, msg Message) error {
	select {
	case <-t.closed:
		return ErrTransportClosed
	default:
	}

	out, err := t.actionMsg(msg)
	if err != nil {
		return err
	}
	if err := t.nc.PublishMsg(out); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Target, err)
	}
	return nil
}

// actionMsg encodes an invoke as a JSON argument array on the action subject
func (t *natsTransport) actionMsg(msg Message) (*nats.Msg, error) {
	args := msg.Arguments
	if args == nil {
		args = []json.RawMessage{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal %s arguments: %w", msg.Target, err)
	}
	return &nats.Msg{Subject: t.config.ActionSubject(msg.Target), Data: data}, nil
}

func (t *natsTransport) Close() error {
	if t.sub != nil {
		if err := t.sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed {
			log.Debug().Err(err).Msg("NATS unsubscribe failed")
		}
	}
	if t.nc != nil {
		t.nc.Close()
	}
	t.markClosed()
	return nil
}
