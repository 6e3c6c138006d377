package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

var (
	// ErrTransportClosed is returned by a transport after Close or after the
	// underlying connection went away
	ErrTransportClosed = errors.New("hub transport closed")
	// ErrServerClosed is returned when the hub sends a close message
	ErrServerClosed = errors.New("hub closed the connection")
)

// Message is a hub invocation in either direction
type Message struct {
	Target    string
	Arguments []json.RawMessage
}

// Transport is one live connection to the hub. Receive is only ever called
// from a single goroutine.
type Transport interface {
	Receive(ctx context.Context) (Message, error)
	Send(ctx context.Context, msg Message) error
	Close() error
}

// Dialer opens a new Transport. The Manager calls it once per connection attempt.
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// WebSocketConfig holds configuration for the SignalR websocket transport
type WebSocketConfig struct {
	URL               string // hub endpoint, http(s) or ws(s)
	Token             func() string
	HandshakeTimeout  time.Duration
	ServerTimeout     time.Duration
	KeepAliveInterval time.Duration
	WriteTimeout      time.Duration
	Clock             clockwork.Clock
}

// DefaultWebSocketConfig returns the SignalR client defaults for the given hub URL
func DefaultWebSocketConfig(hubURL string) WebSocketConfig {
	return WebSocketConfig{
		URL:               hubURL,
		HandshakeTimeout:  15 * time.Second,
		ServerTimeout:     30 * time.Second,
		KeepAliveInterval: 15 * time.Second,
		WriteTimeout:      10 * time.Second,
		Clock:             clockwork.NewRealClock(),
	}
}

// WebSocketDialer connects to a SignalR hub over websockets, skipping the
// negotiate round trip.
type WebSocketDialer struct {
	config WebSocketConfig
	dialer *websocket.Dialer
}

// NewWebSocketDialer creates a new websocket dialer
func NewWebSocketDialer(config WebSocketConfig) *WebSocketDialer {
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	return &WebSocketDialer{
		config: config,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
		},
	}
}

// Dial opens the websocket and completes the hub protocol handshake
func (d *WebSocketDialer) Dial(ctx context.Context) (Transport, error) {
	token := ""
	if d.config.Token != nil {
		token = d.config.Token()
	}

	target, err := hubURL(d.config.URL, token)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := d.dialer.DialContext(ctx, target, header)
	if err != nil {
		return nil, fmt.Errorf("dial hub: %w", err)
	}

	deadline := time.Now().Add(d.config.HandshakeTimeout)
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, handshakeRequest()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send handshake: %w", err)
	}

	conn.SetReadDeadline(deadline)
	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read handshake: %w", err)
	}
	rest, err := parseHandshake(data)
	if err != nil {
		conn.Close()
		return nil, err
	}

	t := &wsTransport{
		conn:    conn,
		config:  d.config,
		pending: rest,
		done:    make(chan struct{}),
	}
	go t.keepAlive()

	return t, nil
}

// hubURL converts the configured endpoint into a websocket URL carrying the
// access token the way SignalR clients do.
func hubURL(raw, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return "", fmt.Errorf("parse hub url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported hub scheme: %q", u.Scheme)
	}

	if token != "" {
		q := u.Query()
		q.Set("access_token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

type wsTransport struct {
	conn   *websocket.Conn
	config WebSocketConfig

	writeMu sync.Mutex
	pending [][]byte

	closeOnce sync.Once
	done      chan struct{}
}

func (t *wsTransport) Receive(ctx context.Context) (Message, error) {
	for {
		for len(t.pending) > 0 {
			rec := t.pending[0]
			t.pending = t.pending[1:]

			var msg hubMessage
			if err := json.Unmarshal(rec, &msg); err != nil {
				log.Warn().Err(err).Msg("skipping malformed hub record")
				continue
			}

			switch msg.Type {
			case typeInvocation:
				return Message{Target: msg.Target, Arguments: msg.Arguments}, nil
			case typeClose:
				if msg.Error != "" {
					return Message{}, fmt.Errorf("%w: %s", ErrServerClosed, msg.Error)
				}
				return Message{}, ErrServerClosed
			default:
				// pings and completions carry nothing for subscribers
			}
		}

		if err := ctx.Err(); err != nil {
			return Message{}, err
		}

		t.conn.SetReadDeadline(time.Now().Add(t.config.ServerTimeout))
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case <-t.done:
				return Message{}, ErrTransportClosed
			default:
			}
			return Message{}, fmt.Errorf("read hub frame: %w", err)
		}
		t.pending = splitRecords(data)
	}
}

func (t *wsTransport) Send(ctx context.Context, msg Message) error {
	data, err := encodeInvocation(msg)
	if err != nil {
		return err
	}
	return t.write(ctx, data)
}

func (t *wsTransport) write(ctx context.Context, data []byte) error {
	select {
	case <-t.done:
		return ErrTransportClosed
	default:
	}

	deadline := time.Now().Add(t.config.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.conn.SetWriteDeadline(deadline)
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write hub frame: %w", err)
	}
	return nil
}

// keepAlive sends protocol pings so the server does not time the client out
func (t *wsTransport) keepAlive() {
	ticker := t.config.Clock.NewTicker(t.config.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.Chan():
			if err := t.write(context.Background(), pingFrame()); err != nil {
				log.Debug().Err(err).Msg("hub keepalive ping failed")
				return
			}
		}
	}
}

func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)

		t.writeMu.Lock()
		_ = t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second),
		)
		t.writeMu.Unlock()

		err = t.conn.Close()
	})
	return err
}
