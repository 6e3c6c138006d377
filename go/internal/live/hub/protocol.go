package hub

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SignalR JSON hub protocol framing. Every message is a JSON object followed
// by the 0x1E record separator; one websocket frame may carry several.

const recordSeparator = 0x1e

type messageType int

const (
	typeInvocation       messageType = 1
	typeStreamItem       messageType = 2
	typeCompletion       messageType = 3
	typeStreamInvocation messageType = 4
	typeCancelInvocation messageType = 5
	typePing             messageType = 6
	typeClose            messageType = 7
)

type hubMessage struct {
	Type           messageType       `json:"type"`
	InvocationID   string            `json:"invocationId,omitempty"`
	Target         string            `json:"target,omitempty"`
	Arguments      []json.RawMessage `json:"arguments,omitempty"`
	Error          string            `json:"error,omitempty"`
	AllowReconnect bool              `json:"allowReconnect,omitempty"`
}

type handshakeResponse struct {
	Error string `json:"error,omitempty"`
}

func handshakeRequest() []byte {
	return frame([]byte(`{"protocol":"json","version":1}`))
}

func pingFrame() []byte {
	return frame([]byte(`{"type":6}`))
}

func frame(b []byte) []byte {
	out := make([]byte, 0, len(b)+1)
	out = append(out, b...)
	return append(out, recordSeparator)
}

// splitRecords returns the complete records in data. Empty records are dropped.
func splitRecords(data []byte) [][]byte {
	parts := bytes.Split(data, []byte{recordSeparator})
	out := make([][]byte, 0, len(parts))
	for _, p := range parts {
		if len(bytes.TrimSpace(p)) == 0 {
			continue
		}
		out = append(out, p)
	}
	return out
}

func encodeInvocation(msg Message) ([]byte, error) {
	b, err := json.Marshal(hubMessage{
		Type:      typeInvocation,
		Target:    msg.Target,
		Arguments: msg.Arguments,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal invocation %s: %w", msg.Target, err)
	}
	return frame(b), nil
}

// parseHandshake checks the handshake response and returns any records the
// server sent in the same frame after it.
func parseHandshake(data []byte) ([][]byte, error) {
	records := splitRecords(data)
	if len(records) == 0 {
		return nil, fmt.Errorf("empty handshake response")
	}
	var resp handshakeResponse
	if err := json.Unmarshal(records[0], &resp); err != nil {
		return nil, fmt.Errorf("decode handshake response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("handshake rejected: %s", resp.Error)
	}
	return records[1:], nil
}

// MarshalArgs encodes invoke arguments into the raw form a Message carries
func MarshalArgs(args ...any) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal argument %d: %w", i, err)
		}
		out = append(out, b)
	}
	return out, nil
}
