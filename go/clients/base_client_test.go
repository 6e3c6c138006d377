package clients

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseClient_HeadersAndToken(t *testing.T) {
	var gotAuth, gotAccept, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		gotType = r.Header.Get("Content-Type")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewBaseClient(srv.URL + "/")
	assert.Equal(t, srv.URL, c.BaseURL())

	c.SetToken("abc")
	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, c.DoJSON(context.Background(), http.MethodPost, "/x", map[string]int{"a": 1}, &out))
	assert.True(t, out.OK)
	assert.Equal(t, "Bearer abc", gotAuth)
	assert.Equal(t, "application/json", gotAccept)
	assert.Equal(t, "application/json", gotType)

	c.SetToken("")
	_, err := c.MakeRequest(context.Background(), http.MethodGet, "/x", nil)
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
	assert.Empty(t, gotType)
}

func TestBaseClient_ErrorBodies(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		header  string
		body    string
		wantMsg string
		wantRL  time.Duration
	}{
		{name: "message body", status: http.StatusBadRequest, body: `{"message":"session not live"}`, wantMsg: "session not live"},
		{name: "error body", status: http.StatusForbidden, body: `{"error":"forbidden"}`, wantMsg: "forbidden"},
		{name: "plain text", status: http.StatusInternalServerError, body: "boom\n", wantMsg: "boom"},
		{name: "rate limit header", status: http.StatusTooManyRequests, header: "8", body: `{"message":"slow down"}`, wantRL: 8 * time.Second},
		{name: "rate limit body", status: http.StatusTooManyRequests, body: `{"retryAfter":3}`, wantRL: 3 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.header != "" {
					w.Header().Set("Retry-After", tt.header)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewBaseClient(srv.URL).MakeRequest(context.Background(), http.MethodGet, "/", nil)
			require.Error(t, err)

			if tt.wantRL > 0 {
				var rl *RateLimitError
				require.True(t, errors.As(err, &rl))
				assert.Equal(t, tt.wantRL, rl.RetryAfter)
				return
			}
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 5*time.Second, parseRetryAfter("5", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-1", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("", now))
	assert.Equal(t, 30*time.Second, parseRetryAfter(now.Add(30*time.Second).Format(http.TimeFormat), now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon", now))
}

func TestRateLimitError_RetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 8, (&RateLimitError{RetryAfter: 8 * time.Second}).RetryAfterSeconds())
	assert.Equal(t, 3, (&RateLimitError{RetryAfter: 2100 * time.Millisecond}).RetryAfterSeconds())
	assert.Equal(t, 0, (&RateLimitError{}).RetryAfterSeconds())
}
