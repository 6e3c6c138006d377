package clients

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// APIError is a non-2xx response. Message comes from the backend's
// {"message": "..."} error body when present.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API returned status code: %d", e.StatusCode)
	}
	return fmt.Sprintf("API returned status code: %d, message: %s", e.StatusCode, e.Message)
}

// RateLimitError is a 429 response. RetryAfter is how long the backend asked
// the client to wait; callers surface it and never retry on their own.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds for display
func (e *RateLimitError) RetryAfterSeconds() int {
	secs := int(e.RetryAfter / time.Second)
	if e.RetryAfter%time.Second != 0 {
		secs++
	}
	return secs
}

type errorBody struct {
	Message    string `json:"message"`
	Error      string `json:"error"`
	RetryAfter *int   `json:"retryAfter"`
}

func newResponseError(resp *http.Response, body []byte, now time.Time) error {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)

	msg := eb.Message
	if msg == "" {
		msg = eb.Error
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retry := parseRetryAfter(resp.Header.Get("Retry-After"), now)
		if retry == 0 && eb.RetryAfter != nil {
			retry = time.Duration(*eb.RetryAfter) * time.Second
		}
		return &RateLimitError{RetryAfter: retry, Message: msg}
	}

	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}

// parseRetryAfter accepts delta-seconds or an HTTP date
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
