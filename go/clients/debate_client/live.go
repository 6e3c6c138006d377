package debate_client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

type LiveStatus struct {
	SessionID          string     `json:"sessionId"`
	IsLive             bool       `json:"isLive"`
	Title              string     `json:"title"`
	CurrentRound       int        `json:"currentRound"`
	TotalRounds        int        `json:"totalRounds"`
	CurrentQuestion    *string    `json:"currentQuestion"`
	TotalFires         int        `json:"totalFires"`
	ScheduledStartTime *time.Time `json:"scheduledStartTime"`
	Status             string     `json:"status"`
	ViewerCount        int        `json:"viewerCount"`
}

type HeatmapBucket struct {
	Label            string `json:"label"`
	IntervalTotal    int    `json:"intervalTotal"`
	WindowCumulative int    `json:"windowCumulative"`
}

type Heatmap struct {
	SessionID string          `json:"sessionId"`
	Total     int             `json:"total"`
	Buckets   []HeatmapBucket `json:"buckets"`
}

type FireCount struct {
	SessionID  string `json:"sessionId"`
	TotalFires int    `json:"totalFires"`
}

type FireRequest struct {
	Position float64 `json:"position"`
}

type FireResult struct {
	TotalFires int `json:"totalFires"`
}

func (c *DebateClient) GetLiveStatus(ctx context.Context, sessionID string) (*LiveStatus, error) {
	var status LiveStatus
	endpoint := fmt.Sprintf(LiveStatusEndpoint, url.PathEscape(sessionID))
	if err := c.DoJSON(ctx, http.MethodGet, c.path(endpoint), nil, &status); err != nil {
		return nil, fmt.Errorf("failed to get live status: %w", err)
	}
	return &status, nil
}

func (c *DebateClient) GetHeatmap(ctx context.Context, sessionID string) (*Heatmap, error) {
	var heatmap Heatmap
	endpoint := fmt.Sprintf(HeatmapEndpoint, url.PathEscape(sessionID))
	if err := c.DoJSON(ctx, http.MethodGet, c.path(endpoint), nil, &heatmap); err != nil {
		return nil, fmt.Errorf("failed to get heatmap: %w", err)
	}
	return &heatmap, nil
}

func (c *DebateClient) GetFireCount(ctx context.Context, sessionID string) (*FireCount, error) {
	var count FireCount
	endpoint := fmt.Sprintf(FireCountEndpoint, url.PathEscape(sessionID))
	if err := c.DoJSON(ctx, http.MethodGet, c.path(endpoint), nil, &count); err != nil {
		return nil, fmt.Errorf("failed to get fire count: %w", err)
	}
	return &count, nil
}

// SendFire submits one fire reaction. A 429 comes back as a
// *clients.RateLimitError carrying the backend's retry-after.
func (c *DebateClient) SendFire(ctx context.Context, sessionID string, position float64) (*FireResult, error) {
	var result FireResult
	endpoint := fmt.Sprintf(SendFireEndpoint, url.PathEscape(sessionID))
	if err := c.DoJSON(ctx, http.MethodPost, c.path(endpoint), FireRequest{Position: position}, &result); err != nil {
		return nil, fmt.Errorf("failed to send fire: %w", err)
	}
	return &result, nil
}
