package debate_client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

type BannedIP struct {
	IP        string     `json:"ip"`
	Reason    string     `json:"reason"`
	BannedAt  time.Time  `json:"bannedAt"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// Login exchanges credentials for a token. Empty fields are rejected before
// any request is made.
func (c *DebateClient) Login(ctx context.Context, email, password string) (string, error) {
	if email == "" || password == "" {
		return "", errors.New("email and password are required")
	}

	var resp LoginResponse
	if err := c.DoJSON(ctx, http.MethodPost, c.path(LoginEndpoint), LoginRequest{Email: email, Password: password}, &resp); err != nil {
		return "", fmt.Errorf("failed to log in: %w", err)
	}
	if resp.Token == "" {
		return "", errors.New("login response carried no token")
	}
	return resp.Token, nil
}

func (c *DebateClient) ListBannedIPs(ctx context.Context) ([]BannedIP, error) {
	var banned []BannedIP
	if err := c.DoJSON(ctx, http.MethodGet, c.path(BannedIPsEndpoint), nil, &banned); err != nil {
		return nil, fmt.Errorf("failed to list banned IPs: %w", err)
	}
	return banned, nil
}
