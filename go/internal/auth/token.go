package auth

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleAdmin         = "Admin"
	RoleDebateManager = "DebateManager"

	// role claim as written by ASP.NET Identity
	roleClaimURI = "http://schemas.microsoft.com/ws/2008/06/identity/claims/role"
)

var ErrNoToken = errors.New("no token stored")

// Identity is what the client reads out of a token to decide which views
// to show. It is never used for authorization; the backend checks every
// request itself.
type Identity struct {
	Subject         string
	Email           string
	Role            string
	Roles           []string
	ExpiresAt       *time.Time
	IsAdmin         bool
	IsDebateManager bool
}

// Expired reports whether the token's exp is at or before now. Tokens
// without exp never expire client-side.
func (i Identity) Expired(now time.Time) bool {
	return i.ExpiresAt != nil && !now.Before(*i.ExpiresAt)
}

// ParseToken decodes the JWT payload without verifying the signature
func ParseToken(raw string) (Identity, error) {
	if raw == "" {
		return Identity{}, ErrNoToken
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return Identity{}, fmt.Errorf("failed to decode token: %w", err)
	}

	var id Identity
	id.Subject, _ = claims.GetSubject()
	id.Email, _ = claims["email"].(string)

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return Identity{}, fmt.Errorf("invalid exp claim: %w", err)
	}
	if exp != nil {
		t := exp.Time
		id.ExpiresAt = &t
	}

	id.Roles = append(stringsClaim(claims["role"]), stringsClaim(claims[roleClaimURI])...)
	if len(id.Roles) > 0 {
		id.Role = id.Roles[0]
	}
	id.IsAdmin = slices.Contains(id.Roles, RoleAdmin)
	id.IsDebateManager = id.IsAdmin || slices.Contains(id.Roles, RoleDebateManager)
	return id, nil
}

// stringsClaim accepts a single string or a list of strings
func stringsClaim(v any) []string {
	switch v := v.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
