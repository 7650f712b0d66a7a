package token

import (
	"errors"
	"fmt"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-client/internal/utils"
)

// AAL is the authenticator assurance level recorded in the access token.
type AAL string

const (
	AAL1 AAL = "aal1" // Single factor
	AAL2 AAL = "aal2" // Second factor verified
)

// AMREntry is one authentication method used to obtain the session.
type AMREntry struct {
	Method    string `json:"method"`    // e.g. "password", "otp", "totp", "oauth"
	Timestamp int64  `json:"timestamp"` // Unix seconds the method was used
}

// Claims are the access token claims the client reads. The client never
// verifies the signature: the token came from the backend over TLS and is
// only inspected for scheduling and assurance level reporting.
type Claims struct {
	jwtlib.RegisteredClaims
	Email     string     `json:"email,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	Role      string     `json:"role,omitempty"`       // Database role
	AAL       AAL        `json:"aal,omitempty"`        // Assurance level of the session
	AMR       []AMREntry `json:"amr,omitempty"`        // Methods used, most recent last
	SessionID string     `json:"session_id,omitempty"` // Backend session the token belongs to
}

// ParseClaims decodes the claims of rawToken without verifying it.
func ParseClaims(rawToken string) (*Claims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, errors.New("token is empty")
	}

	claims := &Claims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(rawToken, claims); err != nil {
		return nil, fmt.Errorf("[token.ParseClaims] %w", err)
	}
	return claims, nil
}

// ExpiresAtUnix returns the exp claim in unix seconds, or 0 when absent.
func (c *Claims) ExpiresAtUnix() int64 {
	if c == nil || c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Unix()
}

// Nonce returns the nonce claim of an ID token, or "" when absent.
func Nonce(rawIDToken string) string {
	var claims struct {
		jwtlib.RegisteredClaims
		Nonce *string `json:"nonce,omitempty"`
	}
	if _, _, err := jwtlib.NewParser().ParseUnverified(rawIDToken, &claims); err != nil {
		return ""
	}
	return utils.Value(claims.Nonce)
}
