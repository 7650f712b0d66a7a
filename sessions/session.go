package sessions

import (
	"time"

	"github.com/jrsteele09/go-auth-client/users"
)

// Session is the token set issued by the auth backend plus the user it
// belongs to. This is the shape persisted under the storage key.
type Session struct {
	ProviderToken        string      `json:"provider_token,omitempty"`         // Third-party OAuth provider access token
	ProviderRefreshToken string      `json:"provider_refresh_token,omitempty"` // Third-party OAuth provider refresh token
	AccessToken          string      `json:"access_token"`                     // JWT sent as the bearer token
	RefreshToken         string      `json:"refresh_token"`                    // Single use token for the next session
	ExpiresIn            int64       `json:"expires_in"`                       // Lifetime in seconds at issue time
	ExpiresAt            int64       `json:"expires_at,omitempty"`             // Unix seconds the access token expires at
	TokenType            string      `json:"token_type"`                       // Always "bearer"
	User                 *users.User `json:"user"`
}

// IsValid reports whether the session has the fields needed to use and refresh it.
func (s *Session) IsValid() bool {
	return s != nil && s.AccessToken != "" && s.RefreshToken != "" && s.ExpiresAt != 0
}

// HasExpired reports whether the access token expired at or before now. A
// session without expires_at never counts as expired.
func (s *Session) HasExpired(now time.Time) bool {
	if s == nil || s.ExpiresAt == 0 {
		return false
	}
	return s.ExpiresAt <= now.Unix()
}

// ExpiresWithin reports whether the access token expires before now + margin.
func (s *Session) ExpiresWithin(now time.Time, margin time.Duration) bool {
	if s == nil || s.ExpiresAt == 0 {
		return false
	}
	return s.ExpiresAt < now.Add(margin).Unix()
}

// TimeToExpiry returns the time left before the access token expires.
func (s *Session) TimeToExpiry(now time.Time) time.Duration {
	if s == nil || s.ExpiresAt == 0 {
		return 0
	}
	return time.Unix(s.ExpiresAt, 0).Sub(now)
}

// Clone returns a shallow copy; the user pointer is shared.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
