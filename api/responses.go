package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jrsteele09/go-auth-client/autherrors"
	"github.com/jrsteele09/go-auth-client/oauth2"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/jrsteele09/go-auth-client/users"
)

// SessionResponse is a normalised token endpoint response. Session is nil when
// the payload did not carry a complete token set (for example a sign up that
// still needs confirmation); User is nil when no user could be decoded.
type SessionResponse struct {
	Session *sessions.Session
	User    *users.User
}

// Session sends a request whose response may create a session.
func (c *Client) Session(ctx context.Context, method, path string, opts RequestOptions) (*SessionResponse, error) {
	body, err := c.Request(ctx, method, path, opts)
	if err != nil {
		return nil, err
	}
	return ParseSessionResponse(body, c.nowFunc())
}

// ParseSessionResponse builds a SessionResponse from a raw body. expires_at is
// derived from now + expires_in when the backend omitted it, and the user is
// read from the "user" field or, failing that, from the body itself.
func ParseSessionResponse(body []byte, now time.Time) (*SessionResponse, error) {
	var tokens oauth2.TokenResponse
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, autherrors.NewRetryableFetchError(fmt.Sprintf("invalid response body: %v", err), 0)
	}
	user, err := parseUser(body)
	if err != nil {
		return nil, err
	}

	res := &SessionResponse{User: user}
	if tokens.HasSession() {
		expiresAt := tokens.ExpiresAt
		if expiresAt == 0 {
			expiresAt = now.Unix() + tokens.ExpiresIn
		}
		res.Session = &sessions.Session{
			ProviderToken:        tokens.ProviderToken,
			ProviderRefreshToken: tokens.ProviderRefreshToken,
			AccessToken:          tokens.AccessToken,
			RefreshToken:         tokens.RefreshToken,
			ExpiresIn:            tokens.ExpiresIn,
			ExpiresAt:            expiresAt,
			TokenType:            tokens.TokenType,
			User:                 user,
		}
	}
	return res, nil
}

// User sends a request that returns a user, either bare or under "user".
func (c *Client) User(ctx context.Context, method, path string, opts RequestOptions) (*users.User, error) {
	body, err := c.Request(ctx, method, path, opts)
	if err != nil {
		return nil, err
	}
	return parseUser(body)
}

func parseUser(body []byte) (*users.User, error) {
	var wrapped struct {
		User *users.User `json:"user"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, autherrors.NewRetryableFetchError(fmt.Sprintf("invalid response body: %v", err), 0)
	}
	user := wrapped.User
	if user == nil {
		user = &users.User{}
		if err := json.Unmarshal(body, user); err != nil {
			return nil, autherrors.NewRetryableFetchError(fmt.Sprintf("invalid response body: %v", err), 0)
		}
	}
	if user.ID == "" {
		return nil, nil
	}
	return user, nil
}

// SSOResponse carries the identity provider URL to send the user to.
type SSOResponse struct {
	URL string `json:"url"`
}
