package auth

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-auth-client/api"
	"github.com/jrsteele09/go-auth-client/events"
	"github.com/jrsteele09/go-auth-client/oauth2"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/pkg/errors"
)

// refreshAccessToken is a single refresh attempt. Retries and single flight
// are handled by the coordinator.
func (c *Client) refreshAccessToken(ctx context.Context, refreshToken string) (*sessions.Session, error) {
	res, err := c.api.Session(ctx, http.MethodPost, "/token", api.RequestOptions{
		Query: url.Values{"grant_type": {string(oauth2.RefreshTokenGrant)}},
		Body:  refreshRequest{RefreshToken: refreshToken},
	})
	if err != nil {
		return nil, err
	}
	return res.Session, nil
}

// onRefreshed persists a refreshed session and announces it before any
// caller waiting on the refresh is released.
func (c *Client) onRefreshed(ctx context.Context, session *sessions.Session) error {
	return c.saveAndNotify(ctx, events.TokenRefreshed, session)
}

// callRefreshToken runs or joins the in-flight refresh and unpacks its result.
func (c *Client) callRefreshToken(ctx context.Context, refreshToken string) (*sessions.Session, error) {
	result, err := c.coordinator.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, errors.Wrap(err, "refresh session")
	}
	if result.Err != nil {
		return nil, result.Err
	}
	return result.Session, nil
}
