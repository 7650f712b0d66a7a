package auth

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/jrsteele09/go-auth-client/api"
	"github.com/jrsteele09/go-auth-client/autherrors"
	"github.com/jrsteele09/go-auth-client/events"
	"github.com/jrsteele09/go-auth-client/oauth2"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/jrsteele09/go-auth-client/token"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/pkg/errors"
	xoauth2 "golang.org/x/oauth2"
)

// GetSession returns the current session, refreshing it first when the
// access token has expired. It returns nil, nil when signed out.
func (c *Client) GetSession(ctx context.Context) (*sessions.Session, error) {
	if err := c.waitForInit(ctx); err != nil {
		return nil, err
	}
	c.logger.Debug().Msg("#getSession() begin")
	defer c.logger.Debug().Msg("#getSession() end")

	session, err := c.store.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[GetSession] load session")
	}
	if session == nil {
		return nil, nil
	}

	expired := session.HasExpired(c.now())
	c.logger.Debug().Bool("expired", expired).Int64("expires_at", session.ExpiresAt).Msg("#getSession() session expiry")
	if !expired {
		return session, nil
	}
	return c.callRefreshToken(ctx, session.RefreshToken)
}

// GetUser fetches the user behind jwt from the backend. An empty jwt uses
// the current session's access token.
func (c *Client) GetUser(ctx context.Context, jwt string) (*users.User, error) {
	if jwt == "" {
		var err error
		if jwt, err = c.accessToken(ctx); err != nil {
			return nil, err
		}
	}
	user, err := c.api.User(ctx, http.MethodGet, "/user", api.RequestOptions{JWT: jwt})
	return user, wrap(err, "[GetUser]")
}

// UpdateUser changes the signed in user's attributes, stores the returned
// user on the session and emits USER_UPDATED.
func (c *Client) UpdateUser(ctx context.Context, attrs users.Attributes, opts UpdateUserOptions) (*users.User, error) {
	session, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, autherrors.NewSessionMissingError()
	}

	user, err := c.api.User(ctx, http.MethodPut, "/user", api.RequestOptions{
		JWT:        session.AccessToken,
		RedirectTo: opts.EmailRedirectTo,
		Body:       attrs,
	})
	if err != nil {
		return nil, wrap(err, "[UpdateUser]")
	}

	session.User = user
	if err := c.saveAndNotify(ctx, events.UserUpdated, session); err != nil {
		return nil, errors.Wrap(err, "[UpdateUser]")
	}
	return user, nil
}

// SetSession adopts a session obtained elsewhere. An expired access token is
// refreshed; otherwise the user is fetched with it and SIGNED_IN is emitted.
func (c *Client) SetSession(ctx context.Context, accessToken, refreshToken string) (AuthResponse, error) {
	if accessToken == "" || refreshToken == "" {
		return AuthResponse{}, autherrors.NewSessionMissingError()
	}
	if err := c.validator.ValidateAccessToken(accessToken); err != nil {
		return AuthResponse{}, wrap(err, "[SetSession]")
	}
	claims, err := token.ParseClaims(accessToken)
	if err != nil {
		return AuthResponse{}, errors.Wrap(err, "[SetSession]")
	}

	now := c.now().Unix()
	expiresAt := now
	expired := true
	if exp := claims.ExpiresAtUnix(); exp != 0 {
		expiresAt = exp
		expired = exp <= now
	}

	if expired {
		session, err := c.callRefreshToken(ctx, refreshToken)
		if err != nil || session == nil {
			return AuthResponse{}, err
		}
		return AuthResponse{User: session.User, Session: session}, nil
	}

	user, err := c.GetUser(ctx, accessToken)
	if err != nil {
		return AuthResponse{}, err
	}
	session := &sessions.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user,
		TokenType:    "bearer",
		ExpiresIn:    expiresAt - now,
		ExpiresAt:    expiresAt,
	}
	if err := c.saveAndNotify(ctx, events.SignedIn, session); err != nil {
		return AuthResponse{}, errors.Wrap(err, "[SetSession]")
	}
	return AuthResponse{User: user, Session: session}, nil
}

// RefreshSession exchanges the refresh token of current, or of the stored
// session when current is nil, regardless of expiry.
func (c *Client) RefreshSession(ctx context.Context, current *sessions.Session) (AuthResponse, error) {
	if current == nil {
		var err error
		if current, err = c.GetSession(ctx); err != nil {
			return AuthResponse{}, err
		}
	}
	if current == nil || current.RefreshToken == "" {
		return AuthResponse{}, autherrors.NewSessionMissingError()
	}

	session, err := c.callRefreshToken(ctx, current.RefreshToken)
	if err != nil || session == nil {
		return AuthResponse{}, err
	}
	return AuthResponse{User: session.User, Session: session}, nil
}

// SignOut revokes sessions on the backend and, unless scope is
// SignOutOthers, clears local state and emits SIGNED_OUT. An empty scope
// means SignOutGlobal. A 401 or 404 from the backend is ignored: the token is
// already unusable.
func (c *Client) SignOut(ctx context.Context, scope oauth2.SignOutScope) error {
	if scope == "" {
		scope = oauth2.SignOutGlobal
	}
	accessToken, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	if accessToken != "" {
		_, err := c.api.Request(ctx, http.MethodPost, "/logout", api.RequestOptions{
			JWT:   accessToken,
			Query: url.Values{"scope": {string(scope)}},
		})
		if apiErr, ok := autherrors.AsApiError(err); ok && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusNotFound) {
			c.logger.Debug().Int("status", apiErr.StatusCode).Msg("#signOut() ignoring logout failure")
			err = nil
		}
		if err != nil {
			return wrap(err, "[SignOut]")
		}
	}

	if scope == oauth2.SignOutOthers {
		return nil
	}
	if err := c.removeSession(ctx); err != nil {
		return errors.Wrap(err, "[SignOut]")
	}
	if err := c.store.RemoveCodeVerifier(ctx); err != nil {
		return errors.Wrap(err, "[SignOut]")
	}
	if err := c.bus.Notify(ctx, events.SignedOut, nil, true); err != nil {
		return errors.Wrap(err, "[SignOut] notify")
	}
	return nil
}

// TokenSource adapts the client to golang.org/x/oauth2, so the current
// session can authorize outgoing requests via oauth2.NewClient. Each Token
// call goes through GetSession and therefore refreshes expired sessions.
func (c *Client) TokenSource(ctx context.Context) xoauth2.TokenSource {
	return &sessionTokenSource{ctx: ctx, client: c}
}

type sessionTokenSource struct {
	ctx    context.Context
	client *Client
}

func (s *sessionTokenSource) Token() (*xoauth2.Token, error) {
	session, err := s.client.GetSession(s.ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, autherrors.NewSessionMissingError()
	}
	tok := &xoauth2.Token{
		AccessToken:  session.AccessToken,
		TokenType:    session.TokenType,
		RefreshToken: session.RefreshToken,
	}
	if session.ExpiresAt != 0 {
		tok.Expiry = time.Unix(session.ExpiresAt, 0)
	}
	return tok, nil
}
