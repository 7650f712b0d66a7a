package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-auth-client/api"
	"github.com/jrsteele09/go-auth-client/autherrors"
	"github.com/jrsteele09/go-auth-client/events"
	"github.com/jrsteele09/go-auth-client/oauth2"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/pkg/errors"
)

const unexpectedInitMsg = "Unexpected error during initialization"

// initializingKey marks contexts derived from the initialization run, so
// that work done on its behalf does not wait for itself.
type initializingKey struct{}

func isInitializing(ctx context.Context) bool {
	return ctx.Value(initializingKey{}) != nil
}

// Initialize detects a session in the environment URL, or recovers the
// stored one, and starts auto refresh. It runs once per client; later calls
// wait for and return the first run's outcome. The returned error is always
// an auth error, anything unexpected is reported as an UnknownError.
func (c *Client) Initialize(ctx context.Context) error {
	if isInitializing(ctx) {
		return nil
	}
	c.startInitialize(ctx)
	select {
	case <-c.initDone:
		return c.initErr
	case <-ctx.Done():
		return autherrors.NewUnknownError(unexpectedInitMsg, ctx.Err())
	}
}

// waitForInit blocks until initialization has finished, starting it if
// needed. Its outcome is not returned: operations run either way.
func (c *Client) waitForInit(ctx context.Context) error {
	if isInitializing(ctx) {
		return nil
	}
	c.startInitialize(ctx)
	select {
	case <-c.initDone:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "wait for initialization")
	}
}

func (c *Client) startInitialize(ctx context.Context) {
	c.initOnce.Do(func() {
		initCtx := context.WithValue(context.WithoutCancel(ctx), initializingKey{}, struct{}{})
		go c.runInitialize(initCtx)
	})
}

func (c *Client) runInitialize(ctx context.Context) {
	var notify func()
	defer func() {
		if r := recover(); r != nil {
			c.initErr = autherrors.NewUnknownError(unexpectedInitMsg, fmt.Errorf("panic: %v", r))
		}
		c.handleVisibilityChange()
		close(c.initDone)
		c.logger.Debug().Err(c.initErr).Msg("#_initialize() end")
		if notify != nil {
			notify()
		}
	}()

	c.logger.Debug().Msg("#_initialize() begin")
	notify, c.initErr = c.initialize(ctx)
}

// initialize returns the notification to send once initialization is done,
// so subscribers that read the session from it do not wait on themselves.
func (c *Client) initialize(ctx context.Context) (func(), error) {
	current := c.currentURL()
	isPKCE, err := c.isPKCEFlow(ctx, current)
	if err != nil {
		return nil, unexpectedInit(err)
	}

	if isPKCE || (c.detectSessionInURL && oauth2.IsImplicitGrantURL(current)) {
		session, redirectType, err := c.getSessionFromURL(ctx, current, isPKCE)
		if err != nil {
			if !autherrors.IsAuthError(err) {
				return nil, unexpectedInit(err)
			}
			c.logger.Debug().Err(err).Msg("#_initialize() error detecting session from URL")
			if rmErr := c.store.Remove(ctx); rmErr != nil {
				c.logger.Err(rmErr).Msg("#_initialize() remove session")
			}
			return nil, err
		}
		if err := c.store.Save(ctx, session); err != nil {
			return nil, unexpectedInit(err)
		}

		event := events.SignedIn
		if redirectType == oauth2.RedirectRecovery {
			event = events.PasswordRecovery
		}
		c.logger.Debug().Str("redirect_type", string(redirectType)).Msg("#_initialize() detected session in URL")
		return func() {
			if err := c.bus.Notify(ctx, event, session, true); err != nil {
				c.logger.Err(err).Str("event", string(event)).Msg("#_initialize() notify")
			}
		}, nil
	}

	c.recoverAndRefresh(ctx)
	return nil, nil
}

func unexpectedInit(err error) error {
	if autherrors.IsAuthError(err) {
		return err
	}
	return autherrors.NewUnknownError(unexpectedInitMsg, err)
}

func (c *Client) currentURL() *url.URL {
	if c.env == nil {
		return nil
	}
	return c.env.CurrentURL()
}

// isPKCEFlow reports whether u carries an authorization code and a verifier
// is waiting for it.
func (c *Client) isPKCEFlow(ctx context.Context, u *url.URL) (bool, error) {
	if oauth2.AuthCode(u) == "" {
		return false, nil
	}
	verifier, err := c.store.CodeVerifier(ctx)
	if err != nil {
		return false, err
	}
	return verifier != "", nil
}

// getSessionFromURL turns the redirect the user landed on into a session and
// cleans the consumed parameters out of the URL.
func (c *Client) getSessionFromURL(ctx context.Context, u *url.URL, isPKCE bool) (*sessions.Session, oauth2.RedirectType, error) {
	if c.flowType == oauth2.FlowImplicit && !oauth2.IsImplicitGrantURL(u) {
		return nil, "", autherrors.NewImplicitGrantRedirectError("Not a valid implicit grant flow url.", nil)
	}
	if c.flowType == oauth2.FlowPKCE && !isPKCE {
		return nil, "", autherrors.NewPKCEGrantCodeExchangeError("Not a valid PKCE flow url.", nil)
	}

	if c.flowType == oauth2.FlowPKCE {
		code := oauth2.AuthCode(u)
		if code == "" {
			return nil, "", autherrors.NewPKCEGrantCodeExchangeError("No code detected.", nil)
		}
		res, err := c.exchangeCode(ctx, code)
		if err != nil {
			return nil, "", err
		}
		if res.Session == nil {
			return nil, "", autherrors.NewPKCEGrantCodeExchangeError("No session detected.", nil)
		}
		c.env.ReplaceURL(oauth2.WithoutCode(u))
		return res.Session, "", nil
	}

	grant, err := oauth2.ParseImplicitGrant(u)
	if err != nil {
		return nil, "", err
	}
	expiresAt := c.now().Unix() + grant.ExpiresIn

	user, err := c.api.User(ctx, http.MethodGet, "/user", api.RequestOptions{JWT: grant.AccessToken})
	if err != nil {
		return nil, "", err
	}

	session := &sessions.Session{
		ProviderToken:        grant.ProviderToken,
		ProviderRefreshToken: grant.ProviderRefreshToken,
		AccessToken:          grant.AccessToken,
		RefreshToken:         grant.RefreshToken,
		ExpiresIn:            grant.ExpiresIn,
		ExpiresAt:            expiresAt,
		TokenType:            grant.TokenType,
		User:                 user,
	}
	c.env.ReplaceURL(oauth2.WithoutFragment(u))
	return session, grant.RedirectType, nil
}

// recoverAndRefresh picks up the stored session: one that is about to
// expire is refreshed, any other is announced as SIGNED_IN. The stored value
// is never written back, another client sharing the storage may have
// replaced it in the meantime. Failures are logged, not returned.
func (c *Client) recoverAndRefresh(ctx context.Context) {
	c.logger.Debug().Msg("#_recoverAndRefresh() begin")
	defer c.logger.Debug().Msg("#_recoverAndRefresh() end")

	session, err := c.store.Load(ctx)
	if err != nil {
		c.logger.Err(err).Msg("#_recoverAndRefresh() load session")
		return
	}
	if !session.IsValid() {
		c.logger.Debug().Msg("#_recoverAndRefresh() session is not valid")
		if session != nil {
			if err := c.store.Remove(ctx); err != nil {
				c.logger.Err(err).Msg("#_recoverAndRefresh() remove session")
			}
		}
		return
	}

	expiring := session.ExpiresWithin(c.now(), c.expiryMargin)
	c.logger.Debug().Bool("expiring", expiring).Dur("margin", c.expiryMargin).Msg("#_recoverAndRefresh() session expiry")
	if !expiring {
		if err := c.bus.Notify(ctx, events.SignedIn, session, true); err != nil {
			c.logger.Err(err).Msg("#_recoverAndRefresh() notify")
		}
		return
	}
	if !c.autoRefresh || session.RefreshToken == "" {
		return
	}

	result, err := c.coordinator.Refresh(ctx, session.RefreshToken)
	if err != nil {
		c.logger.Err(err).Msg("#_recoverAndRefresh() refresh")
		return
	}
	if result.Err != nil {
		c.logger.Err(result.Err).Msg("#_recoverAndRefresh() refresh")
		if !autherrors.IsRetryableFetchError(result.Err) {
			c.logger.Debug().Msg("#_recoverAndRefresh() refresh failed with a non-retryable error, removing the session")
			if err := c.store.Remove(ctx); err != nil {
				c.logger.Err(err).Msg("#_recoverAndRefresh() remove session")
			}
		}
	}
}
