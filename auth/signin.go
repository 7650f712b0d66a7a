package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-auth-client/api"
	"github.com/jrsteele09/go-auth-client/autherrors"
	"github.com/jrsteele09/go-auth-client/events"
	"github.com/jrsteele09/go-auth-client/internal/utils"
	"github.com/jrsteele09/go-auth-client/oauth2"
	"github.com/jrsteele09/go-auth-client/token"
	"github.com/pkg/errors"
)

func grantQuery(grant oauth2.GrantType) url.Values {
	return url.Values{"grant_type": {string(grant)}}
}

// signedIn stores a session returned by a sign in and emits SIGNED_IN.
// requireSession turns a response without session or user into an
// InvalidTokenResponseError.
func (c *Client) signedIn(ctx context.Context, res *api.SessionResponse, requireSession bool) (AuthResponse, error) {
	if requireSession && (res.Session == nil || res.User == nil) {
		return AuthResponse{}, autherrors.NewInvalidTokenResponseError()
	}
	if res.Session != nil {
		if err := c.saveAndNotify(ctx, events.SignedIn, res.Session); err != nil {
			return AuthResponse{}, err
		}
	}
	return AuthResponse{User: res.User, Session: res.Session}, nil
}

// SignUp creates a user. A session is only returned when the backend
// confirms the user right away; otherwise a confirmation email or SMS is sent.
func (c *Client) SignUp(ctx context.Context, creds Credentials, opts SignUpOptions) (AuthResponse, error) {
	creds, err := c.validator.ValidateCredentials(creds, credentialsWithPasswordMsg)
	if err != nil {
		return AuthResponse{}, err
	}
	if err := c.removeSession(ctx); err != nil {
		return AuthResponse{}, errors.Wrap(err, "[SignUp]")
	}

	data := opts.Data
	if data == nil {
		data = map[string]any{}
	}
	body := signUpRequest{
		Password:           creds.secret(),
		Data:               data,
		GotrueMetaSecurity: captcha(opts.CaptchaToken),
	}
	reqOpts := api.RequestOptions{}

	switch cr := creds.(type) {
	case EmailCredentials:
		pkce, err := c.pkceChallenge(ctx)
		if err != nil {
			return AuthResponse{}, errors.Wrap(err, "[SignUp]")
		}
		body.Email = cr.Email
		body.pkceFields = pkce
		reqOpts.RedirectTo = opts.EmailRedirectTo
	case PhoneCredentials:
		body.Phone = cr.Phone
		body.Channel = channelOrDefault(opts.Channel)
	}
	reqOpts.Body = body

	res, err := c.api.Session(ctx, http.MethodPost, "/signup", reqOpts)
	if err != nil {
		return AuthResponse{}, wrap(err, "[SignUp]")
	}
	out, err := c.signedIn(ctx, res, false)
	return out, wrap(err, "[SignUp]")
}

// SignInWithPassword signs in with an email or phone and a password. The
// backend does not say whether the account is missing or the password wrong.
func (c *Client) SignInWithPassword(ctx context.Context, creds Credentials, captchaToken string) (AuthResponse, error) {
	creds, err := c.validator.ValidateCredentials(creds, credentialsWithPasswordMsg)
	if err != nil {
		return AuthResponse{}, err
	}
	if err := c.removeSession(ctx); err != nil {
		return AuthResponse{}, errors.Wrap(err, "[SignInWithPassword]")
	}

	body := passwordRequest{Password: creds.secret(), GotrueMetaSecurity: captcha(captchaToken)}
	switch cr := creds.(type) {
	case EmailCredentials:
		body.Email = cr.Email
	case PhoneCredentials:
		body.Phone = cr.Phone
	}

	res, err := c.api.Session(ctx, http.MethodPost, "/token", api.RequestOptions{
		Query: grantQuery(oauth2.PasswordGrant),
		Body:  body,
	})
	if err != nil {
		return AuthResponse{}, wrap(err, "[SignInWithPassword]")
	}
	out, err := c.signedIn(ctx, res, true)
	return out, wrap(err, "[SignInWithPassword]")
}

// SignInWithOAuth builds the provider authorization URL and, unless
// SkipBrowserRedirect is set, asks the environment to navigate to it.
func (c *Client) SignInWithOAuth(ctx context.Context, params OAuthSignIn) (OAuthResponse, error) {
	if err := c.validator.ValidateScopes(params.Scopes); err != nil {
		return OAuthResponse{}, errors.Wrap(err, "[SignInWithOAuth]")
	}
	if err := c.removeSession(ctx); err != nil {
		return OAuthResponse{}, errors.Wrap(err, "[SignInWithOAuth]")
	}

	authorizeURL, err := c.providerURL(ctx, params)
	if err != nil {
		return OAuthResponse{}, errors.Wrap(err, "[SignInWithOAuth]")
	}
	if c.env != nil && !params.SkipBrowserRedirect {
		if err := c.env.Navigate(authorizeURL); err != nil {
			return OAuthResponse{}, errors.Wrap(err, "[SignInWithOAuth] navigate")
		}
	}
	return OAuthResponse{Provider: params.Provider, URL: authorizeURL}, nil
}

func (c *Client) providerURL(ctx context.Context, params OAuthSignIn) (string, error) {
	q := url.Values{}
	q.Set("provider", params.Provider)
	if params.RedirectTo != "" {
		q.Set("redirect_to", params.RedirectTo)
	}
	if params.Scopes != "" {
		q.Set("scopes", params.Scopes)
	}
	pkce, err := c.pkceChallenge(ctx)
	if err != nil {
		return "", err
	}
	if pkce.CodeChallenge != "" {
		q.Set("code_challenge", pkce.CodeChallenge)
		q.Set("code_challenge_method", pkce.CodeChallengeMethod)
	}
	for k, v := range params.QueryParams {
		q.Set(k, v)
	}
	return c.api.BaseURL() + "/authorize?" + q.Encode(), nil
}

// SignInWithIDToken signs in with an OIDC ID token. With an ID token
// verifier configured the token and its nonce are checked locally first.
func (c *Client) SignInWithIDToken(ctx context.Context, creds IDTokenCredentials) (AuthResponse, error) {
	if err := c.validator.ValidateIDToken(creds); err != nil {
		return AuthResponse{}, err
	}
	if err := c.removeSession(ctx); err != nil {
		return AuthResponse{}, errors.Wrap(err, "[SignInWithIDToken]")
	}
	if err := c.verifyIDToken(ctx, creds); err != nil {
		return AuthResponse{}, errors.Wrap(err, "[SignInWithIDToken]")
	}

	res, err := c.api.Session(ctx, http.MethodPost, "/token", api.RequestOptions{
		Query: grantQuery(oauth2.IDTokenGrant),
		Body: idTokenRequest{
			Provider:           creds.Provider,
			IDToken:            creds.Token,
			AccessToken:        creds.AccessToken,
			Nonce:              creds.Nonce,
			GotrueMetaSecurity: captcha(creds.CaptchaToken),
		},
	})
	if err != nil {
		return AuthResponse{}, wrap(err, "[SignInWithIDToken]")
	}
	out, err := c.signedIn(ctx, res, true)
	return out, wrap(err, "[SignInWithIDToken]")
}

// verifyIDToken checks the signature, issuer and audience of the token when
// a verifier is configured, and the nonce whenever one was supplied. The
// token may carry either the raw nonce or its hex encoded SHA-256.
func (c *Client) verifyIDToken(ctx context.Context, creds IDTokenCredentials) error {
	nonce := token.Nonce(creds.Token)
	if c.idTokenVerifier != nil {
		idToken, err := c.idTokenVerifier.Verify(ctx, creds.Token)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrIDTokenVerification, err)
		}
		nonce = idToken.Nonce
	}
	if creds.Nonce == "" || nonce == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(creds.Nonce))
	if nonce != creds.Nonce && nonce != hex.EncodeToString(sum[:]) {
		return ErrNonceMismatch
	}
	return nil
}

// SignInWithOTP sends a magic link or one time password. Nothing is signed
// in until VerifyOTP or the link completes the flow.
func (c *Client) SignInWithOTP(ctx context.Context, creds Credentials, opts OTPOptions) (AuthResponse, error) {
	creds, err := c.validator.ValidateCredentials(creds, credentialsMsg)
	if err != nil {
		return AuthResponse{}, err
	}
	if err := c.removeSession(ctx); err != nil {
		return AuthResponse{}, errors.Wrap(err, "[SignInWithOTP]")
	}

	data := opts.Data
	if data == nil {
		data = map[string]any{}
	}
	createUser := opts.ShouldCreateUser
	if createUser == nil {
		createUser = utils.Ptr(true)
	}
	body := otpRequest{
		Data:               data,
		CreateUser:         createUser,
		GotrueMetaSecurity: captcha(opts.CaptchaToken),
	}

	switch cr := creds.(type) {
	case EmailCredentials:
		pkce, err := c.pkceChallenge(ctx)
		if err != nil {
			return AuthResponse{}, errors.Wrap(err, "[SignInWithOTP]")
		}
		body.Email = cr.Email
		body.pkceFields = pkce
		_, err = c.api.Request(ctx, http.MethodPost, "/otp", api.RequestOptions{
			RedirectTo: opts.EmailRedirectTo,
			Body:       body,
		})
		return AuthResponse{}, wrap(err, "[SignInWithOTP]")
	case PhoneCredentials:
		body.Phone = cr.Phone
		body.Channel = channelOrDefault(opts.Channel)
		var out messageIDResponse
		if err := c.api.JSON(ctx, http.MethodPost, "/otp", api.RequestOptions{Body: body}, &out); err != nil {
			return AuthResponse{}, wrap(err, "[SignInWithOTP]")
		}
		return AuthResponse{MessageID: out.MessageID}, nil
	}
	return AuthResponse{}, autherrors.NewInvalidCredentialsError(credentialsMsg)
}

// VerifyOTP completes an OTP sign in, or confirms an email or phone change.
// The current session is kept for change confirmations and dropped otherwise.
func (c *Client) VerifyOTP(ctx context.Context, params VerifyOTPParams) (AuthResponse, error) {
	if err := c.validator.ValidateOTPType(params.Type, credentialsWithTypeMsg); err != nil {
		return AuthResponse{}, err
	}
	if params.Type != oauth2.OTPEmailChange && params.Type != oauth2.OTPPhoneChange {
		if err := c.removeSession(ctx); err != nil {
			return AuthResponse{}, errors.Wrap(err, "[VerifyOTP]")
		}
	}

	res, err := c.api.Session(ctx, http.MethodPost, "/verify", api.RequestOptions{
		RedirectTo: params.RedirectTo,
		Body: verifyRequest{
			Email:              params.Email,
			Phone:              params.Phone,
			Token:              params.Token,
			Type:               params.Type,
			GotrueMetaSecurity: captcha(params.CaptchaToken),
		},
	})
	if err != nil {
		return AuthResponse{}, wrap(err, "[VerifyOTP]")
	}
	out, err := c.signedIn(ctx, res, false)
	return out, wrap(err, "[VerifyOTP]")
}

// SignInWithSSO asks the backend for the identity provider URL of an
// enterprise SSO connection, selected by provider id or domain.
func (c *Client) SignInWithSSO(ctx context.Context, params SSOParams) (api.SSOResponse, error) {
	if err := c.validator.ValidateSSOParams(params); err != nil {
		return api.SSOResponse{}, err
	}
	if err := c.removeSession(ctx); err != nil {
		return api.SSOResponse{}, errors.Wrap(err, "[SignInWithSSO]")
	}

	body := ssoRequest{
		ProviderID:       params.ProviderID,
		Domain:           params.Domain,
		RedirectTo:       params.RedirectTo,
		SkipHTTPRedirect: true,
	}
	if params.CaptchaToken != "" {
		body.GotrueMetaSecurity = &metaSecurity{CaptchaToken: params.CaptchaToken}
	}

	var out api.SSOResponse
	if err := c.api.JSON(ctx, http.MethodPost, "/sso", api.RequestOptions{Body: body}, &out); err != nil {
		return api.SSOResponse{}, wrap(err, "[SignInWithSSO]")
	}
	return out, nil
}

// ExchangeCodeForSession completes a PKCE flow with the code from the
// redirect and the stored verifier.
func (c *Client) ExchangeCodeForSession(ctx context.Context, authCode string) (AuthResponse, error) {
	res, err := c.exchangeCode(ctx, authCode)
	if err != nil {
		return AuthResponse{}, err
	}
	out, err := c.signedIn(ctx, res, true)
	return out, wrap(err, "[ExchangeCodeForSession]")
}

// exchangeCode sends the code and verifier. The verifier is single use and
// removed whatever the outcome.
func (c *Client) exchangeCode(ctx context.Context, authCode string) (*api.SessionResponse, error) {
	verifier, err := c.store.CodeVerifier(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[ExchangeCodeForSession]")
	}

	res, err := c.api.Session(ctx, http.MethodPost, "/token", api.RequestOptions{
		Query: grantQuery(oauth2.PKCEGrant),
		Body:  pkceGrantRequest{AuthCode: authCode, CodeVerifier: verifier},
	})
	if rmErr := c.store.RemoveCodeVerifier(ctx); rmErr != nil {
		if err != nil {
			c.logger.Err(rmErr).Msg("#exchangeCodeForSession() remove code verifier")
		} else {
			err = rmErr
		}
	}
	if err != nil {
		return nil, wrap(err, "[ExchangeCodeForSession]")
	}
	if res.Session == nil || res.User == nil {
		return nil, autherrors.NewInvalidTokenResponseError()
	}
	return res, nil
}

// Reauthenticate sends a nonce to the signed in user's email or phone, used
// to confirm a password change.
func (c *Client) Reauthenticate(ctx context.Context) error {
	session, err := c.GetSession(ctx)
	if err != nil {
		return err
	}
	if session == nil {
		return autherrors.NewSessionMissingError()
	}
	_, err = c.api.Request(ctx, http.MethodGet, "/reauthenticate", api.RequestOptions{JWT: session.AccessToken})
	return wrap(err, "[Reauthenticate]")
}

// Resend sends a signup confirmation, email change, SMS or phone change OTP again.
func (c *Client) Resend(ctx context.Context, creds Credentials, opts ResendOptions) (AuthResponse, error) {
	creds, err := c.validator.ValidateCredentials(creds, credentialsWithTypeMsg)
	if err != nil {
		return AuthResponse{}, err
	}
	if err := c.validator.ValidateOTPType(opts.Type, credentialsWithTypeMsg); err != nil {
		return AuthResponse{}, err
	}
	if err := c.removeSession(ctx); err != nil {
		return AuthResponse{}, errors.Wrap(err, "[Resend]")
	}

	body := resendRequest{Type: opts.Type, GotrueMetaSecurity: captcha(opts.CaptchaToken)}
	switch cr := creds.(type) {
	case EmailCredentials:
		body.Email = cr.Email
		_, err := c.api.Request(ctx, http.MethodPost, "/resend", api.RequestOptions{Body: body})
		return AuthResponse{}, wrap(err, "[Resend]")
	case PhoneCredentials:
		body.Phone = cr.Phone
		var out messageIDResponse
		if err := c.api.JSON(ctx, http.MethodPost, "/resend", api.RequestOptions{Body: body}, &out); err != nil {
			return AuthResponse{}, wrap(err, "[Resend]")
		}
		return AuthResponse{MessageID: out.MessageID}, nil
	}
	return AuthResponse{}, autherrors.NewInvalidCredentialsError(credentialsWithTypeMsg)
}

// ResetPasswordForEmail sends a password recovery link. The link lands with
// type=recovery, which Initialize reports as PASSWORD_RECOVERY.
func (c *Client) ResetPasswordForEmail(ctx context.Context, email string, opts ResetPasswordOptions) error {
	if err := c.validator.ValidateEmail(email); err != nil {
		return err
	}
	pkce, err := c.pkceChallenge(ctx)
	if err != nil {
		return errors.Wrap(err, "[ResetPasswordForEmail]")
	}
	_, err = c.api.Request(ctx, http.MethodPost, "/recover", api.RequestOptions{
		RedirectTo: opts.RedirectTo,
		Body: recoverRequest{
			Email:              email,
			GotrueMetaSecurity: captcha(opts.CaptchaToken),
			pkceFields:         pkce,
		},
	})
	return wrap(err, "[ResetPasswordForEmail]")
}

func channelOrDefault(channel string) string {
	if channel == "" {
		return "sms"
	}
	return channel
}
