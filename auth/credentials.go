package auth

import (
	"github.com/jrsteele09/go-auth-client/oauth2"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/jrsteele09/go-auth-client/users"
)

// Credentials identify a user by email or by phone. The two variants are
// EmailCredentials and PhoneCredentials.
type Credentials interface {
	identifier() string
	secret() string
}

// EmailCredentials identify a user by email address.
type EmailCredentials struct {
	Email    string
	Password string // Unused by OTP and resend requests
}

func (c EmailCredentials) identifier() string { return c.Email }
func (c EmailCredentials) secret() string     { return c.Password }

// PhoneCredentials identify a user by phone number.
type PhoneCredentials struct {
	Phone    string
	Password string // Unused by OTP and resend requests
}

func (c PhoneCredentials) identifier() string { return c.Phone }
func (c PhoneCredentials) secret() string     { return c.Password }

// normalize dereferences pointer variants so callers only switch on values.
func normalize(creds Credentials) Credentials {
	switch cr := creds.(type) {
	case *EmailCredentials:
		if cr == nil {
			return nil
		}
		return *cr
	case *PhoneCredentials:
		if cr == nil {
			return nil
		}
		return *cr
	}
	return creds
}

// AuthResponse is the outcome of an operation that may create a session.
// Session is nil when the backend has not issued one yet, e.g. a sign up
// awaiting email confirmation or an OTP that was only sent.
type AuthResponse struct {
	User      *users.User
	Session   *sessions.Session
	MessageID string // Set by phone OTP requests
}

type SignUpOptions struct {
	EmailRedirectTo string         // Where the confirmation link sends the user
	Data            map[string]any // Stored in user_metadata
	CaptchaToken    string
	Channel         string // Phone only: sms (default) or whatsapp
}

type OTPOptions struct {
	EmailRedirectTo  string
	ShouldCreateUser *bool // Defaults to true
	Data             map[string]any
	CaptchaToken     string
	Channel          string // Phone only: sms (default) or whatsapp
}

// OAuthSignIn starts a third-party provider sign in.
type OAuthSignIn struct {
	Provider            string            // e.g. "github", "google"
	RedirectTo          string            // Where the provider sends the user back to
	Scopes              string            // Space separated provider scopes
	QueryParams         map[string]string // Extra parameters for the provider
	SkipBrowserRedirect bool              // Only build the URL, do not navigate
}

// OAuthResponse is the provider authorization URL.
type OAuthResponse struct {
	Provider string
	URL      string
}

// IDTokenCredentials sign in with an OIDC ID token issued by a provider the
// backend trusts.
type IDTokenCredentials struct {
	Provider     string // e.g. "google", "apple"
	Token        string // The raw ID token
	AccessToken  string // Provider access token, required by some providers
	Nonce        string // Raw nonce, when the ID token was requested with one
	CaptchaToken string
}

type VerifyOTPParams struct {
	Email        string
	Phone        string
	Token        string
	Type         oauth2.OTPType
	RedirectTo   string
	CaptchaToken string
}

type SSOParams struct {
	ProviderID   string // Identity provider UUID
	Domain       string // Domain registered for the identity provider
	RedirectTo   string
	CaptchaToken string
}

type ResendOptions struct {
	Type         oauth2.OTPType // signup, email_change, sms or phone_change
	CaptchaToken string
}

type ResetPasswordOptions struct {
	RedirectTo   string
	CaptchaToken string
}

type UpdateUserOptions struct {
	EmailRedirectTo string
}

type metaSecurity struct {
	CaptchaToken string `json:"captcha_token,omitempty"`
}

func captcha(token string) metaSecurity {
	return metaSecurity{CaptchaToken: token}
}

type pkceFields struct {
	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
}

type signUpRequest struct {
	Email              string         `json:"email,omitempty"`
	Phone              string         `json:"phone,omitempty"`
	Password           string         `json:"password"`
	Data               map[string]any `json:"data"`
	Channel            string         `json:"channel,omitempty"`
	GotrueMetaSecurity metaSecurity   `json:"gotrue_meta_security"`
	pkceFields
}

type passwordRequest struct {
	Email              string       `json:"email,omitempty"`
	Phone              string       `json:"phone,omitempty"`
	Password           string       `json:"password"`
	GotrueMetaSecurity metaSecurity `json:"gotrue_meta_security"`
}

type otpRequest struct {
	Email              string         `json:"email,omitempty"`
	Phone              string         `json:"phone,omitempty"`
	Data               map[string]any `json:"data"`
	CreateUser         *bool          `json:"create_user"`
	Channel            string         `json:"channel,omitempty"`
	GotrueMetaSecurity metaSecurity   `json:"gotrue_meta_security"`
	pkceFields
}

type idTokenRequest struct {
	Provider           string       `json:"provider"`
	IDToken            string       `json:"id_token"`
	AccessToken        string       `json:"access_token,omitempty"`
	Nonce              string       `json:"nonce,omitempty"`
	GotrueMetaSecurity metaSecurity `json:"gotrue_meta_security"`
}

type verifyRequest struct {
	Email              string         `json:"email,omitempty"`
	Phone              string         `json:"phone,omitempty"`
	Token              string         `json:"token"`
	Type               oauth2.OTPType `json:"type"`
	GotrueMetaSecurity metaSecurity   `json:"gotrue_meta_security"`
}

type ssoRequest struct {
	ProviderID         string        `json:"provider_id,omitempty"`
	Domain             string        `json:"domain,omitempty"`
	RedirectTo         string        `json:"redirect_to,omitempty"`
	GotrueMetaSecurity *metaSecurity `json:"gotrue_meta_security,omitempty"`
	SkipHTTPRedirect   bool          `json:"skip_http_redirect"`
}

type resendRequest struct {
	Email              string         `json:"email,omitempty"`
	Phone              string         `json:"phone,omitempty"`
	Type               oauth2.OTPType `json:"type"`
	GotrueMetaSecurity metaSecurity   `json:"gotrue_meta_security"`
}

type recoverRequest struct {
	Email              string       `json:"email"`
	GotrueMetaSecurity metaSecurity `json:"gotrue_meta_security"`
	pkceFields
}

type pkceGrantRequest struct {
	AuthCode     string `json:"auth_code"`
	CodeVerifier string `json:"code_verifier"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type messageIDResponse struct {
	MessageID string `json:"message_id"`
}
