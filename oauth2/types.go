package oauth2

// FlowType selects how browser redirects deliver a session back to the client.
type FlowType string

const (
	// FlowImplicit returns tokens directly in the redirect URL fragment.
	// Example: https://app.example.com/#access_token=...&refresh_token=...&expires_in=3600&token_type=bearer
	// The client parses the fragment and then clears it.
	FlowImplicit FlowType = "implicit"

	// FlowPKCE returns an authorization code in the redirect query string.
	// Example: https://app.example.com/callback?code=ABC123
	// The client exchanges the code together with the stored code verifier
	// at /token?grant_type=pkce.
	FlowPKCE FlowType = "pkce"
)

// ParseFlowType maps a configured flow name to a FlowType, defaulting to implicit.
func ParseFlowType(s string) FlowType {
	if FlowType(s) == FlowPKCE {
		return FlowPKCE
	}
	return FlowImplicit
}

// CodeMethodType represents the PKCE (Proof Key for Code Exchange) challenge method.
// The backend expects the lower case names.
type CodeMethodType string

const (
	// CodeMethodTypeS256 indicates SHA-256 hashing is used for the code challenge.
	// Client sends: code_challenge = BASE64URL(SHA256(code_verifier))
	CodeMethodTypeS256 CodeMethodType = "s256"

	// CodeMethodTypePlain means no hashing, the code verifier is sent as the challenge.
	// Only used when no hash function is available to produce a challenge.
	CodeMethodTypePlain CodeMethodType = "plain"
)

// GrantType is the grant_type query parameter sent to the /token endpoint.
type GrantType string

const (
	// PasswordGrant signs in with email or phone plus password.
	PasswordGrant GrantType = "password"

	// RefreshTokenGrant exchanges a refresh token for a new session.
	// Refresh tokens are single use: the backend rotates them on every call.
	RefreshTokenGrant GrantType = "refresh_token"

	// PKCEGrant exchanges an authorization code and its code verifier for a session.
	PKCEGrant GrantType = "pkce"

	// IDTokenGrant signs in with an OIDC ID token issued by a third-party provider.
	IDTokenGrant GrantType = "id_token"
)

// RedirectType is the "type" parameter of an implicit grant redirect.
type RedirectType string

const (
	// RedirectRecovery marks a password recovery link. The client emits
	// PASSWORD_RECOVERY instead of SIGNED_IN for it.
	RedirectRecovery RedirectType = "recovery"
	RedirectSignup   RedirectType = "signup"
	RedirectInvite   RedirectType = "invite"
	RedirectMagic    RedirectType = "magiclink"
)

// OTPType names the kind of one time password being verified.
type OTPType string

const (
	OTPSignup      OTPType = "signup"
	OTPInvite      OTPType = "invite"
	OTPMagicLink   OTPType = "magiclink"
	OTPRecovery    OTPType = "recovery"
	OTPEmailChange OTPType = "email_change"
	OTPEmail       OTPType = "email"
	OTPSMS         OTPType = "sms"
	OTPPhoneChange OTPType = "phone_change"
)

// SignOutScope selects which sessions a sign out revokes on the backend.
type SignOutScope string

const (
	SignOutGlobal SignOutScope = "global" // Every session of the user
	SignOutLocal  SignOutScope = "local"  // Only the current session
	SignOutOthers SignOutScope = "others" // Every session except the current one, local state is kept
)
