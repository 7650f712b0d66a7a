package oauth2

// TokenResponse is the body returned by /token, /signup, /verify and the other
// endpoints that may create a session. It follows RFC 6749 with the backend's
// extensions (expires_at, provider tokens, an embedded user).
type TokenResponse struct {
	// AccessToken is the JWT used to call the backend and downstream APIs.
	// Usage: Include in Authorization header: "Bearer <access_token>"
	AccessToken string `json:"access_token,omitempty"`

	// RefreshToken is the single use token exchanged for the next session.
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is always "bearer".
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the access token lifetime in seconds.
	// Example: 3600
	ExpiresIn int64 `json:"expires_in,omitempty"`

	// ExpiresAt is the absolute expiry in unix seconds. When absent the client
	// computes it as now + ExpiresIn.
	ExpiresAt int64 `json:"expires_at,omitempty"`

	// ProviderToken and ProviderRefreshToken are the third-party OAuth
	// provider's tokens, only present after an OAuth sign in.
	ProviderToken        string `json:"provider_token,omitempty"`
	ProviderRefreshToken string `json:"provider_refresh_token,omitempty"`
}

// HasSession reports whether the response carries a complete session. A sign
// up that still needs email confirmation returns only a user.
func (t TokenResponse) HasSession() bool {
	return t.AccessToken != "" && t.RefreshToken != "" && t.ExpiresIn != 0
}
