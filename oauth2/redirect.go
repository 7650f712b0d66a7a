package oauth2

import (
	"net/url"
	"strconv"

	"github.com/jrsteele09/go-auth-client/autherrors"
)

// Param looks a redirect parameter up in the query string first and then in
// the fragment, which is where the implicit flow puts its tokens.
func Param(u *url.URL, name string) string {
	if u == nil {
		return ""
	}
	if v := u.Query().Get(name); v != "" {
		return v
	}
	fragment, err := url.ParseQuery(u.Fragment)
	if err != nil {
		return ""
	}
	return fragment.Get(name)
}

// IsImplicitGrantURL reports whether u looks like an implicit grant callback,
// successful or not.
func IsImplicitGrantURL(u *url.URL) bool {
	return Param(u, "access_token") != "" || Param(u, "error_description") != ""
}

// AuthCode returns the PKCE authorization code carried by u, if any.
func AuthCode(u *url.URL) string {
	return Param(u, "code")
}

// ImplicitGrant is the token set parsed out of an implicit grant redirect.
type ImplicitGrant struct {
	TokenResponse
	RedirectType RedirectType
}

// ParseImplicitGrant validates and extracts the tokens of an implicit grant
// redirect. An error_description in the URL is reported as an
// ImplicitGrantRedirectError carrying the error and error_code.
func ParseImplicitGrant(u *url.URL) (*ImplicitGrant, error) {
	if description := Param(u, "error_description"); description != "" {
		code := Param(u, "error_code")
		if code == "" {
			return nil, autherrors.NewImplicitGrantRedirectError("No error_code detected.", nil)
		}
		errName := Param(u, "error")
		if errName == "" {
			return nil, autherrors.NewImplicitGrantRedirectError("No error detected.", nil)
		}
		return nil, autherrors.NewImplicitGrantRedirectError(description, &autherrors.RedirectDetails{Error: errName, Code: code})
	}

	accessToken := Param(u, "access_token")
	if accessToken == "" {
		return nil, autherrors.NewImplicitGrantRedirectError("No access_token detected.", nil)
	}
	expiresIn := Param(u, "expires_in")
	if expiresIn == "" {
		return nil, autherrors.NewImplicitGrantRedirectError("No expires_in detected.", nil)
	}
	refreshToken := Param(u, "refresh_token")
	if refreshToken == "" {
		return nil, autherrors.NewImplicitGrantRedirectError("No refresh_token detected.", nil)
	}
	tokenType := Param(u, "token_type")
	if tokenType == "" {
		return nil, autherrors.NewImplicitGrantRedirectError("No token_type detected.", nil)
	}

	seconds, err := strconv.ParseInt(expiresIn, 10, 64)
	if err != nil || seconds <= 0 {
		return nil, autherrors.NewImplicitGrantRedirectError("Invalid expires_in detected.", nil)
	}

	return &ImplicitGrant{
		TokenResponse: TokenResponse{
			AccessToken:          accessToken,
			RefreshToken:         refreshToken,
			TokenType:            tokenType,
			ExpiresIn:            seconds,
			ProviderToken:        Param(u, "provider_token"),
			ProviderRefreshToken: Param(u, "provider_refresh_token"),
		},
		RedirectType: RedirectType(Param(u, "type")),
	}, nil
}

// WithoutFragment returns a copy of u with the fragment cleared.
func WithoutFragment(u *url.URL) *url.URL {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	return &c
}

// WithoutCode returns a copy of u without the code query parameter. Other
// query parameters are preserved.
func WithoutCode(u *url.URL) *url.URL {
	c := *u
	q := c.Query()
	q.Del("code")
	c.RawQuery = q.Encode()
	return &c
}
