package oauth2_test

import (
	"net/url"
	"testing"

	"github.com/jrsteele09/go-auth-client/autherrors"
	"github.com/jrsteele09/go-auth-client/oauth2"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestParam_QueryBeforeFragment(t *testing.T) {
	u := mustParse(t, "https://app.example.com/cb?type=signup#type=recovery&access_token=abc")

	require.Equal(t, "signup", oauth2.Param(u, "type"))
	require.Equal(t, "abc", oauth2.Param(u, "access_token"))
	require.Empty(t, oauth2.Param(u, "missing"))
	require.Empty(t, oauth2.Param(nil, "type"))
}

func TestIsImplicitGrantURL(t *testing.T) {
	require.True(t, oauth2.IsImplicitGrantURL(mustParse(t, "https://app.example.com/#access_token=x")))
	require.True(t, oauth2.IsImplicitGrantURL(mustParse(t, "https://app.example.com/#error_description=denied")))
	require.False(t, oauth2.IsImplicitGrantURL(mustParse(t, "https://app.example.com/?code=abc")))
}

func TestParseImplicitGrant(t *testing.T) {
	u := mustParse(t, "https://app.example.com/#access_token=at&refresh_token=rt&expires_in=3600&token_type=bearer&type=recovery&provider_token=pt")

	grant, err := oauth2.ParseImplicitGrant(u)
	require.NoError(t, err)
	require.Equal(t, "at", grant.AccessToken)
	require.Equal(t, "rt", grant.RefreshToken)
	require.Equal(t, int64(3600), grant.ExpiresIn)
	require.Equal(t, "bearer", grant.TokenType)
	require.Equal(t, "pt", grant.ProviderToken)
	require.Equal(t, oauth2.RedirectRecovery, grant.RedirectType)
	require.True(t, grant.HasSession())
}

func TestParseImplicitGrant_MissingParams(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		message string
	}{
		{"no access token", "https://a/#refresh_token=rt&expires_in=10&token_type=bearer", "No access_token detected."},
		{"no expires in", "https://a/#access_token=at&refresh_token=rt&token_type=bearer", "No expires_in detected."},
		{"no refresh token", "https://a/#access_token=at&expires_in=10&token_type=bearer", "No refresh_token detected."},
		{"no token type", "https://a/#access_token=at&refresh_token=rt&expires_in=10", "No token_type detected."},
		{"no error code", "https://a/#error_description=denied&error=access_denied", "No error_code detected."},
		{"no error", "https://a/#error_description=denied&error_code=401", "No error detected."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := oauth2.ParseImplicitGrant(mustParse(t, tc.raw))
			var redirectErr *autherrors.ImplicitGrantRedirectError
			require.ErrorAs(t, err, &redirectErr)
			require.Equal(t, tc.message, redirectErr.Message)
		})
	}
}

func TestParseImplicitGrant_ErrorDescription(t *testing.T) {
	u := mustParse(t, "https://a/#error_description=Email+link+is+invalid&error=access_denied&error_code=403")

	_, err := oauth2.ParseImplicitGrant(u)
	var redirectErr *autherrors.ImplicitGrantRedirectError
	require.ErrorAs(t, err, &redirectErr)
	require.Equal(t, "Email link is invalid", redirectErr.Message)
	require.Equal(t, &autherrors.RedirectDetails{Error: "access_denied", Code: "403"}, redirectErr.Details)
}

func TestWithoutCode_PreservesOtherParams(t *testing.T) {
	u := mustParse(t, "https://app.example.com/cb?code=abc&next=%2Fhome")

	cleaned := oauth2.WithoutCode(u)
	require.Equal(t, "https://app.example.com/cb?next=%2Fhome", cleaned.String())
	require.Equal(t, "abc", oauth2.AuthCode(u), "original URL is untouched")
}

func TestWithoutFragment(t *testing.T) {
	u := mustParse(t, "https://app.example.com/cb?x=1#access_token=abc")
	require.Equal(t, "https://app.example.com/cb?x=1", oauth2.WithoutFragment(u).String())
}

func TestPKCEParams(t *testing.T) {
	p := oauth2.NewPKCEParams()
	require.NotEmpty(t, p.Verifier)
	require.NotEqual(t, p.Verifier, p.Challenge)
	require.Equal(t, oauth2.CodeMethodTypeS256, p.Method)

	require.Equal(t, oauth2.CodeMethodTypePlain, oauth2.ChallengeMethod("same", "same"))
	require.Equal(t, oauth2.FlowPKCE, oauth2.ParseFlowType("pkce"))
	require.Equal(t, oauth2.FlowImplicit, oauth2.ParseFlowType(""))
}
