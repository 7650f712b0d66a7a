package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-client/auth"
	"github.com/jrsteele09/go-auth-client/events"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/jrsteele09/go-auth-client/token"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/stretchr/testify/require"
)

const factorID = "0c8a9e4e-3b8f-4a59-9f7e-1f3c2d5b6a70"

func (f *testFixture) signedInWithFactors(t *testing.T, factors []map[string]any) string {
	t.Helper()
	access := accessTokenFor(t, testEpoch.Add(time.Hour))
	f.seedSession(t, access, "refresh-1", testEpoch.Add(time.Hour))
	user := userBody()
	user["factors"] = factors
	f.backend.respond("GET /user", http.StatusOK, user)
	return access
}

func TestMFA_EnrollPrefixesQRCode(t *testing.T) {
	f := setupTestFixture(t, nil)
	access := f.signedInWithFactors(t, nil)
	f.backend.respond("POST /factors", http.StatusOK, map[string]any{
		"id":   factorID,
		"type": "totp",
		"totp": map[string]any{
			"qr_code": "<svg></svg>",
			"secret":  "JBSWY3DPEHPK3PXP",
			"uri":     "otpauth://totp/Example:john.doe@example.com?secret=JBSWY3DPEHPK3PXP",
		},
	})

	res, err := f.client.MFA().Enroll(context.Background(), auth.EnrollParams{Issuer: "Example", FriendlyName: "phone"})
	require.NoError(t, err)
	require.Equal(t, factorID, res.ID)
	require.Equal(t, "data:image/svg+xml;utf-8,<svg></svg>", res.TOTP.QRCode)
	require.Equal(t, "JBSWY3DPEHPK3PXP", res.TOTP.Secret)

	req := f.backend.lastRequest(t, "POST /factors")
	require.Equal(t, "totp", req.Body["factor_type"])
	require.Equal(t, "Example", req.Body["issuer"])
	require.Equal(t, "phone", req.Body["friendly_name"])
	require.Equal(t, "Bearer "+access, req.Header.Get("Authorization"))
}

func TestMFA_ChallengeAndVerify(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.signedInWithFactors(t, nil)
	f.backend.respond("POST /factors/"+factorID+"/challenge", http.StatusOK, map[string]any{
		"id":         "challenge-1",
		"expires_at": testEpoch.Add(5 * time.Minute).Unix(),
	})
	aal2 := makeJWT(t, jwtlib.MapClaims{"sub": testUserID, "exp": testEpoch.Add(time.Hour).Unix(), "aal": "aal2"})
	f.backend.respond("POST /factors/"+factorID+"/verify", http.StatusOK, sessionBody(aal2, "refresh-2"))
	recorder := f.subscribe(t)

	res, err := f.client.MFA().ChallengeAndVerify(context.Background(), factorID, "123456")
	require.NoError(t, err)
	require.Equal(t, aal2, res.Session.AccessToken)
	require.Equal(t, aal2, f.storedSession(t).AccessToken)
	recorder.waitFor(t, events.MFAChallengeVerified)

	req := f.backend.lastRequest(t, "POST /factors/"+factorID+"/verify")
	require.Equal(t, "challenge-1", req.Body["challenge_id"])
	require.Equal(t, "123456", req.Body["code"])
}

func TestMFA_Unenroll(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.signedInWithFactors(t, nil)
	f.backend.respond("DELETE /factors/"+factorID, http.StatusOK, map[string]any{"id": factorID})

	res, err := f.client.MFA().Unenroll(context.Background(), factorID)
	require.NoError(t, err)
	require.Equal(t, factorID, res.ID)

	_, err = f.client.MFA().Unenroll(context.Background(), "")
	require.True(t, auth.IsAuthError(err))
}

func TestMFA_ListFactors(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.signedInWithFactors(t, []map[string]any{
		{"id": factorID, "factor_type": "totp", "status": "verified"},
		{"id": "pending", "factor_type": "totp", "status": "unverified"},
	})

	list, err := f.client.MFA().ListFactors(context.Background())
	require.NoError(t, err)
	require.Len(t, list.All, 2)
	require.Len(t, list.TOTP, 1)
	require.Equal(t, factorID, list.TOTP[0].ID)
	require.Equal(t, users.FactorStatusVerified, list.TOTP[0].Status)
}

func TestMFA_GetAuthenticatorAssuranceLevel(t *testing.T) {
	t.Run("signed out", func(t *testing.T) {
		f := setupTestFixture(t, nil)

		level, err := f.client.MFA().GetAuthenticatorAssuranceLevel(context.Background())
		require.NoError(t, err)
		require.Empty(t, level.CurrentLevel)
		require.Empty(t, level.NextLevel)
		require.Empty(t, level.CurrentAuthenticationMethods)
	})

	t.Run("verified factor raises the next level", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		access := accessTokenFor(t, testEpoch.Add(time.Hour))
		writeSessionWithUser(t, f, access, &users.User{
			ID:      testUserID,
			Factors: []users.Factor{{ID: factorID, FactorType: users.FactorTypeTOTP, Status: users.FactorStatusVerified}},
		})

		level, err := f.client.MFA().GetAuthenticatorAssuranceLevel(context.Background())
		require.NoError(t, err)
		require.Equal(t, token.AAL1, level.CurrentLevel)
		require.Equal(t, token.AAL2, level.NextLevel)
		require.Equal(t, []token.AMREntry{{Method: "password", Timestamp: testEpoch.Unix()}}, level.CurrentAuthenticationMethods)
		require.Zero(t, f.backend.totalCalls())
	})

	t.Run("no factors keeps the level", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		f.seedSession(t, accessTokenFor(t, testEpoch.Add(time.Hour)), "refresh-1", testEpoch.Add(time.Hour))

		level, err := f.client.MFA().GetAuthenticatorAssuranceLevel(context.Background())
		require.NoError(t, err)
		require.Equal(t, token.AAL1, level.CurrentLevel)
		require.Equal(t, token.AAL1, level.NextLevel)
	})
}

// writeSessionWithUser stores an unexpired session owned by user.
func writeSessionWithUser(t *testing.T, f *testFixture, accessToken string, user *users.User) {
	t.Helper()
	data, err := json.Marshal(&sessions.Session{
		AccessToken:  accessToken,
		RefreshToken: "refresh-1",
		ExpiresIn:    3600,
		ExpiresAt:    testEpoch.Add(time.Hour).Unix(),
		TokenType:    "bearer",
		User:         user,
	})
	require.NoError(t, err)
	require.NoError(t, f.storage.Set(context.Background(), testStorageKey, string(data)))
}
