package auth

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-auth-client/api"
	"github.com/jrsteele09/go-auth-client/events"
	"github.com/jrsteele09/go-auth-client/token"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/pkg/errors"
)

const qrCodePrefix = "data:image/svg+xml;utf-8,"

// MFA groups the multi-factor authentication operations of a Client.
type MFA struct {
	client *Client
}

type EnrollParams struct {
	FactorType   users.FactorType // Only totp is supported
	Issuer       string           // Shown by authenticator apps
	FriendlyName string
}

type TOTPEnrollment struct {
	QRCode string `json:"qr_code"` // SVG data URI to show to the user
	Secret string `json:"secret"`  // For manual entry
	URI    string `json:"uri"`     // otpauth:// URI
}

type EnrollResponse struct {
	ID   string           `json:"id"`
	Type users.FactorType `json:"type"`
	TOTP TOTPEnrollment   `json:"totp"`
}

type ChallengeResponse struct {
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"` // Unix seconds the challenge can be verified until
}

type VerifyParams struct {
	FactorID    string
	ChallengeID string
	Code        string // Code from the authenticator app
}

type UnenrollResponse struct {
	ID string `json:"id"`
}

type FactorList struct {
	All  []users.Factor
	TOTP []users.Factor // Verified totp factors only
}

// AssuranceLevel describes where the session stands and where it can go.
type AssuranceLevel struct {
	CurrentLevel                 token.AAL
	NextLevel                    token.AAL // aal2 once a verified factor exists
	CurrentAuthenticationMethods []token.AMREntry
}

type enrollRequest struct {
	FriendlyName string           `json:"friendly_name,omitempty"`
	FactorType   users.FactorType `json:"factor_type"`
	Issuer       string           `json:"issuer,omitempty"`
}

type verifyFactorRequest struct {
	Code        string `json:"code"`
	ChallengeID string `json:"challenge_id"`
}

func factorPath(id string, suffix string) string {
	return "/factors/" + url.PathEscape(id) + suffix
}

// Enroll starts enrolling a new factor. The factor stays unverified until a
// successful Verify.
func (m *MFA) Enroll(ctx context.Context, params EnrollParams) (*EnrollResponse, error) {
	jwt, err := m.client.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	if params.FactorType == "" {
		params.FactorType = users.FactorTypeTOTP
	}

	var out EnrollResponse
	err = m.client.api.JSON(ctx, http.MethodPost, "/factors", api.RequestOptions{
		JWT: jwt,
		Body: enrollRequest{
			FriendlyName: params.FriendlyName,
			FactorType:   params.FactorType,
			Issuer:       params.Issuer,
		},
	}, &out)
	if err != nil {
		return nil, wrap(err, "[MFA.Enroll]")
	}
	if out.TOTP.QRCode != "" {
		out.TOTP.QRCode = qrCodePrefix + out.TOTP.QRCode
	}
	return &out, nil
}

// Challenge prepares a factor for verification.
func (m *MFA) Challenge(ctx context.Context, factorID string) (*ChallengeResponse, error) {
	if err := m.client.validator.ValidateFactorID(factorID); err != nil {
		return nil, err
	}
	jwt, err := m.client.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var out ChallengeResponse
	if err := m.client.api.JSON(ctx, http.MethodPost, factorPath(factorID, "/challenge"), api.RequestOptions{JWT: jwt}, &out); err != nil {
		return nil, wrap(err, "[MFA.Challenge]")
	}
	return &out, nil
}

// Verify proves a challenge. The backend answers with an aal2 session,
// which replaces the current one and is announced as MFA_CHALLENGE_VERIFIED.
func (m *MFA) Verify(ctx context.Context, params VerifyParams) (AuthResponse, error) {
	if err := m.client.validator.ValidateFactorID(params.FactorID); err != nil {
		return AuthResponse{}, err
	}
	jwt, err := m.client.accessToken(ctx)
	if err != nil {
		return AuthResponse{}, err
	}

	res, err := m.client.api.Session(ctx, http.MethodPost, factorPath(params.FactorID, "/verify"), api.RequestOptions{
		JWT:  jwt,
		Body: verifyFactorRequest{Code: params.Code, ChallengeID: params.ChallengeID},
	})
	if err != nil {
		return AuthResponse{}, wrap(err, "[MFA.Verify]")
	}
	if res.Session == nil {
		return AuthResponse{User: res.User}, nil
	}
	if err := m.client.saveAndNotify(ctx, events.MFAChallengeVerified, res.Session); err != nil {
		return AuthResponse{}, errors.Wrap(err, "[MFA.Verify]")
	}
	return AuthResponse{User: res.User, Session: res.Session}, nil
}

// ChallengeAndVerify runs Challenge and Verify back to back, for factors
// where the code is already at hand.
func (m *MFA) ChallengeAndVerify(ctx context.Context, factorID, code string) (AuthResponse, error) {
	challenge, err := m.Challenge(ctx, factorID)
	if err != nil {
		return AuthResponse{}, err
	}
	return m.Verify(ctx, VerifyParams{FactorID: factorID, ChallengeID: challenge.ID, Code: code})
}

// Unenroll removes a factor. Removing a verified factor requires an aal2 session.
func (m *MFA) Unenroll(ctx context.Context, factorID string) (*UnenrollResponse, error) {
	if err := m.client.validator.ValidateFactorID(factorID); err != nil {
		return nil, err
	}
	jwt, err := m.client.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var out UnenrollResponse
	if err := m.client.api.JSON(ctx, http.MethodDelete, factorPath(factorID, ""), api.RequestOptions{JWT: jwt}, &out); err != nil {
		return nil, wrap(err, "[MFA.Unenroll]")
	}
	return &out, nil
}

// ListFactors fetches the user and returns its factors.
func (m *MFA) ListFactors(ctx context.Context) (*FactorList, error) {
	user, err := m.client.GetUser(ctx, "")
	if err != nil {
		return nil, err
	}
	all := []users.Factor{}
	if user != nil && user.Factors != nil {
		all = user.Factors
	}
	return &FactorList{All: all, TOTP: user.VerifiedTOTPFactors()}, nil
}

// GetAuthenticatorAssuranceLevel reads the current level and methods from
// the access token. No request is made. Without a session every field is empty.
func (m *MFA) GetAuthenticatorAssuranceLevel(ctx context.Context) (*AssuranceLevel, error) {
	session, err := m.client.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return &AssuranceLevel{CurrentAuthenticationMethods: []token.AMREntry{}}, nil
	}

	claims, err := token.ParseClaims(session.AccessToken)
	if err != nil {
		return nil, errors.Wrap(err, "[MFA.GetAuthenticatorAssuranceLevel]")
	}
	level := &AssuranceLevel{
		CurrentLevel:                 claims.AAL,
		NextLevel:                    claims.AAL,
		CurrentAuthenticationMethods: claims.AMR,
	}
	if len(session.User.VerifiedFactors()) > 0 {
		level.NextLevel = token.AAL2
	}
	if level.CurrentAuthenticationMethods == nil {
		level.CurrentAuthenticationMethods = []token.AMREntry{}
	}
	return level, nil
}
