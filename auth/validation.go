package auth

import (
	"strings"

	"github.com/jrsteele09/go-auth-client/autherrors"
	"github.com/jrsteele09/go-auth-client/oauth2"
	"github.com/pkg/errors"
)

const (
	credentialsWithPasswordMsg = "You must provide either an email or phone number and a password"
	credentialsMsg             = "You must provide either an email or phone number."
	credentialsWithTypeMsg     = "You must provide either an email or phone number and a type"
	ssoParamsMsg               = "You must provide either a providerId or a domain"
	emailRequiredMsg           = "You must provide an email"
	idTokenRequiredMsg         = "You must provide a provider and an id token"
	factorRequiredMsg          = "You must provide a factor id"
)

// Validator checks caller input before anything is sent to the backend.
type Validator struct{}

// NewValidator creates a new Validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateCredentials resolves the credentials variant. A nil value or a
// variant with an empty identifier fails with an InvalidCredentialsError
// carrying message.
func (v *Validator) ValidateCredentials(creds Credentials, message string) (Credentials, error) {
	creds = normalize(creds)
	if creds == nil || strings.TrimSpace(creds.identifier()) == "" {
		return nil, autherrors.NewInvalidCredentialsError(message)
	}
	return creds, nil
}

// ValidateEmail requires a non-blank email address.
func (v *Validator) ValidateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return autherrors.NewInvalidCredentialsError(emailRequiredMsg)
	}
	return nil
}

// ValidateSSOParams requires exactly one of provider id and domain.
func (v *Validator) ValidateSSOParams(params SSOParams) error {
	hasProvider := strings.TrimSpace(params.ProviderID) != ""
	hasDomain := strings.TrimSpace(params.Domain) != ""
	if hasProvider == hasDomain {
		return autherrors.NewInvalidCredentialsError(ssoParamsMsg)
	}
	return nil
}

// ValidateIDToken requires the provider and the token itself.
func (v *Validator) ValidateIDToken(creds IDTokenCredentials) error {
	if strings.TrimSpace(creds.Provider) == "" || strings.TrimSpace(creds.Token) == "" {
		return autherrors.NewInvalidCredentialsError(idTokenRequiredMsg)
	}
	return nil
}

// ValidateOTPType requires a type for resend and verify requests.
func (v *Validator) ValidateOTPType(t oauth2.OTPType, message string) error {
	if t == "" {
		return autherrors.NewInvalidCredentialsError(message)
	}
	return nil
}

// ValidateFactorID requires a factor id for the MFA endpoints.
func (v *Validator) ValidateFactorID(id string) error {
	if strings.TrimSpace(id) == "" {
		return autherrors.NewInvalidCredentialsError(factorRequiredMsg)
	}
	return nil
}

// ValidateAccessToken validates access token format and presence
func (v *Validator) ValidateAccessToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return autherrors.NewSessionMissingError()
	}

	// Basic format check - should be a JWT (3 parts separated by dots)
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return ErrMalformedJWT
	}

	for i, part := range parts {
		if len(part) == 0 {
			return errors.Wrapf(ErrMalformedJWT, "part %d is empty", i+1)
		}
	}

	return nil
}

// ValidateScopes validates a space separated scope list
func (v *Validator) ValidateScopes(scopes string) error {
	scopes = strings.TrimSpace(scopes)
	if scopes == "" {
		return nil
	}

	if strings.ContainsAny(scopes, "\n\r\t") {
		return ErrInvalidScope
	}

	for _, s := range strings.Split(scopes, " ") {
		if s == "" {
			return errors.Wrap(ErrInvalidScope, "scopes must be separated by a single space")
		}
	}

	return nil
}
