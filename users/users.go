package users

import (
	"time"
)

// FactorType is the kind of MFA factor.
type FactorType string

const (
	FactorTypeTOTP FactorType = "totp"
)

// FactorStatus tracks a factor through enrollment.
type FactorStatus string

const (
	FactorStatusUnverified FactorStatus = "unverified" // Enrolled, not yet proven by a verify call
	FactorStatusVerified   FactorStatus = "verified"   // Usable to reach aal2
)

// Factor is an MFA factor attached to a user.
type Factor struct {
	ID           string       `json:"id"`
	FriendlyName string       `json:"friendly_name,omitempty"`
	FactorType   FactorType   `json:"factor_type"`
	Status       FactorStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at,omitempty"`
	UpdatedAt    time.Time    `json:"updated_at,omitempty"`
}

// Identity links the user to a sign-in provider.
type Identity struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	Provider     string         `json:"provider"`
	IdentityData map[string]any `json:"identity_data,omitempty"`
	CreatedAt    time.Time      `json:"created_at,omitempty"`
	LastSignInAt time.Time      `json:"last_sign_in_at,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at,omitempty"`
}

// User is the profile returned by the auth backend. It is owned by a session
// and replaced wholesale whenever the backend returns a newer copy.
type User struct {
	ID               string         `json:"id"`                           // Unique identifier for the user
	Aud              string         `json:"aud,omitempty"`                // Audience the user belongs to
	Role             string         `json:"role,omitempty"`               // Database role, e.g. "authenticated"
	Email            string         `json:"email,omitempty"`              // Email address, if any
	Phone            string         `json:"phone,omitempty"`              // Phone number, if any
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"` // When the email was confirmed
	PhoneConfirmedAt *time.Time     `json:"phone_confirmed_at,omitempty"` // When the phone was confirmed
	LastSignInAt     *time.Time     `json:"last_sign_in_at,omitempty"`    // Last successful sign in
	AppMetadata      map[string]any `json:"app_metadata,omitempty"`       // Provider data, not user editable
	UserMetadata     map[string]any `json:"user_metadata,omitempty"`      // Free-form data set via sign up or update
	Identities       []Identity     `json:"identities,omitempty"`         // Linked provider identities
	Factors          []Factor       `json:"factors,omitempty"`            // Enrolled MFA factors
	CreatedAt        time.Time      `json:"created_at,omitempty"`
	UpdatedAt        time.Time      `json:"updated_at,omitempty"`
}

// VerifiedFactors returns the factors that completed verification.
func (u *User) VerifiedFactors() []Factor {
	if u == nil {
		return nil
	}
	verified := make([]Factor, 0, len(u.Factors))
	for _, f := range u.Factors {
		if f.Status == FactorStatusVerified {
			verified = append(verified, f)
		}
	}
	return verified
}

// VerifiedTOTPFactors returns the verified factors of type totp.
func (u *User) VerifiedTOTPFactors() []Factor {
	totp := make([]Factor, 0)
	for _, f := range u.VerifiedFactors() {
		if f.FactorType == FactorTypeTOTP {
			totp = append(totp, f)
		}
	}
	return totp
}

// Attributes are the fields that can be changed through an update-user call.
// Empty fields are not sent.
type Attributes struct {
	Email    string         `json:"email,omitempty"`
	Phone    string         `json:"phone,omitempty"`
	Password string         `json:"password,omitempty"`
	Nonce    string         `json:"nonce,omitempty"` // Reauthentication nonce, required for password changes when secure password change is on
	Data     map[string]any `json:"data,omitempty"`  // Merged into user_metadata
}
