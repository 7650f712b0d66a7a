// Package events fans auth state changes out to subscribers.
package events

import (
	"context"

	"github.com/jrsteele09/go-auth-client/sessions"
)

// Event names an auth state change.
type Event string

const (
	InitialSession       Event = "INITIAL_SESSION"        // First event every subscriber receives
	SignedIn             Event = "SIGNED_IN"              // A session was created or recovered
	SignedOut            Event = "SIGNED_OUT"             // The session was removed
	TokenRefreshed       Event = "TOKEN_REFRESHED"        // A refresh produced a new session
	UserUpdated          Event = "USER_UPDATED"           // The session's user was replaced
	PasswordRecovery     Event = "PASSWORD_RECOVERY"      // A recovery link was followed
	MFAChallengeVerified Event = "MFA_CHALLENGE_VERIFIED" // A factor was verified, the session is now aal2
)

// Callback receives an event and the session at the time of the event (nil
// when signed out). A returned error is logged and surfaced to whoever
// triggered the notification; it never stops other subscribers.
type Callback func(ctx context.Context, event Event, session *sessions.Session) error

// Loader returns the current session for the INITIAL_SESSION delivery.
type Loader func(ctx context.Context) (*sessions.Session, error)
