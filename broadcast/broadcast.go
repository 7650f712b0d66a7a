// Package broadcast carries auth state changes between clients that share a
// storage key, so a sign out in one process signs the others out too.
package broadcast

import (
	"context"

	"github.com/jrsteele09/go-auth-client/sessions"
)

// Message is one auth event. Session is nil for SIGNED_OUT.
type Message struct {
	Event   string            `json:"event"`
	Session *sessions.Session `json:"session"`
}

// Channel is a named, best-effort publish/subscribe channel. A channel never
// delivers a message back to the endpoint that published it.
type Channel interface {
	Publish(ctx context.Context, msg Message) error
	Subscribe(fn func(Message)) (cancel func())
}
