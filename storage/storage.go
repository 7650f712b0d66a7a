// Package storage defines the key/value store the auth client persists its
// session and PKCE code verifier in.
package storage

import "context"

// Storage is an asynchronous string key/value store. Get reports ok=false for
// a missing key; a missing key is not an error.
type Storage interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}
