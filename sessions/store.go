package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	autherrs "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/storage"
	"github.com/rs/zerolog"
)

// CodeVerifierSuffix is appended to the storage key to form the PKCE verifier key.
const CodeVerifierSuffix = "-code-verifier"

// Store reads and writes the current session. With persistence off the
// session only lives in memory; the PKCE code verifier always goes to storage
// because it has to survive a redirect.
type Store struct {
	storage storage.Storage
	key     string
	persist bool
	logger  zerolog.Logger

	lock     sync.Mutex
	inMemory *Session
}

// StoreOption configures a Store.
type StoreOption func(*Store)

func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a Store that keeps the session under key.
func NewStore(st storage.Storage, key string, persist bool, opts ...StoreOption) (*Store, error) {
	if st == nil {
		return nil, fmt.Errorf("[NewStore] %w", autherrs.ErrStorageRequired)
	}
	if key == "" {
		return nil, fmt.Errorf("[NewStore] %w", autherrs.ErrKeyRequired)
	}
	s := &Store{
		storage: st,
		key:     key,
		persist: persist,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Load returns the current session, or nil when there is none. A stored value
// that is not a valid session is removed.
func (s *Store) Load(ctx context.Context) (*Session, error) {
	if !s.persist {
		s.lock.Lock()
		defer s.lock.Unlock()
		return s.inMemory.Clone(), nil
	}

	raw, ok, err := s.storage.Get(ctx, s.key)
	if autherrs.Is(err, autherrs.ErrCorrupt) {
		s.logger.Warn().Err(err).Str("key", s.key).Msg("discarding unreadable session")
		return nil, s.storage.Remove(ctx, s.key)
	}
	if err != nil {
		return nil, fmt.Errorf("[sessions.Load] %w", err)
	}
	if !ok {
		return nil, nil
	}

	if !IsValidRaw(raw) {
		s.logger.Debug().Str("key", s.key).Msg("removing invalid stored session")
		return nil, s.storage.Remove(ctx, s.key)
	}
	var session Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		s.logger.Debug().Err(err).Str("key", s.key).Msg("removing undecodable stored session")
		return nil, s.storage.Remove(ctx, s.key)
	}
	return &session, nil
}

// Save stores session. When persisting, a session without expires_at is not written.
func (s *Store) Save(ctx context.Context, session *Session) error {
	if !s.persist {
		s.lock.Lock()
		defer s.lock.Unlock()
		s.inMemory = session.Clone()
		return nil
	}
	if session == nil || session.ExpiresAt == 0 {
		return nil
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("[sessions.Save] encode: %w", err)
	}
	if err := s.storage.Set(ctx, s.key, string(data)); err != nil {
		return fmt.Errorf("[sessions.Save] %w", err)
	}
	return nil
}

// Remove deletes the current session.
func (s *Store) Remove(ctx context.Context) error {
	if !s.persist {
		s.lock.Lock()
		defer s.lock.Unlock()
		s.inMemory = nil
		return nil
	}
	if err := s.storage.Remove(ctx, s.key); err != nil {
		return fmt.Errorf("[sessions.Remove] %w", err)
	}
	return nil
}

func (s *Store) verifierKey() string {
	return s.key + CodeVerifierSuffix
}

// SaveCodeVerifier stores the PKCE verifier for the pending redirect.
func (s *Store) SaveCodeVerifier(ctx context.Context, verifier string) error {
	if err := s.storage.Set(ctx, s.verifierKey(), verifier); err != nil {
		return fmt.Errorf("[sessions.SaveCodeVerifier] %w", err)
	}
	return nil
}

// CodeVerifier returns the stored PKCE verifier, or "" when there is none.
func (s *Store) CodeVerifier(ctx context.Context) (string, error) {
	v, ok, err := s.storage.Get(ctx, s.verifierKey())
	if err != nil {
		return "", fmt.Errorf("[sessions.CodeVerifier] %w", err)
	}
	if !ok {
		return "", nil
	}
	return v, nil
}

// RemoveCodeVerifier deletes the stored PKCE verifier.
func (s *Store) RemoveCodeVerifier(ctx context.Context) error {
	if err := s.storage.Remove(ctx, s.verifierKey()); err != nil {
		return fmt.Errorf("[sessions.RemoveCodeVerifier] %w", err)
	}
	return nil
}

// IsValidRaw reports whether raw is a JSON object carrying non-null
// access_token, refresh_token and expires_at.
func IsValidRaw(raw string) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return false
	}
	for _, name := range []string{"access_token", "refresh_token", "expires_at"} {
		v, ok := fields[name]
		if !ok || string(v) == "null" {
			return false
		}
	}
	return true
}
