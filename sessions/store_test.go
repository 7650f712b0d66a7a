package sessions_test

import (
	"context"
	"testing"
	"time"

	autherrs "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/jrsteele09/go-auth-client/storage/encrypted"
	"github.com/jrsteele09/go-auth-client/storage/memory"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/stretchr/testify/require"
)

const key = "supabase.auth.token"

func testSession(expiresAt int64) *sessions.Session {
	return &sessions.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresIn:    3600,
		ExpiresAt:    expiresAt,
		TokenType:    "bearer",
		User:         &users.User{ID: "user-1", Email: "a@example.com"},
	}
}

func TestNewStore_Validation(t *testing.T) {
	_, err := sessions.NewStore(nil, key, true)
	require.ErrorIs(t, err, autherrs.ErrStorageRequired)

	_, err = sessions.NewStore(memory.New(), "", true)
	require.ErrorIs(t, err, autherrs.ErrKeyRequired)
}

func TestStore_PersistRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	s, err := sessions.NewStore(st, key, true)
	require.NoError(t, err)

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, loaded)

	require.NoError(t, s.Save(ctx, testSession(1700000000)))
	_, ok, _ := st.Get(ctx, key)
	require.True(t, ok)

	loaded, err = s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, testSession(1700000000), loaded)

	require.NoError(t, s.Remove(ctx))
	loaded, err = s.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestStore_SaveWithoutExpiresAtIsSkipped(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	s, err := sessions.NewStore(st, key, true)
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, testSession(0)))
	require.Empty(t, st.Keys())
}

func TestStore_InvalidStoredValueIsPurged(t *testing.T) {
	ctx := context.Background()
	cases := map[string]string{
		"not json":          "nope",
		"missing refresh":   `{"access_token":"a","expires_at":1}`,
		"null expires_at":   `{"access_token":"a","refresh_token":"r","expires_at":null}`,
		"wrong field types": `{"access_token":1,"refresh_token":"r","expires_at":1}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			st := memory.New()
			require.NoError(t, st.Set(ctx, key, raw))
			s, err := sessions.NewStore(st, key, true)
			require.NoError(t, err)

			loaded, err := s.Load(ctx)
			require.NoError(t, err)
			require.Nil(t, loaded)
			require.Empty(t, st.Keys())
		})
	}
}

func TestStore_CorruptEncryptedValueIsPurged(t *testing.T) {
	ctx := context.Background()
	inner := memory.New()
	require.NoError(t, inner.Set(ctx, key, "garbage"))
	enc, err := encrypted.New(inner, []byte("secret"))
	require.NoError(t, err)
	s, err := sessions.NewStore(enc, key, true)
	require.NoError(t, err)

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, loaded)
	require.Empty(t, inner.Keys())
}

func TestStore_InMemoryWhenNotPersisting(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	s, err := sessions.NewStore(st, key, false)
	require.NoError(t, err)

	original := testSession(0)
	require.NoError(t, s.Save(ctx, original))
	require.Empty(t, st.Keys(), "nothing reaches storage")

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, original, loaded)
	loaded.AccessToken = "mutated"

	again, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "access", again.AccessToken, "callers get a copy")

	require.NoError(t, s.Remove(ctx))
	loaded, err = s.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestStore_CodeVerifierAlwaysUsesStorage(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	s, err := sessions.NewStore(st, key, false)
	require.NoError(t, err)

	require.NoError(t, s.SaveCodeVerifier(ctx, "verifier"))
	v, ok, _ := st.Get(ctx, key+sessions.CodeVerifierSuffix)
	require.True(t, ok)
	require.Equal(t, "verifier", v)

	got, err := s.CodeVerifier(ctx)
	require.NoError(t, err)
	require.Equal(t, "verifier", got)

	require.NoError(t, s.RemoveCodeVerifier(ctx))
	got, err = s.CodeVerifier(ctx)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSession_Expiry(t *testing.T) {
	now := time.Unix(1700000000, 0)

	require.False(t, testSession(0).HasExpired(now), "no expires_at never expires")
	require.True(t, testSession(now.Unix()).HasExpired(now))
	require.False(t, testSession(now.Unix()+1).HasExpired(now))

	require.True(t, testSession(now.Unix()+5).ExpiresWithin(now, 10*time.Second))
	require.False(t, testSession(now.Unix()+60).ExpiresWithin(now, 10*time.Second))
	require.Equal(t, 60*time.Second, testSession(now.Unix()+60).TimeToExpiry(now))

	require.True(t, testSession(1).IsValid())
	require.False(t, testSession(0).IsValid())
	var nilSession *sessions.Session
	require.False(t, nilSession.IsValid())
}
