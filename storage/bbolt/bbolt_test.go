package bbolt_test

import (
	"context"
	"path/filepath"
	"testing"

	boltstore "github.com/jrsteele09/go-auth-client/storage/bbolt"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *boltstore.Store {
	t.Helper()
	s, err := boltstore.Open(filepath.Join(t.TempDir(), "auth.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SetGetRemove(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, ok, err := s.Get(ctx, "supabase.auth.token")
	require.NoError(t, err)
	require.False(t, ok, "missing bucket reads as missing key")

	require.NoError(t, s.Set(ctx, "supabase.auth.token", `{"access_token":"a"}`))
	v, ok, err := s.Get(ctx, "supabase.auth.token")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `{"access_token":"a"}`, v)

	require.NoError(t, s.Remove(ctx, "supabase.auth.token"))
	_, ok, err = s.Get(ctx, "supabase.auth.token")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "auth.db")

	s, err := boltstore.Open(path, nil, boltstore.WithBucket("sessions"))
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "k", "v"))
	require.NoError(t, s.Close())

	s, err = boltstore.Open(path, nil, boltstore.WithBucket("sessions"))
	require.NoError(t, err)
	defer s.Close()

	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", v)
}

func TestStore_CancelledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, s.Set(ctx, "k", "v"), context.Canceled)
}
