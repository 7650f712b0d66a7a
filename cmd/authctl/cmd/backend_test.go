package cmd

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-auth-client/internal/config"
	boltstorage "github.com/jrsteele09/go-auth-client/storage/bbolt"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend_Bolt(t *testing.T) {
	ctx := context.Background()
	settings := config.New()
	settings.StoragePath = filepath.Join(t.TempDir(), "nested", "auth.db")

	b, err := openBackend(ctx, settings, zerolog.Nop())
	require.NoError(t, err)
	require.Nil(t, b.channel)

	require.NoError(t, b.storage.Set(ctx, "supabase.auth.token", `{"access_token":"a"}`))
	require.NoError(t, b.Close())

	b, err = openBackend(ctx, settings, zerolog.Nop())
	require.NoError(t, err)
	defer b.Close()
	value, ok, err := b.storage.Get(ctx, "supabase.auth.token")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `{"access_token":"a"}`, value)
}

func TestOpenBackend_SecretSealsValues(t *testing.T) {
	ctx := context.Background()
	settings := config.New()
	settings.StoragePath = filepath.Join(t.TempDir(), "auth.db")
	settings.StorageSecret = "correct horse battery staple"
	const plain = `{"refresh_token":"r"}`

	b, err := openBackend(ctx, settings, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.storage.Set(ctx, "key", plain))
	require.NoError(t, b.Close())

	raw, err := boltstorage.Open(settings.StoragePath, nil)
	require.NoError(t, err)
	value, ok, err := raw.Get(ctx, "key")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEqual(t, plain, value)
	require.NotContains(t, value, "refresh_token")
	require.NoError(t, raw.Close())

	b, err = openBackend(ctx, settings, zerolog.Nop())
	require.NoError(t, err)
	defer b.Close()
	value, ok, err = b.storage.Get(ctx, "key")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, plain, value)
}

func TestBackendClose_RunsClosersInReverse(t *testing.T) {
	var order []int
	b := &backend{closers: []func() error{
		func() error { order = append(order, 1); return nil },
		func() error { order = append(order, 2); return nil },
	}}

	require.NoError(t, b.Close())
	require.Equal(t, []int{2, 1}, order)
	require.NoError(t, b.Close())
	require.Equal(t, []int{2, 1}, order)
}
