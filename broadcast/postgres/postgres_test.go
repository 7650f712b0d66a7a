package postgres_test

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-client/broadcast"
	pgbroadcast "github.com/jrsteele09/go-auth-client/broadcast/postgres"
	pgstorage "github.com/jrsteele09/go-auth-client/storage/postgres"
	"github.com/stretchr/testify/require"
)

// Integration tests are enabled when GOTRUE_TEST_POSTGRES_DSN is set.

func TestChannel_Postgres(t *testing.T) {
	dsn := os.Getenv("GOTRUE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("GOTRUE_TEST_POSTGRES_DSN is not set; skipping Postgres integration test")
	}

	ctx := context.Background()
	pool, err := pgstorage.NewPool(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	name := "auth-test-" + uuid.NewString()[:8]
	a, err := pgbroadcast.New(ctx, pool, name)
	require.NoError(t, err)
	defer a.Close()
	b, err := pgbroadcast.New(ctx, pool, name)
	require.NoError(t, err)
	defer b.Close()

	var toA, toB atomic.Int32
	a.Subscribe(func(broadcast.Message) { toA.Add(1) })
	b.Subscribe(func(m broadcast.Message) {
		if m.Event == "SIGNED_OUT" {
			toB.Add(1)
		}
	})

	// Listeners connect asynchronously; publish until the peer hears it.
	require.Eventually(t, func() bool {
		_ = a.Publish(ctx, broadcast.Message{Event: "SIGNED_OUT"})
		return toB.Load() > 0
	}, 5*time.Second, 100*time.Millisecond)
	require.Zero(t, toA.Load(), "own notifications are ignored")
}
