package cmd

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/jrsteele09/go-auth-client/broadcast"
	pgbroadcast "github.com/jrsteele09/go-auth-client/broadcast/postgres"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/jrsteele09/go-auth-client/storage"
	boltstorage "github.com/jrsteele09/go-auth-client/storage/bbolt"
	"github.com/jrsteele09/go-auth-client/storage/encrypted"
	pgstorage "github.com/jrsteele09/go-auth-client/storage/postgres"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.etcd.io/bbolt"
)

// backend is the storage slot, and optional broadcast channel, a client runs on.
type backend struct {
	storage storage.Storage
	channel broadcast.Channel
	closers []func() error
}

// Close releases resources in reverse order of acquisition.
func (b *backend) Close() error {
	var first error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	b.closers = nil
	return first
}

// openBackend picks Postgres when a DSN is configured, so that several
// processes share one session and hear each other's events, and a local
// bbolt file otherwise. A storage secret seals values in either store.
func openBackend(ctx context.Context, cfg config.EnvConfig, logger zerolog.Logger) (*backend, error) {
	b := &backend{}
	if dsn := cfg.GetPostgresDSN(); dsn != "" {
		if err := b.openPostgres(ctx, dsn, cfg.GetStorageKey(), logger); err != nil {
			_ = b.Close()
			return nil, err
		}
	} else if err := b.openBolt(cfg.GetStoragePath()); err != nil {
		return nil, err
	}

	if secret := cfg.GetStorageSecret(); secret != "" {
		sealed, err := encrypted.New(b.storage, []byte(secret))
		if err != nil {
			_ = b.Close()
			return nil, errors.Wrap(err, "open encrypted storage")
		}
		b.storage = sealed
	}
	return b, nil
}

func (b *backend) openPostgres(ctx context.Context, dsn, channelName string, logger zerolog.Logger) error {
	pool, err := pgstorage.NewPool(ctx, dsn)
	if err != nil {
		return err
	}
	b.closers = append(b.closers, func() error {
		pool.Close()
		return nil
	})

	st := pgstorage.New(pool)
	if err := st.EnsureSchema(ctx); err != nil {
		return err
	}
	b.storage = st

	ch, err := pgbroadcast.New(context.WithoutCancel(ctx), pool, channelName, pgbroadcast.WithLogger(logger))
	if err != nil {
		return err
	}
	b.channel = ch
	b.closers = append(b.closers, ch.Close)
	return nil
}

func (b *backend) openBolt(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(err, "create storage directory")
	}
	st, err := boltstorage.Open(path, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return err
	}
	b.storage = st
	b.closers = append(b.closers, st.Close)
	return nil
}
