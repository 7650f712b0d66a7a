// Package postgres broadcasts auth events between processes with Postgres
// LISTEN/NOTIFY. Every endpoint tags its notifications with a sender id and
// ignores its own.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jrsteele09/go-auth-client/broadcast"
	"github.com/rs/zerolog"
)

const reconnectDelay = time.Second

type envelope struct {
	Sender  string            `json:"sender"`
	Message broadcast.Message `json:"message"`
}

// Channel is one endpoint of a LISTEN/NOTIFY channel.
type Channel struct {
	pool   *pgxpool.Pool
	name   string
	sender string
	logger zerolog.Logger

	lock   sync.Mutex
	subs   map[int]func(broadcast.Message)
	nextID int

	cancel context.CancelFunc
	done   chan struct{}
}

var _ broadcast.Channel = (*Channel)(nil)

// ChannelOption configures a Channel.
type ChannelOption func(*Channel)

func WithLogger(logger zerolog.Logger) ChannelOption {
	return func(c *Channel) {
		c.logger = logger
	}
}

// New starts listening on the named channel. The listener holds one pool
// connection until Close and reconnects after connection failures.
func New(ctx context.Context, pool *pgxpool.Pool, name string, opts ...ChannelOption) (*Channel, error) {
	if pool == nil {
		return nil, fmt.Errorf("[postgres.New] pool is required")
	}
	if name == "" {
		return nil, fmt.Errorf("[postgres.New] channel name is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &Channel{
		pool:   pool,
		name:   name,
		sender: uuid.NewString(),
		logger: zerolog.Nop(),
		subs:   make(map[int]func(broadcast.Message)),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.run(ctx)
	return c, nil
}

// Publish sends msg to every other listener of the channel.
func (c *Channel) Publish(ctx context.Context, msg broadcast.Message) error {
	payload, err := json.Marshal(envelope{Sender: c.sender, Message: msg})
	if err != nil {
		return fmt.Errorf("[postgres.Publish] encode: %w", err)
	}
	if _, err := c.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, c.name, string(payload)); err != nil {
		return fmt.Errorf("[postgres.Publish] notify %s: %w", c.name, err)
	}
	return nil
}

// Subscribe registers fn for messages published by other endpoints.
func (c *Channel) Subscribe(fn func(broadcast.Message)) func() {
	c.lock.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.lock.Unlock()

	return func() {
		c.lock.Lock()
		defer c.lock.Unlock()
		delete(c.subs, id)
	}
}

// Close stops listening and releases the listener connection.
func (c *Channel) Close() error {
	c.cancel()
	<-c.done
	return nil
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)
	for {
		err := c.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn().Err(err).Str("channel", c.name).Msg("broadcast listener disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *Channel) listen(ctx context.Context) error {
	pooled, err := c.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	// A listening connection must not go back to the pool.
	conn := pooled.Hijack()
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{c.name}.Sanitize()); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		c.handle(n.Payload)
	}
}

func (c *Channel) handle(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		c.logger.Warn().Err(err).Str("channel", c.name).Msg("ignoring malformed broadcast")
		return
	}
	if env.Sender == c.sender {
		return
	}

	c.lock.Lock()
	subs := make([]func(broadcast.Message), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.lock.Unlock()

	for _, fn := range subs {
		fn(env.Message)
	}
}
