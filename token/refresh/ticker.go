package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-client/internal/metrics"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/rs/zerolog"
)

// LoadFunc returns the current session without refreshing it.
type LoadFunc func(ctx context.Context) (*sessions.Session, error)

// Ticker refreshes the session proactively. Every Interval it loads the
// session and refreshes it once the access token expires within Threshold ticks.
type Ticker struct {
	load        LoadFunc
	coordinator *Coordinator
	interval    time.Duration
	threshold   int
	nowFunc     func() time.Time
	logger      zerolog.Logger
	metrics     *metrics.Metrics

	lock   sync.Mutex
	cancel context.CancelFunc
}

// TickerOption configures a Ticker.
type TickerOption func(*Ticker)

func WithInterval(d time.Duration) TickerOption {
	return func(t *Ticker) {
		t.interval = d
	}
}

func WithThreshold(ticks int) TickerOption {
	return func(t *Ticker) {
		t.threshold = ticks
	}
}

func WithNowFunc(now func() time.Time) TickerOption {
	return func(t *Ticker) {
		t.nowFunc = now
	}
}

func WithTickerLogger(logger zerolog.Logger) TickerOption {
	return func(t *Ticker) {
		t.logger = logger
	}
}

func WithTickerMetrics(m *metrics.Metrics) TickerOption {
	return func(t *Ticker) {
		t.metrics = m
	}
}

// NewTicker creates a stopped Ticker with a 30s interval and a 3 tick threshold.
func NewTicker(load LoadFunc, coordinator *Coordinator, opts ...TickerOption) (*Ticker, error) {
	if load == nil {
		return nil, fmt.Errorf("[NewTicker] load func is required")
	}
	if coordinator == nil {
		return nil, fmt.Errorf("[NewTicker] coordinator is required")
	}
	t := &Ticker{
		load:        load,
		coordinator: coordinator,
		interval:    30 * time.Second,
		threshold:   3,
		nowFunc:     time.Now,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Start stops any running loop and starts a new one in the background. The
// loop ticks once immediately and then every interval until Stop or ctx is
// cancelled.
func (t *Ticker) Start(ctx context.Context) {
	t.Stop()

	ctx, cancel := context.WithCancel(ctx)
	t.lock.Lock()
	t.cancel = cancel
	t.lock.Unlock()

	t.logger.Debug().Dur("interval", t.interval).Msg("#startAutoRefresh()")
	go t.loop(ctx)
}

// Stop cancels the loop. It does not wait for a tick in progress.
func (t *Ticker) Stop() {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
		t.logger.Debug().Msg("#stopAutoRefresh()")
	}
}

// Running reports whether the loop is started.
func (t *Ticker) Running() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.cancel != nil
}

func (t *Ticker) loop(ctx context.Context) {
	t.Tick(ctx)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Tick(ctx)
		}
	}
}

// Tick runs one refresh check. Errors are logged, never returned.
func (t *Ticker) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.metrics.Tick("failed")
			t.logger.Error().Interface("panic", r).Msg("#autoRefreshTokenTick() panicked")
		}
	}()

	session, err := t.load(ctx)
	if err != nil {
		t.metrics.Tick("failed")
		t.logger.Err(err).Msg("#autoRefreshTokenTick() load session")
		return
	}
	if session == nil || session.RefreshToken == "" || session.ExpiresAt == 0 {
		t.metrics.Tick("skipped")
		t.logger.Debug().Msg("#autoRefreshTokenTick() no session")
		return
	}

	ticks := ExpiresInTicks(session.ExpiresAt, t.nowFunc(), t.interval)
	t.logger.Debug().Int64("expires_in_ticks", ticks).Int("threshold", t.threshold).Msg("#autoRefreshTokenTick() access token expires")
	if ticks > int64(t.threshold) {
		t.metrics.Tick("skipped")
		return
	}

	result, err := t.coordinator.Refresh(ctx, session.RefreshToken)
	switch {
	case err != nil:
		t.metrics.Tick("failed")
		t.logger.Err(err).Msg("#autoRefreshTokenTick() refresh")
	case result != nil && result.Err != nil:
		t.metrics.Tick("failed")
		t.logger.Err(result.Err).Msg("#autoRefreshTokenTick() refresh")
	default:
		t.metrics.Tick("refreshed")
	}
}

// ExpiresInTicks is floor((expiresAt - now) / interval), expiresAt in unix seconds.
func ExpiresInTicks(expiresAt int64, now time.Time, interval time.Duration) int64 {
	remaining := expiresAt*1000 - now.UnixMilli()
	ms := interval.Milliseconds()
	if ms <= 0 {
		return 0
	}
	ticks := remaining / ms
	// Go truncates toward zero; floor for already expired tokens.
	if remaining < 0 && remaining%ms != 0 {
		ticks--
	}
	return ticks
}
