package refresh

import (
	"context"
	"fmt"
	"sync"

	"github.com/jrsteele09/go-auth-client/autherrors"
	"github.com/jrsteele09/go-auth-client/internal/metrics"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/jrsteele09/go-auth-client/token/refresh"

// RefreshFunc exchanges a refresh token for a new session. It is called once
// per attempt.
type RefreshFunc func(ctx context.Context, refreshToken string) (*sessions.Session, error)

// SuccessFunc is run once per successful refresh, before waiters are released.
// The client uses it to persist the session and emit TOKEN_REFRESHED.
type SuccessFunc func(ctx context.Context, session *sessions.Session) error

// Result is shared by every caller that joined the same refresh. Err holds an
// auth error (rejected refresh token, exhausted retries); Session is set on success.
type Result struct {
	Session *sessions.Session
	Err     error
}

// call is one in-flight refresh. result and err are written before done is closed.
type call struct {
	done   chan struct{}
	result *Result
	err    error
}

// Coordinator makes sure at most one refresh request is in flight. While a
// refresh is running every caller waits on it and receives the same *Result.
type Coordinator struct {
	refreshFn RefreshFunc
	onSuccess SuccessFunc
	policy    RetryPolicy
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer

	lock     sync.Mutex
	inflight *call // nil when idle
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

func WithRetryPolicy(p RetryPolicy) CoordinatorOption {
	return func(c *Coordinator) {
		c.policy = p
	}
}

func WithLogger(logger zerolog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) CoordinatorOption {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// NewCoordinator creates an idle Coordinator.
func NewCoordinator(refreshFn RefreshFunc, onSuccess SuccessFunc, opts ...CoordinatorOption) (*Coordinator, error) {
	if refreshFn == nil {
		return nil, fmt.Errorf("[NewCoordinator] refresh func is required")
	}
	c := &Coordinator{
		refreshFn: refreshFn,
		onSuccess: onSuccess,
		policy:    DefaultRetryPolicy(),
		logger:    zerolog.Nop(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Refreshing reports whether a refresh is in flight.
func (c *Coordinator) Refreshing() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.inflight != nil
}

// Refresh exchanges refreshToken for a new session, or joins the refresh
// already in flight. The network call is detached from ctx: cancelling ctx
// only stops this caller from waiting. The returned error is set for failures
// that are not auth errors (storage, a panicking refresher).
func (c *Coordinator) Refresh(ctx context.Context, refreshToken string) (*Result, error) {
	if refreshToken == "" {
		return &Result{Err: autherrors.NewSessionMissingError()}, nil
	}

	c.lock.Lock()
	cl := c.inflight
	if cl != nil {
		c.lock.Unlock()
		c.metrics.RefreshJoin()
		c.logger.Debug().Msg("#callRefreshToken() joining in-flight refresh")
	} else {
		cl = &call{done: make(chan struct{})}
		c.inflight = cl
		c.lock.Unlock()
		go c.run(context.WithoutCancel(ctx), cl, refreshToken)
	}

	select {
	case <-cl.done:
		return cl.result, cl.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Coordinator) run(ctx context.Context, cl *call, refreshToken string) {
	ctx, span := c.tracer.Start(ctx, "refresh.Refresh")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			cl.result = nil
			cl.err = fmt.Errorf("[Coordinator.Refresh] refresh panicked: %v", r)
		}
		switch {
		case cl.err != nil:
			c.metrics.RefreshResult("error")
			span.RecordError(cl.err)
			span.SetStatus(codes.Error, cl.err.Error())
			c.logger.Err(cl.err).Msg("#callRefreshToken() failed")
		case cl.result != nil && cl.result.Err != nil:
			c.metrics.RefreshResult("auth_error")
			span.RecordError(cl.result.Err)
			span.SetStatus(codes.Error, cl.result.Err.Error())
		default:
			c.metrics.RefreshResult("success")
		}

		c.lock.Lock()
		c.inflight = nil
		c.lock.Unlock()
		close(cl.done)
	}()

	c.logger.Debug().Str("refresh_token", prefix(refreshToken)).Msg("#callRefreshToken() begin")
	session, err := Do(ctx, c.policy, func(attempt int) {
		c.metrics.RefreshAttempt()
		c.logger.Debug().Int("attempt", attempt).Msg("#refreshAccessToken() refreshing attempt")
	}, func(ctx context.Context) (*sessions.Session, error) {
		return c.refreshFn(ctx, refreshToken)
	})
	if err == nil && session == nil {
		err = autherrors.NewSessionMissingError()
	}
	if err == nil && c.onSuccess != nil {
		err = c.onSuccess(ctx, session)
	}

	switch {
	case err == nil:
		cl.result = &Result{Session: session}
	case autherrors.IsAuthError(err):
		cl.result = &Result{Err: err}
	default:
		cl.err = err
	}
}

// prefix keeps refresh tokens out of debug logs.
func prefix(token string) string {
	if len(token) <= 5 {
		return token
	}
	return token[:5] + "..."
}
