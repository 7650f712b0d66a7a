// Package auth is the session manager of an auth backend client. It signs
// users in, keeps their session in storage, refreshes it before it expires
// and tells subscribers about every change.
package auth

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-client/api"
	"github.com/jrsteele09/go-auth-client/broadcast"
	"github.com/jrsteele09/go-auth-client/events"
	"github.com/jrsteele09/go-auth-client/internal/config"
	autherrs "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/internal/metrics"
	"github.com/jrsteele09/go-auth-client/oauth2"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/jrsteele09/go-auth-client/storage"
	"github.com/jrsteele09/go-auth-client/storage/memory"
	"github.com/jrsteele09/go-auth-client/token/refresh"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Client is the context object every operation runs against. It owns the
// session store, the refresh coordinator and ticker, and the subscriber bus.
type Client struct {
	instanceID         string
	flowType           oauth2.FlowType
	autoRefresh        bool
	detectSessionInURL bool
	expiryMargin       time.Duration

	storage         storage.Storage
	httpClient      *http.Client
	nowFunc         func() time.Time
	logger          zerolog.Logger
	loggerSet       bool
	env             Environment
	channel         broadcast.Channel
	registerer      prometheus.Registerer
	idTokenVerifier *oidc.IDTokenVerifier

	validator   *Validator
	api         *api.Client
	store       *sessions.Store
	bus         *events.Bus
	coordinator *refresh.Coordinator
	ticker      *refresh.Ticker
	metrics     *metrics.Metrics
	mfa         *MFA

	ctx    context.Context
	cancel context.CancelFunc

	initOnce sync.Once
	initDone chan struct{}
	initErr  error

	visibilityLock   sync.Mutex
	cancelVisibility func()
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithStorage sets the storage slot for sessions and PKCE verifiers. The
// default is process memory.
func WithStorage(st storage.Storage) ClientOption {
	return func(c *Client) {
		c.storage = st
	}
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithNowFunc replaces the clock used for expiry decisions.
func WithNowFunc(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
		c.loggerSet = true
	}
}

// WithEnvironment enables redirect detection and, when env also implements
// VisibilityNotifier, foreground-only auto refresh.
func WithEnvironment(env Environment) ClientOption {
	return func(c *Client) {
		c.env = env
	}
}

// WithBroadcastChannel shares auth events with other clients using the same
// storage key.
func WithBroadcastChannel(ch broadcast.Channel) ClientOption {
	return func(c *Client) {
		c.channel = ch
	}
}

// WithMetricsRegisterer registers the client's Prometheus collectors on reg.
func WithMetricsRegisterer(reg prometheus.Registerer) ClientOption {
	return func(c *Client) {
		c.registerer = reg
	}
}

// WithIDTokenVerifier verifies ID tokens locally before they are sent to
// the backend by SignInWithIDToken.
func WithIDTokenVerifier(v *oidc.IDTokenVerifier) ClientOption {
	return func(c *Client) {
		c.idTokenVerifier = v
	}
}

// NewClient builds a Client from cfg. Initialization is not started here;
// it runs on the first Initialize or GetSession call.
func NewClient(cfg config.Config, opts ...ClientOption) (*Client, error) {
	if cfg == nil {
		return nil, errors.Wrap(autherrs.ErrConfigRequired, "[NewClient]")
	}

	c := &Client{
		instanceID:         uuid.NewString(),
		flowType:           oauth2.ParseFlowType(cfg.GetFlowType()),
		autoRefresh:        cfg.GetAutoRefreshToken(),
		detectSessionInURL: cfg.GetDetectSessionInURL(),
		expiryMargin:       cfg.GetExpiryMargin(),
		nowFunc:            time.Now,
		logger:             zerolog.Nop(),
		validator:          NewValidator(),
		initDone:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if !c.loggerSet && cfg.GetDebug() {
		c.logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	c.logger = c.logger.With().Str("instance", c.instanceID).Logger()
	if c.storage == nil {
		c.storage = memory.New()
	}
	c.metrics = metrics.New(c.registerer)

	apiOpts := []api.ClientOption{
		api.WithHeaders(cfg.GetHeaders()),
		api.WithAPIKey(cfg.GetAPIKey()),
		api.WithNowFunc(c.nowFunc),
		api.WithLogger(c.logger),
		api.WithMetrics(c.metrics),
	}
	if c.httpClient != nil {
		apiOpts = append(apiOpts, api.WithHTTPClient(c.httpClient))
	}
	var err error
	if c.api, err = api.New(cfg.GetURL(), apiOpts...); err != nil {
		return nil, errors.Wrap(err, "[NewClient]")
	}

	if c.store, err = sessions.NewStore(c.storage, cfg.GetStorageKey(), cfg.GetPersistSession(), sessions.WithLogger(c.logger)); err != nil {
		return nil, errors.Wrap(err, "[NewClient]")
	}

	busOpts := []events.BusOption{events.WithLogger(c.logger), events.WithMetrics(c.metrics)}
	if c.channel != nil {
		busOpts = append(busOpts, events.WithChannel(c.channel))
	}
	if c.bus, err = events.NewBus(c.initialSession, busOpts...); err != nil {
		return nil, errors.Wrap(err, "[NewClient]")
	}

	policy := refresh.RetryPolicy{Step: cfg.GetRefreshRetryStep(), Window: cfg.GetAutoRefreshTickDuration()}
	c.coordinator, err = refresh.NewCoordinator(c.refreshAccessToken, c.onRefreshed,
		refresh.WithRetryPolicy(policy),
		refresh.WithLogger(c.logger),
		refresh.WithMetrics(c.metrics),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[NewClient]")
	}

	c.ticker, err = refresh.NewTicker(c.store.Load, c.coordinator,
		refresh.WithInterval(cfg.GetAutoRefreshTickDuration()),
		refresh.WithThreshold(cfg.GetAutoRefreshTickThreshold()),
		refresh.WithNowFunc(c.nowFunc),
		refresh.WithTickerLogger(c.logger),
		refresh.WithTickerMetrics(c.metrics),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[NewClient]")
	}

	c.mfa = &MFA{client: c}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.logger.Debug().
		Str("url", c.api.BaseURL()).
		Str("flow_type", string(c.flowType)).
		Bool("auto_refresh", c.autoRefresh).
		Bool("persist_session", cfg.GetPersistSession()).
		Msg("#constructor()")
	return c, nil
}

// InstanceID identifies this client in logs.
func (c *Client) InstanceID() string {
	return c.instanceID
}

// MFA returns the multi-factor authentication operations.
func (c *Client) MFA() *MFA {
	return c.mfa
}

// OnAuthStateChange registers cb for auth events. cb first receives
// INITIAL_SESSION, then every later event in order.
func (c *Client) OnAuthStateChange(cb events.Callback) *events.Subscription {
	sub := c.bus.Subscribe(cb)
	c.logger.Debug().Str("subscription", sub.ID).Msg("#onAuthStateChange() registered callback")
	return sub
}

// Close stops auto refresh and detaches visibility and broadcast listeners.
// The stored session is left untouched.
func (c *Client) Close() {
	c.removeVisibilityCallback()
	c.ticker.Stop()
	c.bus.Close()
	c.cancel()
}

func (c *Client) now() time.Time {
	return c.nowFunc()
}

// initialSession loads the session delivered as INITIAL_SESSION.
func (c *Client) initialSession(ctx context.Context) (*sessions.Session, error) {
	return c.GetSession(ctx)
}

// saveAndNotify persists session and tells subscribers about event.
func (c *Client) saveAndNotify(ctx context.Context, event events.Event, session *sessions.Session) error {
	if err := c.store.Save(ctx, session); err != nil {
		return errors.Wrap(err, "save session")
	}
	if err := c.bus.Notify(ctx, event, session, true); err != nil {
		return errors.Wrapf(err, "notify %s", event)
	}
	return nil
}

// removeSession clears the stored session ahead of a new sign in.
func (c *Client) removeSession(ctx context.Context) error {
	if err := c.store.Remove(ctx); err != nil {
		return errors.Wrap(err, "remove session")
	}
	return nil
}

// pkceChallenge starts a PKCE flow when configured: a fresh verifier is
// stored and its challenge returned for the request.
func (c *Client) pkceChallenge(ctx context.Context) (pkceFields, error) {
	if c.flowType != oauth2.FlowPKCE {
		return pkceFields{}, nil
	}
	p := oauth2.NewPKCEParams()
	if err := c.store.SaveCodeVerifier(ctx, p.Verifier); err != nil {
		return pkceFields{}, errors.Wrap(err, "store code verifier")
	}
	c.logger.Debug().Str("code_challenge", p.Challenge).Str("method", string(p.Method)).Msg("PKCE")
	return pkceFields{CodeChallenge: p.Challenge, CodeChallengeMethod: string(p.Method)}, nil
}

// accessToken returns the current session's access token, or "" when signed out.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	session, err := c.GetSession(ctx)
	if err != nil {
		return "", err
	}
	if session == nil {
		return "", nil
	}
	return session.AccessToken, nil
}
