package auth_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-client/auth"
	"github.com/jrsteele09/go-auth-client/events"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/jrsteele09/go-auth-client/storage"
	"github.com/jrsteele09/go-auth-client/storage/memory"
	"github.com/stretchr/testify/require"
)

const (
	testStorageKey   = "supabase.auth.token"
	testVerifierKey  = testStorageKey + sessions.CodeVerifierSuffix
	testUserID       = "5f1c3a0e-7f2b-4a7e-9c1d-2b6e8f0a4c11"
	testUserEmail    = "john.doe@example.com"
	testUserPassword = "password123"
	testUserPhone    = "+15555550100"
	testSecret       = "test-jwt-secret"
)

var testEpoch = time.Unix(1_700_000_000, 0)

type handlerFunc func(r *http.Request, body map[string]any) (int, any)

type recordedRequest struct {
	Header http.Header
	Query  map[string][]string
	Body   map[string]any
}

// fakeBackend is an httptest stand-in for the auth backend. Routes are keyed
// by "METHOD /path", plus "?grant_type=x" for the token endpoint.
type fakeBackend struct {
	server *httptest.Server

	lock     sync.Mutex
	handlers map[string]handlerFunc
	requests map[string][]recordedRequest
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{
		handlers: make(map[string]handlerFunc),
		requests: make(map[string][]recordedRequest),
	}
	b.server = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.server.Close)
	return b
}

func routeKey(r *http.Request) string {
	key := r.Method + " " + r.URL.Path
	if grant := r.URL.Query().Get("grant_type"); grant != "" {
		key += "?grant_type=" + grant
	}
	return key
}

func (b *fakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	key := routeKey(r)
	var body map[string]any
	if data, err := io.ReadAll(r.Body); err == nil && len(data) > 0 {
		_ = json.Unmarshal(data, &body)
	}

	b.lock.Lock()
	b.requests[key] = append(b.requests[key], recordedRequest{Header: r.Header.Clone(), Query: r.URL.Query(), Body: body})
	h := b.handlers[key]
	b.lock.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if h == nil {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"msg": "route not found: " + key})
		return
	}
	status, resp := h(r, body)
	w.WriteHeader(status)
	if resp != nil {
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func (b *fakeBackend) on(key string, h handlerFunc) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.handlers[key] = h
}

func (b *fakeBackend) respond(key string, status int, resp any) {
	b.on(key, func(*http.Request, map[string]any) (int, any) { return status, resp })
}

func (b *fakeBackend) calls(key string) int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.requests[key])
}

func (b *fakeBackend) totalCalls() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	n := 0
	for _, reqs := range b.requests {
		n += len(reqs)
	}
	return n
}

func (b *fakeBackend) lastRequest(t *testing.T, key string) recordedRequest {
	t.Helper()
	b.lock.Lock()
	defer b.lock.Unlock()
	reqs := b.requests[key]
	require.NotEmpty(t, reqs, "no request for %s", key)
	return reqs[len(reqs)-1]
}

type fakeClock struct {
	lock sync.Mutex
	now  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now = t
}

// eventRecorder is a subscriber callback that keeps every delivery.
type eventRecorder struct {
	lock     sync.Mutex
	events   []events.Event
	sessions []*sessions.Session
}

func (r *eventRecorder) callback(_ context.Context, event events.Event, session *sessions.Session) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, event)
	r.sessions = append(r.sessions, session)
	return nil
}

func (r *eventRecorder) Events() []events.Event {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *eventRecorder) last() (events.Event, *sessions.Session) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if len(r.events) == 0 {
		return "", nil
	}
	return r.events[len(r.events)-1], r.sessions[len(r.sessions)-1]
}

func (r *eventRecorder) waitFor(t *testing.T, event events.Event) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, e := range r.Events() {
			if e == event {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "event %s not delivered", event)
}

// testFixture holds all test dependencies
type testFixture struct {
	backend *fakeBackend
	storage *memory.Store
	clock   *fakeClock
	client  *auth.Client
}

// setupTestFixture creates a client against a fake backend with in-memory
// storage, a fixed clock and auto refresh off. configure may adjust the
// configuration before the client is built.
func setupTestFixture(t *testing.T, configure func(*config.Settings), opts ...auth.ClientOption) *testFixture {
	t.Helper()

	f := &testFixture{
		backend: newFakeBackend(t),
		storage: memory.New(),
		clock:   &fakeClock{now: testEpoch},
	}

	cfg := config.New()
	cfg.URL = f.backend.server.URL
	cfg.AutoRefreshToken = false
	cfg.RetryStep = time.Millisecond
	if configure != nil {
		configure(&cfg)
	}

	clientOpts := append([]auth.ClientOption{
		auth.WithStorage(f.storage),
		auth.WithNowFunc(f.clock.Now),
	}, opts...)
	client, err := auth.NewClient(cfg, clientOpts...)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	f.client = client
	return f
}

// subscribe registers a recorder and waits for its INITIAL_SESSION.
func (f *testFixture) subscribe(t *testing.T) *eventRecorder {
	t.Helper()
	r := &eventRecorder{}
	f.client.OnAuthStateChange(r.callback)
	r.waitFor(t, events.InitialSession)
	return r
}

// seedSession stores a session that expires at expiresAt.
func (f *testFixture) seedSession(t *testing.T, accessToken, refreshToken string, expiresAt time.Time) {
	t.Helper()
	writeSession(t, f.storage, accessToken, refreshToken, expiresAt)
}

func writeSession(t *testing.T, st storage.Storage, accessToken, refreshToken string, expiresAt time.Time) {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    3600,
		"expires_at":    expiresAt.Unix(),
		"token_type":    "bearer",
		"user":          userBody(),
	})
	require.NoError(t, err)
	require.NoError(t, st.Set(context.Background(), testStorageKey, string(data)))
}

// storedSession decodes the persisted session, nil when none is stored.
func (f *testFixture) storedSession(t *testing.T) *sessions.Session {
	t.Helper()
	raw, ok, err := f.storage.Get(context.Background(), testStorageKey)
	require.NoError(t, err)
	if !ok {
		return nil
	}
	var s sessions.Session
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	return &s
}

func makeJWT(t *testing.T, claims jwtlib.MapClaims) string {
	t.Helper()
	tok, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return tok
}

func accessTokenFor(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	return makeJWT(t, jwtlib.MapClaims{
		"sub":   testUserID,
		"email": testUserEmail,
		"exp":   expiresAt.Unix(),
		"aal":   "aal1",
		"amr":   []map[string]any{{"method": "password", "timestamp": testEpoch.Unix()}},
	})
}

func userBody() map[string]any {
	return map[string]any{
		"id":    testUserID,
		"aud":   "authenticated",
		"role":  "authenticated",
		"email": testUserEmail,
	}
}

func sessionBody(accessToken, refreshToken string) map[string]any {
	return map[string]any{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    3600,
		"token_type":    "bearer",
		"user":          userBody(),
	}
}
