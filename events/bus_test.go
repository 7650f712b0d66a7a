package events_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/broadcast/local"
	"github.com/jrsteele09/go-auth-client/events"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/stretchr/testify/require"
)

type received struct {
	lock   sync.Mutex
	events []events.Event
}

func (r *received) callback(_ context.Context, e events.Event, _ *sessions.Session) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *received) list() []events.Event {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]events.Event(nil), r.events...)
}

func staticLoader(s *sessions.Session, err error) events.Loader {
	return func(context.Context) (*sessions.Session, error) { return s, err }
}

func TestBus_InitialSessionIsDeliveredFirst(t *testing.T) {
	release := make(chan struct{})
	bus, err := events.NewBus(func(context.Context) (*sessions.Session, error) {
		<-release
		return &sessions.Session{AccessToken: "a"}, nil
	})
	require.NoError(t, err)

	var got received
	bus.Subscribe(got.callback)

	// Notified while the initial load is still blocked: queued, not lost.
	require.NoError(t, bus.Notify(context.Background(), events.SignedIn, nil, true))
	require.NoError(t, bus.Notify(context.Background(), events.TokenRefreshed, nil, true))
	close(release)

	require.Eventually(t, func() bool { return len(got.list()) == 3 }, time.Second, time.Millisecond)
	require.Equal(t, []events.Event{events.InitialSession, events.SignedIn, events.TokenRefreshed}, got.list())
}

func TestBus_QueuedEventDoesNotWaitOrReportErrors(t *testing.T) {
	release := make(chan struct{})
	bus, err := events.NewBus(func(context.Context) (*sessions.Session, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, err)

	var signedIn atomic.Int32
	bus.Subscribe(func(_ context.Context, e events.Event, _ *sessions.Session) error {
		if e == events.SignedIn {
			signedIn.Add(1)
			return errors.New("subscriber failed")
		}
		return nil
	})

	// The subscriber has not seen INITIAL_SESSION yet, so its failure cannot
	// surface here and Notify returns before it runs.
	require.NoError(t, bus.Notify(context.Background(), events.SignedIn, nil, false))
	require.Zero(t, signedIn.Load())

	close(release)
	require.Eventually(t, func() bool { return signedIn.Load() == 1 }, time.Second, time.Millisecond)
}

func TestBus_InitialSessionIsNilWhenLoadFails(t *testing.T) {
	bus, err := events.NewBus(staticLoader(nil, errors.New("storage unavailable")))
	require.NoError(t, err)

	var (
		calls   atomic.Int32
		initial atomic.Pointer[sessions.Session]
		isNil   atomic.Bool
	)
	bus.Subscribe(func(_ context.Context, e events.Event, s *sessions.Session) error {
		calls.Add(1)
		if e == events.InitialSession {
			initial.Store(s)
			isNil.Store(s == nil)
		}
		return nil
	})

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	require.True(t, isNil.Load())
	require.Nil(t, initial.Load())
}

func TestBus_NotifyCallsAllAndReturnsFirstError(t *testing.T) {
	bus, err := events.NewBus(staticLoader(nil, nil))
	require.NoError(t, err)

	var calls atomic.Int32
	failure := errors.New("subscriber two failed")
	subscribe := func(err error) {
		var initialDone atomic.Bool
		bus.Subscribe(func(_ context.Context, e events.Event, _ *sessions.Session) error {
			if e == events.InitialSession {
				initialDone.Store(true)
				return nil
			}
			calls.Add(1)
			return err
		})
		require.Eventually(t, initialDone.Load, time.Second, time.Millisecond)
	}
	subscribe(nil)
	subscribe(failure)
	subscribe(errors.New("subscriber three failed"))
	// Let each subscription leave its queued state.
	time.Sleep(10 * time.Millisecond)

	err = bus.Notify(context.Background(), events.SignedOut, nil, true)
	require.ErrorIs(t, err, failure)
	require.Equal(t, int32(3), calls.Load())
}

func TestBus_PanickingSubscriberIsContained(t *testing.T) {
	bus, err := events.NewBus(staticLoader(nil, nil))
	require.NoError(t, err)

	var ok received
	bus.Subscribe(func(_ context.Context, e events.Event, _ *sessions.Session) error {
		if e == events.SignedIn {
			panic("boom")
		}
		return nil
	})
	bus.Subscribe(ok.callback)
	require.Eventually(t, func() bool { return len(ok.list()) == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	err = bus.Notify(context.Background(), events.SignedIn, nil, false)
	require.Error(t, err)
	require.Contains(t, ok.list(), events.SignedIn)
}

func TestBus_UnsubscribeIsIdempotent(t *testing.T) {
	bus, err := events.NewBus(staticLoader(nil, nil))
	require.NoError(t, err)

	var got received
	sub := bus.Subscribe(got.callback)
	require.NotEmpty(t, sub.ID)
	require.Eventually(t, func() bool { return len(got.list()) == 1 }, time.Second, time.Millisecond)
	require.Equal(t, 1, bus.Len())

	sub.Unsubscribe()
	sub.Unsubscribe()
	require.Zero(t, bus.Len())

	require.NoError(t, bus.Notify(context.Background(), events.SignedOut, nil, false))
	require.Equal(t, []events.Event{events.InitialSession}, got.list())
}

func TestBus_BroadcastBetweenBuses(t *testing.T) {
	hub := local.NewHub()
	chA := hub.Channel("supabase.auth.token")
	chB := hub.Channel("supabase.auth.token")
	defer chA.Close()
	defer chB.Close()

	busA, err := events.NewBus(staticLoader(nil, nil), events.WithChannel(chA))
	require.NoError(t, err)
	defer busA.Close()
	busB, err := events.NewBus(staticLoader(nil, nil), events.WithChannel(chB))
	require.NoError(t, err)
	defer busB.Close()

	var onA, onB received
	busA.Subscribe(onA.callback)
	busB.Subscribe(onB.callback)
	require.Eventually(t, func() bool { return len(onA.list()) == 1 && len(onB.list()) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, busA.Notify(context.Background(), events.SignedOut, nil, true))

	require.Eventually(t, func() bool { return len(onB.list()) == 2 }, time.Second, time.Millisecond)
	require.Equal(t, events.SignedOut, onB.list()[1])
	// No relay loop: B re-notified without publishing, so A saw the event once.
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, []events.Event{events.InitialSession, events.SignedOut}, onA.list())
}

func TestNewBus_Validation(t *testing.T) {
	_, err := events.NewBus(nil)
	require.Error(t, err)
}
