package events

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-client/broadcast"
	"github.com/jrsteele09/go-auth-client/internal/metrics"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/rs/zerolog"
)

type pendingEvent struct {
	ctx     context.Context
	event   Event
	session *sessions.Session
}

// Subscription is a registered callback. Events notified before its
// INITIAL_SESSION delivery has completed are queued and delivered afterwards,
// in order.
type Subscription struct {
	ID       string
	seq      uint64
	callback Callback
	bus      *Bus

	lock         sync.Mutex
	ready        bool
	pending      []pendingEvent
	unsubscribed atomic.Bool
}

// Unsubscribe removes the callback. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s.unsubscribed.Swap(true) {
		return
	}
	s.bus.remove(s.ID)
}

// queue holds the event back when the initial delivery has not finished.
func (s *Subscription) queue(p pendingEvent) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.ready {
		return false
	}
	s.pending = append(s.pending, p)
	return true
}

// Bus delivers auth events to local subscribers and, optionally, to other
// clients through a broadcast channel.
type Bus struct {
	loader  Loader
	channel broadcast.Channel
	logger  zerolog.Logger
	metrics *metrics.Metrics

	ctx           context.Context
	cancel        context.CancelFunc
	cancelChannel func()

	lock sync.RWMutex
	subs map[string]*Subscription
	seq  uint64
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithChannel publishes notified events on ch and re-notifies events
// received from it locally without publishing them again.
func WithChannel(ch broadcast.Channel) BusOption {
	return func(b *Bus) {
		b.channel = ch
	}
}

func WithLogger(logger zerolog.Logger) BusOption {
	return func(b *Bus) {
		b.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) BusOption {
	return func(b *Bus) {
		b.metrics = m
	}
}

// NewBus creates a Bus. loader supplies the session for INITIAL_SESSION.
func NewBus(loader Loader, opts ...BusOption) (*Bus, error) {
	if loader == nil {
		return nil, fmt.Errorf("[NewBus] loader is required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		loader: loader,
		logger: zerolog.Nop(),
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]*Subscription),
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.channel != nil {
		b.cancelChannel = b.channel.Subscribe(func(msg broadcast.Message) {
			b.logger.Debug().Str("event", msg.Event).Msg("received broadcast notification")
			if err := b.Notify(b.ctx, Event(msg.Event), msg.Session, false); err != nil {
				b.logger.Err(err).Str("event", msg.Event).Msg("broadcast notification")
			}
		})
	}
	return b, nil
}

// Subscribe registers cb and delivers INITIAL_SESSION to it asynchronously.
func (b *Bus) Subscribe(cb Callback) *Subscription {
	b.lock.Lock()
	b.seq++
	s := &Subscription{
		ID:       uuid.NewString(),
		seq:      b.seq,
		callback: cb,
		bus:      b,
	}
	b.subs[s.ID] = s
	b.lock.Unlock()

	go b.emitInitialSession(s)
	return s
}

func (b *Bus) emitInitialSession(s *Subscription) {
	session, err := b.loader(b.ctx)
	if err != nil {
		b.logger.Err(err).Str("subscription", s.ID).Msg("#emitInitialSession() load session")
		session = nil
	}
	b.metrics.Event(string(InitialSession))
	if err := b.invoke(b.ctx, s, InitialSession, session); err != nil {
		b.logger.Err(err).Str("subscription", s.ID).Msg("#emitInitialSession() callback")
	}

	for {
		s.lock.Lock()
		if len(s.pending) == 0 {
			s.ready = true
			s.lock.Unlock()
			return
		}
		queued := s.pending
		s.pending = nil
		s.lock.Unlock()

		for _, p := range queued {
			_ = b.invoke(p.ctx, s, p.event, p.session)
		}
	}
}

// Notify delivers event to every subscriber concurrently and waits for them.
// Every failure is logged; the first one, in subscription order, is returned.
// With broadcast set the event is also published on the channel.
//
// A subscriber still waiting for its INITIAL_SESSION gets the event queued
// instead: Notify returns without waiting for that callback, and its error is
// only logged.
func (b *Bus) Notify(ctx context.Context, event Event, session *sessions.Session, broadcast bool) error {
	b.logger.Debug().Str("event", string(event)).Bool("broadcast", broadcast).Msg("#notifyAllSubscribers() begin")
	b.metrics.Event(string(event))

	if broadcast && b.channel != nil {
		if err := b.channel.Publish(ctx, toMessage(event, session)); err != nil {
			b.logger.Warn().Err(err).Str("event", string(event)).Msg("broadcast publish failed")
		}
	}

	subs := b.snapshot()
	errs := make([]error, len(subs))
	var wg sync.WaitGroup
	for i, s := range subs {
		if s.queue(pendingEvent{ctx: context.WithoutCancel(ctx), event: event, session: session}) {
			continue
		}
		wg.Add(1)
		go func(i int, s *Subscription) {
			defer wg.Done()
			errs[i] = b.invoke(ctx, s, event, session)
		}(i, s)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func toMessage(event Event, session *sessions.Session) broadcast.Message {
	return broadcast.Message{Event: string(event), Session: session}
}

func (b *Bus) invoke(ctx context.Context, s *Subscription, event Event, session *sessions.Session) (err error) {
	if s.unsubscribed.Load() {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("[Bus.Notify] subscriber %s panicked: %v", s.ID, r)
		}
		if err != nil {
			b.metrics.SubscriberError()
			b.logger.Err(err).Str("subscription", s.ID).Str("event", string(event)).Msg("subscriber callback failed")
		}
	}()
	return s.callback(ctx, event, session)
}

func (b *Bus) snapshot() []*Subscription {
	b.lock.RLock()
	defer b.lock.RUnlock()

	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].seq < subs[j].seq })
	return subs
}

func (b *Bus) remove(id string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	delete(b.subs, id)
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return len(b.subs)
}

// Close detaches the broadcast channel and drops all subscribers.
func (b *Bus) Close() {
	b.cancel()
	if b.cancelChannel != nil {
		b.cancelChannel()
	}

	b.lock.Lock()
	defer b.lock.Unlock()
	for _, s := range b.subs {
		s.unsubscribed.Store(true)
	}
	b.subs = make(map[string]*Subscription)
}
