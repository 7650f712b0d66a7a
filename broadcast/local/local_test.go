package local_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/broadcast"
	"github.com/jrsteele09/go-auth-client/broadcast/local"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	lock sync.Mutex
	msgs []broadcast.Message
}

func (r *recorder) record(m broadcast.Message) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.msgs = append(r.msgs, m)
}

func (r *recorder) count() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.msgs)
}

func TestChannel_DeliversToOtherEndpointsOnly(t *testing.T) {
	hub := local.NewHub()
	a := hub.Channel("supabase.auth.token")
	b := hub.Channel("supabase.auth.token")
	other := hub.Channel("other.key")
	defer a.Close()
	defer b.Close()
	defer other.Close()

	var fromA, fromB, fromOther recorder
	a.Subscribe(fromA.record)
	b.Subscribe(fromB.record)
	other.Subscribe(fromOther.record)

	msg := broadcast.Message{Event: "SIGNED_IN", Session: &sessions.Session{AccessToken: "x"}}
	require.NoError(t, a.Publish(context.Background(), msg))

	require.Eventually(t, func() bool { return fromB.count() == 1 }, time.Second, time.Millisecond)
	require.Equal(t, "SIGNED_IN", fromB.msgs[0].Event)
	require.Zero(t, fromA.count(), "sender never receives its own message")
	require.Zero(t, fromOther.count(), "different names are isolated")
}

func TestChannel_UnsubscribeAndClose(t *testing.T) {
	hub := local.NewHub()
	a := hub.Channel("k")
	b := hub.Channel("k")

	var got recorder
	cancel := b.Subscribe(got.record)
	cancel()
	cancel()

	require.NoError(t, a.Publish(context.Background(), broadcast.Message{Event: "SIGNED_OUT"}))
	require.NoError(t, b.Close())
	require.Zero(t, got.count())

	require.NoError(t, b.Close())
	require.NoError(t, a.Publish(context.Background(), broadcast.Message{Event: "SIGNED_OUT"}), "no peers left")
	require.NoError(t, a.Close())
	require.ErrorIs(t, a.Publish(context.Background(), broadcast.Message{}), local.ErrClosed)
}
