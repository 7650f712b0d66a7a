// Package local is an in-process broadcast hub. Each Channel obtained from a
// Hub is an endpoint; messages published on one endpoint reach every other
// endpoint with the same name.
package local

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jrsteele09/go-auth-client/broadcast"
)

const inboxSize = 64

// ErrClosed is returned when publishing on a closed endpoint.
var ErrClosed = errors.New("broadcast channel closed")

// Hub connects endpoints by name.
type Hub struct {
	lock      sync.Mutex
	endpoints map[string]map[*Channel]struct{}
}

func NewHub() *Hub {
	return &Hub{
		endpoints: make(map[string]map[*Channel]struct{}),
	}
}

// Channel opens a new endpoint on the named channel.
func (h *Hub) Channel(name string) *Channel {
	c := &Channel{
		hub:   h,
		name:  name,
		inbox: make(chan broadcast.Message, inboxSize),
		subs:  make(map[int]func(broadcast.Message)),
		done:  make(chan struct{}),
	}

	h.lock.Lock()
	if h.endpoints[name] == nil {
		h.endpoints[name] = make(map[*Channel]struct{})
	}
	h.endpoints[name][c] = struct{}{}
	h.lock.Unlock()

	go c.dispatch()
	return c
}

func (h *Hub) peers(c *Channel) []*Channel {
	h.lock.Lock()
	defer h.lock.Unlock()

	peers := make([]*Channel, 0, len(h.endpoints[c.name]))
	for p := range h.endpoints[c.name] {
		if p != c {
			peers = append(peers, p)
		}
	}
	return peers
}

func (h *Hub) remove(c *Channel) {
	h.lock.Lock()
	defer h.lock.Unlock()

	delete(h.endpoints[c.name], c)
	if len(h.endpoints[c.name]) == 0 {
		delete(h.endpoints, c.name)
	}
}

// Channel is one endpoint of a named channel.
type Channel struct {
	hub   *Hub
	name  string
	inbox chan broadcast.Message
	done  chan struct{}

	lock   sync.Mutex
	subs   map[int]func(broadcast.Message)
	nextID int
	closed bool
}

var _ broadcast.Channel = (*Channel)(nil)

// Publish queues msg on every other endpoint. Endpoints with a full inbox drop
// the message; the drop is reported but other endpoints still receive it.
func (c *Channel) Publish(_ context.Context, msg broadcast.Message) error {
	c.lock.Lock()
	closed := c.closed
	c.lock.Unlock()
	if closed {
		return ErrClosed
	}

	var dropped int
	for _, p := range c.hub.peers(c) {
		if !p.enqueue(msg) {
			dropped++
		}
	}
	if dropped > 0 {
		return fmt.Errorf("[local.Publish] %s: dropped for %d endpoint(s)", c.name, dropped)
	}
	return nil
}

func (c *Channel) enqueue(msg broadcast.Message) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.inbox <- msg:
		return true
	default:
		return false
	}
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

func (c *Channel) dispatch() {
	defer close(c.done)
	for msg := range c.inbox {
		c.lock.Lock()
		subs := make([]func(broadcast.Message), 0, len(c.subs))
		for _, fn := range c.subs {
			subs = append(subs, fn)
		}
		c.lock.Unlock()

		for _, fn := range subs {
			fn(msg)
		}
	}
}

// Close detaches the endpoint from the hub and waits for queued messages to
// be dispatched. It is safe to call more than once.
func (c *Channel) Close() error {
	c.lock.Lock()
	if c.closed {
		c.lock.Unlock()
		return nil
	}
	c.closed = true
	close(c.inbox)
	c.lock.Unlock()

	c.hub.remove(c)
	<-c.done
	return nil
}
