package broadcast

import (
	"context"
	"sync"
)

// Hub is an in-process registry of named channels. Every Endpoint opened with the
// same name receives what the others publish.
type Hub struct {
	mu      sync.RWMutex
	members map[string]map[*Endpoint]struct{}
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		members: make(map[string]map[*Endpoint]struct{}),
	}
}

// Open joins the named channel
func (h *Hub) Open(name string) *Endpoint {
	e := &Endpoint{hub: h, name: name}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.members[name] == nil {
		h.members[name] = make(map[*Endpoint]struct{})
	}
	h.members[name][e] = struct{}{}
	return e
}

// Count returns the number of open endpoints on the named channel
func (h *Hub) Count(name string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members[name])
}

func (h *Hub) leave(e *Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.members[e.name], e)
	if len(h.members[e.name]) == 0 {
		delete(h.members, e.name)
	}
}

// deliver hands msg to every endpoint on the channel except the sender
func (h *Hub) deliver(sender *Endpoint, msg Message) int {
	h.mu.RLock()
	targets := make([]*Endpoint, 0, len(h.members[sender.name]))
	for e := range h.members[sender.name] {
		if e != sender {
			targets = append(targets, e)
		}
	}
	h.mu.RUnlock()

	for _, e := range targets {
		e.dispatch(msg)
	}
	return len(targets)
}

// Endpoint is one member's handle on a Hub channel. It implements Channel.
type Endpoint struct {
	hub  *Hub
	name string

	mu       sync.RWMutex
	handlers handlerSet
	closed   bool
}

var _ Channel = (*Endpoint)(nil)

// Name returns the channel name
func (e *Endpoint) Name() string {
	return e.name
}

// Publish sends msg to the other endpoints on this channel
func (e *Endpoint) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	e.hub.deliver(e, msg)
	return nil
}

// Subscribe registers a handler for messages from other endpoints
func (e *Endpoint) Subscribe(h Handler) func() {
	e.mu.Lock()
	id := e.handlers.add(h)
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			e.handlers.remove(id)
			e.mu.Unlock()
		})
	}
}

// Close leaves the channel. It is safe to call more than once.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.handlers = handlerSet{}
	e.mu.Unlock()

	e.hub.leave(e)
	return nil
}

func (e *Endpoint) dispatch(msg Message) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return
	}
	handlers := e.handlers.snapshot()
	e.mu.RUnlock()

	for _, h := range handlers {
		h(msg)
	}
}
