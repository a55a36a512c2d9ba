package broadcast

import "context"

// Handler receives messages published by other members of a channel.
// Handlers run on the publisher's goroutine and must not block.
type Handler func(Message)

// Channel is a named, host-scoped publish/subscribe handle
type Channel interface {
	// Publish sends msg to every other member of the channel
	Publish(ctx context.Context, msg Message) error

	// Subscribe registers h and returns a function that removes it
	Subscribe(h Handler) (unsubscribe func())

	// Close leaves the channel; further publishes fail with ErrClosed
	Close() error
}

// Observer receives delivery counts; direction is "sent", "received" or "dropped"
type Observer interface {
	IncBroadcast(direction string)
}

// handlerSet is the subscription bookkeeping shared by channel implementations
type handlerSet struct {
	nextID   uint64
	handlers map[uint64]Handler
}

func (s *handlerSet) add(h Handler) uint64 {
	if s.handlers == nil {
		s.handlers = make(map[uint64]Handler)
	}
	s.nextID++
	s.handlers[s.nextID] = h
	return s.nextID
}

func (s *handlerSet) remove(id uint64) {
	delete(s.handlers, id)
}

func (s *handlerSet) snapshot() []Handler {
	out := make([]Handler, 0, len(s.handlers))
	for _, h := range s.handlers {
		out = append(out, h)
	}
	return out
}
