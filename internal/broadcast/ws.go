package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stwalsh4118/simulcast/internal/logger"
)

const defaultWriteTimeout = 5 * time.Second

// WSChannel is a Channel backed by a websocket connection to a server-side Hub.
// Messages published here reach every other member of the server's channel.
type WSChannel struct {
	conn     *websocket.Conn
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	observer Observer

	mu       sync.RWMutex
	handlers handlerSet
	closed   bool
}

var _ Channel = (*WSChannel)(nil)

// DialWS connects to a sync endpoint such as ws://host:8080/api/sync/ws?channel=simulcast-sync.
// obs may be nil.
func DialWS(ctx context.Context, url string, obs Observer) (*WSChannel, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial sync endpoint: %w", err)
	}
	return NewWSChannel(conn, obs), nil
}

// NewWSChannel wraps an established connection and starts its read loop
func NewWSChannel(conn *websocket.Conn, obs Observer) *WSChannel {
	ctx, cancel := context.WithCancel(context.Background())
	c := &WSChannel{
		conn:     conn,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		observer: obs,
	}
	go c.readLoop()
	return c
}

// Publish writes msg to the server
func (c *WSChannel) Publish(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, defaultWriteTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, c.conn, msg); err != nil {
		return fmt.Errorf("failed to publish sync message: %w", err)
	}
	c.count("sent")
	return nil
}

// Subscribe registers a handler for messages relayed by the server
func (c *WSChannel) Subscribe(h Handler) func() {
	c.mu.Lock()
	id := c.handlers.add(h)
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.handlers.remove(id)
			c.mu.Unlock()
		})
	}
}

// Done is closed once the connection is gone
func (c *WSChannel) Done() <-chan struct{} {
	return c.done
}

// Close shuts the connection down with a normal closure status
func (c *WSChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.handlers = handlerSet{}
	c.mu.Unlock()

	err := c.conn.Close(websocket.StatusNormalClosure, "")
	c.cancel()
	<-c.done

	if err != nil && !isNormalClose(err) {
		return fmt.Errorf("failed to close sync connection: %w", err)
	}
	return nil
}

func (c *WSChannel) readLoop() {
	defer close(c.done)

	for {
		var msg Message
		if err := wsjson.Read(c.ctx, c.conn, &msg); err != nil {
			if !isNormalClose(err) && c.ctx.Err() == nil {
				logger.Log.Debug().
					Err(err).
					Msg("Sync connection read ended")
			}
			return
		}

		if err := msg.Validate(); err != nil {
			logger.Log.Debug().
				Err(err).
				Msg("Dropping invalid sync message")
			c.count("dropped")
			continue
		}

		c.count("received")

		c.mu.RLock()
		handlers := c.handlers.snapshot()
		c.mu.RUnlock()
		for _, h := range handlers {
			h(msg)
		}
	}
}

func (c *WSChannel) count(direction string) {
	if c.observer != nil {
		c.observer.IncBroadcast(direction)
	}
}

// isNormalClose reports errors that mean the peer or we closed the connection on purpose
func isNormalClose(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}
