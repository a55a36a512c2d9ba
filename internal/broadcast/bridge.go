package broadcast

import (
	"context"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stwalsh4118/simulcast/internal/logger"
)

const (
	bridgeOutboxSize   = 32
	bridgePingInterval = 30 * time.Second
)

// Bridge relays between a websocket peer and a hub endpoint until the peer goes away,
// a write fails, or ctx ends. Messages the peer cannot keep up with are dropped.
// The endpoint is not closed; the caller owns it.
func Bridge(ctx context.Context, conn *websocket.Conn, endpoint *Endpoint, obs Observer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	count := func(direction string) {
		if obs != nil {
			obs.IncBroadcast(direction)
		}
	}

	outbox := make(chan Message, bridgeOutboxSize)
	unsubscribe := endpoint.Subscribe(func(msg Message) {
		select {
		case outbox <- msg:
		default:
			count("dropped")
		}
	})
	defer unsubscribe()

	go keepalive(ctx, conn, bridgePingInterval)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-outbox:
				writeCtx, writeCancel := context.WithTimeout(ctx, defaultWriteTimeout)
				err := wsjson.Write(writeCtx, conn, msg)
				writeCancel()
				if err != nil {
					// A peer that cannot receive is dropped from the channel
					logger.Log.Debug().
						Err(err).
						Str("channel", endpoint.Name()).
						Msg("Sync peer write failed")
					cancel()
					return
				}
				count("sent")
			}
		}
	}()

	for {
		var msg Message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if isNormalClose(err) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		count("received")

		if err := endpoint.Publish(ctx, msg); err != nil {
			logger.Log.Debug().
				Err(err).
				Str("channel", endpoint.Name()).
				Msg("Rejected sync message from peer")
			count("dropped")
		}
	}
}

// keepalive pings the peer so idle proxies keep the connection open
func keepalive(ctx context.Context, conn *websocket.Conn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, defaultWriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
