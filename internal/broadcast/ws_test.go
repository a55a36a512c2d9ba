package broadcast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *countingObserver) IncBroadcast(direction string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = make(map[string]int)
	}
	o.counts[direction]++
}

func (o *countingObserver) get(direction string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counts[direction]
}

// newBridgeServer serves Bridge on a test server backed by hub
func newBridgeServer(t *testing.T, hub *Hub, obs Observer) string {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		endpoint := hub.Open(r.URL.Query().Get("channel"))
		defer func() { _ = endpoint.Close() }()
		_ = Bridge(r.Context(), conn, endpoint, obs)
		_ = conn.CloseNow()
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/?channel=tv"
}

func dialTest(t *testing.T, url string, obs Observer) *WSChannel {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ch, err := DialWS(ctx, url, obs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Close() })
	return ch
}

func TestWSChannel_RelaysThroughHub(t *testing.T) {
	hub := NewHub()
	serverObs := &countingObserver{}
	url := newBridgeServer(t, hub, serverObs)

	local := hub.Open("tv")
	var localRec recorder
	local.Subscribe(localRec.handle)

	remoteA := dialTest(t, url, nil)
	remoteB := dialTest(t, url, nil)
	var recA, recB recorder
	remoteA.Subscribe(recA.handle)
	remoteB.Subscribe(recB.handle)

	require.Eventually(t, func() bool { return hub.Count("tv") == 3 }, 2*time.Second, 10*time.Millisecond)

	// Remote publish reaches the in-process member and the other remote, not itself
	msg := testMessage(KindForceSync)
	require.NoError(t, remoteA.Publish(context.Background(), msg))

	require.Eventually(t, func() bool {
		return len(localRec.messages()) == 1 && len(recB.messages()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, msg, localRec.messages()[0])
	assert.Equal(t, msg, recB.messages()[0])

	// In-process publish reaches both remotes
	require.NoError(t, local.Publish(context.Background(), testMessage(KindEnded)))
	require.Eventually(t, func() bool {
		return len(recA.messages()) == 1 && len(recB.messages()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.Never(t, func() bool { return len(recA.messages()) > 1 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.GreaterOrEqual(t, serverObs.get("received"), 1)
}

func TestWSChannel_ClosedPeerLeavesHub(t *testing.T) {
	hub := NewHub()
	url := newBridgeServer(t, hub, nil)

	remote := dialTest(t, url, nil)
	require.Eventually(t, func() bool { return hub.Count("tv") == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, remote.Close())
	require.Eventually(t, func() bool { return hub.Count("tv") == 0 }, 2*time.Second, 10*time.Millisecond)

	select {
	case <-remote.Done():
	default:
		t.Fatal("read loop should have stopped")
	}
	assert.True(t, IsClosed(remote.Publish(context.Background(), testMessage(KindSync))))
}

func TestDialWS_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := DialWS(ctx, "ws://127.0.0.1:1/api/sync/ws", nil)
	assert.Error(t, err)
}
