package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/stwalsh4118/simulcast/internal/models"
	"golang.org/x/sync/singleflight"
)

const (
	crossCheckBreakerThreshold = 3
	crossCheckBreakerReset     = 30 * time.Second
	crossCheckRequestTimeout   = 5 * time.Second
)

// RemotePosition is the server's view of the schedule position
type RemotePosition struct {
	ProgramID     string
	ProgramIndex  int
	OffsetSeconds int64
	TotalDuration int64
	ServerTime    time.Time
	Epoch         time.Time

	// ClockSkew estimates server clock minus local clock, corrected for half the round trip
	ClockSkew time.Duration
	FetchedAt time.Time
}

// currentPayload mirrors the fields of GET /api/schedule/current this client reads
type currentPayload struct {
	Program struct {
		ID string `json:"id"`
	} `json:"program"`
	ProgramIndex  int   `json:"program_index"`
	OffsetSeconds int64 `json:"offset_seconds"`
	TotalDuration int64 `json:"total_duration"`
	ServerTime    int64 `json:"server_time"`
	EpochStart    int64 `json:"epoch_start"`
}

// lineupPayload mirrors GET /api/schedule
type lineupPayload struct {
	EpochStart int64            `json:"epoch_start"`
	Programs   []models.Program `json:"programs"`
}

// CrossChecker fetches the server's position as an advisory check on local computation.
// Results are cached for a TTL and concurrent fetches share one request.
type CrossChecker struct {
	baseURL string
	client  *http.Client
	ttl     time.Duration
	now     func() time.Time
	breaker *CircuitBreaker
	group   singleflight.Group

	mu        sync.Mutex
	cached    *RemotePosition
	fetchedAt time.Time
}

// NewCrossChecker creates a cross-checker against a server base URL such as http://localhost:8080.
// A nil client uses one with a 5s timeout.
func NewCrossChecker(baseURL string, ttl time.Duration, client *http.Client) *CrossChecker {
	if client == nil {
		client = &http.Client{Timeout: crossCheckRequestTimeout}
	}
	return &CrossChecker{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		ttl:     ttl,
		now:     time.Now,
		breaker: NewCircuitBreaker(crossCheckBreakerThreshold, crossCheckBreakerReset),
	}
}

// Current returns the server position, served from cache while fresh
func (c *CrossChecker) Current(ctx context.Context) (*RemotePosition, error) {
	c.mu.Lock()
	if c.cached != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		cached := *c.cached
		c.mu.Unlock()
		return &cached, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("current", func() (interface{}, error) {
		var pos *RemotePosition
		err := c.breaker.Call(func() error {
			var fetchErr error
			pos, fetchErr = c.fetchCurrent(ctx)
			return fetchErr
		})
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cached = pos
		c.fetchedAt = pos.FetchedAt
		c.mu.Unlock()
		return pos, nil
	})
	if err != nil {
		return nil, ClassifyError(err, ErrorTypeTransport)
	}

	pos := *v.(*RemotePosition)
	return &pos, nil
}

// Invalidate drops the cached position
func (c *CrossChecker) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = nil
}

// Breaker exposes the circuit breaker state for status reporting
func (c *CrossChecker) Breaker() *CircuitBreaker {
	return c.breaker
}

func (c *CrossChecker) fetchCurrent(ctx context.Context) (*RemotePosition, error) {
	var payload currentPayload
	sent := c.now()
	if err := c.getJSON(ctx, "/api/schedule/current", &payload); err != nil {
		return nil, err
	}
	received := c.now()

	if payload.Program.ID == "" || payload.ServerTime <= 0 {
		return nil, fmt.Errorf("missing program or server time: %w", ErrUnexpectedReply)
	}

	serverTime := time.UnixMilli(payload.ServerTime)
	midpoint := sent.Add(received.Sub(sent) / 2)

	return &RemotePosition{
		ProgramID:     payload.Program.ID,
		ProgramIndex:  payload.ProgramIndex,
		OffsetSeconds: payload.OffsetSeconds,
		TotalDuration: payload.TotalDuration,
		ServerTime:    serverTime,
		Epoch:         time.UnixMilli(payload.EpochStart).UTC(),
		ClockSkew:     serverTime.Sub(midpoint),
		FetchedAt:     received,
	}, nil
}

// Lineup fetches the server's epoch and program list, for contexts without a local lineup
func (c *CrossChecker) Lineup(ctx context.Context) (time.Time, []*models.Program, error) {
	var payload lineupPayload
	if err := c.getJSON(ctx, "/api/schedule", &payload); err != nil {
		return time.Time{}, nil, ClassifyError(err, ErrorTypeTransport)
	}
	if payload.EpochStart <= 0 {
		return time.Time{}, nil, fmt.Errorf("missing epoch: %w", ErrUnexpectedReply)
	}

	programs := make([]*models.Program, len(payload.Programs))
	for i := range payload.Programs {
		programs[i] = &payload.Programs[i]
	}
	return time.UnixMilli(payload.EpochStart).UTC(), programs, nil
}

func (c *CrossChecker) getJSON(ctx context.Context, path string, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, crossCheckRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s failed: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request %s returned %d: %w", path, resp.StatusCode, ErrUnexpectedReply)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
