// Package broadcast carries best-effort sync messages between viewing contexts
// that share a channel name. Delivery is at-most-once and never back to the sender.
package broadcast

import (
	"fmt"
	"time"
)

// Kind identifies what a sync message announces
type Kind string

const (
	// KindSync announces a correction or the presence of a new context
	KindSync Kind = "sync"
	// KindForceSync asks every receiver to reconcile immediately
	KindForceSync Kind = "force-sync"
	// KindEnded announces that the sender performed an end-of-program transition
	KindEnded Kind = "ended"
)

// Message is the record exchanged between viewing contexts
type Message struct {
	Kind      Kind    `json:"kind"`
	ProgramID string  `json:"programId"`
	Offset    float64 `json:"offset"`
	Index     int     `json:"index"`
	Timestamp int64   `json:"timestamp"` // unix milliseconds
	Origin    string  `json:"origin,omitempty"`
}

// NewMessage stamps a message with the sender's clock
func NewMessage(kind Kind, programID string, offset float64, index int, origin string, now time.Time) Message {
	return Message{
		Kind:      kind,
		ProgramID: programID,
		Offset:    offset,
		Index:     index,
		Timestamp: now.UnixMilli(),
		Origin:    origin,
	}
}

// Time returns the send instant
func (m Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// Age returns how long ago the message was sent, as seen from now
func (m Message) Age(now time.Time) time.Duration {
	return now.Sub(m.Time())
}

// IsStale reports whether the send stamp is at least window away from now in
// either direction. A sender whose clock runs far ahead is treated like an old one.
func (m Message) IsStale(now time.Time, window time.Duration) bool {
	return m.Age(now).Abs() >= window
}

// Validate checks the fields every receiver relies on
func (m Message) Validate() error {
	switch m.Kind {
	case KindSync, KindForceSync, KindEnded:
	default:
		return fmt.Errorf("unknown kind %q: %w", m.Kind, ErrInvalidMessage)
	}
	if m.Timestamp <= 0 {
		return fmt.Errorf("missing timestamp: %w", ErrInvalidMessage)
	}
	if m.Index < 0 {
		return fmt.Errorf("negative index %d: %w", m.Index, ErrInvalidMessage)
	}
	return nil
}
