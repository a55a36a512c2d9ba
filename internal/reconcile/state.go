package reconcile

import (
	"time"

	"github.com/stwalsh4118/simulcast/internal/timeline"
)

// State is the reconciliation state machine value
type State int

const (
	// StateInitializing means a player is being created or has not reported ready
	StateInitializing State = iota
	// StateSynced means the player matches the computed position
	StateSynced
	// StateCorrecting means a load or seek is being issued
	StateCorrecting
	// StateError means the player failed and a retry is scheduled
	StateError
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateSynced:
		return "synced"
	case StateCorrecting:
		return "correcting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Status labels shown to viewers
const (
	LabelSyncing = "syncing"
	LabelLive    = "live"
	LabelError   = "error"
)

// Trigger names what started a reconciliation pass
type Trigger int

const (
	TriggerTick Trigger = iota
	TriggerReady
	TriggerBroadcast
	TriggerEnded
	TriggerEndDetected
	TriggerManual
)

// String returns the string representation of Trigger
func (t Trigger) String() string {
	switch t {
	case TriggerTick:
		return "tick"
	case TriggerReady:
		return "ready"
	case TriggerBroadcast:
		return "broadcast"
	case TriggerEnded:
		return "ended"
	case TriggerEndDetected:
		return "end_detected"
	case TriggerManual:
		return "manual"
	default:
		return "unknown"
	}
}

// Outcome reports what a pass did
type Outcome int

const (
	// OutcomeBusy means another pass held the lock
	OutcomeBusy Outcome = iota
	// OutcomeNotReady means there was no ready player to correct
	OutcomeNotReady
	// OutcomeCoolingDown means an end transition just happened
	OutcomeCoolingDown
	// OutcomeInSync means no command was needed
	OutcomeInSync
	// OutcomeSeeked means a seek was issued
	OutcomeSeeked
	// OutcomeLoaded means a load was issued
	OutcomeLoaded
	// OutcomeIgnored means a message was stale, our own, or irrelevant
	OutcomeIgnored
	// OutcomeUnsupported means a correction was needed but the player cannot seek
	OutcomeUnsupported
	// OutcomeFailed means a player command failed
	OutcomeFailed
)

// String returns the string representation of Outcome
func (o Outcome) String() string {
	switch o {
	case OutcomeBusy:
		return "busy"
	case OutcomeNotReady:
		return "not_ready"
	case OutcomeCoolingDown:
		return "cooling_down"
	case OutcomeInSync:
		return "in_sync"
	case OutcomeSeeked:
		return "seeked"
	case OutcomeLoaded:
		return "loaded"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeUnsupported:
		return "unsupported"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is a snapshot of a Syncer for display
type Status struct {
	Origin          string
	State           State
	Label           string
	ProgramID       string
	ProgramTitle    string
	ProgramIndex    int
	OffsetSeconds   float64
	Upcoming        []timeline.UpcomingProgram
	EndedTransition bool
	ClockSkew       time.Duration
	ServerMismatch  bool
	LastError       string
}
