package reconcile

import "context"

// Capabilities lists optional player features. They are read once when a
// player is attached; calls to unsupported features are skipped.
type Capabilities struct {
	Seek        bool
	Volume      bool
	ReportsTime bool
}

// PlayerEventType identifies a player event
type PlayerEventType int

const (
	// EventReady means the player can accept commands
	EventReady PlayerEventType = iota
	// EventEnded means the loaded program played to its end
	EventEnded
	// EventPaused means playback was paused by something other than the syncer
	EventPaused
	// EventError means the player failed and must be replaced
	EventError
)

// String returns the string representation of PlayerEventType
func (t PlayerEventType) String() string {
	switch t {
	case EventReady:
		return "ready"
	case EventEnded:
		return "ended"
	case EventPaused:
		return "paused"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// PlayerEvent is emitted by a player on its Events channel
type PlayerEvent struct {
	Type PlayerEventType
	Err  error
}

// Player is the controllable rendering engine a viewing context drives
type Player interface {
	Capabilities() Capabilities

	// Ready reports whether the player currently accepts commands
	Ready() bool

	// Load replaces the current program and starts playing at startSeconds
	Load(ref string, startSeconds float64) error

	// Seek moves within the loaded program
	Seek(offsetSeconds float64) error

	// Play resumes playback
	Play() error

	// CurrentOffset returns the playback position in seconds
	CurrentOffset() (float64, error)

	Mute() error
	Unmute() error

	// SetVolume takes a level in 0..100
	SetVolume(level int) error

	// Events delivers player events; it is closed when the player is closed
	Events() <-chan PlayerEvent

	Close() error
}

// PlayerFactory creates a player already loaded with ref at startSeconds
type PlayerFactory func(ctx context.Context, ref string, startSeconds float64) (Player, error)
