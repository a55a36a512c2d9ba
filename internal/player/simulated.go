// Package player provides a clock-driven player for headless viewing contexts.
// It plays nothing; it reports the position a real player would be at, which is
// enough to exercise reconciliation from the command line and in tests.
package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stwalsh4118/simulcast/internal/logger"
	"github.com/stwalsh4118/simulcast/internal/reconcile"
	"github.com/stwalsh4118/simulcast/internal/timeline"
)

const eventBufferSize = 16

var (
	// ErrUnknownMedia means the player has no duration for a media reference
	ErrUnknownMedia = errors.New("unknown media reference")
	// ErrClosed means the player has been closed
	ErrClosed = errors.New("player closed")
)

// DurationLookup returns the length in seconds of a media reference
type DurationLookup func(ref string) (int64, bool)

// DurationsFromSchedule looks media lengths up in a schedule
func DurationsFromSchedule(s *timeline.Schedule) DurationLookup {
	durations := make(map[string]int64, s.Len())
	for _, p := range s.Programs() {
		durations[p.MediaRef] = p.Duration
	}
	return func(ref string) (int64, bool) {
		d, ok := durations[ref]
		return d, ok
	}
}

// Options configures a Simulated player
type Options struct {
	// Rate is the playback speed; values other than 1 make the player drift
	Rate float64

	// StartupDelay is how long the player takes to become ready
	StartupDelay time.Duration

	Durations DurationLookup
	Clock     func() time.Time
}

// Simulated is a player whose position advances with the clock
type Simulated struct {
	durations    DurationLookup
	now          func() time.Time
	startupDelay time.Duration
	log          zerolog.Logger

	mu         sync.Mutex
	rate       float64
	ready      bool
	ref        string
	duration   float64
	base       float64
	anchor     time.Time
	paused     bool
	ended      bool
	muted      bool
	volume     int
	closed     bool
	events     chan reconcile.PlayerEvent
	readyTimer *time.Timer
	endTimer   *time.Timer
}

var _ reconcile.Player = (*Simulated)(nil)

// NewSimulated creates a player loaded with ref at startSeconds. It becomes ready after opts.StartupDelay.
func NewSimulated(ref string, startSeconds float64, opts Options) (*Simulated, error) {
	if opts.Durations == nil {
		return nil, errors.New("duration lookup is required")
	}
	if opts.Rate <= 0 {
		opts.Rate = 1
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	p := &Simulated{
		durations:    opts.Durations,
		now:          opts.Clock,
		startupDelay: opts.StartupDelay,
		log:          logger.Component("player"),
		rate:         opts.Rate,
		volume:       100,
		events:       make(chan reconcile.PlayerEvent, eventBufferSize),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.loadLocked(ref, startSeconds); err != nil {
		return nil, err
	}
	p.readyTimer = time.AfterFunc(opts.StartupDelay, p.becomeReady)
	return p, nil
}

// Factory returns a reconcile.PlayerFactory producing simulated players
func Factory(opts Options) reconcile.PlayerFactory {
	return func(ctx context.Context, ref string, startSeconds float64) (reconcile.Player, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return NewSimulated(ref, startSeconds, opts)
	}
}

// Capabilities reports full control
func (p *Simulated) Capabilities() reconcile.Capabilities {
	return reconcile.Capabilities{Seek: true, Volume: true, ReportsTime: true}
}

// Ready reports whether startup has finished
func (p *Simulated) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready && !p.closed
}

// Load replaces the program and plays from startSeconds
func (p *Simulated) Load(ref string, startSeconds float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if err := p.loadLocked(ref, startSeconds); err != nil {
		return err
	}
	p.paused = false
	p.scheduleEndLocked()

	p.log.Debug().
		Str("media_ref", ref).
		Float64("start_seconds", startSeconds).
		Msg("Loaded media")
	return nil
}

// Seek moves within the loaded program
func (p *Simulated) Seek(offsetSeconds float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.base = clampOffset(offsetSeconds, p.duration)
	p.anchor = p.now()
	p.ended = false
	p.scheduleEndLocked()
	return nil
}

// Play resumes playback
func (p *Simulated) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.paused {
		p.paused = false
		p.anchor = p.now()
		p.scheduleEndLocked()
	}
	return nil
}

// Pause stops playback as a viewer or the platform would, and reports it
func (p *Simulated) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.paused {
		return
	}
	p.base = p.offsetLocked()
	p.paused = true
	p.stopEndTimerLocked()
	p.emitLocked(reconcile.PlayerEvent{Type: reconcile.EventPaused})
}

// Fail reports a playback error
func (p *Simulated) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.emitLocked(reconcile.PlayerEvent{Type: reconcile.EventError, Err: err})
}

// SetRate changes playback speed from now on
func (p *Simulated) SetRate(rate float64) {
	if rate <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base = p.offsetLocked()
	p.anchor = p.now()
	p.rate = rate
	p.scheduleEndLocked()
}

// CurrentOffset returns the playback position in seconds
func (p *Simulated) CurrentOffset() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrClosed
	}
	return p.offsetLocked(), nil
}

// MediaRef returns the loaded media reference
func (p *Simulated) MediaRef() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ref
}

// Mute silences output
func (p *Simulated) Mute() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = true
	return nil
}

// Unmute restores output
func (p *Simulated) Unmute() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = false
	return nil
}

// SetVolume sets the level in 0..100
func (p *Simulated) SetVolume(level int) error {
	if level < 0 || level > 100 {
		return fmt.Errorf("volume %d out of range", level)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = level
	return nil
}

// Muted reports the mute state
func (p *Simulated) Muted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

// Volume reports the volume level
func (p *Simulated) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Events delivers player events until Close
func (p *Simulated) Events() <-chan reconcile.PlayerEvent {
	return p.events
}

// Close stops the player and closes the event stream
func (p *Simulated) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.readyTimer != nil {
		p.readyTimer.Stop()
	}
	p.stopEndTimerLocked()
	close(p.events)
	return nil
}

func (p *Simulated) becomeReady() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.ready = true
	p.anchor = p.now()
	p.scheduleEndLocked()
	p.emitLocked(reconcile.PlayerEvent{Type: reconcile.EventReady})
}

func (p *Simulated) reachEnd() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.paused || p.ended {
		return
	}
	p.base = p.duration
	p.anchor = p.now()
	p.ended = true
	p.emitLocked(reconcile.PlayerEvent{Type: reconcile.EventEnded})
}

// loadLocked must hold mu
func (p *Simulated) loadLocked(ref string, startSeconds float64) error {
	duration, ok := p.durations(ref)
	if !ok {
		return fmt.Errorf("%s: %w", ref, ErrUnknownMedia)
	}
	p.ref = ref
	p.duration = float64(duration)
	p.base = clampOffset(startSeconds, p.duration)
	p.anchor = p.now()
	p.ended = false
	return nil
}

// offsetLocked must hold mu. The position does not advance before ready.
func (p *Simulated) offsetLocked() float64 {
	if !p.ready || p.paused || p.ended {
		return p.base
	}
	elapsed := p.now().Sub(p.anchor).Seconds() * p.rate
	return clampOffset(p.base+elapsed, p.duration)
}

// scheduleEndLocked must hold mu
func (p *Simulated) scheduleEndLocked() {
	p.stopEndTimerLocked()
	if !p.ready || p.paused {
		return
	}
	remaining := (p.duration - p.offsetLocked()) / p.rate
	p.endTimer = time.AfterFunc(time.Duration(remaining*float64(time.Second)), p.reachEnd)
}

// stopEndTimerLocked must hold mu
func (p *Simulated) stopEndTimerLocked() {
	if p.endTimer != nil {
		p.endTimer.Stop()
		p.endTimer = nil
	}
}

// emitLocked must hold mu; events are dropped when nobody is reading
func (p *Simulated) emitLocked(ev reconcile.PlayerEvent) {
	select {
	case p.events <- ev:
	default:
		p.log.Warn().
			Str("event", ev.Type.String()).
			Msg("Player event dropped, buffer full")
	}
}

func clampOffset(offset, duration float64) float64 {
	if offset < 0 {
		return 0
	}
	if offset > duration {
		return duration
	}
	return offset
}
