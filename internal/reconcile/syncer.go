// Package reconcile keeps a live player aligned with the schedule position computed
// from the wall clock. A Syncer corrects drift on a fixed tick, follows program ends,
// coordinates with other viewing contexts over a broadcast channel, and recovers from
// player failures.
package reconcile

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stwalsh4118/simulcast/internal/broadcast"
	"github.com/stwalsh4118/simulcast/internal/logger"
	"github.com/stwalsh4118/simulcast/internal/timeline"
)

// Syncer drives one viewing context. All corrections go through a single
// compare-and-swap lock; a pass that finds the lock held does nothing.
type Syncer struct {
	schedule *timeline.Schedule
	factory  PlayerFactory
	opts     Options
	channel  broadcast.Channel
	checker  *CrossChecker
	recorder Recorder
	now      func() time.Time
	origin   string
	log      zerolog.Logger

	lock  atomic.Bool
	alive atomic.Bool

	mu             sync.RWMutex
	player         Player
	caps           Capabilities
	state          State
	lastProgramID  string
	lastPosition   timeline.Position
	upcoming       []timeline.UpcomingProgram
	transitioning  bool
	cooldownUntil  time.Time
	retryAttempt   int
	lastError      error
	muted          bool
	volume         int
	clockSkew      time.Duration
	serverMismatch bool
	readyTimer     *time.Timer
	retryTimer     *time.Timer
	announceTimer  *time.Timer
	unsubscribe    func()
	started        bool
	stopped        bool

	inbox        chan broadcast.Message
	stopChan     chan struct{}
	done         chan struct{}
	teardownOnce sync.Once
}

// NewSyncer creates a syncer for the schedule. Players are created through factory.
func NewSyncer(schedule *timeline.Schedule, factory PlayerFactory, opts Options) *Syncer {
	origin := uuid.NewString()
	s := &Syncer{
		schedule: schedule,
		factory:  factory,
		opts:     opts,
		recorder: nopRecorder{},
		now:      time.Now,
		origin:   origin,
		log:      logger.Component("reconcile").With().Str("origin", origin).Logger(),
		state:    StateInitializing,
		muted:    opts.StartMuted,
		volume:   clampVolume(opts.Volume),
		inbox:    make(chan broadcast.Message, inboxSize),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.alive.Store(true)
	return s
}

// WithBroadcast attaches a cross-context channel. The syncer closes it on Stop.
func (s *Syncer) WithBroadcast(ch broadcast.Channel) *Syncer {
	s.channel = ch
	return s
}

// WithCrossChecker enables periodic comparison against the server's position
func (s *Syncer) WithCrossChecker(c *CrossChecker) *Syncer {
	s.checker = c
	return s
}

// WithRecorder attaches a metrics recorder
func (s *Syncer) WithRecorder(r Recorder) *Syncer {
	if r != nil {
		s.recorder = r
	}
	return s
}

// WithClock replaces the wall clock
func (s *Syncer) WithClock(now func() time.Time) *Syncer {
	if now != nil {
		s.now = now
	}
	return s
}

// Origin identifies this context in broadcast messages
func (s *Syncer) Origin() string {
	return s.origin
}

// Done is closed when the event loop has exited
func (s *Syncer) Done() <-chan struct{} {
	return s.done
}

// Start creates the player at the current position and runs the event loop until ctx ends or Stop is called
func (s *Syncer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSyncerStopped
	}
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true

	if s.channel != nil {
		s.unsubscribe = s.channel.Subscribe(s.enqueue)
		delay := s.opts.AnnounceDelay
		if delay <= 0 {
			delay = time.Millisecond
		}
		s.resetTimerLocked(&s.announceTimer, delay)
	}
	s.mu.Unlock()

	s.log.Info().
		Int("programs", s.schedule.Len()).
		Dur("tick_interval", s.opts.TickInterval).
		Float64("drift_threshold", s.opts.DriftThreshold).
		Msg("Starting syncer")

	s.initialize()
	if s.checker != nil {
		s.crossCheckAsync()
	}

	go s.run(ctx)
	return nil
}

// Stop halts the event loop and releases the player and broadcast handle
func (s *Syncer) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	close(s.stopChan)
	if started {
		<-s.done
	} else {
		s.teardown()
	}
}

func (s *Syncer) run(ctx context.Context) {
	defer close(s.done)
	defer s.teardown()

	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	var crossCheckC <-chan time.Time
	if s.checker != nil && s.opts.CrossCheckInterval > 0 {
		crossTicker := time.NewTicker(s.opts.CrossCheckInterval)
		defer crossTicker.Stop()
		crossCheckC = crossTicker.C
	}

	for {
		events, readyC, retryC, announceC := s.waitSources()

		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.Reconcile(TriggerTick)
		case ev, ok := <-events:
			if !ok {
				s.fail(NewSyncError(ErrorTypePlayerFailed, "player event stream closed", nil))
				continue
			}
			s.handlePlayerEvent(ev)
		case msg := <-s.inbox:
			s.HandleMessage(msg)
		case <-readyC:
			s.clearTimer(&s.readyTimer)
			s.CheckReadyDrift()
		case <-retryC:
			s.clearTimer(&s.retryTimer)
			s.initialize()
		case <-announceC:
			s.clearTimer(&s.announceTimer)
			s.announce(broadcast.KindSync, timeline.CalculatePosition(s.schedule, s.now()))
		case <-crossCheckC:
			s.crossCheckAsync()
		}
	}
}

// waitSources snapshots the channels the event loop selects on
func (s *Syncer) waitSources() (events <-chan PlayerEvent, ready, retry, announce <-chan time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.player != nil {
		events = s.player.Events()
	}
	return events, timerC(s.readyTimer), timerC(s.retryTimer), timerC(s.announceTimer)
}

// initialize creates a player at the position computed for now
func (s *Syncer) initialize() {
	if !s.alive.Load() {
		return
	}

	now := s.now()
	pos := timeline.CalculatePosition(s.schedule, now)
	s.setState(StateInitializing)

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	player, err := s.factory(ctx, pos.Program.MediaRef, pos.OffsetFloat())
	cancel()
	if err != nil {
		s.fail(NewSyncError(ErrorTypePlayerUnavailable, "player could not be created", err))
		return
	}

	caps := player.Capabilities()

	s.mu.Lock()
	s.player = player
	s.caps = caps
	s.lastProgramID = pos.Program.ID
	s.lastPosition = pos
	s.upcoming = timeline.Lookahead(s.schedule, pos, now, s.opts.UpcomingCount)
	s.lastError = nil
	s.mu.Unlock()

	s.log.Info().
		Str("program_id", pos.Program.ID).
		Int("program_index", pos.ProgramIndex).
		Float64("offset_seconds", pos.OffsetFloat()).
		Bool("can_seek", caps.Seek).
		Bool("reports_time", caps.ReportsTime).
		Msg("Player initialized")
}

// fail discards the player and schedules a re-initialization
func (s *Syncer) fail(serr *SyncError) {
	s.mu.Lock()
	player := s.player
	s.player = nil
	s.caps = Capabilities{}
	s.state = StateError
	s.lastError = serr
	s.lastProgramID = ""
	last := s.lastPosition

	base := s.opts.PlayerRetryBackoff
	if serr.Type == ErrorTypePlayerUnavailable {
		base = s.opts.InitRetryBackoff
	}
	delay := retryDelay(base, s.retryAttempt)
	s.retryAttempt++
	if s.alive.Load() {
		s.resetTimerLocked(&s.retryTimer, delay)
	}
	s.mu.Unlock()

	if player != nil {
		_ = player.Close()
	}
	s.recorder.IncPlayerErrors()

	s.log.Warn().
		Err(serr).
		Str("error_type", serr.Type.String()).
		Str("last_program_id", last.Program.ID).
		Dur("retry_in", delay).
		Msg("Player failed, scheduling re-initialization")
}

func (s *Syncer) handlePlayerEvent(ev PlayerEvent) {
	switch ev.Type {
	case EventReady:
		s.mu.Lock()
		s.retryAttempt = 0
		if s.state == StateInitializing {
			s.state = StateSynced
		}
		s.resetTimerLocked(&s.readyTimer, s.opts.ReadyCheckDelay)
		s.mu.Unlock()

		if err := s.applyAudio(); err != nil {
			s.log.Debug().Err(err).Msg("Failed to apply audio settings")
		}
	case EventEnded:
		s.HandleEnded()
	case EventPaused:
		s.resume()
	case EventError:
		if ev.Err == nil {
			s.fail(NewSyncError(ErrorTypePlayerFailed, "player reported an error", nil))
			return
		}
		s.fail(ClassifyError(ev.Err, ErrorTypePlayerFailed))
	}
}

// Reconcile runs one correction pass with the standard drift threshold
func (s *Syncer) Reconcile(trigger Trigger) Outcome {
	return s.correctWithLock(trigger, s.opts.DriftThreshold)
}

// CheckReadyDrift runs the one-off drift check that follows a player becoming ready
func (s *Syncer) CheckReadyDrift() Outcome {
	return s.correctWithLock(TriggerReady, s.opts.ReadyDriftThreshold)
}

// HandleEnded performs the end-of-program transition
func (s *Syncer) HandleEnded() Outcome {
	if !s.lock.CompareAndSwap(false, true) {
		return OutcomeBusy
	}
	defer s.lock.Store(false)
	return s.transition(TriggerEnded)
}

// HandleMessage applies a message from another viewing context
func (s *Syncer) HandleMessage(msg broadcast.Message) Outcome {
	if msg.Origin != "" && msg.Origin == s.origin {
		return OutcomeIgnored
	}

	now := s.now()
	if msg.IsStale(now, s.opts.StalenessWindow) {
		s.recorder.IncBroadcast("stale")
		s.log.Debug().
			Str("kind", string(msg.Kind)).
			Dur("age", msg.Age(now)).
			Msg("Ignoring stale sync message")
		return OutcomeIgnored
	}

	switch msg.Kind {
	case broadcast.KindSync, broadcast.KindForceSync:
		return s.correctWithLock(TriggerBroadcast, s.opts.DriftThreshold)
	case broadcast.KindEnded:
		pos := timeline.CalculatePosition(s.schedule, now)
		s.mu.RLock()
		loaded := s.lastProgramID
		s.mu.RUnlock()
		if pos.Program.ID == loaded {
			return OutcomeIgnored
		}

		if !s.lock.CompareAndSwap(false, true) {
			return OutcomeBusy
		}
		defer s.lock.Store(false)
		return s.transition(TriggerBroadcast)
	}
	return OutcomeIgnored
}

func (s *Syncer) correctWithLock(trigger Trigger, threshold float64) Outcome {
	if !s.lock.CompareAndSwap(false, true) {
		s.log.Debug().
			Str("trigger", trigger.String()).
			Msg("Reconciliation already in progress")
		return OutcomeBusy
	}
	defer s.lock.Store(false)
	return s.correct(trigger, threshold)
}

// correct must hold lock
func (s *Syncer) correct(trigger Trigger, threshold float64) Outcome {
	now := s.now()

	s.mu.Lock()
	if s.transitioning {
		if now.Before(s.cooldownUntil) {
			s.mu.Unlock()
			return OutcomeCoolingDown
		}
		s.transitioning = false
	}
	player, caps, loaded := s.player, s.caps, s.lastProgramID
	s.mu.Unlock()

	if player == nil || !player.Ready() {
		return OutcomeNotReady
	}

	pos := timeline.CalculatePosition(s.schedule, now)
	s.recordPosition(pos)

	if loaded != pos.Program.ID {
		return s.load(player, pos, now, trigger, broadcast.KindSync)
	}

	if !caps.ReportsTime {
		s.setState(StateSynced)
		return OutcomeInSync
	}

	current, err := player.CurrentOffset()
	if err != nil {
		s.log.Debug().Err(err).Msg("Player position unavailable")
		return OutcomeNotReady
	}

	if trigger == TriggerTick && current >= float64(pos.Program.Duration)-endDetectionMargin {
		return s.transition(TriggerEndDetected)
	}

	return s.seekIfDrifted(player, caps, pos, current, threshold, trigger)
}

// transition must hold lock
func (s *Syncer) transition(trigger Trigger) Outcome {
	now := s.now()

	s.mu.Lock()
	if s.transitioning && now.Before(s.cooldownUntil) {
		s.mu.Unlock()
		return OutcomeCoolingDown
	}
	player, caps, loaded := s.player, s.caps, s.lastProgramID
	if player == nil || !player.Ready() {
		s.mu.Unlock()
		return OutcomeNotReady
	}
	s.transitioning = true
	s.cooldownUntil = now.Add(s.opts.EndCooldown)
	s.mu.Unlock()

	pos := timeline.CalculatePosition(s.schedule, now)
	s.recordPosition(pos)

	if pos.Program.ID != loaded {
		s.recorder.IncTransitions()
		s.log.Info().
			Str("trigger", trigger.String()).
			Str("from_program_id", loaded).
			Str("to_program_id", pos.Program.ID).
			Msg("Program ended, advancing")
		return s.load(player, pos, now, trigger, broadcast.KindEnded)
	}

	// The wall clock still places us in this program, so the player ran ahead
	if !caps.ReportsTime {
		return OutcomeInSync
	}
	current, err := player.CurrentOffset()
	if err != nil {
		return OutcomeNotReady
	}
	return s.seekIfDrifted(player, caps, pos, current, s.opts.DriftThreshold, trigger)
}

func (s *Syncer) load(player Player, pos timeline.Position, now time.Time, trigger Trigger, kind broadcast.Kind) Outcome {
	s.setState(StateCorrecting)

	if err := player.Load(pos.Program.MediaRef, pos.OffsetFloat()); err != nil {
		s.fail(ClassifyError(err, ErrorTypeCommandFailed))
		return OutcomeFailed
	}
	s.recorder.IncSyncCommand("load")

	s.mu.Lock()
	s.lastProgramID = pos.Program.ID
	s.upcoming = timeline.Lookahead(s.schedule, pos, now, s.opts.UpcomingCount)
	s.state = StateSynced
	s.mu.Unlock()

	s.log.Info().
		Str("trigger", trigger.String()).
		Str("program_id", pos.Program.ID).
		Int("program_index", pos.ProgramIndex).
		Float64("offset_seconds", pos.OffsetFloat()).
		Msg("Loaded scheduled program")

	s.announce(kind, pos)
	return OutcomeLoaded
}

func (s *Syncer) seekIfDrifted(player Player, caps Capabilities, pos timeline.Position, current, threshold float64, trigger Trigger) Outcome {
	target := pos.OffsetFloat()
	drift := current - target
	s.recorder.ObserveDrift(drift)

	if math.Abs(drift) <= threshold {
		s.setState(StateSynced)
		return OutcomeInSync
	}

	if !caps.Seek {
		s.log.Debug().
			Float64("drift_seconds", drift).
			Msg("Drift detected but player cannot seek")
		return OutcomeUnsupported
	}

	s.setState(StateCorrecting)
	if err := player.Seek(target); err != nil {
		s.fail(ClassifyError(err, ErrorTypeCommandFailed))
		return OutcomeFailed
	}
	s.recorder.IncSyncCommand("seek")
	s.setState(StateSynced)

	s.log.Info().
		Str("trigger", trigger.String()).
		Str("program_id", pos.Program.ID).
		Float64("drift_seconds", drift).
		Float64("target_seconds", target).
		Msg("Corrected drift")

	s.announce(broadcast.KindSync, pos)
	return OutcomeSeeked
}

// announce publishes our position to the other contexts
func (s *Syncer) announce(kind broadcast.Kind, pos timeline.Position) {
	if s.channel == nil || !s.alive.Load() {
		return
	}

	msg := broadcast.NewMessage(kind, pos.Program.ID, pos.OffsetFloat(), pos.ProgramIndex, s.origin, s.now())
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := s.channel.Publish(ctx, msg); err != nil {
		s.log.Debug().
			Err(err).
			Str("kind", string(kind)).
			Msg("Failed to announce sync message")
		return
	}
	s.recorder.IncBroadcast("announced")
}

// enqueue is the broadcast handler; it never blocks the publisher
func (s *Syncer) enqueue(msg broadcast.Message) {
	select {
	case s.inbox <- msg:
	default:
		s.recorder.IncBroadcast("dropped")
	}
}

func (s *Syncer) crossCheckAsync() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), crossCheckRequestTimeout)
		defer cancel()

		remote, err := s.checker.Current(ctx)
		if !s.alive.Load() {
			return
		}
		if err != nil {
			s.recorder.IncCrossCheckFailures()
			s.log.Debug().
				Err(err).
				Msg("Cross-check failed, relying on local computation")
			return
		}
		s.applyCrossCheck(remote)
	}()
}

// applyCrossCheck records how the server's view compares to ours. Local computation stays authoritative.
func (s *Syncer) applyCrossCheck(remote *RemotePosition) {
	local := timeline.CalculatePosition(s.schedule, remote.ServerTime)
	offsetGap := local.OffsetSeconds - remote.OffsetSeconds
	mismatch := local.Program.ID != remote.ProgramID || offsetGap > 1 || offsetGap < -1

	if !remote.Epoch.Equal(s.schedule.Epoch()) {
		s.log.Warn().
			Time("server_epoch", remote.Epoch).
			Time("local_epoch", s.schedule.Epoch()).
			Msg("Server epoch differs from local schedule epoch")
	}
	if mismatch {
		s.log.Warn().
			Str("server_program_id", remote.ProgramID).
			Str("local_program_id", local.Program.ID).
			Int64("offset_gap_seconds", offsetGap).
			Msg("Server position disagrees with local schedule")
	}
	if absDuration(remote.ClockSkew) > skewTolerance {
		s.log.Warn().
			Dur("clock_skew", remote.ClockSkew).
			Msg("Local clock differs from server clock")
	}

	s.mu.Lock()
	s.clockSkew = remote.ClockSkew
	s.serverMismatch = mismatch
	s.mu.Unlock()
}

// Mute silences the player now and after every re-initialization
func (s *Syncer) Mute() error {
	s.mu.Lock()
	s.muted = true
	s.mu.Unlock()
	return s.applyAudio()
}

// Unmute restores sound now and after every re-initialization
func (s *Syncer) Unmute() error {
	s.mu.Lock()
	s.muted = false
	s.mu.Unlock()
	return s.applyAudio()
}

// SetVolume sets the volume (0..100) now and after every re-initialization
func (s *Syncer) SetVolume(level int) error {
	s.mu.Lock()
	s.volume = clampVolume(level)
	s.mu.Unlock()
	return s.applyAudio()
}

// applyAudio pushes remembered audio settings to a ready player; otherwise they wait for EventReady
func (s *Syncer) applyAudio() error {
	s.mu.RLock()
	player, caps, muted, volume := s.player, s.caps, s.muted, s.volume
	s.mu.RUnlock()

	if player == nil || !player.Ready() || !caps.Volume {
		return nil
	}
	if err := player.SetVolume(volume); err != nil {
		return err
	}
	if muted {
		return player.Mute()
	}
	return player.Unmute()
}

// resume restarts playback paused by someone else; viewers cannot pause a broadcast
func (s *Syncer) resume() {
	s.mu.RLock()
	player := s.player
	s.mu.RUnlock()

	if player == nil || !player.Ready() {
		return
	}
	if err := player.Play(); err != nil {
		s.log.Debug().Err(err).Msg("Failed to resume playback")
		return
	}
	s.log.Debug().Msg("Resumed paused player")
}

// Status returns a snapshot for display
func (s *Syncer) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	label := LabelLive
	switch {
	case s.state == StateError:
		label = LabelError
	case s.state != StateSynced, s.transitioning, s.serverMismatch, absDuration(s.clockSkew) > skewTolerance:
		label = LabelSyncing
	}

	st := Status{
		Origin:          s.origin,
		State:           s.state,
		Label:           label,
		ProgramID:       s.lastPosition.Program.ID,
		ProgramTitle:    s.lastPosition.Program.Title,
		ProgramIndex:    s.lastPosition.ProgramIndex,
		OffsetSeconds:   s.lastPosition.OffsetFloat(),
		Upcoming:        append([]timeline.UpcomingProgram(nil), s.upcoming...),
		EndedTransition: s.transitioning,
		ClockSkew:       s.clockSkew,
		ServerMismatch:  s.serverMismatch,
	}
	if s.lastError != nil {
		st.LastError = s.lastError.Error()
	}
	return st
}

func (s *Syncer) teardown() {
	s.teardownOnce.Do(func() {
		s.alive.Store(false)

		s.mu.Lock()
		for _, t := range []**time.Timer{&s.readyTimer, &s.retryTimer, &s.announceTimer} {
			if *t != nil {
				(*t).Stop()
				*t = nil
			}
		}
		unsubscribe := s.unsubscribe
		s.unsubscribe = nil
		player := s.player
		s.player = nil
		s.mu.Unlock()

		if unsubscribe != nil {
			unsubscribe()
		}
		if s.channel != nil {
			_ = s.channel.Close()
		}
		if player != nil {
			_ = player.Close()
		}

		s.log.Info().Msg("Syncer stopped")
	})
}

func (s *Syncer) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Syncer) recordPosition(pos timeline.Position) {
	s.mu.Lock()
	s.lastPosition = pos
	s.mu.Unlock()
}

// resetTimerLocked must hold mu
func (s *Syncer) resetTimerLocked(t **time.Timer, d time.Duration) {
	if *t != nil {
		(*t).Stop()
	}
	*t = time.NewTimer(d)
}

func (s *Syncer) clearTimer(t **time.Timer) {
	s.mu.Lock()
	*t = nil
	s.mu.Unlock()
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func clampVolume(level int) int {
	switch {
	case level < 0:
		return 0
	case level > 100:
		return 100
	default:
		return level
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
