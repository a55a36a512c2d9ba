package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/simulcast/internal/broadcast"
	"github.com/stwalsh4118/simulcast/internal/models"
	"github.com/stwalsh4118/simulcast/internal/timeline"
)

var testEpoch = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

type loadCall struct {
	ref   string
	start float64
}

// fakePlayer records commands and reports whatever offset it was last told to play from
type fakePlayer struct {
	mu      sync.Mutex
	caps    Capabilities
	ready   bool
	ref     string
	offset  float64
	loads   []loadCall
	seeks   []float64
	plays   int
	volume  int
	muted   bool
	closed  bool
	loadErr error
	seekErr error
	events  chan PlayerEvent
}

func newFakePlayer(ref string, start float64) *fakePlayer {
	return &fakePlayer{
		caps:   Capabilities{Seek: true, Volume: true, ReportsTime: true},
		ready:  true,
		ref:    ref,
		offset: start,
		volume: -1,
		events: make(chan PlayerEvent, 8),
	}
}

func (p *fakePlayer) Capabilities() Capabilities { return p.caps }

func (p *fakePlayer) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready && !p.closed
}

func (p *fakePlayer) Load(ref string, start float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loadErr != nil {
		return p.loadErr
	}
	p.loads = append(p.loads, loadCall{ref: ref, start: start})
	p.ref = ref
	p.offset = start
	return nil
}

func (p *fakePlayer) Seek(offset float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seekErr != nil {
		return p.seekErr
	}
	p.seeks = append(p.seeks, offset)
	p.offset = offset
	return nil
}

func (p *fakePlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plays++
	return nil
}

func (p *fakePlayer) CurrentOffset() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offset, nil
}

func (p *fakePlayer) Mute() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = true
	return nil
}

func (p *fakePlayer) Unmute() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = false
	return nil
}

func (p *fakePlayer) SetVolume(level int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = level
	return nil
}

func (p *fakePlayer) Events() <-chan PlayerEvent { return p.events }

func (p *fakePlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.events)
	}
	return nil
}

func (p *fakePlayer) setOffset(offset float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offset = offset
}

func (p *fakePlayer) seekCalls() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.seeks...)
}

func (p *fakePlayer) loadCalls() []loadCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]loadCall(nil), p.loads...)
}

// fakeFactory hands out fake players and can be told to fail
type fakeFactory struct {
	mu      sync.Mutex
	players []*fakePlayer
	err     error
	caps    *Capabilities
}

func (f *fakeFactory) create(ctx context.Context, ref string, start float64) (Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p := newFakePlayer(ref, start)
	if f.caps != nil {
		p.caps = *f.caps
	}
	f.players = append(f.players, p)
	return p, nil
}

func (f *fakeFactory) last() *fakePlayer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.players) == 0 {
		return nil
	}
	return f.players[len(f.players)-1]
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.players)
}

// fakeRecorder counts metric calls
type fakeRecorder struct {
	mu          sync.Mutex
	commands    map[string]int
	broadcasts  map[string]int
	transitions int
	errors      int
	crossFails  int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{commands: map[string]int{}, broadcasts: map[string]int{}}
}

func (r *fakeRecorder) IncSyncCommand(c string) { r.mu.Lock(); r.commands[c]++; r.mu.Unlock() }
func (r *fakeRecorder) IncTransitions()         { r.mu.Lock(); r.transitions++; r.mu.Unlock() }
func (r *fakeRecorder) IncPlayerErrors()        { r.mu.Lock(); r.errors++; r.mu.Unlock() }
func (r *fakeRecorder) IncBroadcast(d string)   { r.mu.Lock(); r.broadcasts[d]++; r.mu.Unlock() }
func (r *fakeRecorder) ObserveDrift(float64)    {}
func (r *fakeRecorder) IncCrossCheckFailures()  { r.mu.Lock(); r.crossFails++; r.mu.Unlock() }

// testClock is a settable wall clock
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// createTestSchedule builds A(100s) B(200s) C(50s)
func createTestSchedule(t *testing.T) *timeline.Schedule {
	t.Helper()
	s, err := timeline.NewSchedule(testEpoch, []*models.Program{
		{ID: "A", MediaRef: "a.mp4", Title: "Program A", Duration: 100},
		{ID: "B", MediaRef: "b.mp4", Title: "Program B", Duration: 200},
		{ID: "C", MediaRef: "c.mp4", Title: "Program C", Duration: 50},
	})
	require.NoError(t, err)
	return s
}

type syncerFixture struct {
	syncer   *Syncer
	factory  *fakeFactory
	clock    *testClock
	recorder *fakeRecorder
}

func newSyncerFixture(t *testing.T, at time.Duration) *syncerFixture {
	t.Helper()
	f := &syncerFixture{
		factory:  &fakeFactory{},
		clock:    &testClock{now: testEpoch.Add(at)},
		recorder: newFakeRecorder(),
	}
	f.syncer = NewSyncer(createTestSchedule(t), f.factory.create, DefaultOptions()).
		WithClock(f.clock.Now).
		WithRecorder(f.recorder)
	t.Cleanup(f.syncer.Stop)
	return f
}

// initialized creates the first player the way Start does
func (f *syncerFixture) initialized(t *testing.T) *fakePlayer {
	t.Helper()
	f.syncer.initialize()
	p := f.factory.last()
	require.NotNil(t, p)
	f.syncer.handlePlayerEvent(PlayerEvent{Type: EventReady})
	return p
}

func TestSyncer_InitializeAtComputedPosition(t *testing.T) {
	f := newSyncerFixture(t, 150*time.Second+250*time.Millisecond)

	f.initialized(t)

	require.Equal(t, 1, f.factory.count())
	p := f.factory.last()
	assert.Equal(t, "b.mp4", p.ref)
	assert.InDelta(t, 50.25, p.offset, 1e-9)

	st := f.syncer.Status()
	assert.Equal(t, StateSynced, st.State)
	assert.Equal(t, LabelLive, st.Label)
	assert.Equal(t, "B", st.ProgramID)
	assert.Len(t, st.Upcoming, DefaultOptions().UpcomingCount)
	assert.Equal(t, "C", st.Upcoming[0].Program.ID)
}

func TestSyncer_SeeksWhenDriftExceedsThreshold(t *testing.T) {
	f := newSyncerFixture(t, 10*time.Second)
	p := f.initialized(t)
	p.setOffset(9.5)

	outcome := f.syncer.Reconcile(TriggerTick)

	assert.Equal(t, OutcomeSeeked, outcome)
	assert.Equal(t, []float64{10.0}, p.seekCalls())
	assert.Empty(t, p.loadCalls())
	assert.Equal(t, 1, f.recorder.commands["seek"])

	// Running again with nothing changed issues no further command
	assert.Equal(t, OutcomeInSync, f.syncer.Reconcile(TriggerTick))
	assert.Len(t, p.seekCalls(), 1)
}

func TestSyncer_IgnoresDriftWithinThreshold(t *testing.T) {
	tests := []struct {
		name   string
		offset float64
	}{
		{"slightly ahead", 10.05},
		{"slightly behind", 9.9},
		{"exactly on threshold", 10.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSyncerFixture(t, 10*time.Second)
			p := f.initialized(t)
			p.setOffset(tt.offset)

			assert.Equal(t, OutcomeInSync, f.syncer.Reconcile(TriggerTick))
			assert.Empty(t, p.seekCalls())
			assert.Empty(t, p.loadCalls())
		})
	}
}

func TestSyncer_UsesSubSecondTarget(t *testing.T) {
	f := newSyncerFixture(t, 10*time.Second+900*time.Millisecond)
	p := f.initialized(t)
	p.setOffset(10.8)

	// Whole-second truncation would put the target at 10 and force a seek
	assert.Equal(t, OutcomeInSync, f.syncer.Reconcile(TriggerTick))
	assert.Empty(t, p.seekCalls())
}

func TestSyncer_LoadsWhenProgramChanged(t *testing.T) {
	f := newSyncerFixture(t, 90*time.Second)
	p := f.initialized(t)

	f.clock.Set(testEpoch.Add(105 * time.Second))
	outcome := f.syncer.Reconcile(TriggerTick)

	assert.Equal(t, OutcomeLoaded, outcome)
	require.Len(t, p.loadCalls(), 1)
	assert.Equal(t, loadCall{ref: "b.mp4", start: 5}, p.loadCalls()[0])
	assert.Equal(t, "B", f.syncer.Status().ProgramID)
	assert.Equal(t, 1, f.recorder.commands["load"])
}

func TestSyncer_BusyWhenLockHeld(t *testing.T) {
	f := newSyncerFixture(t, 10*time.Second)
	p := f.initialized(t)
	p.setOffset(2)

	f.syncer.lock.Store(true)
	assert.Equal(t, OutcomeBusy, f.syncer.Reconcile(TriggerTick))
	assert.Equal(t, OutcomeBusy, f.syncer.HandleEnded())
	assert.Empty(t, p.seekCalls())

	f.syncer.lock.Store(false)
	assert.Equal(t, OutcomeSeeked, f.syncer.Reconcile(TriggerTick))
}

func TestSyncer_NotReady(t *testing.T) {
	f := newSyncerFixture(t, 10*time.Second)
	assert.Equal(t, OutcomeNotReady, f.syncer.Reconcile(TriggerTick))

	p := f.initialized(t)
	p.mu.Lock()
	p.ready = false
	p.mu.Unlock()
	p.setOffset(3)

	assert.Equal(t, OutcomeNotReady, f.syncer.Reconcile(TriggerTick))
	assert.Empty(t, p.seekCalls())
}

func TestSyncer_EndTransitionAndCooldown(t *testing.T) {
	f := newSyncerFixture(t, 99*time.Second)
	p := f.initialized(t)

	f.clock.Set(testEpoch.Add(100*time.Second + 50*time.Millisecond))
	assert.Equal(t, OutcomeLoaded, f.syncer.HandleEnded())

	require.Len(t, p.loadCalls(), 1)
	assert.Equal(t, "b.mp4", p.loadCalls()[0].ref)
	assert.InDelta(t, 0.05, p.loadCalls()[0].start, 1e-9)
	assert.Equal(t, 1, f.recorder.transitions)
	assert.True(t, f.syncer.Status().EndedTransition)
	assert.Equal(t, LabelSyncing, f.syncer.Status().Label)

	// Within the cooldown nothing else runs
	f.clock.Advance(200 * time.Millisecond)
	assert.Equal(t, OutcomeCoolingDown, f.syncer.HandleEnded())
	assert.Equal(t, OutcomeCoolingDown, f.syncer.Reconcile(TriggerTick))
	assert.Len(t, p.loadCalls(), 1)

	// After the cooldown the tick takes over again
	f.clock.Advance(400 * time.Millisecond)
	p.setOffset(0.65)
	assert.Equal(t, OutcomeInSync, f.syncer.Reconcile(TriggerTick))
	assert.False(t, f.syncer.Status().EndedTransition)
	assert.Equal(t, LabelLive, f.syncer.Status().Label)
}

func TestSyncer_TickDetectsEndWhenPlayerRanAhead(t *testing.T) {
	f := newSyncerFixture(t, 50*time.Second)
	p := f.initialized(t)
	p.setOffset(99.95)

	outcome := f.syncer.Reconcile(TriggerTick)

	// The wall clock still says program A, so the player is pulled back rather than advanced
	assert.Equal(t, OutcomeSeeked, outcome)
	assert.Equal(t, []float64{50}, p.seekCalls())
	assert.Empty(t, p.loadCalls())
	assert.Equal(t, 0, f.recorder.transitions)
}

func TestSyncer_TickDetectsEndAtBoundary(t *testing.T) {
	f := newSyncerFixture(t, 99*time.Second)
	p := f.initialized(t)

	f.clock.Set(testEpoch.Add(100 * time.Second))
	p.setOffset(99.95)

	assert.Equal(t, OutcomeLoaded, f.syncer.Reconcile(TriggerTick))
	require.Len(t, p.loadCalls(), 1)
	assert.Equal(t, loadCall{ref: "b.mp4", start: 0}, p.loadCalls()[0])
}

func TestSyncer_HandleMessage(t *testing.T) {
	t.Run("own messages are ignored", func(t *testing.T) {
		f := newSyncerFixture(t, 10*time.Second)
		p := f.initialized(t)
		p.setOffset(1)

		msg := broadcast.NewMessage(broadcast.KindForceSync, "A", 10, 0, f.syncer.Origin(), f.clock.Now())
		assert.Equal(t, OutcomeIgnored, f.syncer.HandleMessage(msg))
		assert.Empty(t, p.seekCalls())
	})

	t.Run("stale messages are ignored", func(t *testing.T) {
		f := newSyncerFixture(t, 10*time.Second)
		p := f.initialized(t)
		p.setOffset(1)

		msg := broadcast.NewMessage(broadcast.KindSync, "A", 10, 0, "other", f.clock.Now().Add(-2*time.Second))
		assert.Equal(t, OutcomeIgnored, f.syncer.HandleMessage(msg))
		assert.Empty(t, p.seekCalls())
		assert.Equal(t, 1, f.recorder.broadcasts["stale"])
	})

	t.Run("messages from a clock running ahead are ignored", func(t *testing.T) {
		f := newSyncerFixture(t, 10*time.Second)
		p := f.initialized(t)
		p.setOffset(1)

		msg := broadcast.NewMessage(broadcast.KindForceSync, "A", 10, 0, "other", f.clock.Now().Add(5*time.Second))
		assert.Equal(t, OutcomeIgnored, f.syncer.HandleMessage(msg))
		assert.Empty(t, p.seekCalls())
		assert.Equal(t, 1, f.recorder.broadcasts["stale"])
	})

	t.Run("slightly ahead sync still triggers reconciliation", func(t *testing.T) {
		f := newSyncerFixture(t, 10*time.Second)
		p := f.initialized(t)
		p.setOffset(1)

		msg := broadcast.NewMessage(broadcast.KindSync, "A", 10, 0, "other", f.clock.Now().Add(500*time.Millisecond))
		assert.Equal(t, OutcomeSeeked, f.syncer.HandleMessage(msg))
		assert.Equal(t, []float64{10}, p.seekCalls())
	})

	t.Run("fresh sync triggers reconciliation", func(t *testing.T) {
		f := newSyncerFixture(t, 10*time.Second)
		p := f.initialized(t)
		p.setOffset(1)

		msg := broadcast.NewMessage(broadcast.KindSync, "A", 10, 0, "other", f.clock.Now().Add(-1999*time.Millisecond))
		assert.Equal(t, OutcomeSeeked, f.syncer.HandleMessage(msg))
		assert.Equal(t, []float64{10}, p.seekCalls())
	})

	t.Run("force-sync with no drift does nothing", func(t *testing.T) {
		f := newSyncerFixture(t, 10*time.Second)
		p := f.initialized(t)

		msg := broadcast.NewMessage(broadcast.KindForceSync, "A", 10, 0, "other", f.clock.Now())
		assert.Equal(t, OutcomeInSync, f.syncer.HandleMessage(msg))
		assert.Empty(t, p.seekCalls())
	})

	t.Run("ended for the program already loaded is ignored", func(t *testing.T) {
		f := newSyncerFixture(t, 10*time.Second)
		p := f.initialized(t)

		msg := broadcast.NewMessage(broadcast.KindEnded, "A", 0, 0, "other", f.clock.Now())
		assert.Equal(t, OutcomeIgnored, f.syncer.HandleMessage(msg))
		assert.Empty(t, p.loadCalls())
		assert.Equal(t, 0, f.recorder.transitions)
	})

	t.Run("ended after a boundary advances", func(t *testing.T) {
		f := newSyncerFixture(t, 99*time.Second)
		p := f.initialized(t)

		f.clock.Set(testEpoch.Add(101 * time.Second))
		msg := broadcast.NewMessage(broadcast.KindEnded, "B", 1, 1, "other", f.clock.Now())
		assert.Equal(t, OutcomeLoaded, f.syncer.HandleMessage(msg))
		require.Len(t, p.loadCalls(), 1)
		assert.Equal(t, loadCall{ref: "b.mp4", start: 1}, p.loadCalls()[0])
	})
}

func TestSyncer_PlayerErrorSchedulesRetry(t *testing.T) {
	f := newSyncerFixture(t, 10*time.Second)
	p := f.initialized(t)

	f.syncer.handlePlayerEvent(PlayerEvent{Type: EventError, Err: errors.New("decode error")})

	st := f.syncer.Status()
	assert.Equal(t, StateError, st.State)
	assert.Equal(t, LabelError, st.Label)
	assert.Contains(t, st.LastError, "decode error")
	assert.True(t, p.closed)
	assert.Equal(t, 1, f.recorder.errors)

	f.syncer.mu.RLock()
	assert.NotNil(t, f.syncer.retryTimer)
	assert.Nil(t, f.syncer.player)
	f.syncer.mu.RUnlock()

	// The retry computes a fresh position for the retry instant
	f.clock.Advance(3 * time.Second)
	f.syncer.initialize()
	require.Equal(t, 2, f.factory.count())
	next := f.factory.last()
	assert.Equal(t, "a.mp4", next.ref)
	assert.InDelta(t, 13, next.offset, 1e-9)

	f.syncer.handlePlayerEvent(PlayerEvent{Type: EventReady})
	assert.Equal(t, StateSynced, f.syncer.Status().State)
	assert.Empty(t, f.syncer.Status().LastError)
}

func TestSyncer_FactoryFailureBacksOff(t *testing.T) {
	f := newSyncerFixture(t, 10*time.Second)
	f.factory.err = errors.New("no decoder")

	f.syncer.initialize()
	f.syncer.initialize()

	st := f.syncer.Status()
	assert.Equal(t, StateError, st.State)
	f.syncer.mu.RLock()
	assert.Equal(t, 2, f.syncer.retryAttempt)
	f.syncer.mu.RUnlock()
	assert.Equal(t, 2, f.recorder.errors)

	f.factory.err = nil
	f.initialized(t)
	f.syncer.mu.RLock()
	assert.Equal(t, 0, f.syncer.retryAttempt)
	f.syncer.mu.RUnlock()
}

func TestSyncer_FailedSeekReinitializes(t *testing.T) {
	f := newSyncerFixture(t, 10*time.Second)
	p := f.initialized(t)
	p.seekErr = errors.New("seek rejected")
	p.setOffset(4)

	assert.Equal(t, OutcomeFailed, f.syncer.Reconcile(TriggerTick))
	assert.Equal(t, StateError, f.syncer.Status().State)
	assert.True(t, p.closed)
}

func TestSyncer_SkipsSeekWithoutCapability(t *testing.T) {
	f := newSyncerFixture(t, 10*time.Second)
	f.factory.caps = &Capabilities{Seek: false, Volume: false, ReportsTime: true}
	p := f.initialized(t)
	p.setOffset(4)

	assert.Equal(t, OutcomeUnsupported, f.syncer.Reconcile(TriggerTick))
	assert.Empty(t, p.seekCalls())
	assert.Equal(t, -1, p.volume, "volume is not applied without the capability")
}

func TestSyncer_ReadyCheckUsesReadyThreshold(t *testing.T) {
	f := newSyncerFixture(t, 10*time.Second)
	f.syncer.opts.ReadyDriftThreshold = 0.5
	p := f.initialized(t)
	p.setOffset(9.7)

	assert.Equal(t, OutcomeInSync, f.syncer.CheckReadyDrift())
	assert.Equal(t, OutcomeSeeked, f.syncer.Reconcile(TriggerTick))
}

func TestSyncer_Audio(t *testing.T) {
	f := newSyncerFixture(t, 10*time.Second)
	p := f.initialized(t)

	assert.True(t, p.muted, "contexts start muted")
	assert.Equal(t, 100, p.volume)

	require.NoError(t, f.syncer.Unmute())
	require.NoError(t, f.syncer.SetVolume(150))
	assert.False(t, p.muted)
	assert.Equal(t, 100, p.volume)

	require.NoError(t, f.syncer.SetVolume(40))
	assert.Equal(t, 40, p.volume)

	// Settings survive a player replacement
	f.syncer.handlePlayerEvent(PlayerEvent{Type: EventError})
	next := f.initialized(t)
	assert.False(t, next.muted)
	assert.Equal(t, 40, next.volume)
}

func TestSyncer_ResumesWhenPaused(t *testing.T) {
	f := newSyncerFixture(t, 10*time.Second)
	p := f.initialized(t)

	f.syncer.handlePlayerEvent(PlayerEvent{Type: EventPaused})
	assert.Equal(t, 1, p.plays)
}

func TestSyncer_AnnouncesCorrections(t *testing.T) {
	hub := broadcast.NewHub()
	f := newSyncerFixture(t, 10*time.Second)
	f.syncer.WithBroadcast(hub.Open("tv"))

	peer := hub.Open("tv")
	defer peer.Close()
	var mu sync.Mutex
	var received []broadcast.Message
	peer.Subscribe(func(m broadcast.Message) {
		mu.Lock()
		received = append(received, m)
		mu.Unlock()
	})

	p := f.initialized(t)
	p.setOffset(2)
	require.Equal(t, OutcomeSeeked, f.syncer.Reconcile(TriggerTick))

	// No command means no announcement
	require.Equal(t, OutcomeInSync, f.syncer.Reconcile(TriggerTick))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, broadcast.KindSync, received[0].Kind)
	assert.Equal(t, "A", received[0].ProgramID)
	assert.Equal(t, f.syncer.Origin(), received[0].Origin)
	assert.InDelta(t, 10, received[0].Offset, 1e-9)
}

func TestSyncer_ApplyCrossCheck(t *testing.T) {
	f := newSyncerFixture(t, 10*time.Second)
	f.initialized(t)

	f.syncer.applyCrossCheck(&RemotePosition{
		ProgramID:     "A",
		OffsetSeconds: 10,
		ServerTime:    f.clock.Now(),
		Epoch:         testEpoch,
		ClockSkew:     100 * time.Millisecond,
	})
	st := f.syncer.Status()
	assert.False(t, st.ServerMismatch)
	assert.Equal(t, LabelLive, st.Label)

	f.syncer.applyCrossCheck(&RemotePosition{
		ProgramID:     "A",
		OffsetSeconds: 10,
		ServerTime:    f.clock.Now(),
		Epoch:         testEpoch,
		ClockSkew:     3 * time.Second,
	})
	assert.Equal(t, LabelSyncing, f.syncer.Status().Label)

	f.syncer.applyCrossCheck(&RemotePosition{
		ProgramID:     "B",
		OffsetSeconds: 10,
		ServerTime:    f.clock.Now(),
		Epoch:         testEpoch.Add(time.Hour),
	})
	st = f.syncer.Status()
	assert.True(t, st.ServerMismatch)
	assert.Equal(t, LabelSyncing, st.Label)
	assert.Equal(t, "A", st.ProgramID, "local computation stays authoritative")
}

func TestSyncer_StartStop(t *testing.T) {
	hub := broadcast.NewHub()
	factory := &fakeFactory{}
	opts := DefaultOptions()
	opts.TickInterval = 10 * time.Millisecond
	opts.AnnounceDelay = 10 * time.Millisecond

	peer := hub.Open("tv")
	defer peer.Close()
	announced := make(chan broadcast.Message, 8)
	peer.Subscribe(func(m broadcast.Message) {
		select {
		case announced <- m:
		default:
		}
	})

	s := NewSyncer(createTestSchedule(t), factory.create, opts).WithBroadcast(hub.Open("tv"))
	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)
	assert.Equal(t, 1, factory.count())

	select {
	case msg := <-announced:
		assert.Equal(t, broadcast.KindSync, msg.Kind)
		assert.Equal(t, s.Origin(), msg.Origin)
	case <-time.After(2 * time.Second):
		t.Fatal("presence was not announced")
	}

	s.Stop()
	select {
	case <-s.Done():
	default:
		t.Fatal("event loop still running after Stop")
	}
	assert.True(t, factory.last().closed)
	assert.Equal(t, 1, hub.Count("tv"), "syncer left the channel")
	assert.ErrorIs(t, s.Start(context.Background()), ErrSyncerStopped)

	// Stop is idempotent
	s.Stop()
}

func TestSyncer_TwoContextsConverge(t *testing.T) {
	hub := broadcast.NewHub()
	clock := &testClock{now: testEpoch.Add(10 * time.Second)}
	opts := DefaultOptions()
	opts.TickInterval = time.Hour

	fa, fb := &fakeFactory{}, &fakeFactory{}
	a := NewSyncer(createTestSchedule(t), fa.create, opts).WithClock(clock.Now).WithBroadcast(hub.Open("tv"))
	b := NewSyncer(createTestSchedule(t), fb.create, opts).WithClock(clock.Now).WithBroadcast(hub.Open("tv"))
	require.NoError(t, a.Start(context.Background()))
	require.NoError(t, b.Start(context.Background()))
	defer a.Stop()
	defer b.Stop()

	// b drifts; a sends a force-sync and b corrects itself on receipt
	pb := fb.last()
	pb.mu.Lock()
	pb.offset = 3
	pb.mu.Unlock()

	pa := fa.last()
	require.NotNil(t, pa)
	require.NoError(t, hub.Open("tv").Publish(context.Background(),
		broadcast.NewMessage(broadcast.KindForceSync, "A", 10, 0, "remote", clock.Now())))

	require.Eventually(t, func() bool {
		return len(pb.seekCalls()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []float64{10}, pb.seekCalls())
	assert.Empty(t, pa.seekCalls())
}
