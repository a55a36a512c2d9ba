package reconcile

import (
	"time"

	"github.com/stwalsh4118/simulcast/internal/config"
)

const (
	inboxSize          = 64
	endDetectionMargin = 0.1 // seconds before the program end that counts as ended
	publishTimeout     = time.Second
	initTimeout        = 10 * time.Second
	skewTolerance      = time.Second
)

// Options tunes a Syncer
type Options struct {
	TickInterval        time.Duration
	DriftThreshold      float64 // seconds
	ReadyCheckDelay     time.Duration
	ReadyDriftThreshold float64 // seconds
	EndCooldown         time.Duration
	StalenessWindow     time.Duration
	PlayerRetryBackoff  time.Duration
	InitRetryBackoff    time.Duration
	AnnounceDelay       time.Duration
	CrossCheckInterval  time.Duration
	UpcomingCount       int
	StartMuted          bool
	Volume              int
}

// DefaultOptions returns the standard timings
func DefaultOptions() Options {
	return Options{
		TickInterval:        time.Second,
		DriftThreshold:      0.2,
		ReadyCheckDelay:     500 * time.Millisecond,
		ReadyDriftThreshold: 0.2,
		EndCooldown:         500 * time.Millisecond,
		StalenessWindow:     2 * time.Second,
		PlayerRetryBackoff:  3 * time.Second,
		InitRetryBackoff:    time.Second,
		AnnounceDelay:       time.Second,
		CrossCheckInterval:  30 * time.Second,
		UpcomingCount:       10,
		StartMuted:          true,
		Volume:              100,
	}
}

// OptionsFromConfig maps sync configuration onto Options
func OptionsFromConfig(cfg config.SyncConfig) Options {
	opts := DefaultOptions()
	opts.TickInterval = cfg.TickInterval
	opts.DriftThreshold = cfg.DriftThreshold
	opts.ReadyCheckDelay = cfg.ReadyCheckDelay
	opts.ReadyDriftThreshold = cfg.ReadyDriftThreshold
	opts.EndCooldown = cfg.EndCooldown
	opts.StalenessWindow = cfg.StalenessWindow
	opts.PlayerRetryBackoff = cfg.PlayerRetryBackoff
	opts.InitRetryBackoff = cfg.InitRetryBackoff
	opts.AnnounceDelay = cfg.AnnounceDelay
	opts.CrossCheckInterval = cfg.CrossCheckInterval
	opts.UpcomingCount = cfg.UpcomingCount
	return opts
}

// Recorder receives sync metrics. *metrics.Metrics satisfies it.
type Recorder interface {
	IncSyncCommand(command string)
	IncTransitions()
	IncPlayerErrors()
	IncBroadcast(direction string)
	ObserveDrift(seconds float64)
	IncCrossCheckFailures()
}

type nopRecorder struct{}

func (nopRecorder) IncSyncCommand(string)  {}
func (nopRecorder) IncTransitions()        {}
func (nopRecorder) IncPlayerErrors()       {}
func (nopRecorder) IncBroadcast(string)    {}
func (nopRecorder) ObserveDrift(float64)   {}
func (nopRecorder) IncCrossCheckFailures() {}
