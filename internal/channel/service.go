// Package channel bootstraps the broadcast channel: it reconciles the configured
// epoch and lineup with what is stored, and builds the schedule served to viewers.
package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stwalsh4118/simulcast/internal/config"
	"github.com/stwalsh4118/simulcast/internal/db"
	"github.com/stwalsh4118/simulcast/internal/logger"
	"github.com/stwalsh4118/simulcast/internal/models"
	"github.com/stwalsh4118/simulcast/internal/timeline"
)

// programNamespace scopes derived program IDs
var programNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("simulcast/program"))

// ChannelService handles channel bootstrap and lineup storage
type ChannelService struct {
	repos *db.Repositories
}

// NewChannelService creates a new channel service instance
func NewChannelService(repos *db.Repositories) *ChannelService {
	return &ChannelService{
		repos: repos,
	}
}

// Bootstrap checks the configured epoch against the stored one, stores the
// configured lineup (if any), and builds the schedule from storage.
//
// Returns:
//   - Schedule: built from the stored lineup and epoch
//   - error: ErrEpochChanged, ErrNoPrograms, timeline.ErrInvalidDuration, or wrapped database errors
func (s *ChannelService) Bootstrap(ctx context.Context, cfg config.ChannelConfig) (*timeline.Schedule, error) {
	epoch, err := cfg.EpochTime()
	if err != nil {
		return nil, err
	}

	if err := s.guardEpoch(ctx, cfg.Name, epoch, cfg.AllowEpochChange); err != nil {
		return nil, err
	}

	if len(cfg.Programs) > 0 {
		if err := s.ReplacePrograms(ctx, ProgramsFromConfig(cfg.Programs)); err != nil {
			return nil, err
		}
	}

	return s.LoadSchedule(ctx)
}

// guardEpoch records the epoch on first start and refuses a silent change afterwards
func (s *ChannelService) guardEpoch(ctx context.Context, name string, epoch time.Time, allowChange bool) error {
	stored, err := s.repos.Settings.Get(ctx)
	if err != nil {
		if !db.IsNotFound(err) {
			return fmt.Errorf("failed to read channel settings: %w", err)
		}

		if err := s.repos.Settings.Save(ctx, models.NewSettings(name, epoch)); err != nil {
			return fmt.Errorf("failed to store channel settings: %w", err)
		}
		logger.Log.Info().
			Str("channel", name).
			Time("epoch", epoch).
			Msg("Channel bootstrapped")
		return nil
	}

	if stored.Epoch.Equal(epoch) {
		if stored.ChannelName != name {
			stored.ChannelName = name
			if err := s.repos.Settings.Save(ctx, stored); err != nil {
				return fmt.Errorf("failed to rename channel: %w", err)
			}
		}
		return nil
	}

	if !allowChange {
		logger.Log.Error().
			Time("stored_epoch", stored.Epoch).
			Time("configured_epoch", epoch).
			Msg("Configured epoch differs from stored epoch; every viewer would jump to a new position. Set channel.allowepochchange to accept")
		return fmt.Errorf("stored %s, configured %s: %w",
			stored.Epoch.Format(time.RFC3339), epoch.Format(time.RFC3339), ErrEpochChanged)
	}

	logger.Log.Warn().
		Time("stored_epoch", stored.Epoch).
		Time("configured_epoch", epoch).
		Msg("EPOCH CHANGED: all viewers will be moved to a different schedule position")

	if err := s.repos.Settings.Save(ctx, models.NewSettings(name, epoch)); err != nil {
		return fmt.Errorf("failed to store changed epoch: %w", err)
	}
	return nil
}

// ReplacePrograms validates and stores a new lineup
func (s *ChannelService) ReplacePrograms(ctx context.Context, programs []*models.Program) error {
	if len(programs) == 0 {
		return ErrNoPrograms
	}
	for i, p := range programs {
		if p.Duration <= 0 {
			return fmt.Errorf("program %d (%s): %w", i, p.MediaRef, timeline.ErrInvalidDuration)
		}
	}

	if err := s.repos.Programs.ReplaceAll(ctx, programs); err != nil {
		logger.Log.Error().
			Err(err).
			Int("count", len(programs)).
			Msg("Failed to store lineup")
		return fmt.Errorf("failed to store lineup: %w", err)
	}

	logger.Log.Info().
		Int("count", len(programs)).
		Msg("Lineup stored")
	return nil
}

// ListPrograms returns the stored lineup in schedule order
func (s *ChannelService) ListPrograms(ctx context.Context) ([]*models.Program, error) {
	programs, err := s.repos.Programs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list programs: %w", err)
	}
	return programs, nil
}

// LoadSchedule builds the schedule from the stored epoch and lineup
func (s *ChannelService) LoadSchedule(ctx context.Context) (*timeline.Schedule, error) {
	settings, err := s.repos.Settings.Get(ctx)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrNotBootstrapped
		}
		return nil, fmt.Errorf("failed to read channel settings: %w", err)
	}

	programs, err := s.ListPrograms(ctx)
	if err != nil {
		return nil, err
	}
	if len(programs) == 0 {
		return nil, ErrNoPrograms
	}

	schedule, err := timeline.NewSchedule(settings.Epoch, programs)
	if err != nil {
		return nil, fmt.Errorf("failed to build schedule: %w", err)
	}

	logger.Log.Info().
		Str("channel", settings.ChannelName).
		Int("programs", schedule.Len()).
		Int64("cycle_seconds", schedule.TotalDuration()).
		Time("epoch", schedule.Epoch()).
		Msg("Schedule loaded")

	return schedule, nil
}

// ProgramsFromConfig converts the configured lineup into programs.
// Programs without an ID get one derived from their position and media reference,
// so every process reading the same configuration agrees on IDs.
func ProgramsFromConfig(cfg []config.ProgramConfig) []*models.Program {
	programs := make([]*models.Program, 0, len(cfg))
	for i, pc := range cfg {
		id := pc.ID
		if id == "" {
			id = uuid.NewSHA1(programNamespace, []byte(fmt.Sprintf("%d:%s", i, pc.MediaRef))).String()
		}

		var thumbnail *string
		if pc.Thumbnail != "" {
			thumb := pc.Thumbnail
			thumbnail = &thumb
		}

		programs = append(programs, &models.Program{
			ID:          id,
			Position:    i,
			MediaRef:    pc.MediaRef,
			Title:       pc.Title,
			Description: pc.Description,
			Category:    pc.Category,
			Language:    pc.Language,
			Thumbnail:   thumbnail,
			Duration:    pc.Duration,
			CreatedAt:   time.Now().UTC(),
		})
	}
	return programs
}

// ScheduleFromConfig builds a schedule straight from configuration, without storage.
// Viewing contexts use this to compute positions locally.
func ScheduleFromConfig(cfg config.ChannelConfig) (*timeline.Schedule, error) {
	epoch, err := cfg.EpochTime()
	if err != nil {
		return nil, err
	}
	if len(cfg.Programs) == 0 {
		return nil, ErrNoPrograms
	}
	return timeline.NewSchedule(epoch, ProgramsFromConfig(cfg.Programs))
}
