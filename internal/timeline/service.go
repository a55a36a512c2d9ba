package timeline

import (
	"time"

	"github.com/stwalsh4118/simulcast/internal/logger"
)

// Clock returns the current instant
type Clock func() time.Time

// TimelineService answers position queries against a fixed schedule
//
//nolint:revive // Service name matches established patterns in codebase
type TimelineService struct {
	schedule *Schedule
	now      Clock
}

// NewTimelineService creates a timeline service for the schedule.
// A nil clock defaults to time.Now.
func NewTimelineService(schedule *Schedule, clock Clock) *TimelineService {
	if clock == nil {
		clock = time.Now
	}
	return &TimelineService{
		schedule: schedule,
		now:      clock,
	}
}

// Schedule returns the schedule the service was built with
func (s *TimelineService) Schedule() *Schedule {
	return s.schedule
}

// Now returns the service clock's current instant
func (s *TimelineService) Now() time.Time {
	return s.now()
}

// Current computes the position for the current instant
func (s *TimelineService) Current() Position {
	now := s.now()
	pos := CalculatePosition(s.schedule, now)

	logger.Log.Debug().
		Str("program_id", pos.Program.ID).
		Int("program_index", pos.ProgramIndex).
		Int64("offset_seconds", pos.OffsetSeconds).
		Int64("cycle", pos.Cycle).
		Msg("Calculated schedule position")

	return pos
}

// Upcoming computes the current position and the count programs after it
// from a single clock reading
func (s *TimelineService) Upcoming(count int) (Position, []UpcomingProgram) {
	now := s.now()
	pos := CalculatePosition(s.schedule, now)
	upcoming := Lookahead(s.schedule, pos, now, count)

	logger.Log.Debug().
		Str("program_id", pos.Program.ID).
		Int("count", count).
		Msg("Calculated schedule lookahead")

	return pos, upcoming
}
