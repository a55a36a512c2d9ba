// Package timeline maps wall-clock time onto a looping schedule of programs,
// so that every viewer computes the same program and offset for the same instant
// without any stored per-viewer state.
package timeline

import (
	"fmt"
	"time"

	"github.com/stwalsh4118/simulcast/internal/models"
)

// Schedule is the immutable, ordered, looping list of programs together with the
// epoch it is anchored to. It is built once and shared read-only.
type Schedule struct {
	epoch    time.Time
	programs []models.Program
	starts   []int64
	total    int64
}

// NewSchedule validates the programs and builds a Schedule anchored at epoch.
// It fails closed: an empty list or any non-positive duration is an error.
func NewSchedule(epoch time.Time, programs []*models.Program) (*Schedule, error) {
	if epoch.IsZero() {
		return nil, ErrInvalidEpoch
	}
	if len(programs) == 0 {
		return nil, ErrEmptySchedule
	}

	s := &Schedule{
		epoch:    epoch.UTC(),
		programs: make([]models.Program, len(programs)),
		starts:   make([]int64, len(programs)),
	}

	for i, p := range programs {
		if p == nil {
			return nil, fmt.Errorf("program at index %d is nil: %w", i, ErrEmptySchedule)
		}
		if p.Duration <= 0 {
			return nil, fmt.Errorf("program %q (index %d) has duration %d: %w", p.ID, i, p.Duration, ErrInvalidDuration)
		}
		s.programs[i] = *p
		s.starts[i] = s.total
		s.total += p.Duration
	}

	return s, nil
}

// Epoch returns the instant the schedule is anchored to
func (s *Schedule) Epoch() time.Time {
	return s.epoch
}

// Len returns the number of programs
func (s *Schedule) Len() int {
	return len(s.programs)
}

// TotalDuration returns the length of one full cycle in seconds
func (s *Schedule) TotalDuration() int64 {
	return s.total
}

// Program returns the program at index i
func (s *Schedule) Program(i int) models.Program {
	return s.programs[i]
}

// Programs returns a copy of the ordered program list
func (s *Schedule) Programs() []models.Program {
	out := make([]models.Program, len(s.programs))
	copy(out, s.programs)
	return out
}

// StartOffset returns the second within a cycle at which program i begins
func (s *Schedule) StartOffset(i int) int64 {
	return s.starts[i]
}

// IndexOf returns the index of the program with the given ID, or -1
func (s *Schedule) IndexOf(programID string) int {
	for i := range s.programs {
		if s.programs[i].ID == programID {
			return i
		}
	}
	return -1
}

// Next returns the cyclic successor of index i
func (s *Schedule) Next(i int) int {
	return (i + 1) % len(s.programs)
}

// PositionAt is shorthand for CalculatePosition(s, now)
func (s *Schedule) PositionAt(now time.Time) Position {
	return CalculatePosition(s, now)
}
