package timeline

import (
	"time"

	"github.com/stwalsh4118/simulcast/internal/models"
)

// Position describes what the channel is playing at a given instant.
// It is derived on demand and never stored.
type Position struct {
	// ProgramIndex is the index of the current program within the schedule
	ProgramIndex int
	Program      models.Program

	// OffsetSeconds is the whole number of seconds into the current program
	OffsetSeconds int64

	// Offset is the exact position into the current program, including the
	// sub-second remainder of the elapsed time. Live players are compared against this.
	Offset time.Duration

	// TimeRemainingSeconds is Program.Duration - OffsetSeconds
	TimeRemainingSeconds int64

	NextIndex   int
	NextProgram models.Program

	// CyclePosition is the second within the current cycle, in [0, TotalDuration)
	CyclePosition int64
	TotalDuration int64

	// Cycle counts completed cycles since the epoch; negative before the epoch
	Cycle int64

	// StartedAt and EndsAt bound the current program on the wall clock
	StartedAt time.Time
	EndsAt    time.Time

	IsFirstInCycle bool
	IsLastInCycle  bool

	// CalculatedAt is the instant this position was computed for
	CalculatedAt time.Time
}

// OffsetFloat returns the exact offset in fractional seconds
func (p Position) OffsetFloat() float64 {
	return p.Offset.Seconds()
}

// ProjectTo returns the offset this position implies at a later instant,
// assuming the same program is still playing.
func (p Position) ProjectTo(t time.Time) time.Duration {
	return p.Offset + t.Sub(p.CalculatedAt)
}

// UpcomingProgram is one entry of a lookahead list
type UpcomingProgram struct {
	Program models.Program
	Index   int

	// StartsInSeconds is the number of seconds from the calculation instant until this program starts
	StartsInSeconds int64
	StartsAt        time.Time

	// IsFirstInNextCycle is set on every index 0 entry, which always opens a new cycle
	IsFirstInNextCycle bool

	// IsWrapAround is set when this index is lower than the current program's index
	IsWrapAround bool
}
