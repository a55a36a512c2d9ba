package timeline

import (
	"time"
)

// Lookahead lists the next count programs after the one in pos, in schedule order
// and wrapping cyclically. Start times accumulate from pos.TimeRemainingSeconds.
// A non-positive count yields an empty list.
func Lookahead(s *Schedule, pos Position, now time.Time, count int) []UpcomingProgram {
	if count <= 0 {
		return []UpcomingProgram{}
	}

	upcoming := make([]UpcomingProgram, 0, count)
	startsIn := pos.TimeRemainingSeconds
	index := pos.ProgramIndex

	for i := 0; i < count; i++ {
		index = s.Next(index)
		program := s.programs[index]

		upcoming = append(upcoming, UpcomingProgram{
			Program:            program,
			Index:              index,
			StartsInSeconds:    startsIn,
			StartsAt:           now.Add(time.Duration(startsIn) * time.Second),
			IsFirstInNextCycle: index == 0,
			IsWrapAround:       index < pos.ProgramIndex,
		})

		startsIn += program.Duration
	}

	return upcoming
}

// Upcoming is shorthand for Lookahead(s, pos, now, count)
func (s *Schedule) Upcoming(pos Position, now time.Time, count int) []UpcomingProgram {
	return Lookahead(s, pos, now, count)
}
