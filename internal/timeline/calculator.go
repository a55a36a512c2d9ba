package timeline

import (
	"time"
)

// CalculatePosition returns what the channel plays at now.
// This is a pure function: the same schedule and instant always give the same result.
// It cannot fail, since a Schedule always has a positive total duration.
//
// Elapsed time is floored to whole seconds and reduced modulo the cycle length with
// floor semantics, so instants before the epoch land inside [0, total) as well.
func CalculatePosition(s *Schedule, now time.Time) Position {
	total := s.total

	sinceEpoch := now.Sub(s.epoch)
	elapsed := floorDiv(int64(sinceEpoch), int64(time.Second))
	fraction := sinceEpoch - time.Duration(elapsed)*time.Second

	cyclePosition := floorMod(elapsed, total)

	// Single pass walk; the last program always matches because cyclePosition < total
	index := len(s.programs) - 1
	var accumulated int64
	for i := range s.programs {
		if cyclePosition < accumulated+s.programs[i].Duration {
			index = i
			break
		}
		accumulated += s.programs[i].Duration
	}

	program := s.programs[index]
	offset := cyclePosition - s.starts[index]
	exact := time.Duration(offset)*time.Second + fraction
	startedAt := now.Add(-exact)
	next := s.Next(index)

	return Position{
		ProgramIndex:         index,
		Program:              program,
		OffsetSeconds:        offset,
		Offset:               exact,
		TimeRemainingSeconds: program.Duration - offset,
		NextIndex:            next,
		NextProgram:          s.programs[next],
		CyclePosition:        cyclePosition,
		TotalDuration:        total,
		Cycle:                floorDiv(elapsed, total),
		StartedAt:            startedAt,
		EndsAt:               startedAt.Add(time.Duration(program.Duration) * time.Second),
		IsFirstInCycle:       index == 0,
		IsLastInCycle:        index == len(s.programs)-1,
		CalculatedAt:         now,
	}
}

// floorDiv divides rounding toward negative infinity
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// floorMod returns a mod b in [0, b) for b > 0
func floorMod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
