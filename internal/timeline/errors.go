package timeline

import "errors"

var (
	// ErrEmptySchedule is returned when a schedule is built with no programs
	ErrEmptySchedule = errors.New("schedule has no programs")

	// ErrInvalidDuration is returned when a program has a non-positive duration
	ErrInvalidDuration = errors.New("program duration must be greater than zero")

	// ErrInvalidEpoch is returned when a schedule is built with a zero epoch
	ErrInvalidEpoch = errors.New("schedule epoch is not set")
)

// IsEmptySchedule checks if the error is an empty schedule error
func IsEmptySchedule(err error) bool {
	return errors.Is(err, ErrEmptySchedule)
}

// IsInvalidDuration checks if the error is an invalid duration error
func IsInvalidDuration(err error) bool {
	return errors.Is(err, ErrInvalidDuration)
}
