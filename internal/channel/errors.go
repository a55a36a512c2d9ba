package channel

import "errors"

// Custom channel service errors
var (
	// ErrEpochChanged indicates the configured epoch differs from the one the channel was started with
	ErrEpochChanged = errors.New("channel epoch differs from stored epoch")

	// ErrNoPrograms indicates neither configuration nor storage provide a lineup
	ErrNoPrograms = errors.New("channel has no programs")

	// ErrNotBootstrapped indicates the channel settings row has not been written yet
	ErrNotBootstrapped = errors.New("channel has not been bootstrapped")
)

// IsEpochChanged checks if the error is an epoch change error
func IsEpochChanged(err error) bool {
	return errors.Is(err, ErrEpochChanged)
}

// IsNoPrograms checks if the error is an empty lineup error
func IsNoPrograms(err error) bool {
	return errors.Is(err, ErrNoPrograms)
}

// IsNotBootstrapped checks if the error is a missing settings error
func IsNotBootstrapped(err error) bool {
	return errors.Is(err, ErrNotBootstrapped)
}
