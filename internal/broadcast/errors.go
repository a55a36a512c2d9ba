package broadcast

import "errors"

var (
	// ErrClosed is returned when publishing on a closed channel
	ErrClosed = errors.New("broadcast channel closed")

	// ErrInvalidMessage is returned for messages that fail validation
	ErrInvalidMessage = errors.New("invalid sync message")
)

// IsClosed checks if the error is a closed channel error
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}
