package reconcile

import "time"

// maxRetryBackoff caps the delay between player re-initializations
const maxRetryBackoff = 3 * time.Second

// retryDelay returns how long to wait before re-initializing a player.
// Repeated failures double the base delay up to maxRetryBackoff.
func retryDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if base >= maxRetryBackoff {
		return base
	}

	backoff := base
	for i := 0; i < attempt && backoff < maxRetryBackoff; i++ {
		backoff *= 2
	}
	if backoff > maxRetryBackoff {
		return maxRetryBackoff
	}
	return backoff
}
