package notify

import "time"

// retryBackoff computes the delay before the next attempt: base doubled per
// completed retry, capped at max.
func retryBackoff(base, max time.Duration, retryCount int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	delay := base
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if max > 0 && delay >= max {
			return max
		}
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}
