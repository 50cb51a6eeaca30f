package llm

import "time"

// RetryConfig holds retry configuration for completion requests.
type RetryConfig struct {
	// MaxAttempts is the maximum number of sequential attempts.
	MaxAttempts int

	// BackoffBase is the initial backoff duration.
	BackoffBase time.Duration

	// MaxJitter is the upper bound of the random delay added to each
	// backoff to avoid synchronized retries.
	MaxJitter time.Duration

	// MaxBackoff caps the maximum backoff duration.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns sensible retry defaults for completion requests.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BackoffBase: 2 * time.Second,
		MaxJitter:   time.Second,
		MaxBackoff:  30 * time.Second,
	}
}
