package resilience

import (
	"time"
)

// FromRetryConfig converts config values to a RetryConfig, keeping defaults
// for anything unset.
func FromRetryConfig(maxAttempts, initialBackoffMs int) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if initialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(initialBackoffMs) * time.Millisecond
	}
	return cfg
}
