package llm

import "time"

// RetryConfig holds retry configuration for LLM requests.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts per endpoint. Values
	// below 1 are treated as 1.
	MaxAttempts int `yaml:"max_attempts"`

	// BackoffBase is the initial backoff duration.
	BackoffBase time.Duration `yaml:"backoff_base"`

	// MaxBackoff caps the maximum backoff duration.
	MaxBackoff time.Duration `yaml:"max_backoff"`

	// MaxJitter is the random jitter added to each backoff.
	MaxJitter time.Duration `yaml:"max_jitter"`
}

// DefaultRetryConfig returns sensible retry defaults for LLM requests.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BackoffBase: 2 * time.Second,
		MaxBackoff:  30 * time.Second,
		MaxJitter:   500 * time.Millisecond,
	}
}

// SingleAttempt disables per-endpoint retries. The endpoint fallback chain
// still applies.
func SingleAttempt() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = 1
	return cfg
}

func (c RetryConfig) attempts() uint {
	if c.MaxAttempts < 1 {
		return 1
	}
	return uint(c.MaxAttempts)
}
