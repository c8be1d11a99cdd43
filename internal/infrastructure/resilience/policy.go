package resilience

import "time"

// Config describes one protected dependency: how long a single attempt may take,
// how failed attempts are retried and when the breaker opens.
type Config struct {
	OperationTimeout time.Duration

	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

func DefaultConfig() Config {
	return Config{
		OperationTimeout: 10 * time.Second,

		RetryMaxAttempts:    3,
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     400 * time.Millisecond,
		RetryMultiplier:     2.0,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// GenerationConfig makes exactly one attempt; a failed completion falls back to
// a canned reply instead of being repeated.
func GenerationConfig(timeout time.Duration) Config {
	cfg := DefaultConfig()
	cfg.OperationTimeout = timeout
	cfg.RetryMaxAttempts = 1
	cfg.BreakerMinRequests = 5
	return cfg
}

// RetrievalConfig retries transient index and embedding failures a few times.
func RetrievalConfig(timeout time.Duration) Config {
	cfg := DefaultConfig()
	cfg.OperationTimeout = timeout
	return cfg
}

// StoreConfig protects the case store, session store and event bus.
func StoreConfig(timeout time.Duration) Config {
	cfg := DefaultConfig()
	cfg.OperationTimeout = timeout
	cfg.RetryMaxAttempts = 2
	return cfg
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.OperationTimeout < 0 {
		out.OperationTimeout = 0
	}
	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = def.RetryInitialBackoff
	}
	if out.RetryMaxBackoff <= 0 {
		out.RetryMaxBackoff = def.RetryMaxBackoff
	}
	if out.RetryMaxBackoff < out.RetryInitialBackoff {
		out.RetryMaxBackoff = out.RetryInitialBackoff
	}
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}

	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = def.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if out.BreakerHalfOpenMaxCalls == 0 {
		out.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}

	return out
}
