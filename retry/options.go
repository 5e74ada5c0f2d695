package retry

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Config retry configuration
type Config struct {
	maxAttempts int                          // maximum attempts (default 3)
	backoff     BackoffStrategy              // backoff strategy (default exponential)
	condition   func(err error) bool         // retry condition (default: all errors)
	onRetry     func(attempt int, err error) // retry callback
	timeout     time.Duration                // per-attempt timeout (0 = unlimited)
	clock       clockwork.Clock              // timer source, injectable for tests
}

func defaultConfig() *Config {
	return &Config{
		maxAttempts: 3,
		backoff:     ExponentialBackoff(time.Second),
		condition:   func(error) bool { return true },
		clock:       clockwork.NewRealClock(),
	}
}

// Option configuration option
type Option func(*Config)

// MaxAttempts sets the maximum attempt count
func MaxAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// Backoff sets the backoff strategy
func Backoff(b BackoffStrategy) Option {
	return func(c *Config) {
		if b != nil {
			c.backoff = b
		}
	}
}

// Condition sets the retry condition; a false return stops retrying
func Condition(cond func(err error) bool) Option {
	return func(c *Config) {
		if cond != nil {
			c.condition = cond
		}
	}
}

// OnRetry sets a callback invoked before each retry wait
func OnRetry(f func(attempt int, err error)) Option {
	return func(c *Config) {
		c.onRetry = f
	}
}

// Timeout sets the per-attempt timeout
func Timeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Clock sets the timer source (tests inject a fake clock)
func Clock(clk clockwork.Clock) Option {
	return func(c *Config) {
		if clk != nil {
			c.clock = clk
		}
	}
}
