package breaker

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	// DefaultThreshold consecutive failures before opening
	DefaultThreshold = 5

	// DefaultResetTimeout cool-down before the first half-open probe
	DefaultResetTimeout = 60 * time.Second

	// DefaultHalfOpenProbes concurrent probes admitted while half-open
	DefaultHalfOpenProbes = 1
)

// Config circuit breaker configuration
type Config struct {
	// Name identifies the breaker in logs and metrics
	Name string `mapstructure:"name"`

	// Threshold consecutive failures that open the breaker
	Threshold int `mapstructure:"threshold"`

	// ResetTimeout how long the breaker stays open before probing
	ResetTimeout time.Duration `mapstructure:"reset_timeout"`

	// HalfOpenProbes max concurrent probe calls while half-open
	HalfOpenProbes int `mapstructure:"half_open_probes"`
}

// ApplyDefaults fills zero values with defaults
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	if c.HalfOpenProbes <= 0 {
		c.HalfOpenProbes = DefaultHalfOpenProbes
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.Threshold, validation.Min(1)),
		validation.Field(&c.ResetTimeout, validation.Min(time.Millisecond)),
		validation.Field(&c.HalfOpenProbes, validation.Min(1)),
	)
}
