package realtime

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	// DefaultReadyTimeout WaitForReady deadline when the ctx has none
	DefaultReadyTimeout = 10 * time.Second

	// DefaultSubscribeTimeout per-topic backend subscribe deadline
	DefaultSubscribeTimeout = 5 * time.Second

	// DefaultPoolSize dispatch worker pool size
	DefaultPoolSize = 8
)

// Config hub configuration
type Config struct {
	// ReadyTimeout default WaitForReady deadline
	ReadyTimeout time.Duration `mapstructure:"ready_timeout"`

	// SubscribeTimeout deadline for one backend subscribe call
	SubscribeTimeout time.Duration `mapstructure:"subscribe_timeout"`

	// PoolSize worker pool size for cross-topic event fan-out
	PoolSize int `mapstructure:"pool_size"`
}

// ApplyDefaults fills zero values with defaults
func (c *Config) ApplyDefaults() {
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = DefaultReadyTimeout
	}
	if c.SubscribeTimeout <= 0 {
		c.SubscribeTimeout = DefaultSubscribeTimeout
	}
	if c.PoolSize <= 0 {
		c.PoolSize = DefaultPoolSize
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ReadyTimeout, validation.Min(time.Millisecond)),
		validation.Field(&c.SubscribeTimeout, validation.Min(time.Millisecond)),
		validation.Field(&c.PoolSize, validation.Min(1), validation.Max(1024)),
	)
}
