package connection

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/jaajung-kjs/realtime-core/breaker"
)

const (
	// DefaultDialTimeout cold-start dial deadline
	DefaultDialTimeout = 10 * time.Second

	// DefaultFastDialTimeout dial deadline on the fast-resume path
	DefaultFastDialTimeout = 5 * time.Second

	// DefaultBackoffBase first reconnect delay
	DefaultBackoffBase = time.Second

	// DefaultBackoffMax reconnect delay cap
	DefaultBackoffMax = 30 * time.Second

	// DefaultFastResumeDelay reconnect delay on the fast-resume path
	DefaultFastResumeDelay = 500 * time.Millisecond

	// DefaultHeartbeatInterval liveness probe period
	DefaultHeartbeatInterval = 30 * time.Second

	// DefaultHeartbeatTimeout single probe deadline
	DefaultHeartbeatTimeout = 5 * time.Second

	// DefaultSuspendGrace hidden time before a heartbeat miss suspends
	DefaultSuspendGrace = 30 * time.Second

	// DefaultLongBackground hidden time past which resume is a full
	// teardown and cold reconnect
	DefaultLongBackground = 5 * time.Minute
)

// Config connection supervisor configuration
//
// The two breakers are tuned differently on purpose: reconnecting is
// expensive so the connect breaker is tolerant, while heartbeats are
// cheap and frequent so their breaker reacts and recovers faster.
type Config struct {
	DialTimeout       time.Duration `mapstructure:"dial_timeout"`
	FastDialTimeout   time.Duration `mapstructure:"fast_dial_timeout"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
	FastResumeDelay   time.Duration `mapstructure:"fast_resume_delay"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout"`
	SuspendGrace      time.Duration `mapstructure:"suspend_grace"`
	LongBackground    time.Duration `mapstructure:"long_background"`

	ConnectBreaker   breaker.Config `mapstructure:"connect_breaker"`
	HeartbeatBreaker breaker.Config `mapstructure:"heartbeat_breaker"`
}

// ApplyDefaults fills zero values with defaults
func (c *Config) ApplyDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.FastDialTimeout <= 0 {
		c.FastDialTimeout = DefaultFastDialTimeout
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = DefaultBackoffMax
	}
	if c.FastResumeDelay <= 0 {
		c.FastResumeDelay = DefaultFastResumeDelay
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if c.SuspendGrace <= 0 {
		c.SuspendGrace = DefaultSuspendGrace
	}
	if c.LongBackground <= 0 {
		c.LongBackground = DefaultLongBackground
	}

	if c.ConnectBreaker.Name == "" {
		c.ConnectBreaker.Name = "connect"
	}
	if c.ConnectBreaker.Threshold <= 0 {
		c.ConnectBreaker.Threshold = 5
	}
	if c.ConnectBreaker.ResetTimeout <= 0 {
		c.ConnectBreaker.ResetTimeout = 60 * time.Second
	}
	if c.HeartbeatBreaker.Name == "" {
		c.HeartbeatBreaker.Name = "heartbeat"
	}
	if c.HeartbeatBreaker.Threshold <= 0 {
		c.HeartbeatBreaker.Threshold = 3
	}
	if c.HeartbeatBreaker.ResetTimeout <= 0 {
		c.HeartbeatBreaker.ResetTimeout = 15 * time.Second
	}
	c.ConnectBreaker.ApplyDefaults()
	c.HeartbeatBreaker.ApplyDefaults()
}

// Validate checks the configuration
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.DialTimeout, validation.Min(time.Millisecond)),
		validation.Field(&c.FastDialTimeout, validation.Min(time.Millisecond), validation.Max(c.DialTimeout)),
		validation.Field(&c.BackoffBase, validation.Min(time.Millisecond)),
		validation.Field(&c.BackoffMax, validation.Min(c.BackoffBase)),
		validation.Field(&c.HeartbeatInterval, validation.Min(time.Second)),
		validation.Field(&c.HeartbeatTimeout, validation.Min(time.Millisecond), validation.Max(c.HeartbeatInterval)),
		validation.Field(&c.SuspendGrace, validation.Min(time.Second)),
		validation.Field(&c.LongBackground, validation.Min(time.Minute)),
	)
	if err != nil {
		return err
	}
	if err := c.ConnectBreaker.Validate(); err != nil {
		return err
	}
	return c.HeartbeatBreaker.Validate()
}
