package transport

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

const (
	// DefaultDialTimeout upper bound on the websocket handshake
	DefaultDialTimeout = 10 * time.Second

	// DefaultWriteTimeout upper bound on a single frame write
	DefaultWriteTimeout = 5 * time.Second

	// DefaultEventBuffer capacity of the delivered-events channel
	DefaultEventBuffer = 256
)

// Config websocket transport configuration
type Config struct {
	// URL websocket endpoint (ws:// or wss://)
	URL string `mapstructure:"url"`

	// Token bearer token appended to the dial URL
	Token string `mapstructure:"token"`

	// DialTimeout handshake deadline when Open's ctx has none
	DialTimeout time.Duration `mapstructure:"dial_timeout"`

	// WriteTimeout per-frame write deadline
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// EventBuffer event channel capacity; the read loop drops the
	// connection if the consumer falls this far behind
	EventBuffer int `mapstructure:"event_buffer"`
}

// ApplyDefaults fills zero values with defaults
func (c *Config) ApplyDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = DefaultEventBuffer
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URL, validation.Required, is.RequestURI),
		validation.Field(&c.DialTimeout, validation.Min(time.Millisecond)),
		validation.Field(&c.WriteTimeout, validation.Min(time.Millisecond)),
		validation.Field(&c.EventBuffer, validation.Min(1)),
	)
}
