package logger

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap/zapcore"
)

// ManagerConfig global manager configuration (shared by all modules)
type ManagerConfig struct {
	BaseLogDir    string `mapstructure:"base_log_dir"` // log root directory (default logs/)
	Level         string `mapstructure:"level"`
	AppName       string `mapstructure:"app_name"` // injected into every record
	Encoding      string `mapstructure:"encoding"` // json or console
	EnableConsole bool   `mapstructure:"enable_console"`
	EnableFile    bool   `mapstructure:"enable_file"`

	// file rotation
	MaxSize    int  `mapstructure:"max_size"`    // MB per file
	MaxBackups int  `mapstructure:"max_backups"` // old files kept
	MaxAge     int  `mapstructure:"max_age"`     // days kept
	Compress   bool `mapstructure:"compress"`

	EnableCaller bool `mapstructure:"enable_caller"`
}

// DefaultManagerConfig returns the default manager configuration
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		BaseLogDir:    "logs",
		Level:         "info",
		Encoding:      "json",
		EnableConsole: true,
		EnableFile:    false,
		MaxSize:       100,
		MaxBackups:    3,
		MaxAge:        28,
		Compress:      true,
		EnableCaller:  true,
	}
}

// ApplyDefaults fills zero-valued fields with default values (in-place)
func (c *ManagerConfig) ApplyDefaults() {
	defaults := DefaultManagerConfig()

	if c.BaseLogDir == "" {
		c.BaseLogDir = defaults.BaseLogDir
	}
	if c.Level == "" {
		c.Level = defaults.Level
	}
	if c.Encoding == "" {
		c.Encoding = defaults.Encoding
	}
	if c.MaxSize == 0 {
		c.MaxSize = defaults.MaxSize
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = defaults.MaxBackups
	}
	if c.MaxAge == 0 {
		c.MaxAge = defaults.MaxAge
	}
}

// Validate checks the configuration
func (c *ManagerConfig) Validate() error {
	switch strings.ToLower(c.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Level)
	}
	switch c.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log encoding: %s", c.Encoding)
	}
	return nil
}

// ParseLevel converts a level string to a zapcore.Level (defaults to info)
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// moduleFilePath builds the log file path for a module
// e.g. logs/realtime/realtime-2006-01-02.log
func (c *ManagerConfig) moduleFilePath(module string) string {
	return filepath.Join(c.BaseLogDir, module, module+".log")
}
