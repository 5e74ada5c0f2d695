package config

import (
	"os"
	"strings"
)

// EnvSource environment variable data source
type EnvSource struct {
	prefix   string // environment variable prefix, e.g. "REALTIME"
	priority int
}

// NewEnvSource creates an environment variable data source
func NewEnvSource(prefix string, priority int) *EnvSource {
	return &EnvSource{
		prefix:   prefix,
		priority: priority,
	}
}

func (s *EnvSource) Name() string {
	return "env:" + s.prefix
}

func (s *EnvSource) Priority() int {
	return s.priority
}

// Load scans the environment for prefixed variables
// REALTIME_CONNECTION_HEARTBEAT_INTERVAL -> connection.heartbeat.interval
func (s *EnvSource) Load() (map[string]interface{}, error) {
	result := make(map[string]interface{})
	if s.prefix == "" {
		return result, nil
	}

	prefix := s.prefix + "_"
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key, value := parts[0], parts[1]
		if !strings.HasPrefix(key, prefix) {
			continue
		}

		configKey := strings.TrimPrefix(key, prefix)
		configKey = strings.ToLower(configKey)
		configKey = strings.ReplaceAll(configKey, "_", ".")
		result[configKey] = value
	}

	return result, nil
}
