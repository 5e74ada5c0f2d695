package config

// ConfigSource interface for configuration data sources
// All sources (defaults, files, environment variables) implement this interface
type ConfigSource interface {
	// Name data source name (for logs and debugging)
	Name() string

	// Priority (higher value wins on merge)
	// Suggested values:
	// - defaults: 1
	// - configuration file: 10
	// - environment variables: 50
	Priority() int

	// Load configuration data
	// The returned map uses dot-separated keys, e.g. "connection.heartbeat_interval"
	Load() (map[string]interface{}, error)
}

// DefaultsSource in-memory defaults (lowest priority)
type DefaultsSource struct {
	values map[string]interface{}
}

// NewDefaultsSource creates a defaults source from a flat key map
func NewDefaultsSource(values map[string]interface{}) *DefaultsSource {
	return &DefaultsSource{values: values}
}

func (s *DefaultsSource) Name() string {
	return "defaults"
}

func (s *DefaultsSource) Priority() int {
	return 1
}

func (s *DefaultsSource) Load() (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out, nil
}
