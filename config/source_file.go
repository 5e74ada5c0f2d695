package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// FileSource file configuration data source
type FileSource struct {
	path     string
	priority int
}

// NewFileSource creates a file data source
func NewFileSource(path string, priority int) *FileSource {
	return &FileSource{
		path:     path,
		priority: priority,
	}
}

func (s *FileSource) Name() string {
	return "file:" + s.path
}

func (s *FileSource) Priority() int {
	return s.priority
}

// Load loads the file through viper
// A missing file is not an error: it yields an empty configuration
func (s *FileSource) Load() (map[string]interface{}, error) {
	if _, err := os.Stat(s.path); err != nil {
		if os.IsNotExist(err) {
			return make(map[string]interface{}), nil
		}
		return nil, fmt.Errorf("stat config file %s: %w", s.path, err)
	}

	v := viper.New()
	v.SetConfigFile(s.path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file %s: %w", s.path, err)
	}

	return flattenMap("", v.AllSettings()), nil
}

// flattenMap flattens a nested map into dot-separated keys
// e.g. {"connection": {"heartbeat_interval": "30s"}} -> {"connection.heartbeat_interval": "30s"}
func flattenMap(prefix string, data map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})

	for key, value := range data {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}

		switch v := value.(type) {
		case map[string]interface{}:
			for nestedKey, nestedValue := range flattenMap(fullKey, v) {
				result[nestedKey] = nestedValue
			}
		default:
			result[fullKey] = value
		}
	}

	return result
}
