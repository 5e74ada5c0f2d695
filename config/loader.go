package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// Loader configuration loader supporting multiple prioritized data sources
type Loader struct {
	sources      []ConfigSource
	mergedConfig map[string]interface{}
	v            *viper.Viper
}

// NewLoader creates a configuration loader
func NewLoader() *Loader {
	return &Loader{
		sources:      make([]ConfigSource, 0),
		mergedConfig: make(map[string]interface{}),
		v:            viper.New(),
	}
}

// AddSource adds a configuration data source
func (l *Loader) AddSource(source ConfigSource) {
	l.sources = append(l.sources, source)
}

// Load loads and merges all data sources
func (l *Loader) Load() error {
	// sort by priority, low to high
	sort.Slice(l.sources, func(i, j int) bool {
		return l.sources[i].Priority() < l.sources[j].Priority()
	})

	l.mergedConfig = make(map[string]interface{})
	for _, source := range l.sources {
		data, err := source.Load()
		if err != nil {
			return fmt.Errorf("load source %s: %w", source.Name(), err)
		}
		// higher priority overrides lower
		for key, value := range data {
			l.mergedConfig[key] = value
		}
	}

	l.syncToViper()
	return nil
}

// syncToViper rebuilds the viper instance from the merged flat map
func (l *Loader) syncToViper() {
	nested := unflattenMap(l.mergedConfig)
	l.v = viper.New()
	for key, value := range nested {
		l.v.Set(key, value)
	}
}

// unflattenMap converts a flat dot-keyed map into a nested map
func unflattenMap(flat map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})
	for key, value := range flat {
		setNestedValue(result, key, value)
	}
	return result
}

func setNestedValue(m map[string]interface{}, key string, value interface{}) {
	keys := strings.Split(key, ".")
	if len(keys) == 1 {
		m[keys[0]] = value
		return
	}

	current := m
	for _, k := range keys[:len(keys)-1] {
		next, ok := current[k].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			current[k] = next
		}
		current = next
	}
	current[keys[len(keys)-1]] = value
}

// UnmarshalKey parses a configuration section into a struct
func (l *Loader) UnmarshalKey(key string, out interface{}) error {
	return l.v.UnmarshalKey(key, out)
}

// Unmarshal parses the whole configuration into a struct
func (l *Loader) Unmarshal(out interface{}) error {
	return l.v.Unmarshal(out)
}

// Get returns a configuration value
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}

// GetString returns a string configuration value
func (l *Loader) GetString(key string) string {
	return l.v.GetString(key)
}

// GetInt returns an integer configuration value
func (l *Loader) GetInt(key string) int {
	return l.v.GetInt(key)
}

// GetBool returns a boolean configuration value
func (l *Loader) GetBool(key string) bool {
	return l.v.GetBool(key)
}

// IsSet reports whether a key is present
func (l *Loader) IsSet(key string) bool {
	return l.v.IsSet(key)
}

// AllSettings returns the merged settings
func (l *Loader) AllSettings() map[string]interface{} {
	return l.v.AllSettings()
}

// GetViper returns the underlying viper instance
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}
