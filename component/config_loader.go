package component

// ConfigLoader read-only view of the layered configuration.
//
// Components read their own sections through this interface instead of
// depending on a concrete config type; *config.Loader satisfies it.
type ConfigLoader interface {
	// Get raw configuration value for a dotted key ("connection.backoff_base")
	Get(key string) interface{}

	// UnmarshalKey decodes one configuration section into a struct
	// (mapstructure tags), e.g. UnmarshalKey("transport", &cfg).
	UnmarshalKey(key string, out interface{}) error

	// GetString string value for a key
	GetString(key string) string

	// GetInt integer value for a key
	GetInt(key string) int

	// GetBool boolean value for a key
	GetBool(key string) bool

	// IsSet reports whether the key exists in any source
	IsSet(key string) bool
}
