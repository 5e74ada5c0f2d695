package errcode

import (
	"fmt"
	"sync"
)

// Registry error code registry (prevents code collisions across packages)
type Registry struct {
	mu    sync.RWMutex
	codes map[int]string // code -> module:msg
}

var globalRegistry = &Registry{
	codes: make(map[int]string),
}

// Register registers an error code in the global registry
// Panics if the code is already registered by a different definition
func Register(err *LayeredError) *LayeredError {
	return globalRegistry.Register(err)
}

// Register registers an error code
func (r *Registry) Register(err *LayeredError) *LayeredError {
	r.mu.Lock()
	defer r.mu.Unlock()

	code := err.Code()
	key := fmt.Sprintf("%s:%s", err.Module(), err.Message())

	if existing, exists := r.codes[code]; exists {
		if existing != key {
			panic(fmt.Sprintf(
				"error code conflict: code %d is already registered as %s, cannot register as %s",
				code, existing, key,
			))
		}
		// same code and definition, idempotent
		return err
	}

	r.codes[code] = key
	return err
}

// Count returns the number of registered codes
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.codes)
}
