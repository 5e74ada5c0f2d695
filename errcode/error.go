// Package errcode provides the basic types and functionality for layered
// error codes. Code format: MMBBBB (MM = module code 2 digits, BBBB =
// business code 4 digits).
package errcode

import (
	"fmt"
)

// Module codes of the realtime core
const (
	ModuleTransport  = 10
	ModuleConnection = 11
	ModuleBreaker    = 12
	ModuleRealtime   = 13
	ModuleFeature    = 14
)

// LayeredError layered error code
// Supports error chaining, dynamic messages and context data
type LayeredError struct {
	module string         // module name (transport, connection, ...)
	code   int            // full code (MMBBBB, e.g. 110001)
	msg    string         // default message
	data   map[string]any // context data
	cause  error          // original error (error chain)
}

// New creates a layered error code
// moduleCode: module code (10-99)
// businessCode: business code (0001-9999)
func New(moduleCode, businessCode int, module, msg string) *LayeredError {
	return &LayeredError{
		module: module,
		code:   moduleCode*10000 + businessCode,
		msg:    msg,
		data:   make(map[string]any),
	}
}

func (e *LayeredError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

// Code returns the full error code
func (e *LayeredError) Code() int {
	return e.code
}

// Module returns the module name
func (e *LayeredError) Module() string {
	return e.module
}

// Message returns the message without the cause chain
func (e *LayeredError) Message() string {
	return e.msg
}

// Data returns the context data
func (e *LayeredError) Data() map[string]any {
	return e.data
}

// Unwrap supports Go 1.13+ error chains
func (e *LayeredError) Unwrap() error {
	return e.cause
}

// Is compares by code so errors.Is works across wrapped instances
func (e *LayeredError) Is(target error) bool {
	t, ok := target.(*LayeredError)
	if !ok {
		return false
	}
	return e.code == t.code
}

// WithMsgf replaces the message (returns a new instance)
func (e *LayeredError) WithMsgf(format string, args ...any) *LayeredError {
	clone := *e
	clone.msg = fmt.Sprintf(format, args...)
	return &clone
}

// WithData adds a single context value (returns a new instance)
func (e *LayeredError) WithData(key string, value any) *LayeredError {
	clone := *e
	clone.data = e.cloneData()
	clone.data[key] = value
	return &clone
}

// Wrap wraps the original error (returns a new instance)
func (e *LayeredError) Wrap(cause error) *LayeredError {
	if cause == nil {
		return e
	}
	clone := *e
	clone.cause = cause
	return &clone
}

// Wrapf wraps the original error and formats the message (returns a new instance)
func (e *LayeredError) Wrapf(cause error, format string, args ...any) *LayeredError {
	if cause == nil {
		return e.WithMsgf(format, args...)
	}
	clone := *e
	clone.cause = cause
	clone.msg = fmt.Sprintf(format, args...)
	return &clone
}

func (e *LayeredError) cloneData() map[string]any {
	data := make(map[string]any, len(e.data))
	for k, v := range e.data {
		data[k] = v
	}
	return data
}
