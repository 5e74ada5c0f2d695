// Package di provides dependency injection for the realtime stack
// based on samber/do.
package di

import "github.com/samber/do/v2"

// Injector type alias
type Injector = do.Injector

// RootScope type alias
type RootScope = do.RootScope

// New creates a new root injector
var New = do.New

// NewWithOpts creates a new root injector with options
var NewWithOpts = do.NewWithOpts

// Generic helpers cannot be exported as vars; call through the do
// package directly:
//   - do.Provide[T](injector, provider)
//   - do.ProvideValue[T](injector, value)
//   - do.Invoke[T](injector)
//   - do.MustInvoke[T](injector)
