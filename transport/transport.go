// Package transport abstracts the realtime wire protocol. A Transport
// owns one physical connection to the realtime backend: it can be
// opened, pinged, and carries topic subscriptions whose change events
// surface on a single ordered channel.
package transport

import (
	"context"
	"time"

	"github.com/jaajung-kjs/realtime-core/errcode"
)

var (
	// ErrNotConnected the operation requires an open connection
	ErrNotConnected = errcode.Register(errcode.New(errcode.ModuleTransport, 1, "transport", "transport is not connected"))

	// ErrAlreadyConnected Open was called on an open transport
	ErrAlreadyConnected = errcode.Register(errcode.New(errcode.ModuleTransport, 2, "transport", "transport is already connected"))

	// ErrDialFailed the dial handshake failed
	ErrDialFailed = errcode.Register(errcode.New(errcode.ModuleTransport, 3, "transport", "transport dial failed"))

	// ErrPingTimeout the server did not answer a ping in time
	ErrPingTimeout = errcode.Register(errcode.New(errcode.ModuleTransport, 4, "transport", "ping timed out"))

	// ErrSubscribeFailed the server rejected a subscribe request
	ErrSubscribeFailed = errcode.Register(errcode.New(errcode.ModuleTransport, 5, "transport", "subscribe failed"))
)

// Action database change kind carried by a ChangeEvent
type Action string

const (
	ActionInsert Action = "INSERT"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// ChangeEvent a single row-level change delivered on a subscribed topic
type ChangeEvent struct {
	// Topic the subscription topic the event arrived on
	Topic string `json:"topic"`

	// Action the change kind
	Action Action `json:"action"`

	// Record the row after the change (nil for deletes)
	Record map[string]any `json:"record,omitempty"`

	// OldRecord the row before the change (updates and deletes)
	OldRecord map[string]any `json:"old_record,omitempty"`

	// CommitTimestamp server commit time of the change
	CommitTimestamp time.Time `json:"commit_timestamp"`
}

// Transport one physical realtime connection
//
// Implementations must deliver events for all topics on the Events
// channel in arrival order. The channel is closed when the transport
// closes; callers detect loss of connection through read errors
// surfacing as channel closure plus the error from Ping.
type Transport interface {
	// Open establishes the connection. ctx bounds the dial.
	Open(ctx context.Context) error

	// Close tears the connection down. Idempotent.
	Close() error

	// Ping verifies liveness end to end. ctx bounds the round trip.
	Ping(ctx context.Context) error

	// Subscribe registers a topic. filter is an optional server-side
	// row filter expression; empty means all rows.
	Subscribe(ctx context.Context, topic string, filter string) error

	// Unsubscribe removes a topic registration.
	Unsubscribe(ctx context.Context, topic string) error

	// Events returns the ordered event stream for the life of the
	// current connection.
	Events() <-chan ChangeEvent
}
