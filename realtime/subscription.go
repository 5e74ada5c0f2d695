package realtime

import (
	"github.com/google/uuid"
	"github.com/jaajung-kjs/realtime-core/transport"
)

// Callback receives change events for a subscribed topic.
// Callbacks are expected to be idempotent cache-invalidation triggers,
// not business logic; they run on pool workers, in per-topic order.
type Callback func(transport.ChangeEvent)

// Subscription a handle for one registered topic callback
type Subscription struct {
	id     uuid.UUID
	topic  string
	filter string
	cb     Callback
}

// ID returns the handle identifier
func (s *Subscription) ID() uuid.UUID { return s.id }

// Topic returns the subscribed topic
func (s *Subscription) Topic() string { return s.topic }

// Filter returns the server-side row filter
func (s *Subscription) Filter() string { return s.filter }

// topicState per-topic registration directory plus the serialized
// delivery queue preserving per-topic event order across pool workers
type topicState struct {
	filter string
	subs   []*Subscription // registration order

	// wiredEpoch the transport session this topic is registered on;
	// a mismatch with the current epoch means re-register on the next
	// readiness edge
	wiredEpoch int64

	queue    []transport.ChangeEvent
	draining bool
}
