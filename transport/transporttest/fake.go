// Package transporttest provides a scriptable in-memory Transport for
// exercising connection and subscription logic without a network.
package transporttest

import (
	"context"
	"sync"

	"github.com/jaajung-kjs/realtime-core/transport"
)

// Fake is an in-memory transport.Transport.
//
// Failures are scripted per operation: queue errors with FailOpen /
// FailPing / FailSubscribe and they are consumed in order, after which
// the operation succeeds. Emit injects change events; DropConnection
// simulates the server closing the socket.
type Fake struct {
	mu sync.Mutex

	open   bool
	events chan transport.ChangeEvent

	openErrs      []error
	pingErrs      []error
	subscribeErrs []error

	openCalls      int
	pingCalls      int
	subscriptions  map[string]string
	unsubscribed   []string
	subscribeOrder []string
}

// NewFake creates a closed fake transport
func NewFake() *Fake {
	return &Fake{
		subscriptions: make(map[string]string),
	}
}

// FailOpen queues errors returned by the next Open calls
func (f *Fake) FailOpen(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openErrs = append(f.openErrs, errs...)
}

// FailPing queues errors returned by the next Ping calls
func (f *Fake) FailPing(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingErrs = append(f.pingErrs, errs...)
}

// FailSubscribe queues errors returned by the next Subscribe calls
func (f *Fake) FailSubscribe(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeErrs = append(f.subscribeErrs, errs...)
}

// Open consumes a scripted error or opens the fake
func (f *Fake) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.openCalls++
	if len(f.openErrs) > 0 {
		err := f.openErrs[0]
		f.openErrs = f.openErrs[1:]
		return err
	}
	if f.open {
		return transport.ErrAlreadyConnected
	}
	f.open = true
	f.events = make(chan transport.ChangeEvent, 64)
	return nil
}

// Close closes the fake and its event channel
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.open {
		f.open = false
		close(f.events)
	}
	return nil
}

// Ping consumes a scripted error or succeeds
func (f *Fake) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pingCalls++
	if len(f.pingErrs) > 0 {
		err := f.pingErrs[0]
		f.pingErrs = f.pingErrs[1:]
		return err
	}
	if !f.open {
		return transport.ErrNotConnected
	}
	return nil
}

// Subscribe records the topic or consumes a scripted error
func (f *Fake) Subscribe(ctx context.Context, topic string, filter string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.subscribeErrs) > 0 {
		err := f.subscribeErrs[0]
		f.subscribeErrs = f.subscribeErrs[1:]
		return err
	}
	if !f.open {
		return transport.ErrNotConnected
	}
	f.subscriptions[topic] = filter
	f.subscribeOrder = append(f.subscribeOrder, topic)
	return nil
}

// Unsubscribe removes the topic
func (f *Fake) Unsubscribe(ctx context.Context, topic string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.open {
		return transport.ErrNotConnected
	}
	delete(f.subscriptions, topic)
	f.unsubscribed = append(f.unsubscribed, topic)
	return nil
}

// Events returns the current event channel (nil before the first Open)
func (f *Fake) Events() <-chan transport.ChangeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events
}

// Emit injects a change event as if the server pushed it
func (f *Fake) Emit(ev transport.ChangeEvent) {
	f.mu.Lock()
	ch := f.events
	open := f.open
	f.mu.Unlock()
	if open && ch != nil {
		ch <- ev
	}
}

// DropConnection simulates the server closing the socket
func (f *Fake) DropConnection() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.open {
		f.open = false
		close(f.events)
	}
}

// IsOpen reports whether the fake is open
func (f *Fake) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

// OpenCalls returns how many times Open was called
func (f *Fake) OpenCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.openCalls
}

// PingCalls returns how many times Ping was called
func (f *Fake) PingCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingCalls
}

// Subscriptions returns a copy of the active topic set
func (f *Fake) Subscriptions() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.subscriptions))
	for k, v := range f.subscriptions {
		out[k] = v
	}
	return out
}

// SubscribeOrder returns topics in the order Subscribe accepted them
func (f *Fake) SubscribeOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.subscribeOrder))
	copy(out, f.subscribeOrder)
	return out
}

// Unsubscribed returns topics in the order Unsubscribe removed them
func (f *Fake) Unsubscribed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.unsubscribed))
	copy(out, f.unsubscribed)
	return out
}
