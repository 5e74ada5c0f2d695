package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jaajung-kjs/realtime-core/logger"
	"go.uber.org/zap"
)

// envelope wire format for every frame in either direction
type envelope struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// command client-to-server frame
type command struct {
	Type      string `json:"type"`
	Topic     string `json:"topic,omitempty"`
	Filter    string `json:"filter,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ackPayload server reply to subscribe/unsubscribe/ping commands
type ackPayload struct {
	RequestID string `json:"request_id"`
	OK        bool   `json:"ok"`
	Reason    string `json:"reason,omitempty"`
}

// WSTransport is a websocket Transport implementation.
//
// Each Open starts a fresh read loop and a fresh Events channel; the
// channel closes when the read loop exits. Change events and command
// acks share the wire, so the read loop demultiplexes them.
type WSTransport struct {
	config Config
	logger *logger.CtxZapLogger

	mu      sync.Mutex
	conn    *websocket.Conn
	events  chan ChangeEvent
	closed  bool
	dialing bool

	// writeMu serializes writers; gorilla allows one concurrent writer
	writeMu sync.Mutex

	reqCounter int
	pending    map[string]chan ackPayload
	pendingMu  sync.Mutex
}

// NewWSTransport creates an unopened websocket transport
func NewWSTransport(cfg Config) *WSTransport {
	cfg.ApplyDefaults()
	return &WSTransport{
		config:  cfg,
		logger:  logger.GetLogger("transport"),
		pending: make(map[string]chan ackPayload),
	}
}

// Open dials the endpoint and starts the read loop
func (t *WSTransport) Open(ctx context.Context) error {
	t.mu.Lock()
	if t.conn != nil || t.dialing {
		t.mu.Unlock()
		return ErrAlreadyConnected
	}
	t.dialing = true
	t.mu.Unlock()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.DialTimeout)
		defer cancel()
	}

	url := t.config.URL
	if t.config.Token != "" {
		url += "?token=" + t.config.Token
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		t.mu.Lock()
		t.dialing = false
		t.mu.Unlock()
		return ErrDialFailed.Wrap(err)
	}

	t.mu.Lock()
	t.dialing = false
	t.conn = conn
	t.closed = false
	t.events = make(chan ChangeEvent, t.config.EventBuffer)
	events := t.events
	t.mu.Unlock()

	t.logger.InfoCtx(ctx, "transport connected", zap.String("url", t.config.URL))

	go t.readLoop(conn, events)
	return nil
}

// Close tears the connection down; safe to call repeatedly
func (t *WSTransport) Close() error {
	t.mu.Lock()
	if t.closed || t.conn == nil {
		t.closed = true
		t.mu.Unlock()
		return nil
	}
	conn := t.conn
	t.conn = nil
	t.closed = true
	t.mu.Unlock()

	t.failPending()

	deadline := time.Now().Add(t.config.WriteTimeout)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client close"), deadline)
	return conn.Close()
}

// Ping sends an application-level ping and waits for the matching ack
func (t *WSTransport) Ping(ctx context.Context) error {
	_, err := t.roundTrip(ctx, command{Type: "ping"})
	return err
}

// Subscribe registers a topic on the current connection
func (t *WSTransport) Subscribe(ctx context.Context, topic string, filter string) error {
	ack, err := t.roundTrip(ctx, command{Type: "subscribe", Topic: topic, Filter: filter})
	if err != nil {
		return err
	}
	if !ack.OK {
		return ErrSubscribeFailed.WithMsgf("subscribe %s rejected: %s", topic, ack.Reason)
	}
	return nil
}

// Unsubscribe removes a topic from the current connection
func (t *WSTransport) Unsubscribe(ctx context.Context, topic string) error {
	_, err := t.roundTrip(ctx, command{Type: "unsubscribe", Topic: topic})
	return err
}

// Events returns the event stream of the current connection
func (t *WSTransport) Events() <-chan ChangeEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.events
}

// roundTrip sends a command and waits for its ack
func (t *WSTransport) roundTrip(ctx context.Context, cmd command) (ackPayload, error) {
	t.mu.Lock()
	conn := t.conn
	t.reqCounter++
	cmd.RequestID = fmt.Sprintf("req-%d", t.reqCounter)
	t.mu.Unlock()

	if conn == nil {
		return ackPayload{}, ErrNotConnected
	}

	ch := make(chan ackPayload, 1)
	t.pendingMu.Lock()
	t.pending[cmd.RequestID] = ch
	t.pendingMu.Unlock()

	if err := t.writeJSON(conn, cmd); err != nil {
		t.dropPending(cmd.RequestID)
		return ackPayload{}, err
	}

	select {
	case ack, ok := <-ch:
		if !ok {
			return ackPayload{}, ErrNotConnected
		}
		return ack, nil
	case <-ctx.Done():
		t.dropPending(cmd.RequestID)
		if cmd.Type == "ping" {
			return ackPayload{}, ErrPingTimeout.Wrap(ctx.Err())
		}
		return ackPayload{}, ctx.Err()
	}
}

func (t *WSTransport) writeJSON(conn *websocket.Conn, v any) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
	if err := conn.WriteJSON(v); err != nil {
		return ErrNotConnected.Wrap(err)
	}
	return nil
}

func (t *WSTransport) readLoop(conn *websocket.Conn, events chan ChangeEvent) {
	defer close(events)
	defer t.failPending()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if !closed {
				t.logger.Warn("transport read failed", zap.Error(err))
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.logger.Warn("discarding malformed frame", zap.Error(err))
			continue
		}

		switch env.Type {
		case "ack", "pong":
			var ack ackPayload
			if json.Unmarshal(env.Payload, &ack) != nil {
				ack = ackPayload{RequestID: env.RequestID, OK: true}
			}
			if ack.RequestID == "" {
				ack.RequestID = env.RequestID
			}
			t.resolvePending(ack)

		case "change":
			var ev ChangeEvent
			if err := json.Unmarshal(env.Payload, &ev); err != nil {
				t.logger.Warn("discarding malformed change event",
					zap.String("topic", env.Topic), zap.Error(err))
				continue
			}
			if ev.Topic == "" {
				ev.Topic = env.Topic
			}
			events <- ev

		default:
			t.logger.Debug("ignoring unknown frame type", zap.String("type", env.Type))
		}
	}
}

func (t *WSTransport) resolvePending(ack ackPayload) {
	t.pendingMu.Lock()
	ch, ok := t.pending[ack.RequestID]
	if ok {
		delete(t.pending, ack.RequestID)
	}
	t.pendingMu.Unlock()
	if ok {
		ch <- ack
	}
}

func (t *WSTransport) dropPending(requestID string) {
	t.pendingMu.Lock()
	delete(t.pending, requestID)
	t.pendingMu.Unlock()
}

// failPending closes every in-flight ack channel; waiters see
// ErrNotConnected through the closed-channel branch in roundTrip
func (t *WSTransport) failPending() {
	t.pendingMu.Lock()
	for id, ch := range t.pending {
		close(ch)
		delete(t.pending, id)
	}
	t.pendingMu.Unlock()
}
