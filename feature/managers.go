package feature

import (
	"fmt"

	"github.com/jaajung-kjs/realtime-core/realtime"
	"github.com/jaajung-kjs/realtime-core/transport"
)

// Topic names of the built-in feature managers
const (
	TopicMessages      = "messages"
	TopicNotifications = "notifications"
	TopicContent       = "posts"
)

// NewMessagesManager creates the messaging feature manager. Change
// events invalidate the message list plus the affected conversation.
func NewMessagesManager(hub *realtime.Hub, invalidate Invalidator, cfg Config, opts ...Option) *Manager {
	return NewManager("messages", TopicMessages, "", hub, invalidate, messageKeys, cfg, opts...)
}

func messageKeys(ev transport.ChangeEvent) []string {
	keys := []string{"messages:list"}
	if id := recordString(ev, "conversation_id"); id != "" {
		keys = append(keys, "messages:conversation:"+id)
	}
	if id := recordString(ev, "recipient_id"); id != "" {
		keys = append(keys, "messages:unread:"+id)
	}
	return keys
}

// NewNotificationsManager creates the notifications feature manager.
// Change events invalidate the recipient's notification list and
// unread counter.
func NewNotificationsManager(hub *realtime.Hub, invalidate Invalidator, cfg Config, opts ...Option) *Manager {
	return NewManager("notifications", TopicNotifications, "", hub, invalidate, notificationKeys, cfg, opts...)
}

func notificationKeys(ev transport.ChangeEvent) []string {
	keys := []string{"notifications:list"}
	if id := recordString(ev, "user_id"); id != "" {
		keys = append(keys,
			"notifications:user:"+id,
			"notifications:unread:"+id)
	}
	return keys
}

// NewContentManager creates the content board feature manager. Change
// events invalidate the board listing, the post itself, and its
// category listing.
func NewContentManager(hub *realtime.Hub, invalidate Invalidator, cfg Config, opts ...Option) *Manager {
	return NewManager("content", TopicContent, "", hub, invalidate, contentKeys, cfg, opts...)
}

func contentKeys(ev transport.ChangeEvent) []string {
	keys := []string{"content:list"}
	if id := recordString(ev, "id"); id != "" {
		keys = append(keys, "content:post:"+id)
	}
	if cat := recordString(ev, "category"); cat != "" {
		keys = append(keys, "content:category:"+cat)
	}
	return keys
}

// recordString reads a field from the new record, falling back to the
// old record for deletes
func recordString(ev transport.ChangeEvent, field string) string {
	rec := ev.Record
	if rec == nil {
		rec = ev.OldRecord
	}
	if rec == nil {
		return ""
	}
	v, ok := rec[field]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	default:
		return fmt.Sprintf("%v", v)
	}
}
