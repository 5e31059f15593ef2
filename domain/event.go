package domain

import "time"

type EventType string

const (
	EventPrivateMessage EventType = "PrivateMessage"
	EventGroupMessage   EventType = "GroupMessage"
)

// Event is the realtime frame pushed to WebSocket subscribers and
// republished across instances. Target is a username for private
// messages and a group name for group messages.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"message_type"`
	Origin    string    `json:"origin,omitempty"`
	Sender    string    `json:"sender"`
	Target    string    `json:"target"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
