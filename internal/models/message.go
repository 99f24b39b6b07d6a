package models

// Message types
const (
	MessageTypeComment          = "comment"
	MessageTypeNotification     = "notification"
	MessageTypeUserNotification = "user_notification"
)

// Message is a message posted on a record, here always a channel.
type Message struct {
	ID            int64
	Model         string
	ResID         int64
	MessageType   string
	Body          string
	AuthorID      int64
	AuthorGuestID int64
	AuthorName    string
	PinnedAt      *int64
	CreatedAt     int64
}
