package domain

import "time"

// Notification is a durable in-app notification record. The transient
// channel (Telegram) may fail silently; this row is what the UI lists.
type Notification struct {
	ID        int64
	UserID    int64
	Title     string
	Message   string
	BlockID   int64
	ReadAt    *time.Time
	CreatedAt time.Time
}
