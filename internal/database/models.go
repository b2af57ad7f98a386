package database

import "time"

// SessionEvent is one audited status notification of a remote-access session.
type SessionEvent struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SessionID  string    `gorm:"index;not null" json:"session_id"`
	DeviceID   string    `gorm:"index;not null" json:"device_id"`
	EventType  string    `gorm:"index;not null" json:"event_type"`
	Status     string    `gorm:"not null" json:"status"`
	Message    string    `json:"message"`
	OccurredAt time.Time `gorm:"index" json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
}
