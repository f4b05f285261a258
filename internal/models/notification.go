package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Notification kinds.
const (
	NotificationWaitlistPromoted = "waitlist_promoted"
	NotificationMeritAwarded     = "merit_awarded"
	NotificationReportReady      = "report_ready"
)

// Notification is a message persisted for a user and pushed over the websocket.
type Notification struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"userId"`
	Kind      string          `json:"kind"`
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	ReadAt    *time.Time      `json:"readAt,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
