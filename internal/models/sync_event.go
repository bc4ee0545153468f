package models

import "time"

// Sync event types.
const (
	EventDiscovered     = "DISCOVERED"
	EventRemoved        = "REMOVED"
	EventHidden         = "HIDDEN"
	EventAuthError      = "AUTH_ERROR"
	EventConfigError    = "CONFIG_ERROR"
	EventPollError      = "POLL_ERROR"
	EventCookDisabled   = "COOK_DISABLED"
	EventCookEnabled    = "COOK_ENABLED"
	EventTokenRefreshed = "TOKEN_REFRESHED"
)

// SyncEvent is a single entry of the synchronization log.
type SyncEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`
	DeviceID    string    `json:"device_id,omitempty"`
	Description string    `json:"description"`
	Metadata    any       `json:"metadata,omitempty"`
}
