package models

import "time"

// Event types recorded in the cover log.
const (
	EventOpen        = "OPEN"
	EventClose       = "CLOSE"
	EventStop        = "STOP"
	EventSetPosition = "SET_POSITION"
	EventCalibrate   = "CALIBRATE"
	EventReached     = "REACHED"
	EventManual      = "MANUAL"
	EventUnavailable = "UNAVAILABLE"
)

// CoverEvent is a single log entry.
type CoverEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	CoverID     string    `json:"cover_id"`
	Type        string    `json:"type"`        // OPEN | CLOSE | STOP | SET_POSITION | CALIBRATE | REACHED | MANUAL | UNAVAILABLE
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}
