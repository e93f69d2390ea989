package models

import "time"

// Cover states derived from the travel calculator and availability.
const (
	StateUnavailable = "UNAVAILABLE"
	StateIdle        = "IDLE"
	StateOpening     = "OPENING"
	StateClosing     = "CLOSING"
)

// CoverState is a point-in-time snapshot of one cover.
type CoverState struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Position        int       `json:"current_position"` // 0 closed .. 100 open
	TargetPosition  int       `json:"target_position"`
	State           string    `json:"state"` // UNAVAILABLE | IDLE | OPENING | CLOSING
	Available       bool      `json:"available"`
	IsOpening       bool      `json:"is_opening"`
	IsClosing       bool      `json:"is_closing"`
	IsClosed        bool      `json:"is_closed"`
	Calibrating     bool      `json:"calibrating"`
	AssumedState    bool      `json:"assumed_state"`
	TravelTimeOpen  float64   `json:"time_open"`  // seconds
	TravelTimeClose float64   `json:"time_close"` // seconds
	UpdatedAt       time.Time `json:"updated_at"`
}
