package models

import "time"

// CoverPosition is the last committed position of a cover, persisted across restarts.
type CoverPosition struct {
	CoverID   string    `json:"cover_id"`
	Position  int       `json:"position"`
	UpdatedAt time.Time `json:"updated_at"`
}
