package service

import "time"

// LogFilter supports history filtering by time range, type and cover.
type LogFilter struct {
	From    time.Time // inclusive; zero means no lower bound
	To      time.Time // inclusive; zero means no upper bound
	Type    string    // "", "OPEN", "CLOSE", "STOP", "SET_POSITION", "CALIBRATE", "REACHED", "MANUAL", "UNAVAILABLE"
	CoverID string    // "" means every cover
}
