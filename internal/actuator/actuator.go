package actuator

import (
	"context"
	"errors"
	"strings"
	"time"
)

// State is the observed state of a single on/off actuator.
type State string

const (
	On          State = "on"
	Off         State = "off"
	Unavailable State = "unavailable"
	Unknown     State = "unknown"
)

// Usable reports whether the actuator can currently be commanded.
func (s State) Usable() bool {
	return s == On || s == Off
}

// ParseState maps a textual state to a State. Anything unrecognized is Unknown.
func ParseState(s string) State {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "1", "high":
		return On
	case "off", "false", "0", "low":
		return Off
	case "unavailable":
		return Unavailable
	default:
		return Unknown
	}
}

// stateFor converts a command level to the state it produces.
func stateFor(on bool) State {
	if on {
		return On
	}
	return Off
}

// Origin tells who caused a state change.
type Origin string

const (
	OriginExternal Origin = "external" // physical switch, other automation
	OriginCommand  Origin = "command"  // issued through the Hub
	OriginScript   Origin = "script"
	OriginButton   Origin = "button"
)

// SelfOriginated reports whether the change is an echo of our own dispatch.
func (o Origin) SelfOriginated() bool {
	return o == OriginCommand || o == OriginScript || o == OriginButton
}

// StateChange is a single actuator transition notification.
type StateChange struct {
	ID     string    `json:"id"`
	Old    State     `json:"old"`
	New    State     `json:"new"`
	Origin Origin    `json:"origin"`
	At     time.Time `json:"at"`
}

var (
	ErrUnknownActuator = errors.New("unknown actuator")
	ErrUnavailable     = errors.New("actuator unavailable")
)

// Switches is what a cover controller needs from its actuators.
type Switches interface {
	Send(ctx context.Context, id string, on bool, wait bool) error
	QueryState(ctx context.Context, id string) (State, error)
}

// Backend is raw access to a family of switches (GPIO relays, Home Assistant, memory).
type Backend interface {
	Switches
	Close() error
}
