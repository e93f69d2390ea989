package actuator

import (
	"context"
	"sync"
)

// Command is one dispatched actuator command, kept by Memory for inspection.
type Command struct {
	ID   string `json:"id"`
	On   bool   `json:"on"`
	Wait bool   `json:"wait"`
}

// Memory is an in-process switch bank for development, simulation and tests.
type Memory struct {
	mu       sync.Mutex
	states   map[string]State
	commands []Command
}

// NewMemory creates switches for ids, all initially off.
func NewMemory(ids ...string) *Memory {
	m := &Memory{states: make(map[string]State, len(ids))}
	for _, id := range ids {
		if id != "" {
			m.states[id] = Off
		}
	}
	return m
}

var _ Backend = (*Memory)(nil)

func (m *Memory) Send(_ context.Context, id string, on bool, wait bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[id]
	if !ok {
		return ErrUnknownActuator
	}
	if !st.Usable() {
		return ErrUnavailable
	}
	m.states[id] = stateFor(on)
	m.commands = append(m.commands, Command{ID: id, On: on, Wait: wait})
	return nil
}

func (m *Memory) QueryState(_ context.Context, id string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[id]
	if !ok {
		return Unknown, nil
	}
	return st, nil
}

// Toggle sets a state as if the physical switch was operated by hand.
// It is not recorded as a command.
func (m *Memory) Toggle(id string, st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[id]; !ok {
		return ErrUnknownActuator
	}
	m.states[id] = st
	return nil
}

// SetAvailable marks id unavailable, or restores it to off.
func (m *Memory) SetAvailable(id string, available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if available {
		if !m.states[id].Usable() {
			m.states[id] = Off
		}
		return
	}
	m.states[id] = Unavailable
}

// Commands returns a copy of every command dispatched so far.
func (m *Memory) Commands() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Command, len(m.commands))
	copy(out, m.commands)
	return out
}

func (m *Memory) Close() error { return nil }
