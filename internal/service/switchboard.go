package service

import (
	"context"
	"errors"

	"timebased_cover/internal/actuator"
)

var ErrManualUnsupported = errors.New("actuator backend does not simulate manual operation")

// ManualSwitches is implemented by backends that can simulate a wall-switch press.
type ManualSwitches interface {
	Toggle(id string, st actuator.State) error
}

type SwitchboardService struct {
	manual ManualSwitches
	hub    *actuator.Hub
}

func NewSwitchboardService(manual ManualSwitches, hub *actuator.Hub) *SwitchboardService {
	return &SwitchboardService{manual: manual, hub: hub}
}

// Toggle flips the switch behind the controllers' back and polls immediately,
// so the change reaches them as external operation.
func (s *SwitchboardService) Toggle(ctx context.Context, id string, st actuator.State) error {
	if s.manual == nil {
		return ErrManualUnsupported
	}
	if err := s.manual.Toggle(id, st); err != nil {
		return err
	}
	if s.hub != nil {
		s.hub.Poll(ctx)
	}
	return nil
}
