package service

import (
	"context"

	"timebased_cover/internal/models"
)

type MonitoringService struct {
	registry *Registry
}

func NewMonitoringService(registry *Registry) *MonitoringService {
	return &MonitoringService{registry: registry}
}

// ListStates returns a snapshot of every cover in configuration order.
func (s *MonitoringService) ListStates(ctx context.Context) ([]models.CoverState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctrls := s.registry.All()
	out := make([]models.CoverState, 0, len(ctrls))
	for _, c := range ctrls {
		out = append(out, c.Snapshot())
	}
	return out, nil
}

// GetState returns the live snapshot of one cover.
func (s *MonitoringService) GetState(_ context.Context, id string) (models.CoverState, error) {
	c, err := s.registry.Get(id)
	if err != nil {
		return models.CoverState{}, err
	}
	return c.Snapshot(), nil
}
