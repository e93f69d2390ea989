package service

import (
	"context"
	"time"

	"timebased_cover/internal/actuator"
	"timebased_cover/internal/logger"

	"golang.org/x/sync/errgroup"
)

// WatcherService feeds external actuator changes to the controllers that own them.
type WatcherService struct {
	hub      *actuator.Hub
	registry *Registry
	log      *logger.Logger
}

func NewWatcherService(hub *actuator.Hub, registry *Registry, log *logger.Logger) *WatcherService {
	if log == nil {
		log = logger.Nop()
	}
	return &WatcherService{hub: hub, registry: registry, log: log}
}

// Run subscribes every controller to its own actuators and polls the hub at
// the given interval until ctx is canceled.
func (s *WatcherService) Run(ctx context.Context, tick time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, c := range s.registry.All() {
		events, cancel := s.hub.Subscribe(c.Switches()...)
		defer cancel()
		c := c
		g.Go(func() error {
			c.Listen(ctx, events)
			return nil
		})
	}

	// seed tracking so the first real change is reported with its old state
	s.hub.Poll(ctx)
	s.log.Infow("watcher_started", "covers", len(s.registry.All()), "tick", tick)

	g.Go(func() error {
		s.hub.Run(ctx, tick)
		return nil
	})
	return g.Wait()
}
