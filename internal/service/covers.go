package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"timebased_cover/internal/logger"
	"timebased_cover/internal/models"
	"timebased_cover/internal/repository"

	"github.com/google/uuid"
)

const persistTimeout = 2 * time.Second

// CoverService routes commands to controllers and persists what they publish:
// every log event is appended, and the position is saved whenever a cover
// comes to rest at a new value.
type CoverService struct {
	registry  *Registry
	positions repository.PositionRepo
	events    repository.EventRepo
	log       *logger.Logger

	mu    sync.Mutex
	saved map[string]int
}

func NewCoverService(registry *Registry, positions repository.PositionRepo, events repository.EventRepo, log *logger.Logger) *CoverService {
	if log == nil {
		log = logger.Nop()
	}
	s := &CoverService{
		registry:  registry,
		positions: positions,
		events:    events,
		log:       log,
		saved:     make(map[string]int),
	}
	for _, c := range registry.All() {
		c.OnUpdate(s.persistPosition)
		c.OnEvent(s.appendEvent)
	}
	return s
}

func (s *CoverService) Open(ctx context.Context, id string) error {
	c, err := s.registry.Get(id)
	if err != nil {
		return err
	}
	return c.Open(ctx)
}

func (s *CoverService) Close(ctx context.Context, id string) error {
	c, err := s.registry.Get(id)
	if err != nil {
		return err
	}
	return c.Close(ctx)
}

func (s *CoverService) Stop(ctx context.Context, id string) error {
	c, err := s.registry.Get(id)
	if err != nil {
		return err
	}
	return c.Stop(ctx)
}

func (s *CoverService) SetPosition(ctx context.Context, id string, position int) error {
	c, err := s.registry.Get(id)
	if err != nil {
		return err
	}
	return c.SetPosition(ctx, position)
}

func (s *CoverService) Calibrate(ctx context.Context, id string) error {
	c, err := s.registry.Get(id)
	if err != nil {
		return err
	}
	return c.Calibrate(ctx)
}

// Restore loads the last persisted position of every cover. Covers without a
// stored position stay at 0. Load failures are collected, not fatal.
func (s *CoverService) Restore(ctx context.Context) error {
	var errs []error
	for _, c := range s.registry.All() {
		p, found, err := s.positions.Load(ctx, c.ID())
		switch {
		case err != nil:
			s.log.Errorw("cover_restore_failed", "cover", c.ID(), "err", err)
			errs = append(errs, err)
		case found:
			s.mu.Lock()
			s.saved[c.ID()] = p.Position
			s.mu.Unlock()
			if err := c.Restore(p.Position); err != nil {
				s.mu.Lock()
				delete(s.saved, c.ID())
				s.mu.Unlock()
				errs = append(errs, err)
				break
			}
			s.log.Infow("cover_restored", "cover", c.ID(), "position", p.Position, "saved_at", p.UpdatedAt)
		}
		if !c.CheckAvailability(ctx) {
			s.log.Warnw("cover_unavailable_at_start", "cover", c.ID())
		}
	}
	return errors.Join(errs...)
}

// Shutdown cancels timers of every controller.
func (s *CoverService) Shutdown() {
	for _, c := range s.registry.All() {
		c.Shutdown()
	}
}

// persistPosition saves the position when the cover is at rest and it changed.
func (s *CoverService) persistPosition(st models.CoverState) {
	if st.IsOpening || st.IsClosing || st.Calibrating {
		return
	}
	s.mu.Lock()
	last, ok := s.saved[st.ID]
	if ok && last == st.Position {
		s.mu.Unlock()
		return
	}
	s.saved[st.ID] = st.Position
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.positions.Save(ctx, models.CoverPosition{CoverID: st.ID, Position: st.Position, UpdatedAt: st.UpdatedAt}); err != nil {
		s.log.Errorw("cover_position_save_failed", "cover", st.ID, "position", st.Position, "err", err)
		s.mu.Lock()
		delete(s.saved, st.ID)
		s.mu.Unlock()
	}
}

func (s *CoverService) appendEvent(ev models.CoverEvent) {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.events.Append(ctx, ev); err != nil {
		s.log.Errorw("cover_event_append_failed", "cover", ev.CoverID, "type", ev.Type, "err", err)
	}
}

var _ Covers = (*CoverService)(nil)
