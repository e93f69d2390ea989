package service

import (
	"context"
	"time"

	"timebased_cover/internal/actuator"
	"timebased_cover/internal/logger"
	"timebased_cover/internal/models"
	"timebased_cover/internal/repository"
)

// Authorization registers API users and resolves tokens to callers.
type Authorization interface {
	SignUp(ctx context.Context, username, password string) (models.User, error)
	GenerateToken(ctx context.Context, username, password string) (string, error)
	ParseToken(accessToken string) (models.Identity, error)
}

// Covers exposes motion commands addressed by cover id.
type Covers interface {
	Open(ctx context.Context, id string) error
	Close(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	SetPosition(ctx context.Context, id string, position int) error
	Calibrate(ctx context.Context, id string) error
	// Restore applies persisted positions and checks actuator availability.
	Restore(ctx context.Context) error
	Shutdown()
}

// Monitoring exposes read-only cover snapshots.
type Monitoring interface {
	ListStates(ctx context.Context) ([]models.CoverState, error)
	GetState(ctx context.Context, id string) (models.CoverState, error)
}

// EventLog exposes append-only logs with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.CoverEvent, error)
}

// Watcher runs the background loop that detects manual actuator operation.
// Stop via context cancellation in main() for graceful shutdown.
type Watcher interface {
	Run(ctx context.Context, tick time.Duration) error
}

// Updates streams cover snapshots as controllers publish them.
type Updates interface {
	// Subscribe returns a buffered feed and a func that ends it. A slow
	// subscriber misses snapshots rather than blocking controllers.
	Subscribe() (<-chan models.CoverState, func())
}

// Switchboard simulates a wall-switch press on backends that support it.
type Switchboard interface {
	Toggle(ctx context.Context, id string, st actuator.State) error
}

// Service aggregates all sub-services.
type Service struct {
	Covers
	Monitoring
	EventLog
	Watcher
	Switchboard
	Updates
	Authorization
}

// Deps are the runtime objects the services are built around.
type Deps struct {
	Registry *Registry
	Hub      *actuator.Hub
	Manual   ManualSwitches // nil when the backend has no manual simulation
	Auth     AuthConfig
	Log      *logger.Logger
}

// NewService wires the repository layer and the cover controllers into concrete services.
func NewService(repos *repository.Repository, deps Deps) *Service {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	return &Service{
		Covers:        NewCoverService(deps.Registry, repos.PositionRepo, repos.EventRepo, deps.Log),
		Monitoring:    NewMonitoringService(deps.Registry),
		EventLog:      NewEventLogService(repos.EventRepo),
		Watcher:       NewWatcherService(deps.Hub, deps.Registry, deps.Log),
		Switchboard:   NewSwitchboardService(deps.Manual, deps.Hub),
		Updates:       NewBroadcaster(deps.Registry, deps.Log),
		Authorization: NewAuthService(repos.Auth, deps.Auth),
	}
}
