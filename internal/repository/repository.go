package repository

import (
	"context"
	"database/sql"
	"time"

	"timebased_cover/internal/models"
)

// Authorization stores API users and their roles.
type Authorization interface {
	Create(ctx context.Context, u models.User) (int, error)
	// GetByUsername returns (nil, nil) when the user does not exist.
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Count(ctx context.Context) (int, error)
}

type PositionRepo interface {
	Save(ctx context.Context, p models.CoverPosition) error
	// Load reports found=false when the cover has never been persisted.
	Load(ctx context.Context, coverID string) (p models.CoverPosition, found bool, err error)
}

type EventRepo interface {
	Append(ctx context.Context, e models.CoverEvent) error
	List(ctx context.Context, from, to time.Time, typ, coverID string) ([]models.CoverEvent, error)
}

type Repository struct {
	PositionRepo PositionRepo
	EventRepo    EventRepo
	Auth         Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		PositionRepo: NewPositionSQLite(db),
		EventRepo:    NewEventSQLite(db),
		Auth:         NewUserSQLite(db),
	}
}
