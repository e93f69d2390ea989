package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"timebased_cover/internal/models"
)

type PositionSQLite struct {
	db *sql.DB
}

func NewPositionSQLite(db *sql.DB) *PositionSQLite {
	return &PositionSQLite{db: db}
}

var _ PositionRepo = (*PositionSQLite)(nil)

var ErrPositionOutOfRange = errors.New("position must be within 0..100")

const (
	upsertPositionSQL = `
		INSERT INTO cover_positions (cover_id, position, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(cover_id) DO UPDATE SET
			position=excluded.position,
			updated_at=excluded.updated_at
	`

	selectPositionSQL = `
		SELECT cover_id, position, updated_at
		FROM cover_positions WHERE cover_id=?
	`
)

// Save upserts the row for p.CoverID.
func (r *PositionSQLite) Save(ctx context.Context, p models.CoverPosition) error {
	if p.Position < 0 || p.Position > 100 {
		return fmt.Errorf("save %s: %w", p.CoverID, ErrPositionOutOfRange)
	}

	// ensure UpdatedAt is always persisted as UTC; set if zero
	tsUTC := p.UpdatedAt
	if tsUTC.IsZero() {
		tsUTC = time.Now().UTC()
	} else {
		tsUTC = tsUTC.UTC()
	}

	_, err := r.db.ExecContext(ctx, upsertPositionSQL, p.CoverID, p.Position, tsUTC)
	if err != nil {
		return fmt.Errorf("save position of %s: %w", p.CoverID, err)
	}
	return nil
}

// Load fetches the stored position of coverID.
func (r *PositionSQLite) Load(ctx context.Context, coverID string) (models.CoverPosition, bool, error) {
	row := r.db.QueryRowContext(ctx, selectPositionSQL, coverID)

	var p models.CoverPosition
	if err := row.Scan(&p.CoverID, &p.Position, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.CoverPosition{}, false, nil
		}
		return models.CoverPosition{}, false, fmt.Errorf("load position of %s: %w", coverID, err)
	}
	if p.Position < 0 || p.Position > 100 {
		return models.CoverPosition{}, false, fmt.Errorf("load %s: %w", coverID, ErrPositionOutOfRange)
	}
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, true, nil
}
