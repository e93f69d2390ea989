package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"timebased_cover/internal/models"
)

var (
	ErrUnknownRole   = errors.New("unknown role")
	ErrUsernameTaken = errors.New("username already taken")
)

// UserSQLite keeps API users in the users table.
type UserSQLite struct {
	db *sql.DB
}

func NewUserSQLite(db *sql.DB) *UserSQLite {
	return &UserSQLite{db: db}
}

var _ Authorization = (*UserSQLite)(nil)

const (
	insertUserSQL = `
		INSERT INTO users (username, password_hash, role, created_at)
		VALUES (?, ?, ?, ?)
	`
	selectUserByUsernameSQL = `
		SELECT id, username, password_hash, role, created_at
		FROM users WHERE username = ?
	`
	countUsersSQL = `SELECT COUNT(*) FROM users`
)

// Create inserts u and returns its id. A zero CreatedAt is stamped now.
func (r *UserSQLite) Create(ctx context.Context, u models.User) (int, error) {
	if !models.ValidRole(u.Role) {
		return 0, fmt.Errorf("create user %q: %w: %q", u.Username, ErrUnknownRole, u.Role)
	}
	created := u.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	res, err := r.db.ExecContext(ctx, insertUserSQL, u.Username, u.PasswordHash, u.Role, created.UTC())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return 0, fmt.Errorf("insert user %q: %w", u.Username, ErrUsernameTaken)
		}
		return 0, fmt.Errorf("insert user %q: %w", u.Username, err)
	}
	lastID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id for user %q: %w", u.Username, err)
	}
	return int(lastID), nil
}

func (r *UserSQLite) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := r.db.QueryRowContext(ctx, selectUserByUsernameSQL, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select user %q: %w", username, err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

// Count returns the number of registered users.
func (r *UserSQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, countUsersSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}
