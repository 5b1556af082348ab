// Package repository persists warehouse user accounts.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/stockbridge/stockbridge-backend/pkg/database"
	"github.com/stockbridge/stockbridge-backend/pkg/errors"
)

// User is a warehouse operator account.
type User struct {
	ID           string     `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Role         string     `db:"role" json:"role"`
	Branch       string     `db:"branch" json:"branch"`
	Active       bool       `db:"active" json:"active"`
	LastLoginAt  *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Repository persists users.
type Repository struct {
	db *database.DB
}

// NewRepository creates a user repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// GetByUsername loads a user by username.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE username = $1`, username)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("user")
	}
	if err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "failed to load user", 500)
	}
	return &user, nil
}

// GetByID loads a user by id.
func (r *Repository) GetByID(ctx context.Context, id string) (*User, error) {
	var user User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("user")
	}
	if err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "failed to load user", 500)
	}
	return &user, nil
}

// TouchLastLogin records a successful login.
func (r *Repository) TouchLastLogin(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "DB_ERROR", "failed to update last login", 500)
	}
	return nil
}
