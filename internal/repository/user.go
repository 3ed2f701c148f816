// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/careerhub/internal/models"
)

// CreateUser inserts a user and sets its ID and timestamps.
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	if user.Skills == "" {
		user.Skills = "[]"
	}
	if user.Links == "" {
		user.Links = "[]"
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, display_name, headline, bio, skills, links, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.Email, user.PasswordHash, user.DisplayName, user.Headline, user.Bio, user.Skills, user.Links, now, now)
	if err != nil {
		return wrapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// GetUserByID retrieves a user by ID.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = ?`, id); err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email address.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE email = ?`, email); err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// MarkEmailVerified sets the verification timestamp once; later calls keep
// the original timestamp.
func (r *Repository) MarkEmailVerified(ctx context.Context, email string, at time.Time) error {
	n, err := affected(r.db.ExecContext(ctx,
		`UPDATE users SET email_verified_at = COALESCE(email_verified_at, ?), updated_at = ? WHERE email = ?`,
		at.UTC(), at.UTC(), email))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ProfileUpdate holds the profile fields a user may change. Nil fields are
// left untouched.
type ProfileUpdate struct {
	DisplayName *string
	Headline    *string
	Bio         *string
	Skills      *string // JSON array
	Links       *string // JSON array
}

// UpdateProfile applies a partial profile update.
func (r *Repository) UpdateProfile(ctx context.Context, id int64, upd ProfileUpdate) error {
	n, err := affected(r.db.ExecContext(ctx,
		`UPDATE users SET
			display_name = COALESCE(?, display_name),
			headline     = COALESCE(?, headline),
			bio          = COALESCE(?, bio),
			skills       = COALESCE(?, skills),
			links        = COALESCE(?, links),
			updated_at   = ?
		 WHERE id = ?`,
		upd.DisplayName, upd.Headline, upd.Bio, upd.Skills, upd.Links, time.Now().UTC(), id))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
