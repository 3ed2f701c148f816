// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/careerhub/internal/models"
)

// UpsertVerificationToken stores the reset token for an identifier,
// replacing any previous one.
func (r *Repository) UpsertVerificationToken(ctx context.Context, token *models.VerificationToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO verification_tokens (identifier, token_hash, expires_at, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (identifier) DO UPDATE SET
			token_hash = excluded.token_hash,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at`,
		token.Identifier, token.TokenHash, token.ExpiresAt.UTC(), token.CreatedAt.UTC())
	return wrapError(err)
}

// GetVerificationToken retrieves the reset token for an identifier.
func (r *Repository) GetVerificationToken(ctx context.Context, identifier string) (*models.VerificationToken, error) {
	var token models.VerificationToken
	err := r.db.GetContext(ctx, &token, `SELECT * FROM verification_tokens WHERE identifier = ?`, identifier)
	if err != nil {
		return nil, wrapError(err)
	}
	return &token, nil
}

// ConsumeVerificationToken deletes the token row if it still holds the
// given hash and reports whether this call consumed it.
func (r *Repository) ConsumeVerificationToken(ctx context.Context, identifier, tokenHash string) (bool, error) {
	n, err := affected(r.db.ExecContext(ctx,
		`DELETE FROM verification_tokens WHERE identifier = ? AND token_hash = ?`, identifier, tokenHash))
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RedeemVerificationToken consumes the token row if it still holds the
// given hash and sets the password of the user behind identifier, both in
// one transaction. It reports false, changing nothing, when the token was
// already used or replaced.
func (r *Repository) RedeemVerificationToken(ctx context.Context, identifier, tokenHash, passwordHash string) (redeemed bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if !redeemed {
			_ = tx.Rollback()
		}
	}()

	n, err := affected(tx.ExecContext(ctx,
		`DELETE FROM verification_tokens WHERE identifier = ? AND token_hash = ?`, identifier, tokenHash))
	if err != nil || n == 0 {
		return false, err
	}

	n, err = affected(tx.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE email = ?`,
		passwordHash, time.Now().UTC(), identifier))
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteExpiredVerificationTokens deletes tokens that expired before now.
func (r *Repository) DeleteExpiredVerificationTokens(ctx context.Context, now time.Time) (int64, error) {
	return affected(r.db.ExecContext(ctx,
		`DELETE FROM verification_tokens WHERE expires_at < ?`, now.UTC()))
}
