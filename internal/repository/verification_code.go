// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/careerhub/internal/models"
)

// UpsertVerificationCode stores the pending code for an identifier in a
// single statement, replacing any previous code and resetting attempts.
func (r *Repository) UpsertVerificationCode(ctx context.Context, code *models.VerificationCode) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO verification_codes (identifier, code, attempts, created_at, expires_at)
		 VALUES (?, ?, 0, ?, ?)
		 ON CONFLICT (identifier) DO UPDATE SET
			code       = excluded.code,
			attempts   = 0,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		code.Identifier, code.Code, code.CreatedAt.UTC(), code.ExpiresAt.UTC())
	return err
}

// GetVerificationCode retrieves the pending code for an identifier.
func (r *Repository) GetVerificationCode(ctx context.Context, identifier string) (*models.VerificationCode, error) {
	var code models.VerificationCode
	err := r.db.GetContext(ctx, &code, `SELECT * FROM verification_codes WHERE identifier = ?`, identifier)
	if err != nil {
		return nil, wrapError(err)
	}
	return &code, nil
}

// ReserveVerificationAttempt counts an attempt against the given code if it
// has attempts left. It reports false when the cap is reached or the code
// was replaced.
func (r *Repository) ReserveVerificationAttempt(ctx context.Context, identifier, code string, maxAttempts int) (bool, error) {
	n, err := affected(r.db.ExecContext(ctx,
		`UPDATE verification_codes SET attempts = attempts + 1
		 WHERE identifier = ? AND code = ? AND attempts < ?`,
		identifier, code, maxAttempts))
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ConsumeVerificationCode deletes the row only if it still holds the given
// code. It reports whether this call consumed it.
func (r *Repository) ConsumeVerificationCode(ctx context.Context, identifier, code string) (bool, error) {
	n, err := affected(r.db.ExecContext(ctx,
		`DELETE FROM verification_codes WHERE identifier = ? AND code = ?`, identifier, code))
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteExpiredVerificationCodes deletes codes that expired before now.
func (r *Repository) DeleteExpiredVerificationCodes(ctx context.Context, now time.Time) (int64, error) {
	return affected(r.db.ExecContext(ctx,
		`DELETE FROM verification_codes WHERE expires_at < ?`, now.UTC()))
}
