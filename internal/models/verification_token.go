// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// VerificationToken stores a hashed password reset token for an identifier.
type VerificationToken struct { //nolint:govet // fieldalignment: readability over optimization
	Identifier string    `db:"identifier" json:"identifier"`
	TokenHash  string    `db:"token_hash" json:"-"` // SHA256 hash
	ExpiresAt  time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Expired reports whether the token is past its expiry at the given instant.
func (t *VerificationToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
