// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// VerificationCode is the single pending one-time passcode for an identifier.
// A new code for the same identifier replaces the previous row.
type VerificationCode struct { //nolint:govet // fieldalignment: readability over optimization
	Identifier string    `db:"identifier" json:"identifier"`
	Code       string    `db:"code" json:"-"`
	Attempts   int       `db:"attempts" json:"attempts"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	ExpiresAt  time.Time `db:"expires_at" json:"expires_at"`
}

// Expired reports whether the code is past its expiry at the given instant.
func (c *VerificationCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
