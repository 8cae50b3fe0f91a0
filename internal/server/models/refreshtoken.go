package models

import "time"

// RefreshRecord is the server-side trace of one issued refresh token.
// Only a one-way hash of the signed token is kept. Records are never
// deleted by the token core; Revoked flips to true exactly once.
type RefreshRecord struct {
	ID        string
	UserID    string
	TokenHash string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool
}

// IsValid reports whether the record can still back a rotation at now.
func (r *RefreshRecord) IsValid(now time.Time) bool {
	return !r.Revoked && now.Before(r.ExpiresAt)
}

// Revoke marks the record unusable. Revocation is irreversible.
func (r *RefreshRecord) Revoke() {
	r.Revoked = true
}
