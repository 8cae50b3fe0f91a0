// Package refreshtokens declares the refresh token store: the server-side
// records backing issued refresh tokens, grouped into one family per user.
package refreshtokens

import (
	"context"

	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
)

// Repository operates on the refresh records of one family snapshot. It is
// only valid inside the Families.InFamily call that vended it.
type Repository interface {
	// Save persists a new record. Records are never updated in place except
	// for the revoked flag. An empty ID is filled in by the store.
	Save(ctx context.Context, rec *models.RefreshRecord) error

	// FindCurrentValid returns the newest non-revoked, unexpired record of the
	// user and how many such records exist. More than one is a consistency
	// violation the caller should report. Returns common.ErrorNotFound when
	// the user has no valid record.
	FindCurrentValid(ctx context.Context, userID string) (*models.RefreshRecord, int, error)

	// RevokeAll revokes every non-revoked record of the user and returns how
	// many records changed. Revoking an empty family is not an error.
	RevokeAll(ctx context.Context, userID string) (int64, error)
}

// Families runs read-modify-write units over one user's refresh family.
// Everything fn does through the Repository commits atomically, or not at
// all when fn returns an error. Units for the same user never interleave.
//
// Implementations may call fn more than once when they detect a conflicting
// writer, so fn must not keep state across invocations.
type Families interface {
	InFamily(ctx context.Context, userID string, fn func(ctx context.Context, repo Repository) error) error
}
