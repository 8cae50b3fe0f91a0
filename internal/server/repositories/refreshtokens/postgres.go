package refreshtokens

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/dbx"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX. Outside of
// PostgresFamilies it gives no atomicity guarantees across calls.
type PostgresRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db, now: time.Now}
}

func (r *PostgresRepository) Save(ctx context.Context, rec *models.RefreshRecord) error {
	query := `
		INSERT INTO refresh_tokens (user_id, token_hash, issued_at, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		rec.UserID, rec.TokenHash, rec.IssuedAt, rec.ExpiresAt, rec.Revoked).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindCurrentValid(ctx context.Context, userID string) (*models.RefreshRecord, int, error) {
	query := `
		SELECT id, user_id, token_hash, issued_at, expires_at, revoked
		FROM refresh_tokens
		WHERE user_id = $1 AND NOT revoked AND expires_at > $2
		ORDER BY issued_at DESC, created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID, r.now())
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var (
		current *models.RefreshRecord
		count   int
	)
	for rows.Next() {
		rec := &models.RefreshRecord{}
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.TokenHash, &rec.IssuedAt, &rec.ExpiresAt, &rec.Revoked); err != nil {
			return nil, 0, fmt.Errorf("db error: %w", err)
		}
		if current == nil {
			current = rec
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}
	if current == nil {
		return nil, 0, common.ErrorNotFound
	}
	return current, count, nil
}

func (r *PostgresRepository) RevokeAll(ctx context.Context, userID string) (int64, error) {
	query := `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE user_id = $1 AND NOT revoked
	`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// PostgresFamilies runs each family unit in its own transaction, holding a
// transaction-scoped advisory lock keyed by the user id.
type PostgresFamilies struct {
	db dbx.Beginner
}

func NewPostgresFamilies(db dbx.Beginner) *PostgresFamilies {
	return &PostgresFamilies{db: db}
}

func (f *PostgresFamilies) InFamily(ctx context.Context, userID string, fn func(ctx context.Context, repo Repository) error) error {
	return dbx.WithTx(ctx, f.db, &sql.TxOptions{}, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
			return fmt.Errorf("lock family: %w", err)
		}
		return fn(ctx, NewPostgresRepository(tx))
	})
}
