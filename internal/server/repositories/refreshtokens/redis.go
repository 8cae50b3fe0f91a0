package refreshtokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisKeyPrefix = "tokenkeeper:rt"
	defaultRedisRetries   = 8
)

// ErrFamilyContended is returned when a family unit kept losing the
// optimistic race against concurrent writers.
var ErrFamilyContended = errors.New("refresh family contended")

// RedisFamilies keeps one JSON document per user holding the whole family.
// A unit WATCHes the key, applies fn to an in-memory snapshot and writes the
// result back with MULTI/EXEC; a concurrent write aborts the EXEC and the
// unit is retried on a fresh snapshot.
type RedisFamilies struct {
	rdb     redis.UniversalClient
	prefix  string
	retries int
	now     func() time.Time
}

func NewRedisFamilies(rdb redis.UniversalClient) *RedisFamilies {
	return &RedisFamilies{
		rdb:     rdb,
		prefix:  defaultRedisKeyPrefix,
		retries: defaultRedisRetries,
		now:     time.Now,
	}
}

func (f *RedisFamilies) key(userID string) string {
	return f.prefix + ":" + userID
}

type redisRecord struct {
	ID        string    `json:"id"`
	TokenHash string    `json:"tokenHash"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Revoked   bool      `json:"revoked"`
}

type redisFamily struct {
	Records []redisRecord `json:"records"`
}

func (f *RedisFamilies) InFamily(ctx context.Context, userID string, fn func(ctx context.Context, repo Repository) error) error {
	key := f.key(userID)

	for i := 0; i < f.retries; i++ {
		err := f.rdb.Watch(ctx, func(tx *redis.Tx) error {
			fam, err := loadFamily(ctx, tx, key)
			if err != nil {
				return err
			}

			repo := &redisRepository{userID: userID, fam: fam, now: f.now}
			if err := fn(ctx, repo); err != nil {
				return err
			}
			if !repo.dirty {
				return nil
			}

			data, ttl, err := f.encode(fam)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if ttl <= 0 {
					pipe.Del(ctx, key)
					return nil
				}
				pipe.Set(ctx, key, data, ttl)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}

	return fmt.Errorf("%w: user %s", ErrFamilyContended, userID)
}

func loadFamily(ctx context.Context, tx *redis.Tx, key string) (*redisFamily, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return &redisFamily{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	fam := &redisFamily{}
	if err := json.Unmarshal(data, fam); err != nil {
		return nil, fmt.Errorf("decode family %s: %w", key, err)
	}
	return fam, nil
}

// encode drops expired records and returns the document together with the
// TTL that keeps it alive until its latest record expires.
func (f *RedisFamilies) encode(fam *redisFamily) ([]byte, time.Duration, error) {
	now := f.now()
	kept := fam.Records[:0]
	var latest time.Time
	for _, r := range fam.Records {
		if !now.Before(r.ExpiresAt) {
			continue
		}
		kept = append(kept, r)
		if r.ExpiresAt.After(latest) {
			latest = r.ExpiresAt
		}
	}
	fam.Records = kept

	data, err := json.Marshal(fam)
	if err != nil {
		return nil, 0, fmt.Errorf("encode family: %w", err)
	}
	return data, latest.Sub(now), nil
}

// redisRepository is the Repository view over one loaded family.
type redisRepository struct {
	userID string
	fam    *redisFamily
	now    func() time.Time
	dirty  bool
}

func (r *redisRepository) Save(_ context.Context, rec *models.RefreshRecord) error {
	if rec.UserID != r.userID {
		return fmt.Errorf("record for user %s saved in family of %s", rec.UserID, r.userID)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	r.fam.Records = append(r.fam.Records, redisRecord{
		ID:        rec.ID,
		TokenHash: rec.TokenHash,
		IssuedAt:  rec.IssuedAt,
		ExpiresAt: rec.ExpiresAt,
		Revoked:   rec.Revoked,
	})
	r.dirty = true
	return nil
}

func (r *redisRepository) FindCurrentValid(_ context.Context, userID string) (*models.RefreshRecord, int, error) {
	if userID != r.userID {
		return nil, 0, common.ErrorNotFound
	}

	now := r.now()
	var (
		current *models.RefreshRecord
		count   int
	)
	for _, rr := range r.fam.Records {
		rec := r.model(rr)
		if !rec.IsValid(now) {
			continue
		}
		count++
		if current == nil || !rec.IssuedAt.Before(current.IssuedAt) {
			current = rec
		}
	}
	if current == nil {
		return nil, 0, common.ErrorNotFound
	}
	return current, count, nil
}

func (r *redisRepository) RevokeAll(_ context.Context, userID string) (int64, error) {
	if userID != r.userID {
		return 0, nil
	}

	var n int64
	for i := range r.fam.Records {
		if !r.fam.Records[i].Revoked {
			r.fam.Records[i].Revoked = true
			n++
		}
	}
	if n > 0 {
		r.dirty = true
	}
	return n, nil
}

func (r *redisRepository) model(rr redisRecord) *models.RefreshRecord {
	return &models.RefreshRecord{
		ID:        rr.ID,
		UserID:    r.userID,
		TokenHash: rr.TokenHash,
		IssuedAt:  rr.IssuedAt,
		ExpiresAt: rr.ExpiresAt,
		Revoked:   rr.Revoked,
	}
}
