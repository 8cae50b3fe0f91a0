package services

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/dbx"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/audit"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/refreshtokens"
	usersrepo "github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/users"
	"github.com/google/uuid"
)

// memFamilies is an in-memory refreshtokens.Families. Units are serialized
// by one mutex and applied only when fn succeeds.
type memFamilies struct {
	mu      sync.Mutex
	records map[string][]models.RefreshRecord
	err     error
	block   bool
	units   int
}

func newMemFamilies() *memFamilies {
	return &memFamilies{records: map[string][]models.RefreshRecord{}}
}

func (m *memFamilies) InFamily(ctx context.Context, userID string, fn func(context.Context, refreshtokens.Repository) error) error {
	if m.err != nil {
		return m.err
	}
	if m.block {
		<-ctx.Done()
		return ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.units++

	repo := &memRepo{userID: userID, recs: append([]models.RefreshRecord(nil), m.records[userID]...)}
	if err := fn(ctx, repo); err != nil {
		return err
	}
	m.records[userID] = repo.recs
	return nil
}

func (m *memFamilies) snapshot(userID string) []models.RefreshRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.RefreshRecord(nil), m.records[userID]...)
}

func (m *memFamilies) live(userID string) int {
	n := 0
	for _, r := range m.snapshot(userID) {
		if r.IsValid(time.Now()) {
			n++
		}
	}
	return n
}

type memRepo struct {
	userID string
	recs   []models.RefreshRecord
}

func (r *memRepo) Save(_ context.Context, rec *models.RefreshRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	r.recs = append(r.recs, *rec)
	return nil
}

func (r *memRepo) FindCurrentValid(_ context.Context, userID string) (*models.RefreshRecord, int, error) {
	var (
		cur   *models.RefreshRecord
		count int
	)
	for i := range r.recs {
		rec := r.recs[i]
		if rec.UserID != userID || !rec.IsValid(time.Now()) {
			continue
		}
		count++
		if cur == nil || !rec.IssuedAt.Before(cur.IssuedAt) {
			cur = &rec
		}
	}
	if cur == nil {
		return nil, 0, common.ErrorNotFound
	}
	return cur, count, nil
}

func (r *memRepo) RevokeAll(_ context.Context, userID string) (int64, error) {
	var n int64
	for i := range r.recs {
		if r.recs[i].UserID == userID && !r.recs[i].Revoked {
			r.recs[i].Revoke()
			n++
		}
	}
	return n, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *recordingSink) Emit(_ context.Context, e audit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) types() []audit.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.EventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeResolver struct {
	p   models.Principal
	err error
}

func (f fakeResolver) ResolvePrincipal(context.Context, string) (models.Principal, error) {
	return f.p, f.err
}

type fakeUsersRepo struct {
	created   *models.User
	createErr error

	getOut *models.User
	getErr error

	touched  string
	touchErr error
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	u.ID = "u-1"
	f.created = u
	return u, nil
}

func (f *fakeUsersRepo) GetUserByLogin(context.Context, string) (*models.User, error) {
	return f.getOut, f.getErr
}

func (f *fakeUsersRepo) GetUserByID(context.Context, string) (*models.User, error) {
	return f.getOut, f.getErr
}

func (f *fakeUsersRepo) UpdateLastLogin(_ context.Context, userID string, _ time.Time) error {
	f.touched = userID
	return f.touchErr
}

type fakeRepoManager struct {
	u *fakeUsersRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) usersrepo.Repository          { return m.u }
func (m *fakeRepoManager) Families(dbx.Beginner) refreshtokens.Families { return nil }
