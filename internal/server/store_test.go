package server

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/dmitrijs2005/tokenkeeper/internal/dbx"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/config"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeManager skips goose and vends the real PostgreSQL repositories.
type fakeManager struct {
	migrateErr error
	migrated   bool
}

func (m *fakeManager) RunMigrations(context.Context, *sql.DB) error {
	m.migrated = true
	return m.migrateErr
}

func (m *fakeManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

func (m *fakeManager) Families(db dbx.Beginner) refreshtokens.Families {
	return refreshtokens.NewPostgresFamilies(db)
}

func stubStore(t *testing.T, m *fakeManager) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	oldOpen, oldManager := openDB, newManager
	openDB = func(string) (*sql.DB, error) { return db, nil }
	newManager = func() repomanager.RepositoryManager { return m }
	t.Cleanup(func() {
		openDB, newManager = oldOpen, oldManager
	})
	return mock
}

func testConfig() *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	return c
}

func TestOpenStore_Postgres(t *testing.T) {
	m := &fakeManager{}
	mock := stubStore(t, m)

	s, err := OpenStore(context.Background(), testConfig())
	require.NoError(t, err)

	assert.True(t, m.migrated)
	assert.Nil(t, s.Redis)
	assert.IsType(t, &refreshtokens.PostgresFamilies{}, s.Families)

	mock.ExpectClose()
	s.Close()
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenStore_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	stubStore(t, &fakeManager{})

	cfg := testConfig()
	cfg.StoreKind = config.StoreRedis
	cfg.RedisAddr = mr.Addr()

	s, err := OpenStore(context.Background(), cfg)
	require.NoError(t, err)
	defer s.Close()

	assert.NotNil(t, s.Redis)
	assert.IsType(t, &refreshtokens.RedisFamilies{}, s.Families)
}

func TestOpenStore_RedisUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()
	mock := stubStore(t, &fakeManager{})
	mock.ExpectClose()

	cfg := testConfig()
	cfg.StoreKind = config.StoreRedis
	cfg.RedisAddr = addr

	_, err = OpenStore(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenStore_MigrationsFail(t *testing.T) {
	mock := stubStore(t, &fakeManager{migrateErr: errors.New("boom")})
	mock.ExpectClose()

	_, err := OpenStore(context.Background(), testConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrations error")
	assert.NoError(t, mock.ExpectationsWereMet())
}
