package server

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/tokenkeeper/internal/server/config"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/repomanager"
	"github.com/redis/go-redis/v9"
)

// Store holds the persistence handles shared by the server and tokenctl.
// Users always live in PostgreSQL; refresh families live in the backend
// selected by Config.StoreKind.
type Store struct {
	DB       *sql.DB
	Redis    redis.UniversalClient
	Manager  repomanager.RepositoryManager
	Families refreshtokens.Families
}

// seams for tests
var (
	openDB = func(dsn string) (*sql.DB, error) {
		return sql.Open("pgx", dsn)
	}
	newManager = repomanager.NewPostgresRepositoryManager
)

// OpenStore opens the database, applies migrations and connects the
// refresh family backend.
func OpenStore(ctx context.Context, c *config.Config) (*Store, error) {
	db, err := openDB(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	s := &Store{DB: db, Manager: newManager()}

	if err := s.Manager.RunMigrations(ctx, db); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	if c.StoreKind != config.StoreRedis {
		s.Families = s.Manager.Families(db)
		return s, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})
	s.Redis = rdb
	if err := rdb.Ping(ctx).Err(); err != nil {
		s.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	s.Families = refreshtokens.NewRedisFamilies(rdb)
	return s, nil
}

func (s *Store) Close() {
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.DB != nil {
		_ = s.DB.Close()
	}
}
