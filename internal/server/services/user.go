// Package services contains server-side business logic: the local identity
// source (UserService) and the refresh token lifecycle (SessionService).
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/config"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/repomanager"
	"golang.org/x/crypto/bcrypt"
)

// dummyHash is compared against when the user does not exist, so unknown
// and known user names take about the same time.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("tokenkeeper-dummy-password"), bcrypt.MinCost)

// UserService provides the local identity source:
// - Register: create users with a bcrypt password hash
// - Authenticate: check username/password and produce a Principal
// - ResolvePrincipal: reload a user's identity by id
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	cost        int
	now         func() time.Time
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *UserService {
	return &UserService{
		db:          db,
		repomanager: m,
		cost:        cfg.BcryptCost,
		now:         time.Now,
	}
}

// Register creates a user with the default role.
func (s *UserService) Register(ctx context.Context, username, password, displayName string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", common.ErrorInvalidInput)
	}
	if displayName == "" {
		displayName = username
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	user := &models.User{
		UserName:     username,
		DisplayName:  displayName,
		PasswordHash: hash,
		Roles:        []string{models.DefaultRole},
	}
	u, err := s.repomanager.Users(s.db).Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return u, nil
}

// Authenticate verifies the credentials and returns the user's principal.
// Unknown users and wrong passwords both yield common.ErrorUnauthorized.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (models.Principal, error) {
	repo := s.repomanager.Users(s.db)
	user, err := repo.GetUserByLogin(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return models.Principal{}, common.ErrorUnauthorized
		}
		return models.Principal{}, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	if bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)) != nil {
		return models.Principal{}, common.ErrorUnauthorized
	}

	if err := repo.UpdateLastLogin(ctx, user.ID, s.now()); err != nil {
		return models.Principal{}, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	return user.Principal(), nil
}

// ResolvePrincipal implements PrincipalResolver over the users table.
func (s *UserService) ResolvePrincipal(ctx context.Context, userID string) (models.Principal, error) {
	user, err := s.repomanager.Users(s.db).GetUserByID(ctx, userID)
	if err != nil {
		return models.Principal{}, err
	}
	return user.Principal(), nil
}
