package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/audit"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/auth"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/config"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/refreshtokens"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	GrantType        string
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// PrincipalResolver reloads the current identity of a user when a refresh
// token is exchanged, so that new access tokens carry up-to-date roles.
// It returns common.ErrorNotFound for users that no longer exist.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, userID string) (models.Principal, error)
}

// SessionService runs the refresh token family state machine: login starts
// a family, refresh rotates it and logout ends it. Presenting anything but
// the current refresh token of a family revokes the whole family.
type SessionService struct {
	families  refreshtokens.Families
	codec     *auth.Codec
	validator *auth.Validator
	hasher    auth.TokenHasher
	resolver  PrincipalResolver
	audit     audit.Sink
	logger    logging.Logger

	accessTTL        time.Duration
	refreshTTL       time.Duration
	storeTimeout     time.Duration
	acceptUnverified bool
	now              func() time.Time
}

// NewSessionService wires the lifecycle service. resolver may be nil, in
// which case refreshed access tokens carry the identity found in the refresh
// token and no roles.
func NewSessionService(
	families refreshtokens.Families,
	codec *auth.Codec,
	resolver PrincipalResolver,
	sink audit.Sink,
	logger logging.Logger,
	cfg *config.Config,
) *SessionService {
	return &SessionService{
		families:         families,
		codec:            codec,
		validator:        auth.NewValidator(codec, logger),
		hasher:           auth.TokenHasher{Cost: cfg.BcryptCost},
		resolver:         resolver,
		audit:            sink,
		logger:           logger.With("module", "session"),
		accessTTL:        cfg.AccessTokenValidityDuration,
		refreshTTL:       cfg.RefreshTokenValidityDuration,
		storeTimeout:     cfg.StoreTimeout,
		acceptUnverified: cfg.LogoutAcceptUnverified,
		now:              time.Now,
	}
}

// Login starts a new family for an already verified principal. Any session
// the user had before is revoked.
func (s *SessionService) Login(ctx context.Context, p models.Principal) (*TokenPair, error) {
	if p.UserID == "" {
		return nil, fmt.Errorf("%w: principal without user id", common.ErrorUnauthorized)
	}

	pair, rec, err := s.issue(p)
	if err != nil {
		return nil, err
	}

	var revoked int64
	err = s.inFamily(ctx, p.UserID, func(ctx context.Context, repo refreshtokens.Repository) error {
		n, err := repo.RevokeAll(ctx, p.UserID)
		if err != nil {
			return err
		}
		revoked = n
		rec.ID = ""
		return repo.Save(ctx, rec)
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, audit.EventLogin, p.UserID, map[string]any{"revoked_previous": revoked})
	return pair, nil
}

// Refresh exchanges the current refresh token of a family for a new pair.
//
// Expired tokens fail with common.ErrRefreshExpired. Forged, malformed or
// non-refresh tokens fail with common.ErrRefreshInvalid. A validly signed
// token that is not the family's current one revokes the family and also
// fails with common.ErrRefreshInvalid; the revocation is committed.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, st := s.validator.ValidateRefresh(ctx, refreshToken)
	switch st {
	case auth.StatusExpired:
		return nil, common.ErrRefreshExpired
	case auth.StatusInvalid:
		return nil, common.ErrRefreshInvalid
	}
	if claims.TokenType != auth.TokenTypeRefresh {
		s.logger.Warn(ctx, "non-refresh token presented for rotation", "user_id", claims.UserID, "token_type", string(claims.TokenType))
		return nil, common.ErrRefreshInvalid
	}

	userID := claims.UserID
	p, err := s.principal(ctx, claims)
	if err != nil {
		return nil, err
	}

	pair, rec, err := s.issue(p)
	if err != nil {
		return nil, err
	}

	var (
		reuse   string
		revoked int64
		valid   int
	)
	err = s.inFamily(ctx, userID, func(ctx context.Context, repo refreshtokens.Repository) error {
		reuse, revoked, valid = "", 0, 0

		current, count, err := repo.FindCurrentValid(ctx, userID)
		switch {
		case errors.Is(err, common.ErrorNotFound):
			reuse = "no current refresh token"
		case err != nil:
			return err
		case !s.hasher.Verify(current.TokenHash, refreshToken):
			reuse = "refresh token is not the current one"
		}
		valid = count

		n, err := repo.RevokeAll(ctx, userID)
		if err != nil {
			return err
		}
		revoked = n
		if reuse != "" {
			return nil
		}
		rec.ID = ""
		return repo.Save(ctx, rec)
	})
	if err != nil {
		return nil, err
	}

	if valid > 1 {
		s.logger.Error(ctx, "more than one valid refresh record", "user_id", userID, "count", valid)
		s.emit(ctx, audit.EventConsistencyViolation, userID, map[string]any{"valid_records": valid})
	}
	if reuse != "" {
		s.logger.Warn(ctx, "refresh token reuse detected", "user_id", userID, "token_id", claims.TokenID(), "reason", reuse, "revoked", revoked)
		s.emit(ctx, audit.EventRefreshReuseDetected, userID, map[string]any{"reason": reuse, "token_id": claims.TokenID()})
		s.emit(ctx, audit.EventFamilyRevoked, userID, map[string]any{"revoked": revoked})
		return nil, common.ErrRefreshInvalid
	}

	s.emit(ctx, audit.EventRefresh, userID, nil)
	return pair, nil
}

// Logout revokes the family of the user named in refreshToken. The token may
// be expired; its signature must verify unless unverified logout is enabled.
// Only refresh tokens are accepted. Tokens no user id can be read from fail
// with common.ErrTokenUnreadable.
//
// By default a tampered token is not best-effort read: set
// LogoutAcceptUnverified to revoke by its unverified userId claim.
func (s *SessionService) Logout(ctx context.Context, refreshToken string) error {
	userID, err := s.logoutUserID(refreshToken)
	if err != nil {
		s.logger.Warn(ctx, "logout with unreadable token", "error", err)
		return fmt.Errorf("%w: %w", common.ErrTokenUnreadable, err)
	}

	n, err := s.RevokeUser(ctx, userID)
	if err != nil {
		return err
	}
	s.emit(ctx, audit.EventLogout, userID, map[string]any{"revoked": n})
	return nil
}

// RevokeUser force-revokes every refresh record of userID and returns how
// many were still live.
func (s *SessionService) RevokeUser(ctx context.Context, userID string) (int64, error) {
	var revoked int64
	err := s.inFamily(ctx, userID, func(ctx context.Context, repo refreshtokens.Repository) error {
		n, err := repo.RevokeAll(ctx, userID)
		revoked = n
		return err
	})
	if err != nil {
		return 0, err
	}
	s.emit(ctx, audit.EventFamilyRevoked, userID, map[string]any{"revoked": revoked})
	return revoked, nil
}

func (s *SessionService) logoutUserID(token string) (string, error) {
	claims, err := s.codec.ParseRefreshIgnoringExpiry(token)
	if err == nil {
		if claims.TokenType != auth.TokenTypeRefresh {
			return "", fmt.Errorf("%w: got %s token", common.ErrWrongTokenType, claims.TokenType)
		}
		return claims.UserID, nil
	}
	if !s.acceptUnverified {
		return "", err
	}
	userID, tokenType, err := s.codec.PeekIdentity(token)
	if err != nil {
		return "", err
	}
	if tokenType != auth.TokenTypeRefresh {
		return "", fmt.Errorf("%w: got %s token", common.ErrWrongTokenType, tokenType)
	}
	return userID, nil
}

func (s *SessionService) principal(ctx context.Context, claims *auth.RefreshClaims) (models.Principal, error) {
	if s.resolver == nil {
		return models.Principal{UserID: claims.UserID, DisplayName: claims.DisplayName}, nil
	}

	rctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	p, err := s.resolver.ResolvePrincipal(rctx, claims.UserID)
	if errors.Is(err, common.ErrorNotFound) {
		s.logger.Warn(ctx, "refresh token for unknown user", "user_id", claims.UserID)
		return models.Principal{}, common.ErrRefreshInvalid
	}
	if err != nil {
		return models.Principal{}, fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}
	return p, nil
}

// issue signs a new pair and prepares its record. Hashing happens here,
// outside the family unit.
func (s *SessionService) issue(p models.Principal) (*TokenPair, *models.RefreshRecord, error) {
	access, ac, err := s.codec.IssueAccess(p, s.accessTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	refresh, rc, err := s.codec.IssueRefresh(p, s.refreshTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	hash, err := s.hasher.Hash(refresh)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	pair := &TokenPair{
		GrantType:        common.GrantType,
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  ac.ExpiresAt.Time,
		RefreshExpiresAt: rc.ExpiresAt.Time,
	}
	rec := &models.RefreshRecord{
		UserID:    p.UserID,
		TokenHash: hash,
		IssuedAt:  rc.IssuedAt.Time,
		ExpiresAt: rc.ExpiresAt.Time,
	}
	return pair, rec, nil
}

// inFamily runs fn as one bounded family unit. Every failure of the unit is
// reported as common.ErrStoreUnavailable.
func (s *SessionService) inFamily(ctx context.Context, userID string, fn func(context.Context, refreshtokens.Repository) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.families.InFamily(ctx, userID, fn); err != nil {
		s.logger.Error(ctx, "refresh store unit failed", "user_id", userID, "error", err)
		return fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *SessionService) emit(ctx context.Context, t audit.EventType, userID string, detail map[string]any) {
	s.audit.Emit(ctx, audit.Event{Type: t, UserID: userID, At: s.now(), Detail: detail})
}
