// Package auth signs and parses the compact HS256 tokens of the two-token
// scheme and classifies presented tokens as valid, expired or invalid.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinKeyLength is the shortest accepted HMAC-SHA256 signing key, in bytes.
const MinKeyLength = 32

var (
	ErrMissingSigningKey = errors.New("auth: missing signing key")
	ErrWeakSigningKey    = errors.New("auth: signing key too short")

	ErrMalformedToken   = errors.New("auth: malformed token")
	ErrSignatureInvalid = errors.New("auth: token signature invalid")
	ErrExpired          = errors.New("auth: token expired")
	ErrInvalidClaims    = errors.New("auth: invalid token claims")
)

var signingMethod = jwt.SigningMethodHS256

// Codec issues and parses signed tokens with one process-wide key. It holds
// no mutable state and is safe for concurrent use.
type Codec struct {
	key []byte
	now func() time.Time
}

// NewCodec copies key; later changes to the caller's slice have no effect.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) == 0 {
		return nil, ErrMissingSigningKey
	}
	if len(key) < MinKeyLength {
		return nil, fmt.Errorf("%w: need at least %d bytes", ErrWeakSigningKey, MinKeyLength)
	}
	return &Codec{key: append([]byte(nil), key...), now: time.Now}, nil
}

// IssueAccess signs an access token for p that expires ttl from now.
func (c *Codec) IssueAccess(p models.Principal, ttl time.Duration) (string, *AccessClaims, error) {
	claims := &AccessClaims{
		RegisteredClaims: c.registered(ttl),
		UserID:           p.UserID,
		DisplayName:      p.DisplayName,
		Roles:            models.JoinRoles(p.Roles),
		TokenType:        TokenTypeAccess,
	}
	token, err := c.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// IssueRefresh signs a refresh token for p that expires ttl from now.
func (c *Codec) IssueRefresh(p models.Principal, ttl time.Duration) (string, *RefreshClaims, error) {
	claims := &RefreshClaims{
		RegisteredClaims: c.registered(ttl),
		UserID:           p.UserID,
		DisplayName:      p.DisplayName,
		TokenType:        TokenTypeRefresh,
	}
	token, err := c.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// ParseAccess verifies the token and decodes it as access claims. The token
// type is returned as found; enforcing it is the caller's job.
func (c *Codec) ParseAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.parse(token, claims, c.parser()); err != nil {
		return nil, err
	}
	return claims, nil
}

// ParseRefresh verifies the token and decodes it as refresh claims.
func (c *Codec) ParseRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.parse(token, claims, c.parser()); err != nil {
		return nil, err
	}
	return claims, nil
}

// ParseRefreshIgnoringExpiry verifies the signature but not the expiry.
// Logout uses it so that an expired refresh token can still end a session.
func (c *Codec) ParseRefreshIgnoringExpiry(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	p := jwt.NewParser(jwt.WithValidMethods([]string{signingMethod.Alg()}), jwt.WithoutClaimsValidation())
	if err := c.parse(token, claims, p); err != nil {
		return nil, err
	}
	return claims, nil
}

// PeekIdentity decodes the payload without verifying anything and returns
// the userId and tokenType claims. The result must never be used to grant
// access.
func (c *Codec) PeekIdentity(token string) (string, TokenType, error) {
	claims := &RefreshClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if claims.UserID == "" {
		return "", "", ErrInvalidClaims
	}
	return claims.UserID, claims.TokenType, nil
}

func (c *Codec) registered(ttl time.Duration) jwt.RegisteredClaims {
	now := c.now()
	return jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiry(now, ttl)),
	}
}

// expiry returns now+ttl. For positive ttl it is rounded up to the claim
// precision, so a token is never already expired when issued.
func expiry(now time.Time, ttl time.Duration) time.Time {
	exp := now.Add(ttl)
	if ttl <= 0 {
		return exp
	}
	if t := exp.Truncate(jwt.TimePrecision); t.Before(exp) {
		return t.Add(jwt.TimePrecision)
	}
	return exp
}

func (c *Codec) sign(claims jwt.Claims) (string, error) {
	s, err := jwt.NewWithClaims(signingMethod, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return s, nil
}

func (c *Codec) parser() *jwt.Parser {
	return jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
}

func (c *Codec) keyFunc(*jwt.Token) (any, error) {
	return c.key, nil
}

// parse maps library failures onto the codec's own errors. The library
// verifies the signature before it looks at any time-based claim, so an
// expired token is only ever reported as such once it is known to be ours.
func (c *Codec) parse(token string, claims typedClaims, p *jwt.Parser) error {
	if _, err := p.ParseWithClaims(token, claims, c.keyFunc); err != nil {
		return classify(err)
	}

	userID, tokenType := claims.shape()
	if userID == "" || claims.TokenID() == "" {
		return ErrInvalidClaims
	}
	if tokenType != TokenTypeAccess && tokenType != TokenTypeRefresh {
		return fmt.Errorf("%w: unknown token type %q", ErrInvalidClaims, tokenType)
	}
	return nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidClaims, err)
	}
}
