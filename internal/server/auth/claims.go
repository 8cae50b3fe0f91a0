package auth

import (
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

// TokenType tells access and refresh tokens apart. It is signed into every
// token and checked on every consumption, independently of the signature.
type TokenType string

const (
	TokenTypeAccess  TokenType = "ACCESS"
	TokenTypeRefresh TokenType = "REFRESH"
)

// AccessClaims is the payload of a short-lived access token. The subject is
// a random token id; roles are comma-joined.
type AccessClaims struct {
	jwt.RegisteredClaims
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Roles       string    `json:"roles"`
	TokenType   TokenType `json:"tokenType"`
}

// RefreshClaims is the payload of a refresh token. It carries no roles:
// refresh tokens are only ever exchanged for a new pair.
type RefreshClaims struct {
	jwt.RegisteredClaims
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	TokenType   TokenType `json:"tokenType"`
}

// Principal rebuilds the authenticated caller from the claims.
func (c *AccessClaims) Principal() models.Principal {
	return models.Principal{
		UserID:      c.UserID,
		DisplayName: c.DisplayName,
		Roles:       models.SplitRoles(c.Roles),
	}
}

func (c *AccessClaims) TokenID() string  { return c.Subject }
func (c *RefreshClaims) TokenID() string { return c.Subject }

func (c *AccessClaims) shape() (string, TokenType)  { return c.UserID, c.TokenType }
func (c *RefreshClaims) shape() (string, TokenType) { return c.UserID, c.TokenType }

type typedClaims interface {
	jwt.Claims
	TokenID() string
	shape() (userID string, tokenType TokenType)
}
