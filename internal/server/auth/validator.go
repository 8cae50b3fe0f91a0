package auth

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
)

// Status is the three-way classification of a presented token.
type Status int

const (
	StatusInvalid Status = iota
	StatusValid
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "VALID"
	case StatusExpired:
		return "EXPIRED"
	default:
		return "INVALID"
	}
}

// Validator classifies tokens as VALID, EXPIRED or INVALID. EXPIRED is only
// reported for tokens whose signature verified.
type Validator struct {
	codec  *Codec
	logger logging.Logger
}

func NewValidator(codec *Codec, logger logging.Logger) *Validator {
	return &Validator{codec: codec, logger: logger.With("module", "validator")}
}

// Validate classifies token regardless of its type.
func (v *Validator) Validate(ctx context.Context, token string) Status {
	_, st := v.ValidateAccess(ctx, token)
	return st
}

// ValidateAccess classifies token and returns its claims when VALID. The
// token type is not checked here.
func (v *Validator) ValidateAccess(ctx context.Context, token string) (*AccessClaims, Status) {
	claims, err := v.codec.ParseAccess(token)
	if st := v.status(ctx, err); st != StatusValid {
		return nil, st
	}
	return claims, StatusValid
}

// ValidateRefresh is ValidateAccess for refresh claims.
func (v *Validator) ValidateRefresh(ctx context.Context, token string) (*RefreshClaims, Status) {
	claims, err := v.codec.ParseRefresh(token)
	if st := v.status(ctx, err); st != StatusValid {
		return nil, st
	}
	return claims, StatusValid
}

func (v *Validator) status(ctx context.Context, err error) Status {
	switch {
	case err == nil:
		return StatusValid
	case errors.Is(err, ErrExpired):
		v.logger.Warn(ctx, "expired token", "error", err)
		return StatusExpired
	case errors.Is(err, ErrMalformedToken):
		v.logger.Warn(ctx, "malformed token", "error", err)
	case errors.Is(err, ErrSignatureInvalid):
		v.logger.Warn(ctx, "invalid token signature", "error", err)
	default:
		v.logger.Warn(ctx, "invalid token claims", "error", err)
	}
	return StatusInvalid
}
