package gate

import (
	"context"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
)

type ctxKey struct{}

func WithResult(ctx context.Context, r Result) context.Context {
	return context.WithValue(ctx, ctxKey{}, r)
}

// FromContext returns the attached result; undecorated contexts are
// anonymous.
func FromContext(ctx context.Context) Result {
	if r, ok := ctx.Value(ctxKey{}).(Result); ok {
		return r
	}
	return Result{State: Anonymous}
}

func PrincipalFromContext(ctx context.Context) (*models.Principal, bool) {
	r := FromContext(ctx)
	if r.State != Authenticated || r.Principal == nil {
		return nil, false
	}
	return r.Principal, true
}

// Require returns the authenticated principal or the error describing why
// there is none.
func Require(ctx context.Context) (*models.Principal, error) {
	r := FromContext(ctx)
	switch r.State {
	case Authenticated:
		if r.Principal != nil {
			return r.Principal, nil
		}
		return nil, common.ErrAccessTokenInvalid
	case Expired:
		return nil, common.ErrAccessTokenExpired
	case Invalid:
		return nil, common.ErrAccessTokenInvalid
	case WrongTokenType:
		return nil, common.ErrWrongTokenType
	default:
		return nil, common.ErrAuthRequired
	}
}
