// Package gate turns the bearer credential of an inbound request into a
// request-scoped authentication result. It never rejects a request itself;
// authorization layers read the result and decide.
package gate

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/auth"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
)

type State int

const (
	// Anonymous: no bearer credential was presented.
	Anonymous State = iota
	Authenticated
	Expired
	Invalid
	// WrongTokenType: a valid token that is not an access token.
	WrongTokenType
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	case Expired:
		return "expired"
	case Invalid:
		return "invalid"
	case WrongTokenType:
		return "wrong_token_type"
	default:
		return "unknown"
	}
}

// Result is what the gate attaches to a request. Principal is set only for
// Authenticated.
type Result struct {
	State     State
	Principal *models.Principal
}

// IsExpired tells an authorization layer to ask the caller to refresh
// rather than to log in again.
func (r Result) IsExpired() bool {
	return r.State == Expired
}

type Gate struct {
	validator *auth.Validator
	logger    logging.Logger
}

func New(validator *auth.Validator, logger logging.Logger) *Gate {
	return &Gate{validator: validator, logger: logger.With("module", "gate")}
}

// ExtractBearer returns the token of an "Authorization: Bearer <token>"
// header value. The scheme is matched case-insensitively.
func ExtractBearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, common.BearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

// Authenticate classifies an access token. It does not touch any store.
func (g *Gate) Authenticate(ctx context.Context, token string) Result {
	if token == "" {
		return Result{State: Anonymous}
	}

	claims, st := g.validator.ValidateAccess(ctx, token)
	switch st {
	case auth.StatusExpired:
		return Result{State: Expired}
	case auth.StatusInvalid:
		return Result{State: Invalid}
	}

	if claims.TokenType != auth.TokenTypeAccess {
		g.logger.Warn(ctx, "non-access token presented as bearer", "user_id", claims.UserID, "token_type", string(claims.TokenType))
		return Result{State: WrongTokenType}
	}

	p := claims.Principal()
	return Result{State: Authenticated, Principal: &p}
}

// Decorate authenticates the Authorization header value and attaches the
// result to ctx. A header without a bearer credential is anonymous, one
// with a malformed scheme is invalid.
func (g *Gate) Decorate(ctx context.Context, header string) context.Context {
	var res Result
	switch token, ok := ExtractBearer(header); {
	case ok:
		res = g.Authenticate(ctx, token)
	case strings.TrimSpace(header) == "":
		res = Result{State: Anonymous}
	default:
		res = Result{State: Invalid}
	}
	return WithResult(ctx, res)
}
