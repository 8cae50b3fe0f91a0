package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/gate"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func (s *GRPCServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	username := req.GetFields()["username"].GetStringValue()
	password := req.GetFields()["password"].GetStringValue()
	if username == "" || password == "" {
		return nil, status.Error(codes.InvalidArgument, "username and password are required")
	}

	p, err := s.users.Authenticate(ctx, username, password)
	if err != nil {
		return nil, s.toStatus(ctx, "login", err)
	}

	pair, err := s.sessions.Login(ctx, p)
	if err != nil {
		return nil, s.toStatus(ctx, "login", err)
	}

	s.logger.Info(ctx, "Logged in", "user_id", p.UserID)
	return pairToStruct(pair)
}

func (s *GRPCServer) Refresh(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "refresh token is required")
	}

	pair, err := s.sessions.Refresh(ctx, req.GetValue())
	if err != nil {
		return nil, s.toStatus(ctx, "refresh", err)
	}
	return pairToStruct(pair)
}

func (s *GRPCServer) Logout(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "refresh token is required")
	}

	if err := s.sessions.Logout(ctx, req.GetValue()); err != nil {
		return nil, s.toStatus(ctx, "logout", err)
	}
	return &emptypb.Empty{}, nil
}

// Authenticate classifies an access token without requiring the caller to
// be authenticated itself.
func (s *GRPCServer) Authenticate(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	res := s.gate.Authenticate(ctx, req.GetValue())

	fields := map[string]any{
		"status": res.State.String(),
	}
	if res.Principal != nil {
		for k, v := range principalFields(res.Principal) {
			fields[k] = v
		}
	}
	return newStructOrInternal(fields)
}

func (s *GRPCServer) WhoAmI(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	p, ok := gate.PrincipalFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, common.MsgAuthenticationFailed)
	}
	return newStructOrInternal(principalFields(p))
}

// toStatus maps service errors onto gRPC codes. Internal details are
// logged, not returned.
func (s *GRPCServer) toStatus(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, common.ErrRefreshExpired):
		return status.Error(codes.Unauthenticated, "refresh token expired")
	case errors.Is(err, common.ErrRefreshInvalid):
		return status.Error(codes.Unauthenticated, "refresh token invalid")
	case errors.Is(err, common.ErrorUnauthorized):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, common.ErrTokenUnreadable):
		return status.Error(codes.InvalidArgument, "token unreadable")
	case errors.Is(err, common.ErrStoreUnavailable):
		s.logger.Warn(ctx, "store unavailable", "op", op, "error", err.Error())
		return status.Error(codes.Unavailable, "temporarily unavailable, retry later")
	default:
		s.logger.Error(ctx, "request failed", "op", op, "error", err.Error())
		return status.Error(codes.Internal, "internal error")
	}
}

func pairToStruct(pair *services.TokenPair) (*structpb.Struct, error) {
	return newStructOrInternal(map[string]any{
		"grant_type":         pair.GrantType,
		"access_token":       pair.AccessToken,
		"refresh_token":      pair.RefreshToken,
		"access_expires_at":  pair.AccessExpiresAt.UTC().Format(time.RFC3339),
		"refresh_expires_at": pair.RefreshExpiresAt.UTC().Format(time.RFC3339),
	})
}

func principalFields(p *models.Principal) map[string]any {
	roles := make([]any, 0, len(p.Roles))
	for _, r := range p.Roles {
		roles = append(roles, r)
	}
	return map[string]any{
		"user_id":      p.UserID,
		"display_name": p.DisplayName,
		"roles":        roles,
	}
}

func newStructOrInternal(fields map[string]any) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return st, nil
}
