package grpc

import (
	"context"
	"errors"
	"strconv"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/gate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// protectedMethods require an authenticated principal.
var protectedMethods = map[string]bool{
	MethodWhoAmI: true,
}

// gateInterceptor attaches the gate result for the "authorization"
// metadata value to every call. It never rejects.
func (s *GRPCServer) gateInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	var header string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.AuthorizationHeaderName); len(values) > 0 {
			header = values[0]
		}
	}
	return handler(s.gate.Decorate(ctx, header), req)
}

func (s *GRPCServer) requireAuthInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	if !protectedMethods[info.FullMethod] {
		return handler(ctx, req)
	}

	if _, err := gate.Require(ctx); err != nil {
		expired := errors.Is(err, common.ErrAccessTokenExpired)
		// fails outside a real server stream, e.g. in direct calls
		_ = grpc.SetHeader(ctx, metadata.Pairs(common.TokenExpiredHeaderName, strconv.FormatBool(expired)))
		s.logger.Info(ctx, "unauthenticated call", "method", info.FullMethod, "reason", err.Error())
		return nil, status.Error(codes.Unauthenticated, unauthenticatedMessage(expired))
	}
	return handler(ctx, req)
}

func unauthenticatedMessage(expired bool) string {
	if expired {
		return common.MsgAccessTokenExpired
	}
	return common.MsgAuthenticationFailed
}
