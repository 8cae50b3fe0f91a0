// Package grpc exposes the token lifecycle over gRPC as
// tokenkeeper.v1.TokenService.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/gate"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/services"
	"google.golang.org/grpc"
)

type sessionService interface {
	Login(ctx context.Context, p models.Principal) (*services.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
}

type identityService interface {
	Authenticate(ctx context.Context, username, password string) (models.Principal, error)
}

type GRPCServer struct {
	address  string
	sessions sessionService
	users    identityService
	gate     *gate.Gate
	logger   logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, sessions sessionService, users identityService, g *gate.Gate) *GRPCServer {
	return &GRPCServer{
		address:  a,
		logger:   l.With("module", "grpc_server"),
		sessions: sessions,
		users:    users,
		gate:     g,
	}
}

// NewServer builds the grpc.Server with the authentication interceptors
// and the token service registered.
func (s *GRPCServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(s.gateInterceptor, s.requireAuthInterceptor))
	srv := grpc.NewServer(opts...)
	RegisterTokenServiceServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := s.NewServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
