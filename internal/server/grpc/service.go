package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "tokenkeeper.v1.TokenService"

const (
	MethodLogin        = "/" + ServiceName + "/Login"
	MethodRefresh      = "/" + ServiceName + "/Refresh"
	MethodLogout       = "/" + ServiceName + "/Logout"
	MethodAuthenticate = "/" + ServiceName + "/Authenticate"
	MethodWhoAmI       = "/" + ServiceName + "/WhoAmI"
)

// TokenServiceServer is the server API of tokenkeeper.v1.TokenService.
// Messages are protobuf well-known types so no generated code is needed.
type TokenServiceServer interface {
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Refresh(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Logout(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	Authenticate(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	WhoAmI(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

func RegisterTokenServiceServer(s grpc.ServiceRegistrar, srv TokenServiceServer) {
	s.RegisterService(&TokenServiceDesc, srv)
}

// unaryHandler adapts one typed method to the grpc.MethodDesc handler shape.
func unaryHandler[Req any, Resp any](
	fullMethod string,
	newReq func() *Req,
	call func(TokenServiceServer, context.Context, *Req) (*Resp, error),
) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TokenServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(TokenServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func newStruct() *structpb.Struct        { return new(structpb.Struct) }
func newString() *wrapperspb.StringValue { return new(wrapperspb.StringValue) }
func newEmpty() *emptypb.Empty           { return new(emptypb.Empty) }

var TokenServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TokenServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Login",
			Handler:    unaryHandler(MethodLogin, newStruct, TokenServiceServer.Login),
		},
		{
			MethodName: "Refresh",
			Handler:    unaryHandler(MethodRefresh, newString, TokenServiceServer.Refresh),
		},
		{
			MethodName: "Logout",
			Handler:    unaryHandler(MethodLogout, newString, TokenServiceServer.Logout),
		},
		{
			MethodName: "Authenticate",
			Handler:    unaryHandler(MethodAuthenticate, newString, TokenServiceServer.Authenticate),
		},
		{
			MethodName: "WhoAmI",
			Handler:    unaryHandler(MethodWhoAmI, newEmpty, TokenServiceServer.WhoAmI),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tokenkeeper/v1/token_service.proto",
}
