package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/auth"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/gate"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ---- fakes ----

type fakeSessions struct {
	pair      *services.TokenPair
	err       error
	logoutErr error

	loggedIn  models.Principal
	refreshed string
	loggedOut string
}

func (f *fakeSessions) Login(_ context.Context, p models.Principal) (*services.TokenPair, error) {
	f.loggedIn = p
	return f.pair, f.err
}

func (f *fakeSessions) Refresh(_ context.Context, token string) (*services.TokenPair, error) {
	f.refreshed = token
	return f.pair, f.err
}

func (f *fakeSessions) Logout(_ context.Context, token string) error {
	f.loggedOut = token
	return f.logoutErr
}

type fakeUsers struct {
	principal models.Principal
	err       error
}

func (f *fakeUsers) Authenticate(context.Context, string, string) (models.Principal, error) {
	return f.principal, f.err
}

// ---- helpers ----

var ann = models.Principal{UserID: "42", DisplayName: "Ann", Roles: []string{"ROLE_USER"}}

func newTestCodec(t *testing.T) *auth.Codec {
	t.Helper()
	codec, err := auth.NewCodec([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return codec
}

func newTestServer(t *testing.T, s *fakeSessions, u *fakeUsers) (*GRPCServer, *auth.Codec) {
	t.Helper()
	codec := newTestCodec(t)
	g := gate.New(auth.NewValidator(codec, logging.Nop{}), logging.Nop{})
	return NewGRPCServer("127.0.0.1:0", logging.Nop{}, s, u, g), codec
}

// dial serves srv over an in-memory listener and returns a client connection.
func dial(t *testing.T, srv *GRPCServer) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := srv.NewServer()
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func withBearer(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, common.AuthorizationHeaderName, "Bearer "+token)
}

// ---- tests ----

func TestLogin_OK(t *testing.T) {
	sessions := &fakeSessions{pair: &services.TokenPair{GrantType: "Bearer", AccessToken: "a", RefreshToken: "r"}}
	srv, _ := newTestServer(t, sessions, &fakeUsers{principal: ann})
	conn := dial(t, srv)

	req, _ := structpb.NewStruct(map[string]any{"username": "ann", "password": "pw"})
	out := new(structpb.Struct)
	if err := conn.Invoke(context.Background(), MethodLogin, req, out); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got := out.GetFields()["access_token"].GetStringValue(); got != "a" {
		t.Fatalf("access_token = %q", got)
	}
	if got := out.GetFields()["refresh_token"].GetStringValue(); got != "r" {
		t.Fatalf("refresh_token = %q", got)
	}
	if got := out.GetFields()["grant_type"].GetStringValue(); got != "Bearer" {
		t.Fatalf("grant_type = %q", got)
	}
	if sessions.loggedIn.UserID != "42" {
		t.Fatalf("session started for %+v", sessions.loggedIn)
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSessions{}, &fakeUsers{err: common.ErrorUnauthorized})

	req, _ := structpb.NewStruct(map[string]any{"username": "ann", "password": "nope"})
	_, err := srv.Login(context.Background(), req)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("want Unauthenticated, got %v", err)
	}
}

func TestLogin_MissingFields(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSessions{}, &fakeUsers{})

	req, _ := structpb.NewStruct(map[string]any{"username": "ann"})
	_, err := srv.Login(context.Background(), req)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("want InvalidArgument, got %v", err)
	}
}

func TestRefresh_ErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{common.ErrRefreshExpired, codes.Unauthenticated},
		{common.ErrRefreshInvalid, codes.Unauthenticated},
		{common.ErrTokenUnreadable, codes.InvalidArgument},
		{errors.Join(common.ErrStoreUnavailable, context.DeadlineExceeded), codes.Unavailable},
		{errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		srv, _ := newTestServer(t, &fakeSessions{err: tt.err}, &fakeUsers{})
		_, err := srv.Refresh(context.Background(), wrapperspb.String("rt"))
		if status.Code(err) != tt.code {
			t.Fatalf("%v: want %v, got %v", tt.err, tt.code, err)
		}
	}
}

func TestRefresh_OK(t *testing.T) {
	sessions := &fakeSessions{pair: &services.TokenPair{AccessToken: "a2", RefreshToken: "r2"}}
	srv, _ := newTestServer(t, sessions, &fakeUsers{})

	out, err := srv.Refresh(context.Background(), wrapperspb.String("r1"))
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if sessions.refreshed != "r1" {
		t.Fatalf("refreshed %q", sessions.refreshed)
	}
	if out.GetFields()["refresh_token"].GetStringValue() != "r2" {
		t.Fatalf("unexpected response: %v", out)
	}
}

func TestLogout(t *testing.T) {
	sessions := &fakeSessions{}
	srv, _ := newTestServer(t, sessions, &fakeUsers{})

	if _, err := srv.Logout(context.Background(), wrapperspb.String("r1")); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if sessions.loggedOut != "r1" {
		t.Fatalf("logged out %q", sessions.loggedOut)
	}

	if _, err := srv.Logout(context.Background(), wrapperspb.String("")); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("empty token: want InvalidArgument, got %v", err)
	}

	sessions.logoutErr = common.ErrTokenUnreadable
	if _, err := srv.Logout(context.Background(), wrapperspb.String("junk")); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("unreadable: want InvalidArgument, got %v", err)
	}
}

func TestAuthenticate_ReportsState(t *testing.T) {
	srv, codec := newTestServer(t, &fakeSessions{}, &fakeUsers{})

	access, _, err := codec.IssueAccess(ann, time.Hour)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	refresh, _, err := codec.IssueRefresh(ann, time.Hour)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}

	tests := []struct {
		token string
		want  string
	}{
		{access, "authenticated"},
		{refresh, "wrong_token_type"},
		{"garbage", "invalid"},
		{"", "anonymous"},
	}
	for _, tt := range tests {
		out, err := srv.Authenticate(context.Background(), wrapperspb.String(tt.token))
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		if got := out.GetFields()["status"].GetStringValue(); got != tt.want {
			t.Fatalf("status = %q, want %q", got, tt.want)
		}
	}

	out, _ := srv.Authenticate(context.Background(), wrapperspb.String(access))
	if out.GetFields()["user_id"].GetStringValue() != "42" {
		t.Fatalf("user_id missing: %v", out)
	}
	roles := out.GetFields()["roles"].GetListValue().GetValues()
	if len(roles) != 1 || roles[0].GetStringValue() != "ROLE_USER" {
		t.Fatalf("roles = %v", roles)
	}
}

func TestWhoAmI_RequiresAuthentication(t *testing.T) {
	srv, codec := newTestServer(t, &fakeSessions{}, &fakeUsers{})
	conn := dial(t, srv)

	var header metadata.MD
	err := conn.Invoke(context.Background(), MethodWhoAmI, &emptypb.Empty{}, new(structpb.Struct), grpc.Header(&header))
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("anonymous: want Unauthenticated, got %v", err)
	}
	if got := header.Get(common.TokenExpiredHeaderName); len(got) != 1 || got[0] != "false" {
		t.Fatalf("x-token-expired = %v", got)
	}

	expired, _, err := codec.IssueAccess(ann, -time.Minute)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	header = nil
	err = conn.Invoke(withBearer(context.Background(), expired), MethodWhoAmI, &emptypb.Empty{}, new(structpb.Struct), grpc.Header(&header))
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expired: want Unauthenticated, got %v", err)
	}
	if got := header.Get(common.TokenExpiredHeaderName); len(got) != 1 || got[0] != "true" {
		t.Fatalf("x-token-expired = %v", got)
	}
	if status.Convert(err).Message() != common.MsgAccessTokenExpired {
		t.Fatalf("message = %q", status.Convert(err).Message())
	}

	access, _, err := codec.IssueAccess(ann, time.Hour)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	out := new(structpb.Struct)
	if err := conn.Invoke(withBearer(context.Background(), access), MethodWhoAmI, &emptypb.Empty{}, out); err != nil {
		t.Fatalf("WhoAmI: %v", err)
	}
	if out.GetFields()["display_name"].GetStringValue() != "Ann" {
		t.Fatalf("unexpected principal: %v", out)
	}
}

func TestRequireAuthInterceptor_PassesUnprotected(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSessions{}, &fakeUsers{})

	called := false
	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		called = true
		return "ok", nil
	}
	info := &grpc.UnaryServerInfo{FullMethod: MethodRefresh}
	resp, err := srv.requireAuthInterceptor(context.Background(), nil, info, h)
	if err != nil || resp != "ok" || !called {
		t.Fatalf("unexpected: resp=%v err=%v called=%v", resp, err, called)
	}
}

func TestRequireAuthInterceptor_RejectsWrongTokenType(t *testing.T) {
	srv, codec := newTestServer(t, &fakeSessions{}, &fakeUsers{})
	refresh, _, err := codec.IssueRefresh(ann, time.Hour)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}

	ctx := srv.gate.Decorate(context.Background(), "Bearer "+refresh)
	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		t.Fatal("handler must not run")
		return nil, nil
	}
	_, err = srv.requireAuthInterceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: MethodWhoAmI}, h)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("want Unauthenticated, got %v", err)
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSessions{}, &fakeUsers{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on graceful stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSessions{}, &fakeUsers{})
	srv.address = "127.0.0.1:99999"

	if err := srv.Run(context.Background()); err == nil {
		t.Fatal("expected error from Run on bad address, got nil")
	}
}
