// Package httpapi exposes the token lifecycle over HTTP under /api/users.
// The refresh token travels in an HttpOnly cookie, the access token in the
// response body and the Authorization header.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/gate"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/services"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// BasePath is the prefix of every route and the path of the refresh cookie.
const BasePath = "/api/users"

type sessionService interface {
	Login(ctx context.Context, p models.Principal) (*services.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
}

type userService interface {
	Register(ctx context.Context, username, password, displayName string) (*models.User, error)
	Authenticate(ctx context.Context, username, password string) (models.Principal, error)
}

type ServerOptions struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// RefreshCookieMaxAge is the lifetime of the refresh cookie. It should
	// match the refresh token validity.
	RefreshCookieMaxAge time.Duration
	SecureCookies       bool
}

type ServerOption func(*ServerOptions)

func defaultServerOptions() ServerOptions {
	return ServerOptions{
		Address:             ":8080",
		ReadTimeout:         15 * time.Second,
		WriteTimeout:        15 * time.Second,
		ShutdownTimeout:     5 * time.Second,
		RefreshCookieMaxAge: 14 * 24 * time.Hour,
	}
}

func WithAddress(addr string) ServerOption {
	return func(o *ServerOptions) {
		if addr != "" {
			o.Address = addr
		}
	}
}

func WithTimeouts(read, write time.Duration) ServerOption {
	return func(o *ServerOptions) {
		if read > 0 {
			o.ReadTimeout = read
		}
		if write > 0 {
			o.WriteTimeout = write
		}
	}
}

func WithRefreshCookieMaxAge(d time.Duration) ServerOption {
	return func(o *ServerOptions) {
		if d > 0 {
			o.RefreshCookieMaxAge = d
		}
	}
}

func WithSecureCookies(secure bool) ServerOption {
	return func(o *ServerOptions) {
		o.SecureCookies = secure
	}
}

// requestValidator plugs go-playground/validator into echo's Context.Validate.
type requestValidator struct {
	v *validator.Validate
}

func (rv *requestValidator) Validate(i any) error {
	return rv.v.Struct(i)
}

type HTTPServer struct {
	echo     *echo.Echo
	opts     ServerOptions
	sessions sessionService
	users    userService
	logger   logging.Logger
}

func NewHTTPServer(l logging.Logger, sessions sessionService, users userService, g *gate.Gate, opts ...ServerOption) *HTTPServer {
	cfg := defaultServerOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	s := &HTTPServer{
		opts:     cfg,
		sessions: sessions,
		users:    users,
		logger:   l.With("module", "http_server"),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(s.logger)
	e.Validator = &requestValidator{v: validator.New(validator.WithRequiredStructEnabled())}
	e.Use(middleware.Recover(), requestID(), accessLog(s.logger), authenticate(g))

	api := e.Group(BasePath)
	api.POST("/signup", s.signup)
	api.POST("/login", s.login)
	api.POST("/token/refresh", s.refresh)
	api.POST("/logout", s.logout)
	api.GET("/profile", s.profile, requireAuth())

	s.echo = e
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.Address,
		Handler:      s.echo,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Starting HTTP server", "address", s.opts.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
