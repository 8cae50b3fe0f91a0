// Package server wires configuration, storage, the token core and both
// transports into a runnable application with graceful shutdown.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/audit"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/auth"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/config"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/gate"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/services"

	gs "github.com/dmitrijs2005/tokenkeeper/internal/server/grpc"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	store    *Store
	amqp     *audit.AMQPConn
	users    *services.UserService
	sessions *services.SessionService
	gate     *gate.Gate
}

// NewApp opens the store, connects the audit sinks and builds the services.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)
	app := &App{config: c, logger: logger}

	codec, err := auth.NewCodec([]byte(c.SecretKey))
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}

	store, err := OpenStore(ctx, c)
	if err != nil {
		return nil, err
	}
	app.store = store

	sink, err := app.openAudit()
	if err != nil {
		app.Close()
		return nil, err
	}

	app.users = services.NewUserService(store.DB, store.Manager, c)
	app.sessions = services.NewSessionService(store.Families, codec, app.users, sink, logger, c)
	app.gate = gate.New(auth.NewValidator(codec, logger), logger)
	return app, nil
}

// openAudit always logs security events and additionally publishes them
// when a broker is configured.
func (app *App) openAudit() (audit.Sink, error) {
	sinks := audit.MultiSink{audit.NewLogSink(app.logger)}
	if app.config.AMQPURL == "" {
		return sinks, nil
	}

	conn, err := audit.DialAMQP(app.config.AMQPURL, app.config.AMQPExchange)
	if err != nil {
		return nil, err
	}
	app.amqp = conn
	return append(sinks, audit.NewAMQPSink(conn.Channel(), app.config.AMQPExchange, app.logger)), nil
}

// Close releases every connection the app opened.
func (app *App) Close() {
	if app.amqp != nil {
		_ = app.amqp.Close()
	}
	if app.store != nil {
		app.store.Close()
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.sessions, app.users, app.gate)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewHTTPServer(app.logger, app.sessions, app.users, app.gate,
		httpapi.WithAddress(app.config.EndpointAddrHTTP),
		httpapi.WithRefreshCookieMaxAge(app.config.RefreshTokenValidityDuration),
	)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves both transports until a signal arrives, ctx is cancelled or
// one of the servers fails.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	defer app.Close()

	app.logger.Info(ctx, "Starting app...", "store", app.config.StoreKind)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()
	app.logger.Info(context.WithoutCancel(ctx), "App stopped")
}
