package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"breakout/internal/api"
	"breakout/internal/config"
	"breakout/internal/database"
	"breakout/internal/presence"
	"breakout/internal/relay"
	"breakout/internal/router"
	"breakout/internal/session"
	"breakout/internal/transport"
	"breakout/pkg/interfaces"
	dbconfig "breakout/pkg/database"
)

// Application owns every broker component and their lifecycle.
type Application struct {
	config *config.Config
	logger *slog.Logger

	audit       interfaces.AuditLog
	sessions    *session.Manager
	router      *router.Router
	relay       *relay.Relay
	listener    *transport.Listener
	gateway     *transport.Gateway
	broadcaster *presence.Broadcaster
	httpServer  *http.Server

	// ctx outlives Start's argument; connections run under it until Stop.
	ctx    context.Context
	cancel context.CancelFunc

	httpLn   net.Listener
	errCh    chan error
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewApplication builds the component graph:
// Audit → Session → Router → Relay → Transports → Presence → API.
func NewApplication(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &Application{
		config: cfg,
		logger: logger.With(slog.String("component", "app")),
		ctx:    ctx,
		cancel: cancel,
		errCh:  make(chan error, 2),
	}

	if cfg.Database.Enabled {
		dbCfg := dbconfig.DefaultConfig()
		dbCfg.DatabasePath = cfg.Database.Path
		dbCfg.WriteTimeout = cfg.Database.Timeout
		manager, err := database.NewManager(dbCfg, logger)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to initialize audit database: %w", err)
		}
		app.audit = manager
	} else {
		app.logger.Info("Audit database disabled")
	}

	app.sessions = session.NewManager(logger)
	app.router = router.NewRouter(app.sessions, app.audit, router.Options{
		DefaultMute: cfg.Broker.DefaultMute,
	}, logger)
	app.relay = relay.NewRelay(app.sessions, app.router, cfg.Broker.LoginTimeout, logger)

	opts := transport.Options{
		WriteTimeout:    cfg.Transport.WriteTimeout,
		PingInterval:    cfg.Transport.PingInterval,
		PongWait:        cfg.Transport.PongWait,
		MaxMessageBytes: cfg.Server.MaxMessageBytes,
	}

	listener, err := transport.NewListener(cfg.Server.TCPAddr, opts, app.relay, logger)
	if err != nil {
		app.closeAudit()
		cancel()
		return nil, fmt.Errorf("failed to create TCP listener: %w", err)
	}
	app.listener = listener

	app.broadcaster = presence.NewBroadcaster(app.sessions, presence.Config{
		Interval:      cfg.Broker.PresenceInterval,
		SweepInterval: cfg.Broker.MuteSweepInterval,
	}, logger)

	if cfg.HTTP.Enabled {
		gateway, err := transport.NewGateway(ctx, opts, app.relay, logger)
		if err != nil {
			app.closeAudit()
			cancel()
			return nil, fmt.Errorf("failed to create WebSocket gateway: %w", err)
		}
		app.gateway = gateway

		app.httpServer = &http.Server{
			Addr:         cfg.HTTP.Addr,
			Handler:      api.NewServer(app.sessions, app.audit, gateway),
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
		}
	}

	return app, nil
}

// Start binds every listener and begins serving. Bind failures are returned directly;
// later serve failures are reported on Err.
func (app *Application) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if app.httpServer != nil {
		ln, err := net.Listen("tcp", app.httpServer.Addr)
		if err != nil {
			return fmt.Errorf("failed to bind HTTP server: %w", err)
		}
		app.httpLn = ln
	}
	if err := app.listener.Listen(); err != nil {
		app.closeHTTPListener()
		return fmt.Errorf("failed to bind TCP listener: %w", err)
	}

	if err := app.broadcaster.Start(app.ctx); err != nil {
		app.closeHTTPListener()
		return fmt.Errorf("failed to start presence broadcaster: %w", err)
	}

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		if err := app.listener.Serve(app.ctx); err != nil {
			app.errCh <- fmt.Errorf("TCP listener error: %w", err)
		}
	}()

	if app.httpServer != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			if err := app.httpServer.Serve(app.httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				app.errCh <- fmt.Errorf("HTTP server error: %w", err)
			}
		}()
	}

	attrs := []any{slog.String("tcp_addr", app.TCPAddr())}
	if addr := app.HTTPAddr(); addr != "" {
		attrs = append(attrs, slog.String("http_addr", addr))
	}
	app.logger.Info("Breakout broker started", attrs...)
	return nil
}

// Err reports serve failures after Start.
func (app *Application) Err() <-chan error {
	return app.errCh
}

// Stop shuts down in reverse dependency order: presence, participants, transports,
// HTTP, audit database. Safe to call more than once.
func (app *Application) Stop(ctx context.Context) error {
	var stopErr error
	app.stopOnce.Do(func() {
		app.logger.Info("Shutting down breakout broker")

		if app.broadcaster.IsRunning() {
			if err := app.broadcaster.Stop(); err != nil {
				app.logger.Warn("Presence broadcaster stop error", slog.String("error", err.Error()))
			}
		}

		n := app.router.DisconnectAll(ctx, router.ReasonShutdown)
		app.logger.Info("Participants disconnected", slog.Int("count", n))

		app.cancel()
		if app.gateway != nil {
			app.gateway.Shutdown()
		}
		if app.httpServer != nil {
			if err := app.httpServer.Shutdown(ctx); err != nil {
				app.logger.Warn("HTTP server shutdown error", slog.String("error", err.Error()))
				stopErr = err
			}
		}

		done := make(chan struct{})
		go func() {
			app.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			app.logger.Warn("Timed out waiting for listeners to stop")
			stopErr = ctx.Err()
		}

		if err := app.closeAudit(); err != nil {
			app.logger.Warn("Audit database shutdown error", slog.String("error", err.Error()))
			stopErr = err
		}
		app.logger.Info("Breakout broker shutdown complete")
	})
	return stopErr
}

func (app *Application) closeHTTPListener() {
	if app.httpLn != nil {
		_ = app.httpLn.Close()
		app.httpLn = nil
	}
}

func (app *Application) closeAudit() error {
	if app.audit == nil {
		return nil
	}
	return app.audit.Close()
}

// TCPAddr returns the bound TCP address, or the configured one before Start.
func (app *Application) TCPAddr() string {
	if addr := app.listener.Addr(); addr != nil {
		return addr.String()
	}
	return app.config.Server.TCPAddr
}

// HTTPAddr returns the bound HTTP address, or "" when HTTP is disabled.
func (app *Application) HTTPAddr() string {
	if app.httpServer == nil {
		return ""
	}
	if app.httpLn != nil {
		return app.httpLn.Addr().String()
	}
	return app.httpServer.Addr
}

// Sessions exposes the live session state.
func (app *Application) Sessions() *session.Manager {
	return app.sessions
}
