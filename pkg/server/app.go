package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tadams95/4ex.ninja-sub006/internal/client"
	"github.com/tadams95/4ex.ninja-sub006/internal/domain/repository"
	"github.com/tadams95/4ex.ninja-sub006/internal/pool"
	"github.com/tadams95/4ex.ninja-sub006/pkg/config"
	xhttp "github.com/tadams95/4ex.ninja-sub006/pkg/http"
	applogger "github.com/tadams95/4ex.ninja-sub006/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	log         *applogger.Logger
	client      *client.Client
	pool        *pool.Pool
	sinks       []repository.SignalSink
	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	c *client.Client,
	p *pool.Pool,
	handler xhttp.Handler,
	sinks []repository.SignalSink,
) *App {
	return &App{
		cfg:         cfg,
		log:         log.With("app"),
		client:      c,
		pool:        p,
		sinks:       sinks,
		httpHandler: handler,
	}
}

// metricsPath resolves the scrape route; disabled metrics drop the route
// entirely.
func (a *App) metricsPath() string {
	if !a.cfg.Metrics.Enabled {
		return ""
	}
	return a.cfg.Metrics.Path
}

// Run starts the control API and blocks until interrupted.
func (a *App) Run() error {
	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithHost(a.cfg.Server.Host),
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(a.cfg.Server.CORSEnabled),
		xhttp.WithMetricsPath(a.metricsPath()),
	)

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	a.log.Info("control api listening",
		applogger.String("host", a.cfg.Server.Host),
		applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(context.Background())
}

// shutdown gracefully stops all services: sessions first, then the pool,
// the HTTP server, and finally the sinks.
func (a *App) shutdown(ctx context.Context) error {
	a.client.Disconnect()
	a.pool.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	for _, sink := range a.sinks {
		if err := sink.Close(); err != nil {
			a.log.Warn("sink close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
