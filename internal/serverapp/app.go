package serverapp

import (
	"database/sql"
	"fmt"
	"net/http"
	"sync"

	"orders-graphql/internal/config"
	"orders-graphql/internal/loader"
	"orders-graphql/internal/logging"
	"orders-graphql/internal/observability"
	"orders-graphql/internal/sqlutil"
)

// App owns runtime resources for the orders-graphql server lifecycle.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider

	dialect    sqlutil.Dialect
	driverName string

	meterProvider  *observability.MeterProvider
	metrics        *observability.Metrics
	tracerProvider *observability.TracerProvider

	db         *sql.DB
	dbStatsReg interface{ Unregister() error }

	pipeline *loader.Pipeline

	graphqlHandler http.Handler
	mux            *http.ServeMux
	handler        http.Handler

	serverAddr string
	srv        *http.Server

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	started      bool
	serverErrors chan error

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	dialect, err := cfg.Database.Dialect()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database dialect: %w", err)
	}
	driverName, err := cfg.Database.DriverName()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database driver: %w", err)
	}

	return &App{
		cfg:        cfg,
		logger:     logger,
		dialect:    dialect,
		driverName: driverName,
	}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Handler returns the root HTTP handler. It is nil until Init completes.
func (a *App) Handler() http.Handler {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.handler
}
