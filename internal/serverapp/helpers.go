package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"orders-graphql/internal/aggregate"
	"orders-graphql/internal/config"
	"orders-graphql/internal/dbexec"
	"orders-graphql/internal/demodata"
	"orders-graphql/internal/loader"
	"orders-graphql/internal/logging"
	"orders-graphql/internal/middleware"
	"orders-graphql/internal/observability"
	"orders-graphql/internal/planner"
	"orders-graphql/internal/resolver"
	"orders-graphql/internal/sqlutil"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	"github.com/graphql-go/handler"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	_ "modernc.org/sqlite"
)

const (
	healthPath  = "/health"
	metricsPath = "/metrics"
)

func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:       cfg.Observability.Logging.Level,
		Format:      cfg.Observability.Logging.Format,
		ServiceName: cfg.Observability.ServiceName,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logsConfig := cfg.Observability.LogsConfig()
	logger.Info("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
		slog.Bool("insecure", logsConfig.Insecure),
	)

	loggerProvider, err := observability.InitLoggerProvider(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
		OTLPConfig:     exporterConfig(logsConfig),
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Info("OpenTelemetry logging initialized successfully")

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	return logger, loggerProvider, nil
}

func exporterConfig(c config.OTLPConfig) observability.OTLPExporterConfig {
	return observability.OTLPExporterConfig{
		Endpoint:    c.Endpoint,
		Protocol:    c.Protocol,
		Insecure:    c.Insecure,
		TLSCertFile: c.TLSCertFile,
		Headers:     c.Headers,
		Timeout:     c.Timeout,
	}
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (*observability.MeterProvider, *observability.Metrics, error) {
	if !cfg.Observability.MetricsEnabled {
		return nil, nil, nil
	}

	logger.Info("initializing OpenTelemetry metrics",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
	)

	meterProvider, err := observability.InitMeterProvider(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Info("OpenTelemetry metrics initialized successfully")

	metrics, err := observability.InitMetrics(logger.Logger)
	if err != nil {
		return nil, nil, err
	}
	return meterProvider, metrics, nil
}

func initTracing(cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	tracesConfig := cfg.Observability.TracesConfig()
	logger.Info("initializing OpenTelemetry tracing",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
		slog.String("otlp_endpoint", tracesConfig.Endpoint),
		slog.String("otlp_protocol", tracesConfig.Protocol),
		slog.Bool("insecure", tracesConfig.Insecure),
	)

	tracerProvider, err := observability.InitTracerProvider(observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLPConfig:       exporterConfig(tracesConfig),
	})
	if err != nil {
		return nil, err
	}

	logger.Info("OpenTelemetry tracing initialized successfully")

	return tracerProvider, nil
}

// dbSystemAttribute maps a dialect to the semantic convention db.system value.
func dbSystemAttribute(dialect sqlutil.Dialect) attribute.KeyValue {
	switch dialect {
	case sqlutil.DialectPostgres:
		return semconv.DBSystemPostgreSQL
	case sqlutil.DialectSQLite:
		return semconv.DBSystemSqlite
	default:
		return semconv.DBSystemMySQL
	}
}

func connectDB(cfg *config.Config, logger *logging.Logger, driverName string, dialect sqlutil.Dialect) (*sql.DB, interface{ Unregister() error }, error) {
	dsn, err := cfg.Database.DSN()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build database DSN: %w", err)
	}

	if !cfg.Observability.MetricsEnabled && !cfg.Observability.TracingEnabled {
		db, err := sql.Open(driverName, dsn)
		if err != nil {
			return nil, nil, err
		}
		return db, nil, nil
	}

	system := dbSystemAttribute(dialect)
	opts := []otelsql.Option{otelsql.WithAttributes(system)}
	if cfg.Observability.TracingEnabled {
		opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{
			DisableErrSkip: true,
		}))
	}

	db, err := otelsql.Open(driverName, dsn, opts...)
	if err != nil {
		return nil, nil, err
	}

	var dbStatsReg interface{ Unregister() error }
	if cfg.Observability.MetricsEnabled {
		reg, err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(system))
		if err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
		} else {
			dbStatsReg = reg
		}
	}

	logger.Info("database instrumentation enabled",
		slog.String("db_system", system.Value.AsString()),
		slog.Bool("metrics", cfg.Observability.MetricsEnabled),
		slog.Bool("tracing", cfg.Observability.TracingEnabled),
	)
	return db, dbStatsReg, nil
}

// isMemorySQLite reports whether every connection would open its own
// private in-memory database.
func isMemorySQLite(cfg *config.Config, dialect sqlutil.Dialect) bool {
	if dialect != sqlutil.DialectSQLite {
		return false
	}
	dsn, err := cfg.Database.DSN()
	if err != nil {
		return false
	}
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

func configureDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB, dialect sqlutil.Dialect) error {
	if ctx == nil {
		ctx = context.Background()
	}
	maxOpen := cfg.Database.Pool.MaxOpen
	maxIdle := cfg.Database.Pool.MaxIdle
	maxLifetime := cfg.Database.Pool.MaxLifetime
	if isMemorySQLite(cfg, dialect) {
		// The database lives only as long as its single connection.
		maxOpen, maxIdle, maxLifetime = 1, 1, 0
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	if err := waitForDatabase(ctx, cfg, logger, db); err != nil {
		return err
	}

	logger.Info("connected to database",
		slog.String("dialect", string(dialect)),
		slog.Int("pool_max_open", maxOpen),
		slog.Int("pool_max_idle", maxIdle),
		slog.Duration("pool_max_lifetime", maxLifetime),
	)
	return nil
}

func waitForDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) error {
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := cfg.Database.ConnectionTimeout
	interval := cfg.Database.ConnectionRetryInterval

	if timeout == 0 {
		return db.PingContext(ctx)
	}

	deadline := time.Now().Add(timeout)
	attempt := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		attempt++
		err := db.PingContext(ctx)

		if err == nil {
			if attempt > 1 {
				logger.Info("database connection established", slog.Int("attempts", attempt))
			}
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("database not available after %v: %w", timeout, err)
		}

		logger.Warn("database not ready, retrying...",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", interval),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		// Exponential backoff, capped at 30s
		interval = min(interval*2, 30*time.Second)
	}
}

func seedDemoData(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB, dialect sqlutil.Dialect) error {
	if !cfg.Database.SeedDemo {
		return nil
	}
	if dialect != sqlutil.DialectSQLite {
		logger.Warn("seed_demo is only supported for sqlite, skipping", slog.String("dialect", string(dialect)))
		return nil
	}
	inserted, err := demodata.Seed(ctx, dbexec.NewStandardExecutor(db), demodata.Default())
	if err != nil {
		return err
	}
	logger.Info("demo data ready", slog.Bool("inserted", inserted))
	return nil
}

func buildPlanLimits(cfg *config.Config) planner.PlanLimits {
	return planner.PlanLimits{
		MaxRows:      cfg.Loader.MaxRows,
		DefaultLimit: cfg.Loader.DefaultLimit,
	}
}

func buildPipeline(cfg *config.Config, logger *logging.Logger, db *sql.DB, dialect sqlutil.Dialect, metrics *observability.Metrics) (*loader.Pipeline, error) {
	strategy, err := loader.ParseStrategy(cfg.Loader.DefaultStrategy)
	if err != nil {
		return nil, err
	}
	limits := buildPlanLimits(cfg)
	pipeline := loader.NewPipeline(
		aggregate.Orders(),
		planner.New(dialect, limits),
		dbexec.NewReadOnlyRunner(db),
		loader.Options{
			DefaultStrategy: strategy,
			AllowNaive:      cfg.Loader.AllowNaive,
			QueryTimeout:    cfg.Loader.QueryTimeout,
			Metrics:         metrics,
			Logger:          logger,
		},
	)
	logger.Info("loader pipeline ready",
		slog.String("default_strategy", string(pipeline.DefaultStrategy())),
		slog.Bool("allow_naive", cfg.Loader.AllowNaive),
		slog.Bool("join_row_pagination", cfg.Loader.JoinRowPagination),
		slog.Int("max_rows", limits.MaxRows),
		slog.Int("default_limit", limits.DefaultLimit),
	)
	return pipeline, nil
}

// buildGraphQLHandler assembles the GraphQL endpoint. The chain is:
//
//	request -> logging -> request analysis -> metrics -> graphql
func buildGraphQLHandler(cfg *config.Config, logger *logging.Logger, pipeline *loader.Pipeline, metrics *observability.Metrics) (http.Handler, error) {
	schema, err := resolver.NewResolver(pipeline, resolver.Config{
		JoinRowPagination: cfg.Loader.JoinRowPagination,
	}).BuildGraphQLSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to build GraphQL schema: %w", err)
	}

	var graphqlHandler http.Handler = handler.New(&handler.Config{
		Schema:   &schema,
		Pretty:   true,
		GraphiQL: cfg.Server.GraphiQLEnabled,
	})

	if cfg.Observability.MetricsEnabled && metrics != nil {
		graphqlHandler = middleware.GraphQLMetricsMiddleware(metrics)(graphqlHandler)
		logger.Info("GraphQL metrics middleware enabled")
	}
	graphqlHandler = middleware.GraphQLRequestMiddleware()(graphqlHandler)

	return middleware.LoggingMiddleware(logger)(graphqlHandler), nil
}

func buildRouter(cfg *config.Config, logger *logging.Logger, db *sql.DB, graphqlHandler http.Handler, meterProvider *observability.MeterProvider) *http.ServeMux {
	graphqlPath := cfg.Server.GraphQLPath
	mux := http.NewServeMux()
	mux.Handle(graphqlPath, graphqlHandler)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, graphqlPath, http.StatusFound)
			return
		}
		http.NotFound(w, r)
	})

	mux.HandleFunc(healthPath, healthHandler(db, cfg.Server.HealthCheckTimeout))

	if cfg.Observability.MetricsEnabled && meterProvider != nil {
		mux.Handle(metricsPath, promhttp.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", metricsPath))
	}

	return mux
}

func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, h http.Handler) http.Handler {
	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		graphqlPath := cfg.Server.GraphQLPath
		h = otelhttp.NewHandler(h, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return httpRootSpanName(r, graphqlPath)
			}),
			otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
		)
		logger.Info("HTTP instrumentation enabled")
	}

	if cfg.Server.CORSEnabled {
		h = middleware.CORSMiddleware(middleware.CORSConfigFromServer(cfg.Server))(h)
		logger.Info("CORS enabled", slog.Any("allowed_origins", cfg.Server.CORSAllowedOrigins))
	}

	return h
}

func httpRootSpanName(r *http.Request, graphqlPath string) string {
	if r == nil {
		return "HTTP /*"
	}

	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}

	return method + " " + normalizeHTTPSpanRoute(r.URL.Path, graphqlPath)
}

// normalizeHTTPSpanRoute keeps span names low-cardinality by collapsing
// unknown paths.
func normalizeHTTPSpanRoute(rawPath, graphqlPath string) string {
	switch rawPath {
	case "/", graphqlPath, healthPath, metricsPath:
		return rawPath
	default:
		return "/*"
	}
}

func buildServer(cfg *config.Config, h http.Handler, serverAddr string) *http.Server {
	return &http.Server{
		Addr:         serverAddr,
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func startServer(cfg *config.Config, logger *logging.Logger, srv *http.Server, serverAddr string) chan error {
	serverErrors := make(chan error, 1)
	go func() {
		logAttrs := []any{
			slog.String("address", serverAddr),
			slog.String("graphql_endpoint", cfg.Server.GraphQLPath),
			slog.String("health_endpoint", healthPath),
			slog.Bool("graphiql_enabled", cfg.Server.GraphiQLEnabled),
			slog.String("default_strategy", cfg.Loader.DefaultStrategy),
			slog.String("log_level", cfg.Observability.Logging.Level),
			slog.String("log_format", cfg.Observability.Logging.Format),
		}
		if cfg.Observability.MetricsEnabled {
			logAttrs = append(logAttrs, slog.String("metrics_endpoint", metricsPath))
		}

		logger.Info("server starting", logAttrs...)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed: %w", err)
		}
	}()
	return serverErrors
}

// healthHandler returns an HTTP handler for health checks
func healthHandler(db *sql.DB, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			reqLogger.Error("health check failed",
				slog.String("error", err.Error()),
				slog.String("check", "database"),
			)
			w.WriteHeader(http.StatusServiceUnavailable)
			// Generic body; the cause is only logged.
			_, _ = fmt.Fprint(w, `{"status":"unhealthy","database":"failed"}`)
			return
		}

		reqLogger.Debug("health check passed")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, `{"status":"healthy","database":"ok"}`)
	}
}
