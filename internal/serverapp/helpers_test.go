package serverapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"orders-graphql/internal/config"
	"orders-graphql/internal/sqlutil"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestHealthHandler(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	handler := healthHandler(db, time.Second)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != `{"status":"healthy","database":"ok"}` {
		t.Fatalf("unexpected body %s", got)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Fatalf("health body leaks the cause: %s", rec.Body.String())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIsMemorySQLite(t *testing.T) {
	tests := []struct {
		name    string
		db      config.DatabaseConfig
		dialect sqlutil.Dialect
		want    bool
	}{
		{"default sqlite", config.DatabaseConfig{Driver: "sqlite"}, sqlutil.DialectSQLite, true},
		{"shared memory uri", config.DatabaseConfig{Driver: "sqlite", ConnectionString: "file:orders?mode=memory&cache=shared"}, sqlutil.DialectSQLite, true},
		{"file", config.DatabaseConfig{Driver: "sqlite", Database: "/var/lib/orders.db"}, sqlutil.DialectSQLite, false},
		{"mysql", config.DatabaseConfig{Driver: "mysql", Host: "db"}, sqlutil.DialectMySQL, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Database: tt.db}
			if got := isMemorySQLite(cfg, tt.dialect); got != tt.want {
				t.Fatalf("isMemorySQLite() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDBSystemAttribute(t *testing.T) {
	tests := map[sqlutil.Dialect]string{
		sqlutil.DialectMySQL:    "mysql",
		sqlutil.DialectPostgres: "postgresql",
		sqlutil.DialectSQLite:   "sqlite",
	}
	for dialect, want := range tests {
		if got := dbSystemAttribute(dialect).Value.AsString(); got != want {
			t.Fatalf("dbSystemAttribute(%s) = %q, want %q", dialect, got, want)
		}
	}
}

func demoConfig() *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{
			Driver:   "sqlite",
			SeedDemo: true,
			Pool: config.PoolConfig{
				MaxOpen: 10,
				MaxIdle: 2,
			},
		},
		Server: config.ServerConfig{
			Port:               0,
			GraphQLPath:        "/graphql",
			ReadTimeout:        time.Second,
			WriteTimeout:       time.Second,
			IdleTimeout:        time.Second,
			ShutdownTimeout:    time.Second,
			HealthCheckTimeout: time.Second,
		},
		Loader: config.LoaderConfig{
			MaxRows:         100,
			DefaultLimit:    10,
			DefaultStrategy: "batch",
			QueryTimeout:    5 * time.Second,
		},
		Observability: config.ObservabilityConfig{
			ServiceName: "orders-graphql",
			Logging:     config.LoggingConfig{Level: "info", Format: "json"},
		},
	}
}

func initDemoApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	app, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}
	if err := app.Init(context.Background()); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = app.Shutdown(ctx)
	})
	return app
}

func postGraphQL(t *testing.T, h http.Handler, path, query string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, payload
}

func TestInit_ServesSeededOrders(t *testing.T) {
	app := initDemoApp(t, demoConfig())
	h := app.Handler()
	if h == nil {
		t.Fatalf("expected handler after Init")
	}

	rec, payload := postGraphQL(t, h, "/graphql", `{ orders { id name items { itemName quantity } } }`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected a request id header")
	}
	if payload["errors"] != nil {
		t.Fatalf("unexpected errors: %v", payload["errors"])
	}

	data := payload["data"].(map[string]any)
	orders := data["orders"].([]any)
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}
	first := orders[0].(map[string]any)
	if first["name"] != "userA" {
		t.Fatalf("expected userA first, got %v", first["name"])
	}
	if items := first["items"].([]any); len(items) != 2 {
		t.Fatalf("expected 2 items for the first order, got %d", len(items))
	}
}

func TestInit_ReportsErrorCodes(t *testing.T) {
	app := initDemoApp(t, demoConfig())

	_, payload := postGraphQL(t, app.Handler(), "/graphql", `{ orders(strategy: JOIN, limit: 1) { id items { itemName } } }`)

	errs, ok := payload["errors"].([]any)
	if !ok || len(errs) != 1 {
		t.Fatalf("expected one error, got %v", payload["errors"])
	}
	ext, _ := errs[0].(map[string]any)["extensions"].(map[string]any)
	if ext["code"] != "unsupported_query" {
		t.Fatalf("expected unsupported_query, got %v", ext["code"])
	}
}

func TestInit_Routes(t *testing.T) {
	cfg := demoConfig()
	cfg.Server.GraphQLPath = "/api/graphql"
	app := initDemoApp(t, cfg)
	h := app.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/api/graphql" {
		t.Fatalf("expected redirect to /api/graphql, got %d %q", rec.Code, rec.Header().Get("Location"))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected healthy, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	_, payload := postGraphQL(t, h, "/api/graphql", `{ simpleOrders { id } }`)
	if payload["errors"] != nil {
		t.Fatalf("unexpected errors: %v", payload["errors"])
	}
}

func TestInit_Idempotent(t *testing.T) {
	app := initDemoApp(t, demoConfig())
	first := app.Handler()
	if err := app.Init(context.Background()); err != nil {
		t.Fatalf("second init failed: %v", err)
	}
	if app.Handler() != first {
		t.Fatalf("expected a repeated Init to keep the existing handler")
	}
}
