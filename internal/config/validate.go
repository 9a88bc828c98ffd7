package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"orders-graphql/internal/sqlutil"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) fail(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) warn(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}
	c.Database.validate(result)
	c.Server.validate(result)
	c.Loader.validate(result)
	c.Observability.validate(result)
	return result
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	dialect, err := d.Dialect()
	if err != nil {
		result.fail("database.driver", err.Error(), "valid values are: mysql, postgres, sqlite")
		return
	}

	if d.Port < 0 || d.Port > 65535 {
		result.fail("database.port", fmt.Sprintf("port %d is out of valid range (1-65535)", d.Port), "use 0 for the driver default")
	}
	if dialect == sqlutil.DialectMySQL && strings.TrimSpace(d.ConnectionString) != "" {
		if _, err := d.DSN(); err != nil {
			result.fail("database.dsn", err.Error(), "set a valid MySQL DSN such as user:pass@tcp(host:3306)/orders")
		}
	}
	if dialect != sqlutil.DialectSQLite && strings.TrimSpace(d.ConnectionString) == "" && strings.TrimSpace(d.Database) == "" {
		result.fail("database.database", "database name is required", "set database.database or database.dsn")
	}

	validTLS := map[string]bool{"": true, "off": true, "preferred": true, "skip-verify": true, "verify-full": true}
	if !validTLS[d.TLSMode] {
		result.fail("database.tls_mode", fmt.Sprintf("invalid TLS mode %q", d.TLSMode), "valid values are: off, preferred, skip-verify, verify-full")
	} else if d.TLSMode == "skip-verify" {
		result.warn("database.tls_mode", "skip-verify mode does not verify server certificates", "use verify-full in production")
	}

	if d.SeedDemo && dialect != sqlutil.DialectSQLite {
		result.warn("database.seed_demo", "seed_demo is only honored for sqlite", "seed other databases with their own migrations")
	}

	if d.Pool.MaxOpen < 0 {
		result.fail("database.pool.max_open", "max_open cannot be negative", "")
	}
	if d.Pool.MaxIdle < 0 {
		result.fail("database.pool.max_idle", "max_idle cannot be negative", "")
	}
	if d.Pool.MaxIdle > d.Pool.MaxOpen && d.Pool.MaxOpen > 0 {
		result.warn("database.pool.max_idle", "max_idle is greater than max_open", "idle connections will be limited to max_open")
	}

	if d.ConnectionTimeout < 0 {
		result.fail("database.connection_timeout", "connection_timeout cannot be negative", "")
	}
	if d.ConnectionRetryInterval < 0 {
		result.fail("database.connection_retry_interval", "connection_retry_interval cannot be negative", "")
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval == 0 {
		result.fail("database.connection_retry_interval",
			"connection_retry_interval must be greater than 0 when connection_timeout is set",
			"set a retry interval such as 2s, or set connection_timeout to 0 to disable retries")
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval > d.ConnectionTimeout {
		result.warn("database.connection_retry_interval", "connection_retry_interval is greater than connection_timeout", "only one connection attempt will be made")
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.fail("server.port", fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port), "")
	}
	if !strings.HasPrefix(s.GraphQLPath, "/") {
		result.fail("server.graphql_path", fmt.Sprintf("path %q must start with /", s.GraphQLPath), "")
	}
	for _, reserved := range []string{"/health", "/metrics"} {
		if s.GraphQLPath == reserved {
			result.fail("server.graphql_path", fmt.Sprintf("path %q is reserved", s.GraphQLPath), "")
		}
	}

	if s.CORSEnabled {
		if len(s.CORSAllowedOrigins) == 0 {
			result.fail("server.cors_allowed_origins", "CORS enabled but no allowed origins configured", "set cors_allowed_origins or disable CORS")
		}
		wildcard := false
		for _, origin := range s.CORSAllowedOrigins {
			if strings.TrimSpace(origin) == "*" {
				wildcard = true
			}
		}
		if wildcard && s.CORSAllowCredentials {
			result.fail("server.cors_allowed_origins", "wildcard origin (*) cannot be used with credentials", "use specific origins with credentials, or wildcard without credentials")
		} else if wildcard {
			result.warn("server.cors_allowed_origins", "CORS wildcard origin enabled", "use specific origins in production")
		}
	}
	if s.CORSMaxAge < 0 {
		result.fail("server.cors_max_age", "cors_max_age cannot be negative", "")
	}
}

func (l *LoaderConfig) validate(result *ValidationResult) {
	if l.MaxRows <= 0 {
		result.fail("loader.max_rows", "max_rows must be greater than 0", "")
	}
	if l.DefaultLimit <= 0 {
		result.fail("loader.default_limit", "default_limit must be greater than 0", "")
	} else if l.MaxRows > 0 && l.DefaultLimit > l.MaxRows {
		result.warn("loader.default_limit", "default_limit is greater than max_rows", "pages will be capped at max_rows")
	}
	switch strings.ToLower(strings.TrimSpace(l.DefaultStrategy)) {
	case "batch", "join":
	case "naive":
		if !l.AllowNaive {
			result.fail("loader.default_strategy", "default strategy naive requires allow_naive", "set loader.allow_naive=true or use batch")
		}
	default:
		result.fail("loader.default_strategy", fmt.Sprintf("invalid strategy %q", l.DefaultStrategy), "valid values are: batch, join, naive")
	}
	if l.JoinRowPagination {
		result.warn("loader.join_row_pagination", "joined pages count rows, not orders", "paginated requests may return fewer orders than the limit")
	}
	if l.QueryTimeout < 0 {
		result.fail("loader.query_timeout", "query_timeout cannot be negative", "")
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.fail("observability.logging.level", fmt.Sprintf("invalid log level %q", o.Logging.Level), "valid values are: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.fail("observability.logging.format", fmt.Sprintf("invalid log format %q", o.Logging.Format), "valid values are: json, text")
	}
	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.fail("observability.trace_sample_ratio", fmt.Sprintf("ratio %v is outside [0, 1]", o.TraceSampleRatio), "")
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.fail(prefix+".protocol", fmt.Sprintf("invalid OTLP protocol %q", o.Protocol), "valid values are: grpc, http/protobuf")
	}
	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.fail(prefix+".endpoint", fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint), "use host:port or a full URL")
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		return err == nil && parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
