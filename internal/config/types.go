// Package config loads and validates the server configuration.
package config

import "time"

// Config holds the application configuration.
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Server        ServerConfig        `mapstructure:"server"`
	Loader        LoaderConfig        `mapstructure:"loader"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// PoolConfig holds connection pool parameters.
type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// DatabaseConfig holds database connection parameters.
type DatabaseConfig struct {
	// Driver selects the store: mysql (also TiDB), postgres or sqlite.
	Driver string `mapstructure:"driver"`

	// ConnectionString is a complete driver DSN. When set it overrides the
	// discrete fields below. Configured via "dsn" or ORDQL_DATABASE_DSN.
	ConnectionString string `mapstructure:"dsn"`
	// ConnectionStringFile is a path to a file containing the DSN.
	// Supports "@-" to read from stdin.
	ConnectionStringFile string `mapstructure:"dsn_file"`

	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"` // 0 selects the driver default
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	PasswordFile   string `mapstructure:"password_file"`
	PasswordPrompt bool   `mapstructure:"password_prompt"`
	// Database is the schema name, or the database file for sqlite.
	Database string `mapstructure:"database"`

	// TLSMode is one of off, preferred, skip-verify or verify-full.
	TLSMode string `mapstructure:"tls_mode"`

	Pool PoolConfig `mapstructure:"pool"`

	// ConnectionTimeout is the max time to wait for DB on startup.
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
	// ConnectionRetryInterval is the initial interval between connection retries.
	ConnectionRetryInterval time.Duration `mapstructure:"connection_retry_interval"`

	// SeedDemo creates the order tables and loads the demo catalog on
	// startup. Only honored for sqlite.
	SeedDemo bool `mapstructure:"seed_demo"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port                 int           `mapstructure:"port"`
	GraphQLPath          string        `mapstructure:"graphql_path"`
	GraphiQLEnabled      bool          `mapstructure:"graphiql_enabled"`
	CORSEnabled          bool          `mapstructure:"cors_enabled"`
	CORSAllowedOrigins   []string      `mapstructure:"cors_allowed_origins"`
	CORSAllowCredentials bool          `mapstructure:"cors_allow_credentials"`
	CORSMaxAge           int           `mapstructure:"cors_max_age"`
	ReadTimeout          time.Duration `mapstructure:"read_timeout"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout"`
	IdleTimeout          time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout      time.Duration `mapstructure:"shutdown_timeout"`
	HealthCheckTimeout   time.Duration `mapstructure:"health_check_timeout"`
}

// LoaderConfig tunes aggregate loading.
type LoaderConfig struct {
	// MaxRows caps every root page.
	MaxRows int `mapstructure:"max_rows"`
	// DefaultLimit applies when a request does not ask for a limit.
	DefaultLimit int `mapstructure:"default_limit"`
	// DefaultStrategy is used when a request names none: batch, join or naive.
	DefaultStrategy string `mapstructure:"default_strategy"`
	// AllowNaive enables the per-row strategy, which exists for comparison.
	AllowNaive bool `mapstructure:"allow_naive"`
	// JoinRowPagination lets the join strategy apply a requested page to
	// joined rows instead of rejecting it.
	JoinRowPagination bool `mapstructure:"join_row_pagination"`
	// QueryTimeout bounds one loading run. Zero disables the bound.
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`           // debug, info, warn, error
	Format         string `mapstructure:"format"`          // json, text
	ExportsEnabled bool   `mapstructure:"exports_enabled"` // Enable OTLP log export
}

// ObservabilityConfig holds observability parameters.
type ObservabilityConfig struct {
	ServiceName      string        `mapstructure:"service_name"`
	ServiceVersion   string        `mapstructure:"service_version"`
	Environment      string        `mapstructure:"environment"`
	MetricsEnabled   bool          `mapstructure:"metrics_enabled"`
	TracingEnabled   bool          `mapstructure:"tracing_enabled"`
	TraceSampleRatio float64       `mapstructure:"trace_sample_ratio"`
	Logging          LoggingConfig `mapstructure:"logging"`

	// OTLP holds the exporter defaults shared by traces and logs.
	OTLP OTLPConfig `mapstructure:"otlp"`

	Traces *OTLPConfig `mapstructure:"traces,omitempty"`
	Logs   *OTLPConfig `mapstructure:"logs,omitempty"`
}

// OTLPConfig holds OTLP exporter configuration
type OTLPConfig struct {
	Endpoint    string            `mapstructure:"endpoint"`
	Protocol    string            `mapstructure:"protocol"` // "grpc", "http/protobuf"
	Insecure    bool              `mapstructure:"insecure"`
	TLSCertFile string            `mapstructure:"tls_cert_file"`
	Headers     map[string]string `mapstructure:"headers"`
	Timeout     time.Duration     `mapstructure:"timeout"`
}

// TracesConfig returns the effective OTLP config for traces.
func (c *ObservabilityConfig) TracesConfig() OTLPConfig {
	if c.Traces != nil {
		return mergeOTLP(c.OTLP, *c.Traces)
	}
	return c.OTLP
}

// LogsConfig returns the effective OTLP config for logs.
func (c *ObservabilityConfig) LogsConfig() OTLPConfig {
	if c.Logs != nil {
		return mergeOTLP(c.OTLP, *c.Logs)
	}
	return c.OTLP
}

// mergeOTLP lays the set fields of a signal override over the shared
// defaults. Insecure always comes from the override once one exists.
func mergeOTLP(base, override OTLPConfig) OTLPConfig {
	out := base
	if override.Endpoint != "" {
		out.Endpoint = override.Endpoint
	}
	if override.Protocol != "" {
		out.Protocol = override.Protocol
	}
	out.Insecure = override.Insecure
	if override.TLSCertFile != "" {
		out.TLSCertFile = override.TLSCertFile
	}
	if len(override.Headers) > 0 {
		out.Headers = make(map[string]string, len(base.Headers)+len(override.Headers))
		for k, v := range base.Headers {
			out.Headers[k] = v
		}
		for k, v := range override.Headers {
			out.Headers[k] = v
		}
	}
	if override.Timeout != 0 {
		out.Timeout = override.Timeout
	}
	return out
}
