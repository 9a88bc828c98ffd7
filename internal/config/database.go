package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"orders-graphql/internal/sqlutil"

	"github.com/go-sql-driver/mysql"
)

// Driver names registered with database/sql.
const (
	driverMySQL    = "mysql"
	driverPostgres = "pgx"
	driverSQLite   = "sqlite"
)

// Dialect returns the SQL dialect of the configured driver.
func (d *DatabaseConfig) Dialect() (sqlutil.Dialect, error) {
	return sqlutil.ParseDialect(d.Driver)
}

// DriverName returns the database/sql driver name for the configured driver.
func (d *DatabaseConfig) DriverName() (string, error) {
	dialect, err := d.Dialect()
	if err != nil {
		return "", err
	}
	switch dialect {
	case sqlutil.DialectPostgres:
		return driverPostgres, nil
	case sqlutil.DialectSQLite:
		return driverSQLite, nil
	default:
		return driverMySQL, nil
	}
}

// DSN returns the data source name for the configured driver. A complete
// ConnectionString wins over the discrete fields; MySQL DSNs always get
// parseTime so DATETIME columns scan into time.Time.
func (d *DatabaseConfig) DSN() (string, error) {
	dialect, err := d.Dialect()
	if err != nil {
		return "", err
	}
	switch dialect {
	case sqlutil.DialectPostgres:
		return d.postgresDSN(), nil
	case sqlutil.DialectSQLite:
		return d.sqliteDSN(), nil
	default:
		return d.mysqlDSN()
	}
}

func (d *DatabaseConfig) mysqlDSN() (string, error) {
	var cfg *mysql.Config
	if strings.TrimSpace(d.ConnectionString) != "" {
		parsed, err := mysql.ParseDSN(d.ConnectionString)
		if err != nil {
			return "", fmt.Errorf("database.dsn is invalid: %w", err)
		}
		cfg = parsed
	} else {
		cfg = mysql.NewConfig()
		cfg.User = d.User
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.portOrDefault(3306)))
		cfg.DBName = d.Database
		cfg.Loc = time.UTC
	}
	cfg.ParseTime = true
	if cfg.TLSConfig == "" {
		cfg.TLSConfig = mysqlTLSParam(d.TLSMode)
	}
	return cfg.FormatDSN(), nil
}

func mysqlTLSParam(mode string) string {
	switch mode {
	case "off":
		return "false"
	case "preferred":
		return "preferred"
	case "skip-verify":
		return "skip-verify"
	case "verify-full":
		return "true"
	default:
		return ""
	}
}

func (d *DatabaseConfig) postgresDSN() string {
	if dsn := strings.TrimSpace(d.ConnectionString); dsn != "" {
		return dsn
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.portOrDefault(5432))),
		Path:   "/" + d.Database,
	}
	if d.User != "" {
		if d.Password != "" {
			u.User = url.UserPassword(d.User, d.Password)
		} else {
			u.User = url.User(d.User)
		}
	}
	if mode := postgresSSLMode(d.TLSMode); mode != "" {
		u.RawQuery = url.Values{"sslmode": []string{mode}}.Encode()
	}
	return u.String()
}

func postgresSSLMode(mode string) string {
	switch mode {
	case "off":
		return "disable"
	case "preferred":
		return "prefer"
	case "skip-verify":
		return "require"
	case "verify-full":
		return "verify-full"
	default:
		return ""
	}
}

func (d *DatabaseConfig) sqliteDSN() string {
	if dsn := strings.TrimSpace(d.ConnectionString); dsn != "" {
		return dsn
	}
	if strings.TrimSpace(d.Database) == "" {
		return ":memory:"
	}
	return d.Database
}

func (d *DatabaseConfig) portOrDefault(def int) int {
	if d.Port > 0 {
		return d.Port
	}
	return def
}
