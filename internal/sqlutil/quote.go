// Package sqlutil provides SQL utility functions shared by the planner and
// the database bootstrap code.
package sqlutil

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Dialect identifies the SQL flavor a statement is rendered for.
type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// LikeEscape is the escape character used by ContainsPattern.
// A non-backslash character keeps the ESCAPE clause portable across dialects.
const LikeEscape = "!"

// ParseDialect maps a configured driver name to a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "mysql", "tidb":
		return DialectMySQL, nil
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// QuoteIdentifier quotes a SQL identifier (table name, column name, etc.).
// MySQL and SQLite use backticks, PostgreSQL uses double quotes.
func (d Dialect) QuoteIdentifier(name string) string {
	if d == DialectPostgres {
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
	return QuoteIdentifier(name)
}

// Qualify quotes and joins a table alias and column name.
func (d Dialect) Qualify(table, column string) string {
	return d.QuoteIdentifier(table) + "." + d.QuoteIdentifier(column)
}

// Placeholder returns the bind parameter style for the dialect.
func (d Dialect) Placeholder() sq.PlaceholderFormat {
	if d == DialectPostgres {
		return sq.Dollar
	}
	return sq.Question
}

// QuoteIdentifier quotes a SQL identifier with backticks and escapes any
// backticks within the identifier.
func QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, "`", "``")
	return "`" + escaped + "`"
}

// QuoteString quotes a SQL string literal with single quotes and escapes
// any single quotes within the string by doubling them.
func QuoteString(s string) string {
	escaped := strings.ReplaceAll(s, "'", "''")
	return "'" + escaped + "'"
}

var likeReplacer = strings.NewReplacer(
	LikeEscape, LikeEscape+LikeEscape,
	"%", LikeEscape+"%",
	"_", LikeEscape+"_",
)

// ContainsPattern returns a LIKE pattern matching any value that contains s
// literally. Use it with "LIKE ? ESCAPE '!'".
func ContainsPattern(s string) string {
	return "%" + likeReplacer.Replace(s) + "%"
}
