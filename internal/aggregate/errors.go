package aggregate

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes surfaced to API clients.
const (
	CodeInvalidInput     = "invalid_input"
	CodeUnsupportedQuery = "unsupported_query"
	CodeQueryFailed      = "query_failed"
)

// ValidationError reports malformed criteria.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// UnsupportedQueryError reports a request shape the loader refuses to run.
type UnsupportedQueryError struct {
	Reason string
	// Associations lists the associations involved, if any.
	Associations []string
}

func (e *UnsupportedQueryError) Error() string {
	if len(e.Associations) == 0 {
		return "unsupported query: " + e.Reason
	}
	return fmt.Sprintf("unsupported query: %s (%s)", e.Reason, strings.Join(e.Associations, ", "))
}

// QueryError wraps a store failure together with the loading phase it hit.
type QueryError struct {
	Phase string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s query failed: %v", e.Phase, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// ErrorCode classifies err for clients. Unknown errors map to CodeQueryFailed.
func ErrorCode(err error) string {
	var validation *ValidationError
	if errors.As(err, &validation) {
		return CodeInvalidInput
	}
	var unsupported *UnsupportedQueryError
	if errors.As(err, &unsupported) {
		return CodeUnsupportedQuery
	}
	return CodeQueryFailed
}
