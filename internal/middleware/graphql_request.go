package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"orders-graphql/internal/logging"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// RequestInfo describes the operation carried by a GraphQL request.
type RequestInfo struct {
	OperationType string
	OperationName string
	// Fields counts every selected field, fragments expanded once.
	Fields int
	Depth  int
}

type requestInfoKey struct{}

// RequestInfoFromContext returns the operation recorded by
// GraphQLRequestMiddleware, if any.
func RequestInfoFromContext(ctx context.Context) (RequestInfo, bool) {
	info, ok := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info, ok
}

// GraphQLRequestMiddleware parses the incoming operation once, tags the
// request logger with it and runs the rest of the chain inside a
// graphql.execute span.
func GraphQLRequestMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query, operationName := readGraphQLRequest(r)
			info, ok := describeOperation(query, operationName)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx, span := otel.Tracer("orders-graphql/graphql").Start(r.Context(), "graphql.execute")
			defer span.End()
			if span.IsRecording() {
				span.SetAttributes(
					attribute.String("graphql.operation.type", info.OperationType),
					attribute.String("graphql.operation.name", info.OperationName),
					attribute.Int("graphql.document.fields", info.Fields),
					attribute.Int("graphql.document.depth", info.Depth),
				)
			}

			fields := []any{slog.String("graphql_operation_type", info.OperationType)}
			if info.OperationName != "" {
				fields = append(fields, slog.String("graphql_operation_name", info.OperationName))
			}
			if spanCtx := span.SpanContext(); spanCtx.IsValid() {
				fields = append(fields,
					slog.String("trace_id", spanCtx.TraceID().String()),
					slog.String("span_id", spanCtx.SpanID().String()),
				)
			}
			ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithFields(fields...))
			ctx = context.WithValue(ctx, requestInfoKey{}, info)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type graphQLEnvelope struct {
	Query         string `json:"query"`
	OperationName string `json:"operationName"`
}

// readGraphQLRequest extracts the document and operation name, restoring the
// body for the handler that follows.
func readGraphQLRequest(r *http.Request) (string, string) {
	switch r.Method {
	case http.MethodGet:
		return r.URL.Query().Get("query"), r.URL.Query().Get("operationName")
	case http.MethodPost:
	default:
		return "", ""
	}
	if r.Body == nil {
		return "", ""
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return "", ""
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	if strings.Contains(r.Header.Get("Content-Type"), "application/graphql") {
		return string(body), ""
	}
	var envelope graphQLEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", ""
	}
	return envelope.Query, envelope.OperationName
}

// describeOperation picks the named operation, or the first one when no name
// is given, and measures its selection tree.
func describeOperation(query, operationName string) (RequestInfo, bool) {
	if strings.TrimSpace(query) == "" {
		return RequestInfo{}, false
	}
	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{Body: []byte(query), Name: "graphql"}),
	})
	if err != nil {
		return RequestInfo{}, false
	}

	fragments := make(map[string]*ast.FragmentDefinition)
	var op *ast.OperationDefinition
	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.FragmentDefinition:
			fragments[d.Name.Value] = d
		case *ast.OperationDefinition:
			if operationName == "" && op == nil {
				op = d
			} else if operationName != "" && d.Name != nil && d.Name.Value == operationName {
				op = d
			}
		}
	}
	if op == nil {
		return RequestInfo{}, false
	}

	info := RequestInfo{OperationType: string(op.Operation)}
	if op.Name != nil {
		info.OperationName = op.Name.Value
	}
	w := selectionWalker{fragments: fragments, expanded: map[string]bool{}}
	info.Fields, info.Depth = w.walk(op.SelectionSet, 1)
	return info, true
}

type selectionWalker struct {
	fragments map[string]*ast.FragmentDefinition
	expanded  map[string]bool
}

func (w selectionWalker) walk(set *ast.SelectionSet, depth int) (fields, maxDepth int) {
	if set == nil {
		return 0, depth - 1
	}
	maxDepth = depth
	for _, selection := range set.Selections {
		var n, d int
		switch sel := selection.(type) {
		case *ast.Field:
			n, d = w.walk(sel.SelectionSet, depth+1)
			n++
		case *ast.InlineFragment:
			n, d = w.walk(sel.SelectionSet, depth)
		case *ast.FragmentSpread:
			name := sel.Name.Value
			frag, ok := w.fragments[name]
			if !ok || w.expanded[name] {
				continue
			}
			w.expanded[name] = true
			n, d = w.walk(frag.SelectionSet, depth)
		}
		fields += n
		if d > maxDepth {
			maxDepth = d
		}
	}
	return fields, maxDepth
}
