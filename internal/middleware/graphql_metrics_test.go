package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"orders-graphql/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestGraphQLMetricsMiddleware_OperationType(t *testing.T) {
	handler, reader := setupGraphQLMetricsMiddleware(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"orders":[]}}`))
	}))

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":"query Recent { orders(limit: 1) { id } }","operationName":"Recent"}`))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(1), sumInt64Value(rm, "graphql.requests.total", "query", boolPtr(false)))
	assert.Equal(t, int64(0), sumInt64Value(rm, "graphql.errors.total", "query", nil))
}

func TestGraphQLMetricsMiddleware_HTTP200WithGraphQLErrors(t *testing.T) {
	handler, reader := setupGraphQLMetricsMiddleware(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":null,"errors":[{"message":"boom"}]}`))
	}))

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":"{ orders { id } }"}`))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(1), sumInt64Value(rm, "graphql.requests.total", "query", boolPtr(true)))
	assert.Equal(t, int64(1), sumInt64Value(rm, "graphql.errors.total", "query", nil))
}

func TestGraphQLMetricsMiddleware_FallbackToUnknownOperationType(t *testing.T) {
	handler, reader := setupGraphQLMetricsMiddleware(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"ok":true}}`))
	}))

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":`))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(1), sumInt64Value(rm, "graphql.requests.total", "unknown", boolPtr(false)))
}

func TestGraphQLMetricsMiddleware_PublishesMetricsToHandler(t *testing.T) {
	var seen *observability.Metrics
	handler, _ := setupGraphQLMetricsMiddleware(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = observability.MetricsFromContext(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{}`)))
	assert.NotNil(t, seen)

	seen = nil
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/graphql", nil))
	assert.Nil(t, seen, "GET requests bypass metrics")
}

func setupGraphQLMetricsMiddleware(t *testing.T, next http.Handler) (http.Handler, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	oldProvider := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
		otel.SetMeterProvider(oldProvider)
	})

	metrics, err := observability.NewMetrics()
	require.NoError(t, err)
	return GraphQLRequestMiddleware()(GraphQLMetricsMiddleware(metrics)(next)), reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func sumInt64Value(rm metricdata.ResourceMetrics, metricName, operation string, hasErrors *bool) int64 {
	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != metricName {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, point := range sum.DataPoints {
				if !matchString(point.Attributes, "operation", operation) {
					continue
				}
				if hasErrors != nil && !matchBool(point.Attributes, "has_errors", *hasErrors) {
					continue
				}
				total += point.Value
			}
		}
	}
	return total
}

func matchString(attrs attribute.Set, key, want string) bool {
	v, ok := attrs.Value(attribute.Key(key))
	return ok && v.AsString() == want
}

func matchBool(attrs attribute.Set, key string, want bool) bool {
	v, ok := attrs.Value(attribute.Key(key))
	return ok && v.AsBool() == want
}

func boolPtr(v bool) *bool {
	return &v
}
