package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the request and aggregate-loading instruments.
type Metrics struct {
	requestDuration metric.Float64Histogram
	requestCounter  metric.Int64Counter
	errorCounter    metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter

	loadDuration      metric.Float64Histogram
	loadQueries       metric.Int64Histogram
	loadRoots         metric.Int64Histogram
	loadErrors        metric.Int64Counter
	batchParentCount  metric.Int64Histogram
	batchChildren     metric.Int64Histogram
	batchQueriesSaved metric.Int64Counter
	joinDuplicateRows metric.Int64Counter
	joinTruncated     metric.Int64Counter
}

// NewMetrics creates every instrument on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("orders-graphql")
	m := &Metrics{}
	var err error

	if m.requestDuration, err = meter.Float64Histogram(
		"graphql.request.duration",
		metric.WithDescription("Duration of GraphQL requests in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}
	if m.requestCounter, err = meter.Int64Counter(
		"graphql.requests.total",
		metric.WithDescription("Total number of GraphQL requests"),
	); err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}
	if m.errorCounter, err = meter.Int64Counter(
		"graphql.errors.total",
		metric.WithDescription("Total number of GraphQL requests that returned errors"),
	); err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}
	if m.activeRequests, err = meter.Int64UpDownCounter(
		"graphql.requests.active",
		metric.WithDescription("Number of active GraphQL requests"),
	); err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}

	if m.loadDuration, err = meter.Float64Histogram(
		"loader.run.duration",
		metric.WithDescription("Duration of an aggregate loading run in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("failed to create load duration histogram: %w", err)
	}
	if m.loadQueries, err = meter.Int64Histogram(
		"loader.run.queries",
		metric.WithDescription("Number of statements issued by one loading run"),
	); err != nil {
		return nil, fmt.Errorf("failed to create load queries histogram: %w", err)
	}
	if m.loadRoots, err = meter.Int64Histogram(
		"loader.run.roots",
		metric.WithDescription("Number of root records returned by one loading run"),
	); err != nil {
		return nil, fmt.Errorf("failed to create load roots histogram: %w", err)
	}
	if m.loadErrors, err = meter.Int64Counter(
		"loader.run.errors",
		metric.WithDescription("Number of failed loading runs"),
	); err != nil {
		return nil, fmt.Errorf("failed to create load errors counter: %w", err)
	}
	if m.batchParentCount, err = meter.Int64Histogram(
		"loader.batch.parent_count",
		metric.WithDescription("Number of parent ids included in a batch query"),
	); err != nil {
		return nil, fmt.Errorf("failed to create batch parent count histogram: %w", err)
	}
	if m.batchChildren, err = meter.Int64Histogram(
		"loader.batch.children",
		metric.WithDescription("Number of child rows grouped by a batch query"),
	); err != nil {
		return nil, fmt.Errorf("failed to create batch children histogram: %w", err)
	}
	if m.batchQueriesSaved, err = meter.Int64Counter(
		"loader.batch.queries_saved",
		metric.WithDescription("Statements avoided compared with per-row loading"),
	); err != nil {
		return nil, fmt.Errorf("failed to create batch queries saved counter: %w", err)
	}
	if m.joinDuplicateRows, err = meter.Int64Counter(
		"loader.join.duplicate_rows",
		metric.WithDescription("Joined rows collapsed into an already seen root"),
	); err != nil {
		return nil, fmt.Errorf("failed to create join duplicate rows counter: %w", err)
	}
	if m.joinTruncated, err = meter.Int64Counter(
		"loader.join.truncated",
		metric.WithDescription("Joined loads whose roots were truncated to the row cap"),
	); err != nil {
		return nil, fmt.Errorf("failed to create join truncated counter: %w", err)
	}

	return m, nil
}

// InitMetrics creates the instruments and logs once they are ready.
func InitMetrics(logger *slog.Logger) (*Metrics, error) {
	metrics, err := NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	logger.Info("custom metrics initialized")
	return metrics, nil
}

// RecordRequest records a GraphQL request with its duration and outcome
func (m *Metrics) RecordRequest(ctx context.Context, duration time.Duration, hasErrors bool, operation string) {
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("has_errors", hasErrors),
	)
	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.requestCounter.Add(ctx, 1, attrs)
	if hasErrors {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
	}
}

// IncrementActiveRequests increments the active requests counter
func (m *Metrics) IncrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, 1)
}

// DecrementActiveRequests decrements the active requests counter
func (m *Metrics) DecrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, -1)
}

// RecordLoad records one finished loading run. code is empty on success.
func (m *Metrics) RecordLoad(ctx context.Context, strategy string, duration time.Duration, queries, roots int, code string) {
	outcome := "success"
	if code != "" {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.String("outcome", outcome),
	)
	m.loadDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.loadQueries.Record(ctx, int64(queries), attrs)
	if code != "" {
		m.loadErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("strategy", strategy),
			attribute.String("code", code),
		))
		return
	}
	m.loadRoots.Record(ctx, int64(roots), attrs)
}

// RecordBatch records the size of one association batch.
func (m *Metrics) RecordBatch(ctx context.Context, association string, parents, children int) {
	attrs := metric.WithAttributes(attribute.String("association", association))
	m.batchParentCount.Record(ctx, int64(parents), attrs)
	m.batchChildren.Record(ctx, int64(children), attrs)
}

// RecordQueriesSaved records statements avoided by a strategy.
func (m *Metrics) RecordQueriesSaved(ctx context.Context, strategy string, count int) {
	if count <= 0 {
		return
	}
	m.batchQueriesSaved.Add(ctx, int64(count), metric.WithAttributes(attribute.String("strategy", strategy)))
}

// RecordJoinDedup records rows collapsed by a joined load and whether its
// roots were truncated.
func (m *Metrics) RecordJoinDedup(ctx context.Context, association string, duplicates int, truncated bool) {
	attrs := metric.WithAttributes(attribute.String("association", association))
	if duplicates > 0 {
		m.joinDuplicateRows.Add(ctx, int64(duplicates), attrs)
	}
	if truncated {
		m.joinTruncated.Add(ctx, 1, attrs)
	}
}

type metricsContextKey struct{}

// ContextWithMetrics stores metrics in the provided context.
func ContextWithMetrics(ctx context.Context, metrics *Metrics) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, metricsContextKey{}, metrics)
}

// MetricsFromContext retrieves metrics from the context.
func MetricsFromContext(ctx context.Context) *Metrics {
	if ctx == nil {
		return nil
	}
	metrics, _ := ctx.Value(metricsContextKey{}).(*Metrics)
	return metrics
}
