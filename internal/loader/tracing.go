package loader

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"orders-graphql/internal/aggregate"
)

func startLoaderSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("orders-graphql/loader")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func finishLoaderSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err == nil {
		span.SetAttributes(attribute.String("loader.outcome", "success"))
		return
	}
	span.SetAttributes(
		attribute.String("loader.outcome", "error"),
		attribute.String("loader.error_code", aggregate.ErrorCode(err)),
	)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
