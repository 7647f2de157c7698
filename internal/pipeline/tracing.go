package pipeline

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/JakeFAU/legisnotice/internal/legislation"
)

var tracer = otel.Tracer("github.com/JakeFAU/legisnotice/internal/pipeline")

func sourceAttr(source legislation.Source) trace.SpanStartOption {
	return trace.WithAttributes(attribute.String("legis.source", string(source)))
}

// endSpan records err on span, if any, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
