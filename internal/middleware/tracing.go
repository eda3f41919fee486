package middleware

import (
	"strconv"

	"rentonmap/internal/observability"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// HeaderTraceID echoes the server span's trace id back to clients.
const HeaderTraceID = "X-Trace-ID"

// TracingMiddleware opens a server span per request, continuing any trace
// propagated by the caller. The span is renamed to the matched route once
// routing has happened so listing ids do not explode span cardinality.
func TracingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		parent := otel.GetTextMapPropagator().Extract(c.UserContext(), propagation.HeaderCarrier(c.GetReqHeaders()))
		ctx, span := observability.Tracer.Start(parent, c.Method()+" "+c.Path(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", c.Method()),
				attribute.String("url.path", c.Path()),
				attribute.String("client.address", c.IP()),
			),
		)
		defer span.End()

		traceID := span.SpanContext().TraceID().String()
		c.Locals(localTraceID, traceID)
		c.Set(HeaderTraceID, traceID)
		if rid, ok := c.Locals(localRequestID).(string); ok {
			span.SetAttributes(attribute.String("request.id", rid))
		}
		c.SetUserContext(ctx)

		err := c.Next()

		route := c.Route().Path
		status := c.Response().StatusCode()
		span.SetName(c.Method() + " " + route)
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", status),
		)
		if uid, ok := c.Locals(LocalUserID).(uint); ok {
			span.SetAttributes(attribute.String("enduser.id", strconv.FormatUint(uint64(uid), 10)))
		}
		switch {
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case status >= fiber.StatusInternalServerError:
			span.SetStatus(codes.Error, strconv.Itoa(status))
		}
		return err
	}
}
