package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of server spans.
const TracerName = "github.com/utafrali/storefront/pkg/middleware"

// Tracing opens a server span per request, continuing any inbound W3C trace
// context and echoing it on the response.
func Tracing(serviceName string) func(http.Handler) http.Handler {
	tracer := otel.Tracer(TracerName, trace.WithInstrumentationAttributes(semconv.ServiceName(serviceName)))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			carrier := propagation.HeaderCarrier(r.Header)
			ctx, span := tracer.Start(otel.GetTextMapPropagator().Extract(r.Context(), carrier),
				r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(requestAttributes(r)...),
			)
			defer span.End()
			otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(w.Header()))

			rec := record(w)
			next.ServeHTTP(rec, r.WithContext(ctx))
			finishSpan(span, r, rec)
		})
	}
}

func requestAttributes(r *http.Request) []attribute.KeyValue {
	return []attribute.KeyValue{
		semconv.HTTPMethod(r.Method),
		semconv.HTTPTarget(r.URL.RequestURI()),
		semconv.HTTPScheme(scheme(r)),
		semconv.UserAgentOriginal(r.UserAgent()),
		attribute.String("http.client_ip", ClientIP(r)),
	}
}

// finishSpan renames the span after the matched route and records the
// outcome. Only 5xx marks the span as failed.
func finishSpan(span trace.Span, r *http.Request, rec *statusRecorder) {
	if pattern := routePattern(r); pattern != "" {
		span.SetName(r.Method + " " + pattern)
		span.SetAttributes(attribute.String("http.route", pattern))
	}
	status := rec.Status()
	span.SetAttributes(semconv.HTTPStatusCode(status))
	if rec.loginRequired() {
		span.AddEvent("session.login_required")
	}
	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}

// routePattern is the matched chi pattern, empty before routing or when
// nothing matched.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

// scheme returns the request scheme, honouring X-Forwarded-Proto.
func scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	return "http"
}
