// Package middlewares holds the HTTP middlewares of the storefront API.
package middlewares

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcmexdev/storefront-sagas/internal/pkg/interceptors"
)

const tracerName = "github.com/jcmexdev/storefront-sagas/internal/api-gateway/infra/httpx"

// AttachTracingMetadata continues the caller's trace, opens a server span
// for the request and stores the request id and idempotency key in the
// context. It must run after middleware.RequestID.
func AttachTracingMetadata(next http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		requestID := middleware.GetReqID(ctx)
		ctx = interceptors.WithRequestID(ctx, requestID)
		if key := r.Header.Get(interceptors.HeaderIdempotencyKey); key != "" {
			ctx = interceptors.WithIdempotencyKey(ctx, key)
		}
		w.Header().Set(interceptors.HeaderRequestID, requestID)

		ctx, span := tracer.Start(ctx, "HTTP "+r.Method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("http.request_id", requestID),
			))
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		if rc := chi.RouteContext(ctx); rc != nil && rc.RoutePattern() != "" {
			span.SetName(r.Method + " " + rc.RoutePattern())
			span.SetAttributes(attribute.String("http.route", rc.RoutePattern()))
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	})
}
