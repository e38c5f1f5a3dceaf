package middleware

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingMiddleware wraps handlers with OpenTelemetry server spans. File
// paths are treated as sensitive when redactSensitive is set.
func TracingMiddleware(redactSensitive bool) func(http.Handler) http.Handler {
	tracer := otel.Tracer("chat-storage-gateway")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			spanName := spanNameFor(r.Method, r.URL.Path)
			ctx, span := tracer.Start(ctx, spanName,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPMethod(r.Method),
					semconv.HTTPTarget(r.URL.Path),
					semconv.HTTPRoute(r.URL.Path),
					attribute.String("http.host", r.Host),
					attribute.String("http.user_agent", r.UserAgent()),
					attribute.String("http.remote_addr", remoteAddr(r)),
				),
			)

			if filePath := strings.TrimPrefix(r.URL.Path, "/files/"); filePath != r.URL.Path && filePath != "" && !redactSensitive {
				span.SetAttributes(attribute.String("file.path", filePath))
			}

			if r.URL.RawQuery != "" {
				if redactSensitive {
					span.SetAttributes(attribute.String("http.query", "[REDACTED]"))
				} else {
					span.SetAttributes(attribute.String("http.query", r.URL.RawQuery))
				}
			}

			if id := r.Header.Get(RequestIDHeader); id != "" {
				span.SetAttributes(attribute.String("request.id", id))
			}

			rw := &tracingResponseWriter{
				ResponseWriter: w,
				span:           span,
			}

			r = r.WithContext(ctx)

			defer func() {
				span.SetAttributes(
					semconv.HTTPStatusCode(rw.statusCode),
				)

				if rw.statusCode >= 400 {
					span.SetStatus(codes.Error, http.StatusText(rw.statusCode))
				} else {
					span.SetStatus(codes.Ok, "")
				}

				span.End()
			}()

			next.ServeHTTP(rw, r)
		})
	}
}

// spanNameFor maps a request to a stable, low-cardinality span name.
func spanNameFor(method, path string) string {
	switch {
	case strings.HasPrefix(path, "/files/"):
		switch method {
		case http.MethodGet:
			return "files.Read"
		case http.MethodPut:
			return "files.Write"
		case http.MethodDelete:
			return "files.Forget"
		case http.MethodHead:
			return "files.Exists"
		}
	case path == "/files" && method == http.MethodGet:
		return "files.List"
	case path == "/copy" && method == http.MethodPost:
		return "files.Copy"
	case path == "/move" && method == http.MethodPost:
		return "files.Move"
	}
	return "HTTP " + method
}

// remoteAddr extracts the real client address, honoring proxy headers.
func remoteAddr(r *http.Request) string {
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}
	return r.RemoteAddr
}

// tracingResponseWriter wraps http.ResponseWriter to capture the status code.
type tracingResponseWriter struct {
	http.ResponseWriter
	span       trace.Span
	statusCode int
}

func (w *tracingResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *tracingResponseWriter) Write(b []byte) (int, error) {
	if w.statusCode == 0 {
		w.statusCode = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}
