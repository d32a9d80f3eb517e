package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"aurora-hq/nexus/pkg/proxy"
)

// Recovery turns handler panics into 500 responses in OpenAI error format.
// The panic and stack trace are logged; the client sees no internals.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.ErrorContext(r.Context(), "panic in handler",
					"error", err,
					"request_id", GetRequestID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)

				proxy.WriteError(w, proxy.NewErrorResponse(
					"an internal error occurred",
					proxy.ErrorTypeServerError, proxy.CodeInternalError,
				))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
