package observability

import (
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader carries the request ID on responses and inbound requests.
const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware assigns each request a UUID unless the client sent one,
// and echoes it on the response for log correlation.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r)
	})
}

// RequestLoggingMiddleware logs one line per request at debug level.
func RequestLoggingMiddleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.WithFields(map[string]interface{}{
				"method":     r.Method,
				"path":       r.URL.Path,
				"request_id": w.Header().Get(RequestIDHeader),
			}).Debug("request")
			next.ServeHTTP(w, r)
		})
	}
}
