package handlers

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"rainfall-platform/internal/services"
	"rainfall-platform/pkg/logging"
	"rainfall-platform/pkg/metrics"
)

// RequestIDHeader carries the correlation id in both directions
const RequestIDHeader = "X-Request-ID"

// Authenticator derives the upload session from a bearer token. With no
// token configured every caller is unauthenticated.
type Authenticator struct {
	token []byte
}

// NewAuthenticator creates an authenticator for token
func NewAuthenticator(token string) *Authenticator {
	return &Authenticator{token: []byte(token)}
}

// Session returns the caller's session for r
func (a *Authenticator) Session(r *http.Request) services.Session {
	return services.NewSession(r.RemoteAddr, a.authenticated(r))
}

func (a *Authenticator) authenticated(r *http.Request) bool {
	if len(a.token) == 0 {
		return false
	}
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return false
	}
	given := []byte(strings.TrimSpace(header[len(prefix):]))
	return subtle.ConstantTimeCompare(given, a.token) == 1
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// RequestMiddleware tags every request with an id, logs it, and records its
// duration under the matched route template.
func RequestMiddleware(logger *logging.StructuredLogger, metricsCollector *metrics.Collector) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)
			ctx := logging.WithRequestID(r.Context(), requestID)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			endpoint := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tpl, err := route.GetPathTemplate(); err == nil {
					endpoint = tpl
				}
			}
			duration := time.Since(start)
			metricsCollector.APIRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())

			logger.Debug(ctx, "[API_REQUEST] Request served", logging.Fields{
				"method":      r.Method,
				"endpoint":    endpoint,
				"status":      strconv.Itoa(rec.status),
				"duration_ms": duration.Milliseconds(),
			})
		})
	}
}
