// Package middleware provides HTTP middleware for the network MCP transports:
// request logging with request IDs and panic recovery.
package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tansive/flightctl-mcp/internal/common/logtrace"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestLogger tags each request with an ID, puts a request-scoped logger in
// the context and logs the request and its completion.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = newRequestID()
		}
		ctx := logtrace.WithRequestID(r.Context(), requestID)
		ctx = log.With().Str("request_id", requestID).Logger().WithContext(ctx)

		w.Header().Set(RequestIDHeader, requestID)
		rw := newResponseWriter(w)

		log.Ctx(ctx).Info().
			Str("event", "http_request").
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_ip", r.RemoteAddr).
			Str("proto", r.Proto).
			Msg("incoming request")

		defer func() {
			log.Ctx(ctx).Info().
				Str("event", "http_request_completed").
				Int("status", rw.Status()).
				Int("bytes", rw.bytes).
				Dur("duration", time.Since(start)).
				Msg("request completed")
		}()

		next.ServeHTTP(rw, r.WithContext(ctx))
	})
}

func newRequestID() string {
	u, err := uuid.NewRandom()
	if err == nil {
		return u.String()
	}
	return "fallback-" + time.Now().Format("20060102150405.000000000")
}
