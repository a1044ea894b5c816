package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog/log"
)

// PanicHandler recovers from panics in downstream handlers, logs the stack
// and answers 500 if nothing has been written yet.
func PanicHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := newResponseWriter(w)
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				log.Ctx(r.Context()).Error().
					Str("event", "http_panic").
					Str("panic", fmt.Sprintf("%v", err)).
					Str("stack_trace", string(debug.Stack())).
					Msg("panic occurred")

				if !rw.Written() {
					rw.Header().Set("Content-Type", "application/json")
					rw.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(rw).Encode(map[string]string{"error": "unable to process request"})
				}
			}
		}()
		next.ServeHTTP(rw, r)
	})
}
