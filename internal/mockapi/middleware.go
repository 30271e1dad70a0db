package mockapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/jpalmerr/dispatchboard/remote"
)

// simulateDelayAndError implements the ?error=true and ?delay=ms hooks.
// The error check runs first, so a simulated failure is never delayed.
func simulateDelayAndError(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		if q.Get("error") == "true" {
			writeJSON(w, http.StatusInternalServerError, errorBody{
				Error:   remote.SimulatedErrorMessage,
				Message: "This error was triggered by ?error=true query parameter",
			})
			return
		}

		if delay, err := strconv.Atoi(q.Get("delay")); err == nil && delay > 0 {
			timer := time.NewTimer(time.Duration(delay) * time.Millisecond)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-r.Context().Done():
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// allowCORS lets a browser client on another origin call the API.
func allowCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, PATCH, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, "+remote.RequestIDHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// logRequests logs every request at debug level, warn for 5xx.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"request_id", r.Header.Get(remote.RequestIDHeader),
		}
		if ww.Status() >= http.StatusInternalServerError {
			s.logger.Warn("mock api request", attrs...)
		} else {
			s.logger.Debug("mock api request", attrs...)
		}
	})
}
