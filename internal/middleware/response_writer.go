package middleware

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/better-wallet/dapp-broker/internal/logger"
)

// StatusRecorder wraps http.ResponseWriter to capture the response status code.
// It is safe to call WriteHeader multiple times - only the first call takes effect.
type StatusRecorder struct {
	http.ResponseWriter
	StatusCode int
	written    bool
}

// NewStatusRecorder creates a new StatusRecorder with a default status of 200 OK.
func NewStatusRecorder(w http.ResponseWriter) *StatusRecorder {
	return &StatusRecorder{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

// WriteHeader captures the status code and writes it to the underlying ResponseWriter.
func (r *StatusRecorder) WriteHeader(code int) {
	if !r.written {
		r.StatusCode = code
		r.written = true
		r.ResponseWriter.WriteHeader(code)
	}
}

// Write writes data to the underlying ResponseWriter.
func (r *StatusRecorder) Write(b []byte) (int, error) {
	if !r.written {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(b)
}

// Hijack lets websocket upgrades through the recorder
func (r *StatusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.written = true
	r.StatusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// Flush forwards to the underlying writer when it supports flushing
func (r *StatusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// AccessLog logs one line per request. Headers are logged redacted at
// debug level only.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := NewStatusRecorder(w)

		next.ServeHTTP(rec, r)

		ctx := r.Context()
		logger.Info(ctx, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.StatusCode,
			"duration_ms", time.Since(started).Milliseconds())
		logger.Debug(ctx, "http request headers", "headers", RedactHeaders(r.Header))
	})
}
