package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/better-wallet/dapp-broker/internal/logger"
)

// RequestIDHeader carries the correlation id in both directions
const RequestIDHeader = "X-Request-ID"

// RequestID attaches a request id to the context and echoes it in the
// response. An id supplied by the caller is kept if it looks sane.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if !validRequestID(requestID) {
			requestID = generateRequestID()
		}

		ctx := logger.WithRequestID(r.Context(), requestID)
		w.Header().Set(RequestIDHeader, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// validRequestID accepts short printable ASCII ids
func validRequestID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

// generateRequestID returns 16 random bytes as hex
func generateRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "fallback-request-id"
	}
	return hex.EncodeToString(b)
}
