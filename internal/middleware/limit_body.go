package middleware

import (
	"net/http"
)

// MaxBodySize is the default request body limit (1MB). Page envelopes
// carry transaction data, so this bounds the largest signable payload.
const MaxBodySize = 1 << 20

// LimitBody caps request bodies at n bytes; n <= 0 uses MaxBodySize
func LimitBody(n int64) func(http.Handler) http.Handler {
	if n <= 0 {
		n = MaxBodySize
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}
