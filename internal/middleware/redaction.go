package middleware

import (
	"net/http"
	"strings"
)

const redactedValue = "[REDACTED]"

var redactHeaderKeys = []string{
	"Authorization",
	"Cookie",
	"Set-Cookie",
	"Sec-WebSocket-Key",
}

var stripCredentialHeaderKeys = []string{
	"Authorization",
}

func isHeaderInList(key string, keys []string) bool {
	for _, k := range keys {
		if strings.EqualFold(k, strings.TrimSpace(key)) {
			return true
		}
	}
	return false
}

func redactHeaderValue(key, value string) string {
	if strings.EqualFold(key, "Authorization") {
		scheme, _, found := strings.Cut(strings.TrimSpace(value), " ")
		if found && scheme != "" {
			return scheme + " " + redactedValue
		}
	}
	return redactedValue
}

// RedactHeaders returns a copy of h with sensitive values replaced by a constant.
// Use this for safe logging.
func RedactHeaders(h http.Header) http.Header {
	if h == nil {
		return nil
	}

	out := make(http.Header, len(h))
	for key, values := range h {
		copied := make([]string, len(values))
		for i, v := range values {
			if isHeaderInList(key, redactHeaderKeys) {
				copied[i] = redactHeaderValue(key, v)
			} else {
				copied[i] = v
			}
		}
		out[key] = copied
	}
	return out
}

// StripCredentialHeaders removes the bearer credential from h in-place once
// it has been checked
func StripCredentialHeaders(h http.Header) {
	if h == nil {
		return
	}
	for key := range h {
		if isHeaderInList(key, stripCredentialHeaderKeys) {
			h.Del(key)
		}
	}
}
