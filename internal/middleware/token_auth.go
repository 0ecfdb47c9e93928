package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	apperrors "github.com/better-wallet/dapp-broker/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

// Callers a TokenAuth can authenticate
const (
	// CallerPopup is the approval and management surface
	CallerPopup = "popup"
	// CallerRelay is the page relay (content script host) that submits
	// page envelopes and reports which page sent them
	CallerRelay = "relay"
)

type callerKey struct{}

// Caller returns the caller TokenAuth authenticated for ctx, or "" when
// the request was not authenticated
func Caller(ctx context.Context) string {
	c, _ := ctx.Value(callerKey{}).(string)
	return c
}

// TokenAuth authenticates one kind of caller by a bearer token checked
// against a bcrypt hash; the token itself is never held.
type TokenAuth struct {
	caller string
	hash   []byte
}

// NewTokenAuth creates a TokenAuth for caller from a bcrypt hash
func NewTokenAuth(caller, tokenHash string) (*TokenAuth, error) {
	if caller == "" {
		return nil, fmt.Errorf("caller is required")
	}
	if _, err := bcrypt.Cost([]byte(tokenHash)); err != nil {
		return nil, fmt.Errorf("invalid %s token hash: %w", caller, err)
	}
	return &TokenAuth{caller: caller, hash: []byte(tokenHash)}, nil
}

// HashToken returns the bcrypt hash of token
func HashToken(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("token is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash token: %w", err)
	}
	return string(hash), nil
}

// Authenticate requires Authorization: Bearer <token> and records the
// caller in the request context
func (a *TokenAuth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, apperrors.NewWithDetail(
				apperrors.ErrCodeUnauthorized,
				fmt.Sprintf("Missing %s credentials", a.caller),
				"Provide Authorization: Bearer <token>",
				http.StatusUnauthorized,
			))
			return
		}

		if err := bcrypt.CompareHashAndPassword(a.hash, []byte(token)); err != nil {
			writeError(w, apperrors.ErrUnauthorized)
			return
		}

		StripCredentialHeaders(r.Header)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, a.caller)))
	})
}

// bearerToken extracts the token from the Authorization header or, for
// websocket upgrades which cannot set headers from a browser, the token
// query parameter
func bearerToken(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, found := strings.Cut(h, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", false
		}
		return strings.TrimSpace(token), true
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		if token := r.URL.Query().Get("token"); token != "" {
			return token, true
		}
	}
	return "", false
}

// writeError writes an AppError as JSON
func writeError(w http.ResponseWriter, err *apperrors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	_ = json.NewEncoder(w).Encode(err)
}
