package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/better-wallet/dapp-broker/internal/origin"
	apperrors "github.com/better-wallet/dapp-broker/pkg/errors"
	"github.com/better-wallet/dapp-broker/pkg/types"
	"github.com/ethereum/go-ethereum/common"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(ve))
	for i, e := range ve {
		msgs[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return strings.Join(msgs, "; ")
}

// Validator collects field errors for management API requests
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{errors: make(ValidationErrors, 0)}
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

// AddError adds a validation error
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// Required validates that a string is not empty
func (v *Validator) Required(field, value string) bool {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "is required")
		return false
	}
	return true
}

// MinLength validates minimum string length
func (v *Validator) MinLength(field, value string, minLen int) bool {
	if len(value) < minLen {
		v.AddError(field, fmt.Sprintf("must be at least %d characters", minLen))
		return false
	}
	return true
}

// Address validates a 0x-prefixed 20-byte hex address
func (v *Validator) Address(field, value string) bool {
	if !common.IsHexAddress(value) || !strings.HasPrefix(value, "0x") {
		v.AddError(field, "must be a valid address")
		return false
	}
	return true
}

// Origin validates a page address and returns its canonical Origin
func (v *Validator) Origin(field, value string) (string, bool) {
	o, err := origin.Resolve(value)
	if err != nil {
		v.AddError(field, "must be a page address with scheme and host")
		return "", false
	}
	return o, true
}

// Capabilities validates a non-empty list of capability names
func (v *Validator) Capabilities(field string, names []string) ([]types.Capability, bool) {
	if len(names) == 0 {
		v.AddError(field, "is required")
		return nil, false
	}
	caps, err := types.ParseCapabilities(names)
	if err != nil {
		v.AddError(field, err.Error())
		return nil, false
	}
	return caps, true
}

// WriteValidationError writes validation errors as JSON response
func WriteValidationError(w http.ResponseWriter, errs ValidationErrors) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":    apperrors.ErrCodeBadRequest,
		"message": "validation failed",
		"errors":  errs,
	})
}

// DecodeJSON decodes the request body into v, rejecting unknown fields
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("request body is required")
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
