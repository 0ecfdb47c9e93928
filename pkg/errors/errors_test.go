package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name: "error without detail",
			err: &AppError{
				Code:    ErrCodeBlocked,
				Message: MsgSiteBlocked,
			},
			expected: "blocked: Site is blocked",
		},
		{
			name: "error with detail",
			err: &AppError{
				Code:    ErrCodeSigningFailed,
				Message: MsgSigningFailed,
				Detail:  "fee lookup failed",
			},
			expected: "signing_failed: Error signing transaction (fee lookup failed)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestNew(t *testing.T) {
	err := New("test_code", "Test message", http.StatusTeapot)

	assert.Equal(t, "test_code", err.Code)
	assert.Equal(t, "Test message", err.Message)
	assert.Equal(t, http.StatusTeapot, err.StatusCode)
	assert.Empty(t, err.Detail)
}

func TestMissingField(t *testing.T) {
	err := MissingField(MsgNoTransaction)

	assert.Equal(t, ErrCodeMissingField, err.Code)
	assert.Equal(t, "No transaction submitted.", err.Message)
	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
}

func TestLookupFailed(t *testing.T) {
	err := LookupFailed(MsgActiveAddressFailed, "no active address")

	assert.Equal(t, ErrCodeLookupFailed, err.Code)
	assert.Equal(t, MsgActiveAddressFailed, err.Message)
	assert.Equal(t, "no active address", err.Detail)
}

func TestIsAppError(t *testing.T) {
	t.Run("returns AppError when error is AppError", func(t *testing.T) {
		appErr, ok := IsAppError(ErrSiteBlocked)

		require.True(t, ok)
		assert.Equal(t, ErrSiteBlocked, appErr)
	})

	t.Run("returns false when error is not AppError", func(t *testing.T) {
		appErr, ok := IsAppError(errors.New("standard error"))

		assert.False(t, ok)
		assert.Nil(t, appErr)
	})

	t.Run("works with wrapped errors", func(t *testing.T) {
		wrappedErr := fmt.Errorf("wrapped: %w", ErrSigningFailed)

		appErr, ok := IsAppError(wrappedErr)

		require.True(t, ok)
		assert.Same(t, ErrSigningFailed, appErr)
	})
}

func TestPredefinedErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     *AppError
		code    string
		message string
	}{
		{"ErrSiteBlocked", ErrSiteBlocked, ErrCodeBlocked, "Site is blocked"},
		{"ErrNoTab", ErrNoTab, ErrCodeNoTab, "No tabs opened"},
		{"ErrPermissionDenied", ErrPermissionDenied, ErrCodePermissionDenied, "The site does not have the required permissions for this action"},
		{"ErrSigningFailed", ErrSigningFailed, ErrCodeSigningFailed, "Error signing transaction"},
		{"ErrBusy", ErrBusy, ErrCodeBusy, MsgBusy},
		{"ErrApprovalExpired", ErrApprovalExpired, ErrCodeApprovalExpired, MsgApprovalExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.message, tt.err.Message)
			assert.NotZero(t, tt.err.StatusCode)
		})
	}
}

func TestErrorCodeConstants(t *testing.T) {
	codes := []string{
		ErrCodeUnauthorized,
		ErrCodeForbidden,
		ErrCodeNotFound,
		ErrCodeBadRequest,
		ErrCodeConflict,
		ErrCodeRateLimited,
		ErrCodeInternalError,
		ErrCodeBlocked,
		ErrCodeNoTab,
		ErrCodeNoWallets,
		ErrCodePermissionDenied,
		ErrCodeMissingField,
		ErrCodeAlreadyGranted,
		ErrCodeBusy,
		ErrCodeSigningFailed,
		ErrCodeApprovalRejected,
		ErrCodeApprovalExpired,
		ErrCodeLookupFailed,
	}

	uniqueCodes := make(map[string]bool)
	for _, code := range codes {
		assert.NotEmpty(t, code, "error code should not be empty")
		assert.False(t, uniqueCodes[code], "error code %s is duplicate", code)
		uniqueCodes[code] = true
	}
}
