package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents an application-level error. Message is the
// human-readable reason surfaced to pages in response envelopes; Detail
// stays server-side.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	StatusCode int    `json:"-"`
}

func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes
const (
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeBadRequest       = "bad_request"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInternalError    = "internal_error"
	ErrCodeBlocked          = "blocked"
	ErrCodeNoTab            = "no_tab"
	ErrCodeNoWallets        = "no_wallets"
	ErrCodePermissionDenied = "permission_denied"
	ErrCodeMissingField     = "missing_field"
	ErrCodeAlreadyGranted   = "already_granted"
	ErrCodeBusy             = "busy"
	ErrCodeSigningFailed    = "signing_failed"
	ErrCodeApprovalRejected = "approval_rejected"
	ErrCodeApprovalExpired  = "approval_expired"
	ErrCodeLookupFailed     = "lookup_failed"
)

// Messages shown to pages. Kept stable because page SDKs match on them.
const (
	MsgSiteBlocked            = "Site is blocked"
	MsgNoTab                  = "No tabs opened"
	MsgNoWallets              = "No wallets added to the wallet"
	MsgPermissionDenied       = "The site does not have the required permissions for this action"
	MsgNoPermissionsRequested = "No permissions requested"
	MsgAlreadyGranted         = "All permissions are already allowed for this site"
	MsgNoTransaction          = "No transaction submitted."
	MsgSigningFailed          = "Error signing transaction"
	MsgBusy                   = "Another request is already pending for this tab"
	MsgApprovalRejected       = "The request was rejected"
	MsgApprovalExpired        = "The approval request expired"
	MsgActiveAddressFailed    = "Error getting current address"
	MsgAllAddressesFailed     = "Error getting all addresses"
)

// Predefined errors
var (
	ErrUnauthorized = &AppError{
		Code:       ErrCodeUnauthorized,
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrForbidden = &AppError{
		Code:       ErrCodeForbidden,
		Message:    "Access denied",
		StatusCode: http.StatusForbidden,
	}

	ErrNotFound = &AppError{
		Code:       ErrCodeNotFound,
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &AppError{
		Code:       ErrCodeBadRequest,
		Message:    "Invalid request parameters",
		StatusCode: http.StatusBadRequest,
	}

	ErrInternalError = &AppError{
		Code:       ErrCodeInternalError,
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}

	ErrConflict = &AppError{
		Code:       ErrCodeConflict,
		Message:    "Request conflict",
		StatusCode: http.StatusConflict,
	}

	ErrSiteBlocked = &AppError{
		Code:       ErrCodeBlocked,
		Message:    MsgSiteBlocked,
		StatusCode: http.StatusForbidden,
	}

	ErrNoTab = &AppError{
		Code:       ErrCodeNoTab,
		Message:    MsgNoTab,
		StatusCode: http.StatusBadRequest,
	}

	ErrNoWallets = &AppError{
		Code:       ErrCodeNoWallets,
		Message:    MsgNoWallets,
		StatusCode: http.StatusPreconditionFailed,
	}

	ErrPermissionDenied = &AppError{
		Code:       ErrCodePermissionDenied,
		Message:    MsgPermissionDenied,
		StatusCode: http.StatusForbidden,
	}

	ErrBusy = &AppError{
		Code:       ErrCodeBusy,
		Message:    MsgBusy,
		StatusCode: http.StatusConflict,
	}

	// ErrSigningFailed is the single outward face of every failure inside
	// the signing critical section.
	ErrSigningFailed = &AppError{
		Code:       ErrCodeSigningFailed,
		Message:    MsgSigningFailed,
		StatusCode: http.StatusUnprocessableEntity,
	}

	ErrApprovalRejected = &AppError{
		Code:       ErrCodeApprovalRejected,
		Message:    MsgApprovalRejected,
		StatusCode: http.StatusForbidden,
	}

	ErrApprovalExpired = &AppError{
		Code:       ErrCodeApprovalExpired,
		Message:    MsgApprovalExpired,
		StatusCode: http.StatusGatewayTimeout,
	}
)

// New creates a new AppError
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// NewWithDetail creates a new AppError with additional detail
func NewWithDetail(code, message, detail string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Detail:     detail,
		StatusCode: statusCode,
	}
}

// MissingField reports a required request field that was not supplied
func MissingField(message string) *AppError {
	return &AppError{
		Code:       ErrCodeMissingField,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// LookupFailed reports a read handler that could not produce its value
func LookupFailed(message, detail string) *AppError {
	return &AppError{
		Code:       ErrCodeLookupFailed,
		Message:    message,
		Detail:     detail,
		StatusCode: http.StatusNotFound,
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
