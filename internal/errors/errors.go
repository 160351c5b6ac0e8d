package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRegistrationNotFound is returned when a registration is not found.
	ErrRegistrationNotFound = errors.New("registration not found")
	// ErrEventNotFound is returned when an event is not found.
	ErrEventNotFound = errors.New("event not found")
	// ErrPaymentRecordNotFound is returned when no payment record matches a lookup.
	ErrPaymentRecordNotFound = errors.New("payment record not found")
	// ErrInvalidAmount is returned when a payment amount is missing or not positive.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrMissingPayerAccount is returned when the payer mobile-money account is absent.
	ErrMissingPayerAccount = errors.New("payer account is required")
	// ErrMissingNetwork is returned when the mobile-money network selector is absent.
	ErrMissingNetwork = errors.New("network is required")
	// ErrReconciliationConflict is returned when a write would regress a terminal
	// payment status. Detected and rejected, never silently applied.
	ErrReconciliationConflict = errors.New("reconciliation conflict: terminal status cannot change")
	// ErrInvalidCredentials is returned when admin login fails.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// GatewayError wraps a failure talking to the mobile-money gateway. The
// attempt is still persisted for later reconciliation; the error carries the
// gateway's own detail for the caller.
type GatewayError struct {
	Kind   string // "unreachable", "rejected", "malformed_response"
	Detail string
	Err    error
}

func (e *GatewayError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("gateway %s: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("gateway %s", e.Kind)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// IsGatewayError reports whether err is a GatewayError and returns it.
func IsGatewayError(err error) (*GatewayError, bool) {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
	Details    string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, message, code string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Code:       code,
	}
}

// ToErrorResponse converts an HTTPError to ErrorResponse.
func (e *HTTPError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{
		Error:   e.Message,
		Code:    e.Code,
		Details: e.Details,
	}
}

// MapErrorToHTTP maps domain errors to HTTP errors.
func MapErrorToHTTP(err error) *HTTPError {
	if ge, ok := IsGatewayError(err); ok {
		he := NewHTTPError(http.StatusBadGateway, "payment gateway error", "GATEWAY_ERROR")
		he.Details = ge.Detail
		return he
	}
	switch {
	case errors.Is(err, ErrRegistrationNotFound):
		return NewHTTPError(http.StatusNotFound, err.Error(), "REGISTRATION_NOT_FOUND")
	case errors.Is(err, ErrEventNotFound):
		return NewHTTPError(http.StatusNotFound, err.Error(), "EVENT_NOT_FOUND")
	case errors.Is(err, ErrPaymentRecordNotFound):
		return NewHTTPError(http.StatusNotFound, err.Error(), "PAYMENT_NOT_FOUND")
	case errors.Is(err, ErrInvalidAmount):
		return NewHTTPError(http.StatusBadRequest, err.Error(), "INVALID_AMOUNT")
	case errors.Is(err, ErrMissingPayerAccount):
		return NewHTTPError(http.StatusBadRequest, err.Error(), "MISSING_PAYER_ACCOUNT")
	case errors.Is(err, ErrMissingNetwork):
		return NewHTTPError(http.StatusBadRequest, err.Error(), "MISSING_NETWORK")
	case errors.Is(err, ErrReconciliationConflict):
		return NewHTTPError(http.StatusConflict, err.Error(), "RECONCILIATION_CONFLICT")
	case errors.Is(err, ErrInvalidCredentials):
		return NewHTTPError(http.StatusUnauthorized, err.Error(), "INVALID_CREDENTIALS")
	default:
		return NewHTTPError(http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}
