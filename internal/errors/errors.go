package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier shared by the client
// packages and the rendezvous server. The server writes these codes on the
// wire and the transport client decodes them back, so both sides of the
// protocol speak one taxonomy.
type ErrorCode string

const (
	// Pairing lifecycle
	ErrCodeRegistrationFailed ErrorCode = "REGISTRATION_FAILED"
	ErrCodePairingLost        ErrorCode = "PAIRING_LOST"
	ErrCodeNoActivePairing    ErrorCode = "NO_ACTIVE_PAIRING"
	ErrCodePinConflict        ErrorCode = "PIN_CONFLICT"
	ErrCodeInvalidPin         ErrorCode = "INVALID_PIN"
	ErrCodeAlreadyClaimed     ErrorCode = "ALREADY_CLAIMED"

	// Payment lifecycle
	ErrCodePaymentCreateFailed ErrorCode = "PAYMENT_CREATE_FAILED"
	ErrCodePaymentPollFailed   ErrorCode = "PAYMENT_POLL_FAILED"
	ErrCodePaymentInFlight     ErrorCode = "PAYMENT_IN_FLIGHT"
	ErrCodeInvalidTransition   ErrorCode = "INVALID_TRANSITION"

	// Validation
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"

	// Resource
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	ErrCodeConflict ErrorCode = "CONFLICT"

	// Rate limiting
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
	ErrCodeExternal ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func RegistrationFailed(cause error) *AppError {
	return Wrap(ErrCodeRegistrationFailed, "Pairing registration failed", cause)
}

func PairingLost() *AppError {
	return New(ErrCodePairingLost, "Pairing is no longer active")
}

func NoActivePairing() *AppError {
	return New(ErrCodeNoActivePairing, "No active pairing; register a pairing first")
}

func PinConflict() *AppError {
	return New(ErrCodePinConflict, "PIN code is already in use by a live pairing")
}

func InvalidPin() *AppError {
	return New(ErrCodeInvalidPin, "PIN code must be exactly 6 digits")
}

func AlreadyClaimed() *AppError {
	return New(ErrCodeAlreadyClaimed, "Pairing is already claimed by another terminal")
}

func PaymentCreateFailed(cause error) *AppError {
	return Wrap(ErrCodePaymentCreateFailed, "Payment request creation failed", cause)
}

func PaymentPollFailed(cause error) *AppError {
	return Wrap(ErrCodePaymentPollFailed, "Payment result poll failed", cause)
}

func PaymentInFlight(requestID string) *AppError {
	return New(ErrCodePaymentInFlight, "A payment request is already in flight").WithDetails(map[string]string{"request_id": requestID})
}

func InvalidTransition(from, to string) *AppError {
	return New(ErrCodeInvalidTransition, fmt.Sprintf("Cannot transition payment request from %s to %s", from, to))
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message)
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

func External(service string, cause error) *AppError {
	return Wrap(ErrCodeExternal, fmt.Sprintf("External service error: %s", service), cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err is an AppError carrying the given code.
func HasCode(err error, code ErrorCode) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}
