package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound    ErrorType = "NOT_FOUND"
	ErrorTypeConflict    ErrorType = "CONFLICT"
	ErrorTypeConsistency ErrorType = "CONSISTENCY_ERROR"
	ErrorTypeInternal    ErrorType = "INTERNAL_ERROR"
	ErrorTypeExternal    ErrorType = "EXTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed          ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidChargeDistribution ErrorCode = "INVALID_CHARGE_DISTRIBUTION"
	ErrCodeInvalidPaymentMethod      ErrorCode = "INVALID_PAYMENT_METHOD"
	ErrCodeInvalidTravelDates        ErrorCode = "INVALID_TRAVEL_DATES"
	ErrCodeMissingCaseReference      ErrorCode = "MISSING_CASE_REFERENCE"
	ErrCodeMandateNotUsable          ErrorCode = "MANDATE_NOT_USABLE"

	ErrCodePaymentNotFound        ErrorCode = "PAYMENT_NOT_FOUND"
	ErrCodeEntrantPaymentNotFound ErrorCode = "ENTRANT_PAYMENT_NOT_FOUND"
	ErrCodeUnknownZone            ErrorCode = "UNKNOWN_ZONE"

	ErrCodeStatusAlreadyEqual ErrorCode = "STATUS_ALREADY_EQUAL"
	ErrCodeConcurrentUpdate   ErrorCode = "CONCURRENT_UPDATE"

	ErrCodeNotUnique             ErrorCode = "NOT_UNIQUE"
	ErrCodeProviderRecordMissing ErrorCode = "PROVIDER_RECORD_MISSING"

	ErrCodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrCodeProviderRejected    ErrorCode = "PROVIDER_REJECTED"
	ErrCodeProviderNotFound    ErrorCode = "PROVIDER_NOT_FOUND"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
		messages := make([]string, len(validationErrors.Errors))
		for i, err := range validationErrors.Errors {
			messages[i] = err.Message
		}
		return strings.Join(messages, "; ")
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithCause returns a copy carrying cause, so shared sentinel values are never mutated.
func (e *AppError) WithCause(cause error) *AppError {
	cp := *e
	cp.Cause = cause
	return &cp
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// Is matches on type and code so copies made by WithCause/WithDetails still
// satisfy errors.Is against the original sentinel.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldErrors(fieldErrors []ValidationError) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    ValidationErrors{Errors: fieldErrors},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewConsistencyError describes a broken cross-record or cross-system invariant.
// These are never repaired automatically.
func NewConsistencyError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConsistency,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func NewExternalError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadGateway,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error   *AppError `json:"error"`
	TraceID string    `json:"trace_id,omitempty"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
