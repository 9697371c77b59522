package errors

import (
	stderrors "errors"
	"fmt"
)

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an AppError with the same code, so that
// errors.Is(err, ErrNotFound) matches any not-found error.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

const (
	CodeValidation    = "MED_001"
	CodeNotFound      = "MED_002"
	CodeConfiguration = "MED_003"
	CodeStorage       = "MED_004"
)

var (
	ErrConfigNotFound = &AppError{Code: "CONFIG_001", Message: "configuration not found"}
	ErrConfigInvalid  = &AppError{Code: "CONFIG_002", Message: "invalid configuration"}

	ErrValidation    = &AppError{Code: CodeValidation, Message: "invalid medication input"}
	ErrNotFound      = &AppError{Code: CodeNotFound, Message: "medication not found"}
	ErrConfiguration = &AppError{Code: CodeConfiguration, Message: "invalid medication schedule"}
	ErrStorage       = &AppError{Code: CodeStorage, Message: "storage failure"}

	ErrServiceNotFound = &AppError{Code: "SVC_001", Message: "service not found"}

	ErrUnauthorized = &AppError{Code: "AUTH_001", Message: "unauthorized"}
	ErrRateLimited  = &AppError{Code: "AUTH_002", Message: "rate limit exceeded"}

	ErrBadRequest = &AppError{Code: "GEN_002", Message: "bad request"}
	ErrInternal   = &AppError{Code: "GEN_003", Message: "internal error"}
)

// Validation reports missing or malformed input. No state is changed.
func Validation(format string, args ...interface{}) *AppError {
	return &AppError{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports an unknown medication id.
func NotFound(id string) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("medication %q not found", id)}
}

// Configuration reports a nonsensical schedule such as an inverted date
// range or a malformed time string. It also matches ErrValidation.
func Configuration(format string, args ...interface{}) *AppError {
	return &AppError{Code: CodeConfiguration, Message: fmt.Sprintf(format, args...), Cause: ErrValidation}
}

// Storage wraps a repository failure.
func Storage(op string, err error) *AppError {
	return &AppError{Code: CodeStorage, Message: op, Cause: err}
}

func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}
