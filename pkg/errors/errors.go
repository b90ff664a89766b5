package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrDocumentNotFound     = errors.New("document not found")
	ErrTypeNotFound         = errors.New("mapping type not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrMalformedContent     = errors.New("malformed content")
	ErrStrictDynamicMapping = errors.New("strict dynamic mapping")
	ErrIllegalArgument      = errors.New("illegal argument")
	ErrMappingConflict      = errors.New("mapping conflict")
	ErrVersionConflict      = errors.New("mapping version conflict")
	ErrFieldLimitExceeded   = errors.New("total fields limit exceeded")
	ErrInternal             = errors.New("internal error")
	ErrTimeout              = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Retryable reports whether err may succeed when retried against a
// different mapping version. Malformed input never will.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrMalformedContent), errors.Is(err, ErrInvalidInput):
		return false
	case errors.Is(err, ErrStrictDynamicMapping),
		errors.Is(err, ErrMappingConflict),
		errors.Is(err, ErrVersionConflict),
		errors.Is(err, ErrTimeout):
		return true
	default:
		return false
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDocumentNotFound), errors.Is(err, ErrTypeNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrMappingConflict), errors.Is(err, ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrMalformedContent),
		errors.Is(err, ErrStrictDynamicMapping),
		errors.Is(err, ErrIllegalArgument),
		errors.Is(err, ErrFieldLimitExceeded):
		return http.StatusBadRequest
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}

}
