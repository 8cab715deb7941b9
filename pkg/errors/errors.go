package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error types
var (
	ErrNotFound   = errors.New("resource not found")
	ErrBadRequest = errors.New("bad request")
	ErrConflict   = errors.New("resource conflict")
	ErrInternal   = errors.New("internal server error")
	ErrValidation = errors.New("validation error")

	// Pipeline error types
	ErrRasterizeFailed     = errors.New("page rasterization failed")
	ErrOCRUnavailable      = errors.New("all OCR engines failed")
	ErrVendorNotIdentified = errors.New("vendor could not be identified")
	ErrPartialExtraction   = errors.New("extraction incomplete")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// Pipeline error constructors. These carry the extraction failure taxonomy
// reported on documents that could not be processed.

func RasterizeFailed(err error) *AppError {
	return &AppError{
		Err:        errors.Join(ErrRasterizeFailed, err),
		Code:       "RASTERIZE_FAILED",
		Message:    "failed to render document page",
		StatusCode: http.StatusUnprocessableEntity,
	}
}

func OCRUnavailable(err error) *AppError {
	return &AppError{
		Err:        errors.Join(ErrOCRUnavailable, err),
		Code:       "OCR_UNAVAILABLE",
		Message:    "text recognition failed on all engines",
		StatusCode: http.StatusBadGateway,
	}
}

func VendorNotIdentified() *AppError {
	return &AppError{
		Err:        ErrVendorNotIdentified,
		Code:       "VENDOR_NOT_IDENTIFIED",
		Message:    "no vendor could be identified from the document text",
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// PartialExtraction reports header fields that could not be resolved. The
// document is still persisted; this error travels alongside the result so
// review tooling can surface every missing field at once.
func PartialExtraction(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrPartialExtraction,
		Code:       "PARTIAL_EXTRACTION",
		Message:    "one or more fields could not be extracted",
		StatusCode: http.StatusOK,
		Details:    details,
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
