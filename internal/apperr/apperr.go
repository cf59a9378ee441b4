// Package apperr generalizes the teacher's AppError into the taxonomy
// spec.md §7 describes, mapping each category onto the HTTP status codes
// in §6.3.
package apperr

import (
	"fmt"
	"net/http"
)

// Category is the error taxonomy from spec.md §7. PricingUnavailable and
// PartialData are deliberately not constructable here: both are data
// states carried on Trade/Position fields, never raised as errors.
type Category string

const (
	CategoryValidation          Category = "validation"
	CategoryAuthDenied          Category = "auth_denied"
	CategoryRateLimited         Category = "rate_limited"
	CategoryUpstreamRateLimited Category = "upstream_rate_limited"
	CategoryUpstreamFailure     Category = "upstream_failure"
	CategoryCanceled            Category = "canceled"
	CategoryInternal            Category = "internal"
)

var statusByCategory = map[Category]int{
	CategoryValidation:          http.StatusBadRequest,
	CategoryAuthDenied:          http.StatusUnauthorized,
	CategoryRateLimited:         http.StatusTooManyRequests,
	CategoryUpstreamRateLimited: http.StatusTooManyRequests,
	CategoryUpstreamFailure:     http.StatusBadGateway,
	CategoryCanceled:            http.StatusGatewayTimeout,
	CategoryInternal:            http.StatusInternalServerError,
}

// AppError is the single error type returned across the pipeline and
// serialized at the HTTP boundary as {error, message, code?, retry_after?}.
type AppError struct {
	Category   Category
	Message    string
	Code       int
	Err        error
	RetryAfter int // seconds; 0 means absent
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func newf(cat Category, format string, args ...any) *AppError {
	return &AppError{Category: cat, Message: fmt.Sprintf(format, args...), Code: statusByCategory[cat]}
}

func Validation(format string, args ...any) *AppError { return newf(CategoryValidation, format, args...) }

func AuthDenied(message string) *AppError {
	return &AppError{Category: CategoryAuthDenied, Message: message, Code: http.StatusUnauthorized}
}

func RateLimited(retryAfterSec int) *AppError {
	return &AppError{
		Category:   CategoryRateLimited,
		Message:    "rate limit exceeded",
		Code:       http.StatusTooManyRequests,
		RetryAfter: retryAfterSec,
	}
}

func UpstreamRateLimited(err error) *AppError {
	return &AppError{Category: CategoryUpstreamRateLimited, Message: "upstream rate limited", Code: http.StatusTooManyRequests, Err: err}
}

func UpstreamFailure(message string, err error) *AppError {
	return &AppError{Category: CategoryUpstreamFailure, Message: message, Code: http.StatusBadGateway, Err: err}
}

func Timeout(message string) *AppError {
	return &AppError{Category: CategoryUpstreamFailure, Message: message, Code: http.StatusGatewayTimeout}
}

func Canceled() *AppError {
	return &AppError{Category: CategoryCanceled, Message: "canceled", Code: http.StatusGatewayTimeout}
}

func Internal(err error) *AppError {
	return &AppError{Category: CategoryInternal, Message: "internal error", Code: http.StatusInternalServerError, Err: err}
}

func NotFound(message string) *AppError {
	return &AppError{Category: CategoryValidation, Message: message, Code: http.StatusNotFound}
}

// FeatureDisabled maps to the 501 spec.md §4.10 reserves for gated endpoints.
func FeatureDisabled(feature string) *AppError {
	return &AppError{Category: CategoryValidation, Message: fmt.Sprintf("%s is disabled", feature), Code: http.StatusNotImplemented}
}
