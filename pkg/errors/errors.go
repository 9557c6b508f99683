package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorClass buckets translation failures into the retry policy they deserve.
type ErrorClass string

const (
	ClassAuthFailed    ErrorClass = "AUTH_FAILED"
	ClassQuotaExceeded ErrorClass = "QUOTA_EXCEEDED"
	ClassRateLimited   ErrorClass = "RATE_LIMITED"
	ClassBadRequest    ErrorClass = "BAD_REQUEST"
	ClassNetwork       ErrorClass = "NETWORK_ERROR"
	ClassTimeout       ErrorClass = "TIMEOUT"
	ClassServer        ErrorClass = "SERVER_ERROR"
)

func (c ErrorClass) String() string {
	return string(c)
}

// TranslateError is a classified failure from the translation provider layer.
type TranslateError struct {
	Message    string
	Class      ErrorClass
	StatusCode int
	RetryAfter time.Duration
	Context    map[string]any
	Cause      error
}

func (e *TranslateError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s [%s]: %v", e.Message, e.Class, e.Cause)
	}
	return fmt.Sprintf("%s [%s]", e.Message, e.Class)
}

func (e *TranslateError) Unwrap() error {
	return e.Cause
}

func NewTranslateError(message string, class ErrorClass, statusCode int) *TranslateError {
	return &TranslateError{
		Message:    message,
		Class:      class,
		StatusCode: statusCode,
	}
}

func (e *TranslateError) WithCause(cause error) *TranslateError {
	e.Cause = cause
	return e
}

func (e *TranslateError) WithRetryAfter(d time.Duration) *TranslateError {
	e.RetryAfter = d
	return e
}

func (e *TranslateError) WithContext(ctx map[string]any) *TranslateError {
	e.Context = ctx
	return e
}

// ClassOf extracts the error class, defaulting to ClassNetwork for
// unclassified failures so callers treat unknown errors as transient.
func ClassOf(err error) ErrorClass {
	var te *TranslateError
	if errors.As(err, &te) {
		return te.Class
	}
	return ClassNetwork
}

// RetryAfterOf returns the server-hinted retry delay, or zero when absent.
func RetryAfterOf(err error) time.Duration {
	var te *TranslateError
	if errors.As(err, &te) {
		return te.RetryAfter
	}
	return 0
}

// IsRunFatal reports whether the error must abort the whole run rather than
// degrade a single cell. Authentication, quota and malformed-request failures
// will fail every subsequent call identically, so retrying is pointless.
func IsRunFatal(err error) bool {
	switch ClassOf(err) {
	case ClassAuthFailed, ClassQuotaExceeded, ClassBadRequest:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether another attempt for the same cell may succeed.
func IsRetryable(err error) bool {
	switch ClassOf(err) {
	case ClassNetwork, ClassTimeout, ClassServer, ClassRateLimited:
		return true
	default:
		return false
	}
}

// ValidationError reports invalid run configuration or input. Always run-fatal.
type ValidationError struct {
	Message string
	Field   string
	Value   any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s (field=%s)", e.Message, e.Field)
	}
	return e.Message
}

func NewValidationError(message, field string, value any) *ValidationError {
	return &ValidationError{
		Message: message,
		Field:   field,
		Value:   value,
	}
}

// ParseError reports malformed CSV input.
type ParseError struct {
	Message string
	Line    int
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s (line %d)", e.Message, e.Line)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

func NewParseError(message string, line int, cause error) *ParseError {
	return &ParseError{
		Message: message,
		Line:    line,
		Cause:   cause,
	}
}

// CacheError reports a Redis operation failure. Memo lookups treat these as
// soft misses; only connection setup surfaces them to the caller.
type CacheError struct {
	Message   string
	Operation string
	Key       string
	Cause     error
}

func (e *CacheError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *CacheError) Unwrap() error {
	return e.Cause
}

func NewCacheError(message, operation, key string, cause error) *CacheError {
	return &CacheError{
		Message:   message,
		Operation: operation,
		Key:       key,
		Cause:     cause,
	}
}
