package errors

import (
	"fmt"
	"net/http"
	"time"
)

// ErrorCode identifies an application error category
type ErrorCode int

const (
	ErrorCode_UNKNOWN ErrorCode = iota
	ErrorCode_INTERNAL
	ErrorCode_INVALID_ARGUMENT
	ErrorCode_NOT_FOUND
	ErrorCode_ALREADY_EXISTS
	ErrorCode_PERMISSION_DENIED
	ErrorCode_UNAUTHENTICATED
	ErrorCode_AUTH_INVALID_TOKEN
	ErrorCode_AUTH_TOKEN_EXPIRED
	ErrorCode_MEETING_NOT_FOUND
	ErrorCode_INVALID_SPEAKER
	ErrorCode_EMPTY_UTTERANCE
	ErrorCode_SUMMARY_NOT_READY
	ErrorCode_JOB_NOT_FOUND
	ErrorCode_RETRIEVAL_UNAVAILABLE
	ErrorCode_EMBEDDING_BACKEND
)

var errorCodeNames = map[ErrorCode]string{
	ErrorCode_UNKNOWN:               "UNKNOWN",
	ErrorCode_INTERNAL:              "INTERNAL",
	ErrorCode_INVALID_ARGUMENT:      "INVALID_ARGUMENT",
	ErrorCode_NOT_FOUND:             "NOT_FOUND",
	ErrorCode_ALREADY_EXISTS:        "ALREADY_EXISTS",
	ErrorCode_PERMISSION_DENIED:     "PERMISSION_DENIED",
	ErrorCode_UNAUTHENTICATED:       "UNAUTHENTICATED",
	ErrorCode_AUTH_INVALID_TOKEN:    "AUTH_INVALID_TOKEN",
	ErrorCode_AUTH_TOKEN_EXPIRED:    "AUTH_TOKEN_EXPIRED",
	ErrorCode_MEETING_NOT_FOUND:     "MEETING_NOT_FOUND",
	ErrorCode_INVALID_SPEAKER:       "INVALID_SPEAKER",
	ErrorCode_EMPTY_UTTERANCE:       "EMPTY_UTTERANCE",
	ErrorCode_SUMMARY_NOT_READY:     "SUMMARY_NOT_READY",
	ErrorCode_JOB_NOT_FOUND:         "JOB_NOT_FOUND",
	ErrorCode_RETRIEVAL_UNAVAILABLE: "RETRIEVAL_UNAVAILABLE",
	ErrorCode_EMBEDDING_BACKEND:     "EMBEDDING_BACKEND",
}

// String returns the stable wire name for the code
func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

// AppError is the application error type carried up to the HTTP layer
type AppError struct {
	Raw       error
	HTTPCode  int
	Code      ErrorCode
	Message   string
	Details   map[string]string
	Timestamp time.Time
}

// Error implements error interface
func (e AppError) Error() string {
	if e.Raw != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code.String(), e.Message, e.Raw)
	}
	return fmt.Sprintf("[%s] %s", e.Code.String(), e.Message)
}

// Unwrap exposes the wrapped cause
func (e AppError) Unwrap() error {
	return e.Raw
}

// WithDetail adds a detail to the error
func (e AppError) WithDetail(key, value string) AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// General Errors

func ErrInternal(err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusInternalServerError,
		Code:     ErrorCode_INTERNAL,
		Message:  "Internal server error",
	}
}

func ErrInvalidArgument(message string) AppError {
	return AppError{
		HTTPCode: http.StatusBadRequest,
		Code:     ErrorCode_INVALID_ARGUMENT,
		Message:  message,
	}
}

func ErrNotFound(resource string) AppError {
	return AppError{
		HTTPCode: http.StatusNotFound,
		Code:     ErrorCode_NOT_FOUND,
		Message:  fmt.Sprintf("%s not found", resource),
	}
}

func ErrUnauthenticated() AppError {
	return AppError{
		HTTPCode: http.StatusUnauthorized,
		Code:     ErrorCode_UNAUTHENTICATED,
		Message:  "Authentication required",
	}
}

// Authentication Errors

func ErrInvalidToken() AppError {
	return AppError{
		HTTPCode: http.StatusUnauthorized,
		Code:     ErrorCode_AUTH_INVALID_TOKEN,
		Message:  "Invalid authentication token",
	}
}

func ErrTokenExpired() AppError {
	return AppError{
		HTTPCode: http.StatusUnauthorized,
		Code:     ErrorCode_AUTH_TOKEN_EXPIRED,
		Message:  "Authentication token has expired",
	}
}

// Meeting Memory Errors

func ErrMeetingNotFound() AppError {
	return AppError{
		HTTPCode: http.StatusNotFound,
		Code:     ErrorCode_MEETING_NOT_FOUND,
		Message:  "Meeting not found",
	}
}

func ErrInvalidSpeaker(speaker string) AppError {
	return AppError{
		HTTPCode: http.StatusBadRequest,
		Code:     ErrorCode_INVALID_SPEAKER,
		Message:  fmt.Sprintf("Invalid speaker %q: must be self or other", speaker),
	}
}

func ErrEmptyUtterance() AppError {
	return AppError{
		HTTPCode: http.StatusBadRequest,
		Code:     ErrorCode_EMPTY_UTTERANCE,
		Message:  "Utterance text must not be empty",
	}
}

func ErrSummaryNotReady() AppError {
	return AppError{
		HTTPCode: http.StatusNotFound,
		Code:     ErrorCode_SUMMARY_NOT_READY,
		Message:  "No summary has been computed for this meeting yet",
	}
}

func ErrRetrievalUnavailable(err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusServiceUnavailable,
		Code:     ErrorCode_RETRIEVAL_UNAVAILABLE,
		Message:  "Semantic retrieval is temporarily unavailable",
	}
}

func ErrEmbeddingBackend(err error) AppError {
	return AppError{
		Raw:      err,
		HTTPCode: http.StatusBadGateway,
		Code:     ErrorCode_EMBEDDING_BACKEND,
		Message:  "Embedding backend request failed",
	}
}
