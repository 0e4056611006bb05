// Package core provides the domain types, interfaces and errors shared by the
// weather data-access layer and its shells.
package core

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a failure surfaced by the data-access layer.
type ErrorKind string

const (
	// ErrorKindTimeout indicates the last fetch attempt timed out.
	ErrorKindTimeout ErrorKind = "timeout"
	// ErrorKindNetwork indicates a transport or connection failure.
	ErrorKindNetwork ErrorKind = "network_error"
	// ErrorKindCityLookup indicates the lookup endpoint rejected the name or found no match.
	ErrorKindCityLookup ErrorKind = "city_lookup_error"
	// ErrorKindUpstream indicates a non-"200" application code or an unexpected HTTP status.
	ErrorKindUpstream ErrorKind = "upstream_error"
	// ErrorKindCacheIO indicates a cache read/write failure. Never returned to callers of
	// the provider; the cache layer degrades it to a miss or a dropped write.
	ErrorKindCacheIO ErrorKind = "cache_io_error"
	// ErrorKindInvalidInput indicates the caller supplied an unusable argument.
	ErrorKindInvalidInput ErrorKind = "invalid_input"
	// ErrorKindNotFound indicates a local record, such as the last city, is absent.
	ErrorKindNotFound ErrorKind = "not_found"
)

// WeatherError is the error type returned by every data-access operation.
type WeatherError struct {
	Kind    ErrorKind `json:"type"`
	Message string    `json:"message"`
	// Code is the upstream application code ("404", "402", ...) when one was returned.
	Code string `json:"code,omitempty"`
	// Status is the HTTP status for the shell; derived from Kind when zero.
	Status int `json:"-"`
	// Err is the underlying cause, kept for logs only.
	Err error `json:"-"`
}

// Error implements the error interface with a short, human-readable message.
func (e *WeatherError) Error() string {
	switch {
	case e.Code != "":
		return fmt.Sprintf("%s: %s (code %s)", e.Kind, e.Message, e.Code)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	default:
		return string(e.Kind)
	}
}

// Unwrap implements the error unwrapping interface.
func (e *WeatherError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the status the HTTP shell should answer with.
func (e *WeatherError) HTTPStatusCode() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Kind {
	case ErrorKindTimeout:
		return http.StatusGatewayTimeout
	case ErrorKindNetwork, ErrorKindUpstream:
		return http.StatusBadGateway
	case ErrorKindCityLookup, ErrorKindNotFound:
		return http.StatusNotFound
	case ErrorKindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts the error to a JSON-compatible map.
func (e *WeatherError) ToJSON() map[string]any {
	body := map[string]any{
		"type":    e.Kind,
		"message": e.Message,
	}
	if e.Code != "" {
		body["code"] = e.Code
	}
	return map[string]any{"error": body}
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(message string, err error) *WeatherError {
	if message == "" {
		message = "request timed out, check the network connection"
	}
	return &WeatherError{Kind: ErrorKindTimeout, Message: message, Err: err}
}

// NewNetworkError creates a transport failure error carrying the failure detail.
func NewNetworkError(detail string, err error) *WeatherError {
	return &WeatherError{Kind: ErrorKindNetwork, Message: detail, Err: err}
}

// NewCityLookupError creates a city lookup rejection.
func NewCityLookupError(code, message string) *WeatherError {
	if message == "" {
		message = "unknown error"
	}
	return &WeatherError{Kind: ErrorKindCityLookup, Message: message, Code: code}
}

// NewUpstreamError creates an application-level rejection from the weather endpoints.
func NewUpstreamError(code, message string) *WeatherError {
	if message == "" {
		message = "upstream rejected the request"
	}
	return &WeatherError{Kind: ErrorKindUpstream, Message: message, Code: code}
}

// NewHTTPStatusError creates the terminal error for a non-200 HTTP status.
func NewHTTPStatusError(status int) *WeatherError {
	return &WeatherError{
		Kind:    ErrorKindUpstream,
		Message: fmt.Sprintf("unexpected HTTP status %d", status),
		Code:    fmt.Sprintf("%d", status),
	}
}

// NewCacheIOError creates a cache failure. Only used for logging.
func NewCacheIOError(message string, err error) *WeatherError {
	return &WeatherError{Kind: ErrorKindCacheIO, Message: message, Err: err}
}

// NewInvalidInputError creates an invalid argument error.
func NewInvalidInputError(message string) *WeatherError {
	return &WeatherError{Kind: ErrorKindInvalidInput, Message: message}
}

// NewNotFoundError creates a not-found error.
func NewNotFoundError(message string) *WeatherError {
	return &WeatherError{Kind: ErrorKindNotFound, Message: message}
}

// IsKind reports whether err is a WeatherError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var werr *WeatherError
	if errors.As(err, &werr) {
		return werr.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or "" when err is not a WeatherError.
func KindOf(err error) ErrorKind {
	var werr *WeatherError
	if errors.As(err, &werr) {
		return werr.Kind
	}
	return ""
}
