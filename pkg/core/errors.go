// Package core provides shared error, retry and validation utilities for osmplot.
package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
)

// ErrorCode defines standard error codes used across the pipeline
type ErrorCode string

// Standard error codes
const (
	// Input validation errors
	ErrInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrInvalidLatitude  ErrorCode = "INVALID_LATITUDE"
	ErrInvalidLongitude ErrorCode = "INVALID_LONGITUDE"
	ErrInvalidArea      ErrorCode = "INVALID_AREA"
	ErrMissingParameter ErrorCode = "MISSING_PARAMETER"

	// Transport errors
	ErrTransport          ErrorCode = "TRANSPORT_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrServiceTimeout     ErrorCode = "SERVICE_TIMEOUT"
	ErrRateLimit          ErrorCode = "RATE_LIMIT"
	ErrNetworkError       ErrorCode = "NETWORK_ERROR"
	ErrParseError         ErrorCode = "PARSE_ERROR"

	// Styling errors
	ErrInvalidColor ErrorCode = "INVALID_COLOR"
	ErrProjection   ErrorCode = "PROJECTION_ERROR"

	ErrInternalError ErrorCode = "INTERNAL_ERROR"
)

// Sentinels for errors.Is checks. Matching is by code only.
var (
	ErrTransportError    = &Error{Code: string(ErrTransport)}
	ErrInvalidColorError = &Error{Code: string(ErrInvalidColor)}
	ErrProjectionError   = &Error{Code: string(ErrProjection)}
)

// transportCodes are the codes that belong to the transport failure family.
var transportCodes = map[string]bool{
	string(ErrTransport):          true,
	string(ErrServiceUnavailable): true,
	string(ErrServiceTimeout):     true,
	string(ErrRateLimit):          true,
	string(ErrNetworkError):       true,
	string(ErrParseError):         true,
}

// Error represents a detailed error structure for pipeline and tool responses
type Error struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Query       string   `json:"query,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	Guidance    string   `json:"guidance,omitempty"`
	cause       error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Guidance != "" {
		msg = fmt.Sprintf("%s. %s", msg, e.Guidance)
	}
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Unwrap returns the underlying cause, if any
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same code. The transport
// sentinel also matches every code in the transport family.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t == ErrTransportError {
		return transportCodes[e.Code]
	}
	return t.Code == e.Code
}

// NewError creates a new Error with the given code and message
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    string(code),
		Message: message,
	}
}

// WithQuery adds query information to the error
func (e *Error) WithQuery(query string) *Error {
	e.Query = query
	return e
}

// WithGuidance adds guidance information to the error
func (e *Error) WithGuidance(guidance string) *Error {
	e.Guidance = guidance
	return e
}

// WithSuggestions adds suggestions to the error
func (e *Error) WithSuggestions(suggestions ...string) *Error {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithCause records the underlying error
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// HasCode reports whether err is, or wraps, an *Error with the given code
func HasCode(err error, code ErrorCode) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == string(code)
}

// ToMCPResult converts the error to an MCP tool result
func (e *Error) ToMCPResult() *mcp.CallToolResult {
	errorJSON, err := json.Marshal(e)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ERROR: %s - %s", e.Code, e.Message))
	}

	return mcp.NewToolResultError(string(errorJSON))
}

// ServiceError creates an error for external service failures
func ServiceError(service string, statusCode int, message string) *Error {
	var code ErrorCode
	var guidance string

	switch statusCode {
	case http.StatusTooManyRequests:
		code = ErrRateLimit
		guidance = "The service is rate-limited. Please try again in a few moments."
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		code = ErrServiceTimeout
		guidance = "The request timed out. Try reducing the search area or simplifying the query."
	case http.StatusBadRequest:
		code = ErrTransport
		guidance = "The service rejected the query. Check the key, tag and area."
	case http.StatusServiceUnavailable:
		code = ErrServiceUnavailable
		guidance = "The service is temporarily unavailable. Please try again later."
	default:
		code = ErrTransport
		guidance = "Please try again later or modify your request parameters."
	}

	return NewError(code, fmt.Sprintf("%s service error: %s", service, message)).
		WithGuidance(guidance)
}

// InvalidColor creates an error for an unresolvable colour value
func InvalidColor(value any, reason string) *Error {
	return NewError(ErrInvalidColor, fmt.Sprintf("cannot resolve colour %v: %s", value, reason)).
		WithGuidance("Use a CSS colour name, a #rrggbb hex string or an RGB triple")
}

// ProjectionFailure creates an error for a coordinate outside the projection domain
func ProjectionFailure(id int64, lat, lon float64) *Error {
	return NewError(ErrProjection, fmt.Sprintf("element %d at (%f, %f) is outside the projection domain", id, lat, lon)).
		WithGuidance("Latitude must be within ±85.05112878 and longitude within ±180")
}

// NewValidationError creates an error for validation failures
func NewValidationError(code ErrorCode, message string) *Error {
	return NewError(code, message).
		WithGuidance("Please correct the parameters and try again.")
}

// CodeOf returns the code of the *Error in err's chain, or fallback
func CodeOf(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return fallback
}

// HTTPStatus maps an error code to the status the HTTP API responds with
func HTTPStatus(code string) int {
	switch ErrorCode(code) {
	case ErrInvalidInput, ErrInvalidLatitude, ErrInvalidLongitude, ErrInvalidArea, ErrMissingParameter:
		return http.StatusBadRequest
	case ErrInvalidColor, ErrProjection:
		return http.StatusUnprocessableEntity
	case ErrRateLimit:
		return http.StatusTooManyRequests
	case ErrServiceTimeout:
		return http.StatusGatewayTimeout
	case ErrServiceUnavailable:
		return http.StatusServiceUnavailable
	case ErrTransport, ErrNetworkError, ErrParseError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
