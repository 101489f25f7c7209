package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"
)

// Code identifies a normalized failure category
type Code string

const (
	// CodeConnectionRefused is returned when the backend refuses the connection
	CodeConnectionRefused Code = "connection_refused"
	// CodeConnectionReset is returned when the backend drops an open connection
	CodeConnectionReset Code = "connection_reset"
	// CodeTimeout is returned when a backend call exceeds its deadline
	CodeTimeout Code = "timeout"
	// CodeBackendLoading is returned while the backend is still loading its dataset
	CodeBackendLoading Code = "backend_loading"
	// CodeTooManyClients is returned when the backend hits its client limit
	CodeTooManyClients Code = "too_many_clients"
	// CodeUnauthorized is returned on authentication or authorization failure
	CodeUnauthorized Code = "unauthorized"
	// CodeInvalidQuery is returned for malformed statements
	CodeInvalidQuery Code = "invalid_query"
	// CodeConstraintViolation is returned when a statement violates a backend constraint
	CodeConstraintViolation Code = "constraint_violation"
	// CodeGraphNotFound is returned when a statement targets a missing graph
	CodeGraphNotFound Code = "graph_not_found"
	// CodeResourceExhausted is returned when the backend is out of memory
	CodeResourceExhausted Code = "resource_exhausted"
	// CodePoolExhausted is returned when no pooled connection frees up in time
	CodePoolExhausted Code = "pool_exhausted"
	// CodeCacheFailure is returned for cache store failures (always soft)
	CodeCacheFailure Code = "cache_failure"
	// CodeInvalidTenant is returned when a tenant identifier fails validation
	CodeInvalidTenant Code = "invalid_tenant"
	// CodeInvalidEntity is returned when entity input fails validation
	CodeInvalidEntity Code = "invalid_entity"
	// CodeUnknown is the fallback for unclassified failures
	CodeUnknown Code = "unknown"
)

// GraphError is the normalized error every layer above the classifier works with.
// Raw backend errors are classified exactly once, at the lowest layer.
type GraphError struct {
	Code       Code
	Message    string
	HTTPStatus int
	Retryable  bool
	Timestamp  time.Time
	Err        error // Wrapped error
}

// Error implements the error interface
func (e *GraphError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *GraphError) Unwrap() error {
	return e.Err
}

// New creates a GraphError with the status and retryable flag implied by code
func New(code Code, message string, err error) *GraphError {
	return &GraphError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatusFor(code),
		Retryable:  retryableFor(code),
		Timestamp:  time.Now(),
		Err:        err,
	}
}

func httpStatusFor(code Code) int {
	switch code {
	case CodeConnectionRefused, CodeConnectionReset, CodeBackendLoading:
		return http.StatusBadGateway
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeTooManyClients, CodeResourceExhausted, CodePoolExhausted:
		return http.StatusServiceUnavailable
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeInvalidQuery, CodeInvalidTenant, CodeInvalidEntity:
		return http.StatusBadRequest
	case CodeConstraintViolation:
		return http.StatusConflict
	case CodeGraphNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func retryableFor(code Code) bool {
	switch code {
	case CodeConnectionRefused, CodeConnectionReset, CodeTimeout,
		CodeBackendLoading, CodeTooManyClients, CodeResourceExhausted,
		CodePoolExhausted:
		return true
	default:
		return false
	}
}

// messagePatterns maps backend error text fragments to codes. The backend
// protocol carries no structured error codes, so text matching is the
// fallback classification path; typed checks in Classify run first.
var messagePatterns = []struct {
	fragment string
	code     Code
}{
	{"connection refused", CodeConnectionRefused},
	{"connection reset", CodeConnectionReset},
	{"broken pipe", CodeConnectionReset},
	{"i/o timeout", CodeTimeout},
	{"loading the dataset", CodeBackendLoading},
	{"max number of clients", CodeTooManyClients},
	{"noauth", CodeUnauthorized},
	{"wrongpass", CodeUnauthorized},
	{"invalid password", CodeUnauthorized},
	{"errmax", CodeResourceExhausted},
	{"out of memory", CodeResourceExhausted},
	{"oom command not allowed", CodeResourceExhausted},
	{"unique constraint", CodeConstraintViolation},
	{"constraint violation", CodeConstraintViolation},
	{"invalid graph operation", CodeGraphNotFound},
	{"empty key", CodeGraphNotFound},
	{"syntax error", CodeInvalidQuery},
	{"invalid input", CodeInvalidQuery},
	{"errmsg", CodeInvalidQuery},
	{"unknown command", CodeInvalidQuery},
}

// Classify normalizes a raw backend error into a GraphError. A GraphError
// passes through unchanged so classification happens at most once.
func Classify(err error) *GraphError {
	if err == nil {
		return nil
	}

	var graphErr *GraphError
	if errors.As(err, &graphErr) {
		return graphErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(CodeTimeout, "operation deadline exceeded", err)
	}
	if errors.Is(err, context.Canceled) {
		return New(CodeTimeout, "operation cancelled", err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return New(CodeConnectionRefused, "backend connection refused", err)
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return New(CodeConnectionReset, "backend connection reset", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return New(CodeTimeout, "backend call timed out", err)
	}

	msg := strings.ToLower(err.Error())
	for _, p := range messagePatterns {
		if strings.Contains(msg, p.fragment) {
			return New(p.code, err.Error(), err)
		}
	}

	return New(CodeUnknown, err.Error(), err)
}

// IsRetryable reports whether the caller may safely retry the operation
func IsRetryable(err error) bool {
	var graphErr *GraphError
	if errors.As(err, &graphErr) {
		return graphErr.Retryable
	}
	return Classify(err).Retryable
}

// IsCode reports whether err carries the given normalized code
func IsCode(err error, code Code) bool {
	var graphErr *GraphError
	if errors.As(err, &graphErr) {
		return graphErr.Code == code
	}
	return false
}
