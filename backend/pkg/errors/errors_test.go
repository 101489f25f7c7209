package errors

import (
	"context"
	"fmt"
	"net/http"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_TypedErrorsBeforePatterns(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code Code
	}{
		{"deadline", context.DeadlineExceeded, CodeTimeout},
		{"cancelled", context.Canceled, CodeTimeout},
		{"wrapped deadline", fmt.Errorf("query failed: %w", context.DeadlineExceeded), CodeTimeout},
		{"econnrefused", syscall.ECONNREFUSED, CodeConnectionRefused},
		{"econnreset", syscall.ECONNRESET, CodeConnectionReset},
		{"epipe", syscall.EPIPE, CodeConnectionReset},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Classify(c.err)
			require.NotNil(t, got)
			assert.Equal(t, c.code, got.Code)
		})
	}
}

func TestClassify_MessagePatterns(t *testing.T) {
	cases := []struct {
		message   string
		code      Code
		status    int
		retryable bool
	}{
		{"dial tcp 127.0.0.1:6379: connection refused", CodeConnectionRefused, http.StatusBadGateway, true},
		{"read: connection reset by peer", CodeConnectionReset, http.StatusBadGateway, true},
		{"write: broken pipe", CodeConnectionReset, http.StatusBadGateway, true},
		{"read tcp: i/o timeout", CodeTimeout, http.StatusGatewayTimeout, true},
		{"LOADING Redis is loading the dataset in memory", CodeBackendLoading, http.StatusBadGateway, true},
		{"ERR max number of clients reached", CodeTooManyClients, http.StatusServiceUnavailable, true},
		{"NOAUTH Authentication required", CodeUnauthorized, http.StatusUnauthorized, false},
		{"WRONGPASS invalid username-password pair", CodeUnauthorized, http.StatusUnauthorized, false},
		{"Syntax error at offset 10 near 'RETRUN'", CodeInvalidQuery, http.StatusBadRequest, false},
		{"unique constraint violation on node", CodeConstraintViolation, http.StatusConflict, false},
		{"ERR Invalid graph operation on empty key", CodeGraphNotFound, http.StatusNotFound, false},
		{"OOM command not allowed when used memory > 'maxmemory'", CodeResourceExhausted, http.StatusServiceUnavailable, true},
		{"something nobody has seen before", CodeUnknown, http.StatusInternalServerError, false},
	}
	for _, c := range cases {
		t.Run(string(c.code), func(t *testing.T) {
			got := Classify(fmt.Errorf("%s", c.message))
			require.NotNil(t, got)
			assert.Equal(t, c.code, got.Code)
			assert.Equal(t, c.status, got.HTTPStatus)
			assert.Equal(t, c.retryable, got.Retryable)
		})
	}
}

func TestClassify_NilAndPassthrough(t *testing.T) {
	assert.Nil(t, Classify(nil))

	original := New(CodePoolExhausted, "no connection available", nil)
	assert.Same(t, original, Classify(original), "classification happens at most once")

	wrapped := fmt.Errorf("request failed: %w", original)
	got := Classify(wrapped)
	assert.Equal(t, CodePoolExhausted, got.Code)
}

func TestGraphError_ErrorAndUnwrap(t *testing.T) {
	cause := fmt.Errorf("socket closed")
	err := New(CodeConnectionReset, "backend connection reset", cause)
	assert.Contains(t, err.Error(), "connection_reset")
	assert.Contains(t, err.Error(), "socket closed")
	assert.Equal(t, cause, err.Unwrap())

	bare := New(CodeInvalidTenant, "bad tenant", nil)
	assert.Contains(t, bare.Error(), "invalid_tenant")
	assert.Nil(t, bare.Unwrap())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(CodeTimeout, "slow", nil)))
	assert.True(t, IsRetryable(fmt.Errorf("connection refused")))
	assert.False(t, IsRetryable(New(CodeInvalidQuery, "bad", nil)))
	assert.False(t, IsRetryable(fmt.Errorf("Syntax error")))
}

func TestIsCode(t *testing.T) {
	err := New(CodeGraphNotFound, "missing", nil)
	assert.True(t, IsCode(err, CodeGraphNotFound))
	assert.False(t, IsCode(err, CodeTimeout))
	assert.False(t, IsCode(fmt.Errorf("plain"), CodeUnknown))
	assert.True(t, IsCode(fmt.Errorf("wrapped: %w", err), CodeGraphNotFound))
}
