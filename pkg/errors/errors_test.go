package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_WrapAndInspect(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := EmailDeliveryFailed(cause)

	assert.True(t, IsCode(err, ErrCodeEmailDeliveryFailed))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, MsgEmailDeliveryFailed, GetMessage(err, "fallback"))
	assert.Contains(t, err.Error(), "connection refused")

	wrapped := fmt.Errorf("gate: %w", err)
	assert.Equal(t, ErrCodeEmailDeliveryFailed, GetCode(wrapped))
}

func TestError_PlainErrorDefaults(t *testing.T) {
	err := errors.New("boom")

	assert.False(t, IsCode(err, ErrCodeNotFound))
	assert.Equal(t, ErrCodeInternal, GetCode(err))
	assert.Equal(t, "fallback", GetMessage(err, "fallback"))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "x"))
}

func TestDeviceLimitReached_CarriesLimit(t *testing.T) {
	err := DeviceLimitReached(3)
	require.NotNil(t, err.Details)
	assert.Equal(t, 3, err.Details["device_limit"])
	assert.Equal(t, MsgDeviceLimitReached, err.Message)
}

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeInvalidInput, http.StatusBadRequest},
		{ErrCodeMissingRequired, http.StatusBadRequest},
		{ErrCodeInvalidOrExpiredCode, http.StatusUnauthorized},
		{ErrCodeInvalidCredentials, http.StatusUnauthorized},
		{ErrCodeDeviceLimitReached, http.StatusForbidden},
		{ErrCodeInvalidNonce, http.StatusForbidden},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeRateLimitExceeded, http.StatusTooManyRequests},
		{ErrCodeEmailDeliveryFailed, http.StatusBadGateway},
		{ErrCodeInternal, http.StatusInternalServerError},
		{ErrorCode("SOMETHING_ELSE"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, MapErrorCodeToHTTPStatus(tt.code))
		})
	}
}
