package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   Kind
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, want: RateLimited},
		{name: "server error", status: http.StatusBadGateway, want: Transient},
		{name: "request timeout", status: http.StatusRequestTimeout, want: Transient},
		{name: "bad request", status: http.StatusBadRequest, want: Permanent},
		{name: "not found", status: http.StatusNotFound, want: Permanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromStatus("op", tt.status, 0, nil)
			assert.Equal(t, tt.want, err.Kind)
			assert.Equal(t, tt.want, KindOf(fmt.Errorf("wrapped: %w", err)))
		})
	}
}

func TestFromStatus_NotFoundSentinel(t *testing.T) {
	err := FromStatus("get manga", http.StatusNotFound, 0, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Transient, KindOf(context.DeadlineExceeded))
	assert.Equal(t, Permanent, KindOf(errors.New("boom")))
	assert.Equal(t, Transient, KindOf(Network("search", errors.New("connection reset"))))
	assert.Equal(t, Permanent, KindOf(Malformed("search", errors.New("unexpected EOF"))))
}

func TestRetryAfter(t *testing.T) {
	err := fmt.Errorf("update: %w", FromStatus("status", http.StatusTooManyRequests, 3*time.Second, nil))
	assert.Equal(t, 3*time.Second, RetryAfter(err))
	assert.Zero(t, RetryAfter(errors.New("plain")))
}

func TestIsAuth(t *testing.T) {
	assert.True(t, IsAuth(fmt.Errorf("login: %w", ErrAuthentication)))
	assert.True(t, IsAuth(FromStatus("follow", http.StatusUnauthorized, 0, nil)))
	assert.False(t, IsAuth(FromStatus("follow", http.StatusBadRequest, 0, nil)))
}

func TestConfigf(t *testing.T) {
	err := Configf("status %q is not mapped", "paused")
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), `"paused"`)
}
