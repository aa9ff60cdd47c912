package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := NotFound("reel abc not found")
	assert.True(t, Is(err, ErrNotFound))
	assert.False(t, Is(err, ErrInvalidArgument))

	wrapped := fmt.Errorf("load reel: %w", err)
	assert.True(t, Is(wrapped, ErrNotFound))
}

func TestError_WithCause(t *testing.T) {
	cause := New("deadlock")
	err := ErrConflict.WithCause(cause)

	assert.True(t, Is(err, ErrConflict))
	assert.True(t, Is(err, cause))
	assert.Equal(t, "conflict: deadlock", err.Error())
	assert.Nil(t, ErrConflict.Unwrap(), "sentinel must not be mutated")
}

func TestError_WithDetails(t *testing.T) {
	err := PartialFailure("cascade incomplete").WithDetails([]string{"u1", "u2"})
	assert.Equal(t, []string{"u1", "u2"}, err.Details)
	assert.Equal(t, CodePartialFailure, err.Code)
}

func TestHTTPStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NotFound("x"), http.StatusNotFound},
		{InvalidArgumentf("bad page %d", -1), http.StatusBadRequest},
		{Conflict("x"), http.StatusConflict},
		{UpstreamUnavailable("x"), http.StatusInternalServerError},
		{PartialFailure("x"), http.StatusInternalServerError},
		{New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatusOf(tt.err), tt.err.Error())
	}
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeInvalidArgument, CodeOf(fmt.Errorf("wrap: %w", ErrInvalidArgument)))
	assert.Equal(t, CodeInternal, CodeOf(New("other")))
}
