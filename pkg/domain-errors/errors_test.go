package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	base := errors.New("redis down")

	t.Run("direct", func(t *testing.T) {
		err := Wrap(base, CodeUnavailable, "lockout store unavailable")
		assert.True(t, HasCode(err, CodeUnavailable))
		assert.ErrorIs(t, err, base)
	})

	t.Run("nested domain errors are searched", func(t *testing.T) {
		inner := New(CodeUnauthorized, "invalid token")
		outer := Wrap(inner, CodeInternal, "verify failed")
		assert.True(t, HasCode(outer, CodeUnauthorized))
		assert.True(t, HasCode(outer, CodeInternal))
		assert.False(t, HasCode(outer, CodeForbidden))
	})

	t.Run("fmt wrapped", func(t *testing.T) {
		err := fmt.Errorf("handler: %w", New(CodeLocked, "locked"))
		assert.True(t, Is(err, CodeLocked))
		assert.Equal(t, CodeLocked, CodeOf(err))
	})

	t.Run("plain error has no code", func(t *testing.T) {
		assert.False(t, HasCode(base, CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(base))
	})

	t.Run("wrap nil returns nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "x"))
	})
}

func TestToHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusLocked, ToHTTPStatus(CodeLocked))
	assert.Equal(t, http.StatusServiceUnavailable, ToHTTPStatus(CodeUnavailable))
	assert.Equal(t, http.StatusUnauthorized, ToHTTPStatus(CodeUnauthorized))
	assert.Equal(t, http.StatusInternalServerError, ToHTTPStatus(Code("unknown")))
}
