package errors

import (
	stderr "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorSentinel(t *testing.T) {
	sentinel := New("tag moved")

	cause := stderr.New("registry said sha256:beef")
	wrapped := sentinel.Wrap(cause)

	assert.True(t, Is(wrapped, sentinel))
	assert.True(t, Is(wrapped, cause))
	assert.EqualError(t, wrapped, "tag moved")

	// wrapping never mutates the sentinel
	require.Nil(t, sentinel.Unwrap())
}

func TestErrorThroughFmt(t *testing.T) {
	sentinel := New("not found")
	err := fmt.Errorf("resolving tag %q: %w", "latest", sentinel)
	assert.True(t, Is(err, sentinel))
}

func TestErrorAs(t *testing.T) {
	sentinel := New("digest mismatch")
	err := fmt.Errorf("fetch: %w", sentinel.WrapMessage("got sha256:0000"))

	var e *Error
	require.True(t, As(err, &e))
	assert.Equal(t, "digest mismatch", e.Error())
}
