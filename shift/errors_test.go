package shift

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_UnwrapsToSentinelAndCause(t *testing.T) {
	cause := errors.New("disk full")
	err := internal(cause, "failed to %s", "save shift")

	assert.ErrorIs(t, err, ErrInternal)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "internal: failed to save shift: disk full", err.Error())
	assert.True(t, IsRetryable(err))
	assert.False(t, IsClientError(err))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"conflict", fmt.Errorf("shift s1: %w", ErrConcurrentModification), CodeFailedPrecondition},
		{"duplicate", fmt.Errorf("shift s1: %w", ErrDuplicatePending), CodeFailedPrecondition},
		{"missing", fmt.Errorf("shift s1: %w", ErrNotFound), CodeNotFound},
		{"other", errors.New("connection reset"), CodeInternal},
		{"coded", permissionDenied("nope"), CodePermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(classify(tt.err, "save shift")))
		})
	}
	assert.NoError(t, classify(nil, "save shift"))
}

func TestMessageOf(t *testing.T) {
	assert.Equal(t, "shift s1 not found", MessageOf(notFound("shift %s not found", "s1")))
	assert.True(t, IsNotFound(notFound("x")))
}
