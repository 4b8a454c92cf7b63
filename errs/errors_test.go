package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorString(t *testing.T) {
	assert.Equal(t, "syntax_error: expected FROM", New(KindSyntax, "expected FROM").Error())

	wrapped := Wrap(KindEngine, "commit failed", errors.New("disk full"))
	assert.Equal(t, "engine_error: commit failed: disk full", wrapped.Error())
}

func TestPredicatesTraverseWrapping(t *testing.T) {
	base := Newf(KindUnsafeOperation, "DELETE on %s requires id", "saved_items")
	err := fmt.Errorf("execute: %w", base)

	assert.True(t, IsUnsafeOperation(err))
	assert.False(t, IsSyntax(err))
	assert.Equal(t, KindUnsafeOperation, KindOf(err))
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestUnwrapKeepsCause(t *testing.T) {
	err := Wrap(KindTimeout, "operation timed out", context.DeadlineExceeded)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.True(t, IsTimeout(err))
}

func TestKindString(t *testing.T) {
	tests := map[Kind]string{
		KindSyntax:          "syntax_error",
		KindUnsafeOperation: "unsafe_operation",
		KindEngine:          "engine_error",
		KindNotFound:        "not_found",
		KindInvalidInput:    "invalid_input",
		KindDuplicateKey:    "duplicate_key",
		KindTimeout:         "timeout",
		KindClosed:          "closed",
		KindUnknown:         "unknown",
	}
	for kind, want := range tests {
		assert.Equal(t, want, kind.String())
	}
}
