package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithTraceIDContext(t *testing.T) {
	t.Run("keeps provided id", func(t *testing.T) {
		ctx := WithTraceID(context.Background(), "abc")
		assert.Equal(t, "abc", GetTraceID(ctx))
	})

	t.Run("generates uuid when empty", func(t *testing.T) {
		ctx := WithTraceID(context.Background(), "")
		assert.Len(t, GetTraceID(ctx), 36)
	})

	t.Run("missing id", func(t *testing.T) {
		assert.Empty(t, GetTraceID(context.Background()))
	})
}

func TestWithUserID(t *testing.T) {
	ctx := WithUserID(WithTraceID(context.Background(), "t-1"), 1001)
	assert.Equal(t, int64(1001), ctx.Value(UserIDKey))
	assert.Equal(t, "t-1", GetTraceID(ctx))
}
