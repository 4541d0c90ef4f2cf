package utils_test

import (
	"context"
	"testing"

	"github.com/rallywatch/rallywatch/pkg/utils"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestContextGuard(t *testing.T) {
	t.Parallel()

	t.Run("active context", func(t *testing.T) {
		t.Parallel()

		assert.False(t, utils.ContextGuard(t.Context()))
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		assert.True(t, utils.ContextGuard(ctx))
	})
}

func TestContextGuardWithLog(t *testing.T) {
	t.Parallel()

	logger := zaptest.NewLogger(t)

	t.Run("active context", func(t *testing.T) {
		t.Parallel()

		assert.False(t, utils.ContextGuardWithLog(t.Context(), logger, "stopping"))
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		assert.True(t, utils.ContextGuardWithLog(ctx, logger, "stopping"))
	})

	t.Run("nil logger", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		assert.True(t, utils.ContextGuardWithLog(ctx, nil, "stopping"))
	})
}
