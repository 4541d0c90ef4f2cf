package utils

import (
	"context"

	"go.uber.org/zap"
)

// ContextGuard checks if the context is cancelled and returns true if so.
// This is useful at the beginning of loops or before starting long-running
// operations.
func ContextGuard(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// ContextGuardWithLog checks if the context is cancelled and logs a message
// if so. Returns true if context is cancelled, false otherwise.
func ContextGuardWithLog(ctx context.Context, logger *zap.Logger, cancelMessage string) bool {
	if !ContextGuard(ctx) {
		return false
	}

	if logger != nil && cancelMessage != "" {
		logger.Info(cancelMessage)
	}

	return true
}
