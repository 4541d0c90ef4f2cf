package notifier

import (
	"context"

	"go.uber.org/zap"
)

// Log writes notifications to the application log instead of delivering
// them. Used when no bot token is configured, typically in development.
type Log struct {
	logger *zap.Logger
}

// NewLog creates a log-only notifier.
func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger.Named("notify_log")}
}

// Notify logs the message that would have been sent.
func (l *Log) Notify(_ context.Context, userID int64, text string) error {
	l.logger.Info("Notification",
		zap.Int64("userID", userID),
		zap.String("text", text))

	return nil
}
