package notifier

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rallywatch/rallywatch/internal/setup/config"
	"go.uber.org/zap"
)

// Telegram delivers notifications through the Telegram Bot API. The user id
// carried on subscriptions doubles as the Telegram chat id.
type Telegram struct {
	httpClient *http.Client
	endpoint   string
	logger     *zap.Logger
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// NewTelegram creates a Telegram notifier with the provided configuration.
func NewTelegram(cfg *config.Telegram, logger *zap.Logger) *Telegram {
	return &Telegram{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.RequestTimeout) * time.Millisecond,
		},
		endpoint: fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", url.PathEscape(cfg.BotToken)),
		logger:   logger.Named("telegram"),
	}
}

// Notify sends one message to one chat.
func (t *Telegram) Notify(ctx context.Context, userID int64, text string) error {
	body, err := sonic.Marshal(sendMessageRequest{
		ChatID: strconv.FormatInt(userID, 10),
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w (userID=%d)", err, userID)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("telegram responded with status %d (userID=%d)", resp.StatusCode, userID)
	}

	t.logger.Debug("Delivered notification", zap.Int64("userID", userID))

	return nil
}
