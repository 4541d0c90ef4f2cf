package rttf

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rallywatch/rallywatch/internal/setup/config"
	"github.com/rallywatch/rallywatch/pkg/utils"
	"go.uber.org/zap"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/58.0.3029.110 Safari/537.3"

// Client fetches listing and detail documents from the rttf mobile site.
// Transient failures are retried with backoff inside the client; a 404 is
// surfaced as ErrNotFound without retrying.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cities     []string
	retryOpts  utils.RetryOptions
	logger     *zap.Logger
}

// NewClient creates a client for the configured source.
func NewClient(cfg *config.Source, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.RequestTimeout) * time.Millisecond,
		},
		baseURL:   cfg.BaseURL,
		cities:    cfg.Cities,
		retryOpts: utils.GetFetchRetryOptions(),
		logger:    logger.Named("rttf_client"),
	}
}

// FetchListing returns the tournament listing document for a single date.
func (c *Client) FetchListing(ctx context.Context, date time.Time) (string, error) {
	day := date.Format("2006-01-02")

	query := url.Values{}
	query.Set("date_from", day)
	query.Set("date_to", day)
	query.Set("title", "")
	query.Set("search", "")

	for _, city := range c.cities {
		query.Add("cities[]", city)
	}

	doc, err := c.get(ctx, c.baseURL+"/tournaments/?"+query.Encode())
	if err != nil {
		return "", fmt.Errorf("failed to fetch listing: %w (date=%s)", err, day)
	}

	c.logger.Debug("Downloaded tournament listing", zap.String("date", day))

	return doc, nil
}

// FetchDetail returns the detail document for a single event. ErrNotFound is
// returned when the source no longer knows the event.
func (c *Client) FetchDetail(ctx context.Context, eventID int64) (string, error) {
	doc, err := c.get(ctx, fmt.Sprintf("%s/tournaments/%d", c.baseURL, eventID))
	if err != nil {
		return "", fmt.Errorf("failed to fetch detail: %w (eventID=%d)", err, eventID)
	}

	c.logger.Debug("Downloaded tournament detail", zap.Int64("eventID", eventID))

	return doc, nil
}

// get performs one GET with bounded retry. Only transient failures are
// retried; a 404 stops the loop immediately.
func (c *Client) get(ctx context.Context, requestURL string) (string, error) {
	return utils.WithRetry(ctx, func() (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return "", backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
		}

		req.Header.Set("User-Agent", userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return "", backoff.Permanent(ErrNotFound)
		}

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("failed to read response body: %w", err)
		}

		return string(body), nil
	}, c.retryOpts)
}
