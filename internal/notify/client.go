// Package notify tells the platform API that a scan finished so it can
// fan out user notifications. Delivery is best-effort.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/vulx-io/vulx/internal/logger"
)

type Client struct {
	apiURL string
	client *http.Client
	log    *logger.Logger
}

func NewClient(apiURL string) *Client {
	return &Client{
		apiURL: apiURL,
		client: &http.Client{Timeout: 5 * time.Second},
		log:    logger.NewLogger("NOTIFY"),
	}
}

// ScanComplete posts the completion event. Errors are returned so the
// caller can log them; the worker never fails a scan over this.
func (c *Client) ScanComplete(ctx context.Context, scanID string) error {
	payload, err := json.Marshal(map[string]string{"scanId": scanID})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	url := c.apiURL + "/api/internal/notify-scan-complete"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notification rejected with status %d", resp.StatusCode)
	}
	c.log.Info("Notification delivered for scan", scanID)
	return nil
}
