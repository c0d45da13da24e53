package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client posts alert transitions to the incident platform's generic alert
// endpoint. Posting is neither idempotent nor retried: a duplicate post
// would open a second incident with no correlation key to deduplicate on.
type Client struct {
	baseURL    string
	serviceKey string
	http       *http.Client
}

func NewClient(baseURL, serviceKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		serviceKey: serviceKey,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Post sends one alert, scoped to the destination team's routing key.
func (c *Client) Post(ctx context.Context, alert Alert, teamSlug string) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	endpoint := c.baseURL + "/integrations/generic/20131114/alert/" +
		url.PathEscape(c.serviceKey) + "/" + url.PathEscape(teamSlug)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("alert endpoint status %d: %s", res.StatusCode, string(body))
	}
	return nil
}
