package roster

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ehharris/twilio-live-call-routing/internal/observability"
)

// Client is a read-only client for the roster platform's public API.
type Client struct {
	baseURL string
	apiID   string
	apiKey  string
	http    *http.Client
	metrics *observability.Metrics
}

func NewClient(baseURL, apiID, apiKey string, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL: baseURL,
		apiID:   apiID,
		apiKey:  apiKey,
		metrics: metrics,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ListTeams fetches every team in the organization.
func (c *Client) ListTeams(ctx context.Context) ([]Team, error) {
	var teams []Team
	if err := c.get(ctx, "/api-public/v1/team", "teams", &teams); err != nil {
		return nil, err
	}
	return teams, nil
}

// TierSchedules fetches the on-call schedule for one escalation step of a
// team. Steps are indexed 0, 1, 2.
func (c *Client) TierSchedules(ctx context.Context, teamSlug string, step int) (ScheduleResponse, error) {
	path := "/api-public/v2/team/" + url.PathEscape(teamSlug) + "/oncall/schedule?step=" + strconv.Itoa(step)
	var out ScheduleResponse
	if err := c.get(ctx, path, "schedule", &out); err != nil {
		return ScheduleResponse{}, err
	}
	return out, nil
}

// UserPhones fetches the registered phone contact methods for a user, in the
// platform's preference order.
func (c *Client) UserPhones(ctx context.Context, username string) ([]string, error) {
	path := "/api-public/v1/user/" + url.PathEscape(username) + "/contact-methods/phones"
	var out contactMethodsResponse
	if err := c.get(ctx, path, "contact_methods", &out); err != nil {
		return nil, err
	}
	phones := make([]string, 0, len(out.ContactMethods))
	for _, m := range out.ContactMethods {
		phones = append(phones, m.Value)
	}
	return phones, nil
}

func (c *Client) get(ctx context.Context, path, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-VO-Api-Id", c.apiID)
	req.Header.Set("X-VO-Api-Key", c.apiKey)

	res, err := c.http.Do(req)
	if err != nil {
		c.observe(endpoint, "error")
		return fmt.Errorf("roster %s request: %w", endpoint, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		c.observe(endpoint, "http_"+strconv.Itoa(res.StatusCode))
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("roster %s status %d: %s", endpoint, res.StatusCode, string(body))
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		c.observe(endpoint, "decode_error")
		return fmt.Errorf("decode roster %s response: %w", endpoint, err)
	}
	c.observe(endpoint, "ok")
	return nil
}

func (c *Client) observe(endpoint, outcome string) {
	if c.metrics != nil {
		c.metrics.RosterRequests.WithLabelValues(endpoint, outcome).Inc()
	}
}
