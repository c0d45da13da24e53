package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client sends voicemail notification emails through a SendGrid-compatible
// mail API. Delivery is best effort; callers log and swallow failures.
type Client struct {
	baseURL string
	apiKey  string
	to      string
	from    string
	http    *http.Client
}

func NewClient(baseURL, apiKey, to, from string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		to:      to,
		from:    from,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// VoicemailNotice describes one recorded voicemail worth notifying about.
type VoicemailNotice struct {
	Caller        string
	Transcription string
	RecordingURL  string
}

// SendVoicemailNotice emails the recording link, plus the transcription when
// one was produced.
func (c *Client) SendVoicemailNotice(ctx context.Context, notice VoicemailNotice) error {
	subject := fmt.Sprintf("New Splunk On-Call Voicemail from: %s", notice.Caller)
	text := fmt.Sprintf("New Splunk On-Call Voicemail from: %s\n Recording URL is: %s", notice.Caller, notice.RecordingURL)
	if notice.Transcription != "" {
		text = fmt.Sprintf("New Splunk On-Call Voicemail from: %s\n Transcription is: %s\n Recording URL is: %s",
			notice.Caller, notice.Transcription, notice.RecordingURL)
	}

	payload, err := json.Marshal(map[string]any{
		"personalizations": []map[string]any{
			{"to": []map[string]string{{"email": c.to}}},
		},
		"from":    map[string]string{"email": c.from},
		"subject": subject,
		"content": []map[string]string{
			{"type": "text/plain", "value": text},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal mail request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v3/mail/send", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("mail endpoint status %d: %s", res.StatusCode, string(body))
	}
	return nil
}
