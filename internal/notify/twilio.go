// Package notify delivers one-time codes to the admin phone.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout = 15 * time.Second
	defaultBaseURL = "https://api.twilio.com/2010-04-01"
)

// TwilioClient sends SMS through the Twilio Messages API.
type TwilioClient struct {
	AccountSID string
	AuthToken  string
	From       string
	BaseURL    string
	HTTPClient *http.Client
}

// NewTwilioClient returns a client for the given account. An empty baseURL uses the public API.
func NewTwilioClient(accountSID, authToken, from, baseURL string, timeout time.Duration) *TwilioClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &TwilioClient{
		AccountSID: accountSID,
		AuthToken:  authToken,
		From:       from,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Configured reports whether credentials and a sender number are present.
func (c *TwilioClient) Configured() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.From != ""
}

// Send posts body to phone. Does not log the body.
func (c *TwilioClient) Send(ctx context.Context, phone, body string) error {
	if !c.Configured() {
		return fmt.Errorf("twilio: credentials not configured")
	}
	form := url.Values{}
	form.Set("To", phone)
	form.Set("From", c.From)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", c.BaseURL, url.PathEscape(c.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.AccountSID, c.AuthToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("twilio: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("twilio: request failed status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}

// LogSender stands in when SMS delivery is disabled. The code is never sent
// and never logged.
type LogSender struct {
	Logger *slog.Logger
}

// Send logs that delivery was skipped.
func (s LogSender) Send(ctx context.Context, phone, body string) error {
	s.Logger.Warn("sms delivery disabled or not configured; code not sent")
	return nil
}
