package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Mailgun sends through the Mailgun messages API.
type Mailgun struct {
	baseURL string
	domain  string
	apiKey  string
	client  *http.Client
}

// MailgunOption configures a Mailgun transport.
type MailgunOption func(*Mailgun)

// WithHTTPClient overrides the HTTP client used for API calls.
func WithHTTPClient(client *http.Client) MailgunOption {
	return func(m *Mailgun) {
		if client != nil {
			m.client = client
		}
	}
}

func NewMailgun(baseURL, domain, apiKey string, opts ...MailgunOption) *Mailgun {
	m := &Mailgun{
		baseURL: strings.TrimRight(baseURL, "/"),
		domain:  domain,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type mailgunResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

func (m *Mailgun) Send(ctx context.Context, msg Message) DeliveryStatus {
	status := DeliveryStatus{Transport: "mailgun"}

	form := url.Values{}
	form.Set("from", msg.Sender)
	form.Set("to", msg.Recipient)
	form.Set("subject", msg.Subject)
	form.Set("text", msg.Text)
	form.Set("html", msg.HTML)

	endpoint := fmt.Sprintf("%s/v3/%s/messages", m.baseURL, url.PathEscape(m.domain))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		status.Message = err.Error()
		return status
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("api", m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		status.Message = err.Error()
		return status
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		status.Message = err.Error()
		return status
	}

	var parsed mailgunResponse
	if jsonErr := json.Unmarshal(body, &parsed); jsonErr == nil {
		status.ID = parsed.ID
		status.Message = parsed.Message
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if status.Message == "" {
			status.Message = fmt.Sprintf("mailgun returned %d", resp.StatusCode)
		}
		return status
	}
	status.Delivered = true
	return status
}
