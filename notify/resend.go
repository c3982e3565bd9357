package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultResendBaseURL is the public Resend API endpoint.
const DefaultResendBaseURL = "https://api.resend.com"

// ResendConfig configures a ResendNotifier.
type ResendConfig struct {
	APIKey  string
	From    string
	BaseURL string
	Timeout time.Duration
}

// ResendNotifier sends mail through the Resend HTTP API.
type ResendNotifier struct {
	apiKey  string
	from    string
	baseURL string
	client  *http.Client
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

type resendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message,omitempty"`
}

// NewResendNotifier validates cfg and returns a notifier.
func NewResendNotifier(cfg ResendConfig) (*ResendNotifier, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("notify: resend api key is required")
	}
	if cfg.From == "" {
		return nil, errors.New("notify: resend sender address is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultResendBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &ResendNotifier{
		apiKey:  cfg.APIKey,
		from:    cfg.From,
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (r *ResendNotifier) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(resendRequest{
		From:    r.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return fmt.Errorf("%w: marshal request: %v", ErrSendFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrSendFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: request: %v", ErrSendFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var out resendResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out)
		return fmt.Errorf("%w: resend status %d: %s", ErrSendFailed, resp.StatusCode, out.Message)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	return nil
}
