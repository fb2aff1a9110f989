package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SMSGateway posts text messages to an HTTP SMS provider.
type SMSGateway struct {
	baseURL    string
	token      string
	from       string
	httpClient *http.Client
}

// NewSMSGateway constructs a gateway client.
func NewSMSGateway(baseURL, token, from string) *SMSGateway {
	return &SMSGateway{
		baseURL: baseURL,
		token:   token,
		from:    from,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type smsRequest struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
	Body string `json:"body"`
}

// SendSMS sends body to each number; it stops at the first failure.
func (g *SMSGateway) SendSMS(ctx context.Context, to []string, body string) error {
	if len(to) == 0 {
		return ErrNoRecipients
	}
	for _, number := range to {
		if err := g.sendOne(ctx, number, body); err != nil {
			return err
		}
	}
	return nil
}

func (g *SMSGateway) sendOne(ctx context.Context, number, body string) error {
	payload, err := json.Marshal(smsRequest{From: g.from, To: number, Body: body})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: sms gateway: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify: sms gateway returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
