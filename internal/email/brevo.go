package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// BrevoSender delivers through the Brevo transactional API.
type BrevoSender struct {
	apiKey    string
	fromName  string
	fromEmail string
	client    *http.Client
}

type brevoEmailRequest struct {
	Sender struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"sender"`
	To []struct {
		Email string `json:"email"`
		Name  string `json:"name,omitempty"`
	} `json:"to"`
	Subject     string `json:"subject"`
	HTMLContent string `json:"htmlContent,omitempty"`
	TextContent string `json:"textContent,omitempty"`
}

type brevoEmailResponse struct {
	MessageID string `json:"messageId"`
}

// NewBrevoSender creates a Brevo-backed sender.
func NewBrevoSender(apiKey, fromName, fromEmail string) *BrevoSender {
	return &BrevoSender{
		apiKey:    apiKey,
		fromName:  fromName,
		fromEmail: fromEmail,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (b *BrevoSender) Send(ctx context.Context, m Message) (string, error) {
	payload := brevoEmailRequest{Subject: m.Subject}
	payload.Sender.Name = b.fromName
	payload.Sender.Email = b.fromEmail
	payload.To = []struct {
		Email string `json:"email"`
		Name  string `json:"name,omitempty"`
	}{{Email: m.To, Name: m.ToName}}

	if looksLikeHTML(m.Body) {
		payload.HTMLContent = m.Body
		payload.TextContent = PlainText(m.Body)
	} else {
		payload.TextContent = m.Body
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.brevo.com/v3/smtp/email", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("api-key", b.apiKey)
	req.Header.Set("content-type", "application/json")
	req.Header.Set("accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("brevo send failed: status %d: %s", resp.StatusCode, string(data))
	}

	var out brevoEmailResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("brevo response: %w", err)
	}
	if out.MessageID == "" {
		return "", fmt.Errorf("brevo response missing messageId")
	}
	return out.MessageID, nil
}
