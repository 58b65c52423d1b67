// Package email delivers rendered sequence steps. Two providers are
// supported (direct SMTP and Brevo); both return the provider-visible
// message id so the state ledger can reference the actual artifact.
package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"sequencer_backend/platform/config"
)

// Message is one fully rendered email, ready for delivery.
type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

// Sender delivers one message and returns the external message id. A Sender
// makes exactly one attempt; retry policy belongs to the caller.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// NoopSender accepts everything without delivering. Used when email is
// disabled (local development, dry runs against production data). The
// synthetic message id keeps the rest of the pipeline working.
type NoopSender struct{}

func (NoopSender) Send(_ context.Context, _ Message) (string, error) {
	return "noop-" + uuid.NewString(), nil
}

// NewSender selects the provider from config.
func NewSender(cfg config.EmailConfig) (Sender, error) {
	if !cfg.GetEmailEnabled() {
		return NoopSender{}, nil
	}

	switch strings.ToLower(cfg.GetEmailProvider()) {
	case "smtp":
		return NewSMTPSender(cfg.GetSMTPHost(), cfg.GetSMTPPort(),
			cfg.GetSMTPUsername(), cfg.GetSMTPPassword(),
			cfg.GetEmailFromAddress(), cfg.GetEmailFromName()), nil
	case "brevo":
		return NewBrevoSender(cfg.GetBrevoAPIKey(),
			cfg.GetEmailFromName(), cfg.GetEmailFromAddress()), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.GetEmailProvider())
	}
}
