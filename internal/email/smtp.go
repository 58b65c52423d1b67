package email

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	gomail "github.com/wneessen/go-mail"
)

// SMTPSender implements the Sender interface using a direct SMTP connection
// via go-mail. The message id is generated locally and stamped on the
// message before delivery, so the ledger id matches the Message-ID header
// the recipient sees.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewSMTPSender creates a new SMTPSender with the given SMTP credentials.
func NewSMTPSender(host string, port int, username, password, fromEmail, fromName string) *SMTPSender {
	return &SMTPSender{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromName:  fromName,
		fromEmail: fromEmail,
	}
}

func (s *SMTPSender) Send(ctx context.Context, m Message) (string, error) {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return "", fmt.Errorf("smtp from: %w", err)
	}
	var toErr error
	if m.ToName != "" {
		toErr = msg.AddToFormat(m.ToName, m.To)
	} else {
		toErr = msg.To(m.To)
	}
	if toErr != nil {
		return "", fmt.Errorf("smtp to: %w", toErr)
	}
	msg.Subject(m.Subject)

	messageID := s.newMessageID()
	msg.SetMessageIDWithValue(messageID)

	if looksLikeHTML(m.Body) {
		msg.SetBodyString(gomail.TypeTextPlain, PlainText(m.Body))
		msg.AddAlternativeString(gomail.TypeTextHTML, m.Body)
	} else {
		msg.SetBodyString(gomail.TypeTextPlain, m.Body)
	}

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return "", fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}

	return messageID, nil
}

func (s *SMTPSender) newMessageID() string {
	domain := "localhost"
	if at := strings.LastIndex(s.fromEmail, "@"); at >= 0 && at < len(s.fromEmail)-1 {
		domain = s.fromEmail[at+1:]
	}
	return fmt.Sprintf("%s@%s", uuid.NewString(), domain)
}
