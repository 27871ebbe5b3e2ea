package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"

	"octobayNotifier/internal/model"
)

// MailConfig holds SMTP connection settings.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Mailer delivers rendered mails over SMTP.
type Mailer struct {
	domain string
	send   func(ctx context.Context, msg *mail.Msg) error
}

// NewMailer builds an SMTP mailer. STARTTLS is used when the server offers it.
func NewMailer(cfg MailConfig) (*Mailer, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}

	return &Mailer{
		domain: cfg.Host,
		send: func(ctx context.Context, msg *mail.Msg) error {
			return client.DialAndSendWithContext(ctx, msg)
		},
	}, nil
}

// Send delivers the mail and returns its Message-ID.
func (m *Mailer) Send(ctx context.Context, msg model.Mail) (string, error) {
	built, messageID, err := m.buildMsg(msg)
	if err != nil {
		return "", err
	}
	if err := m.send(ctx, built); err != nil {
		return "", fmt.Errorf("send mail: %w", err)
	}
	return messageID, nil
}

func (m *Mailer) buildMsg(msg model.Mail) (*mail.Msg, string, error) {
	built := mail.NewMsg()
	if err := built.From(msg.From); err != nil {
		return nil, "", fmt.Errorf("mail from: %w", err)
	}
	if err := built.To(msg.To); err != nil {
		return nil, "", fmt.Errorf("mail to: %w", err)
	}
	built.Subject(msg.Subject)

	id := fmt.Sprintf("%s@%s", uuid.NewString(), messageDomain(msg.From, m.domain))
	built.SetMessageIDWithValue(id)
	built.SetDate()

	built.SetBodyString(mail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		built.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}
	return built, "<" + id + ">", nil
}

func messageDomain(from, fallback string) string {
	addr := strings.TrimSuffix(strings.TrimSpace(from), ">")
	if at := strings.LastIndex(addr, "@"); at >= 0 && at < len(addr)-1 {
		return addr[at+1:]
	}
	return fallback
}
