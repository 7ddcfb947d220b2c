// Package mailer renders and delivers the emails carried by send-email
// events.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/wneessen/go-mail"

	"github.com/signalix/accounts/internal/events"
)

// ErrNoRecipients is returned for an email without a single address.
var ErrNoRecipients = errors.New("email has no recipients")

// Config holds SMTP settings and the default sender.
type Config struct {
	Host      string
	Port      int
	Username  string
	Password  string
	Secure    bool
	FromEmail string
	FromName  string
}

// message is an email ready to hand to a transport.
type message struct {
	FromName  string
	FromEmail string
	To        []string
	Subject   string
	HTML      string
}

// compose resolves the sender and the body of data.
func compose(r *Renderer, defaults Config, data events.EmailData) (message, error) {
	msg := message{
		FromName:  defaults.FromName,
		FromEmail: defaults.FromEmail,
		Subject:   data.Subject,
		HTML:      data.HTML,
	}
	if data.FromName != "" {
		msg.FromName = data.FromName
	}
	if data.FromEmail != "" {
		msg.FromEmail = data.FromEmail
	}
	for _, rcpt := range data.To {
		if addr := strings.TrimSpace(rcpt.Email); addr != "" {
			msg.To = append(msg.To, addr)
		}
	}
	if len(msg.To) == 0 {
		return message{}, ErrNoRecipients
	}

	if msg.HTML == "" && data.Template != "" {
		html, err := r.Render(data.Template, data.TemplateData)
		if err != nil {
			return message{}, err
		}
		msg.HTML = html
	}
	return msg, nil
}

// SMTPMailer delivers email over SMTP.
type SMTPMailer struct {
	cfg      Config
	renderer *Renderer
}

// NewSMTPMailer creates a mailer for cfg.
func NewSMTPMailer(cfg Config, renderer *Renderer) *SMTPMailer {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPMailer{cfg: cfg, renderer: renderer}
}

// Send renders data and delivers it. One connection is opened per email.
func (m *SMTPMailer) Send(ctx context.Context, data events.EmailData) error {
	composed, err := compose(m.renderer, m.cfg, data)
	if err != nil {
		return err
	}

	msg := mail.NewMsg()
	if err := msg.FromFormat(composed.FromName, composed.FromEmail); err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if err := msg.To(composed.To...); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	msg.Subject(composed.Subject)
	msg.SetBodyString(mail.TypeTextHTML, composed.HTML)

	opts := []mail.Option{mail.WithPort(m.cfg.Port)}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	if m.cfg.Secure {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}

	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	log.Info().Strs("to", composed.To).Str("subject", composed.Subject).Msg("Email sent")
	return nil
}

// LogMailer renders emails and writes them to the log instead of sending
// them. It is used when no SMTP host is configured outside production.
type LogMailer struct {
	cfg      Config
	renderer *Renderer
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(cfg Config, renderer *Renderer) *LogMailer {
	return &LogMailer{cfg: cfg, renderer: renderer}
}

func (m *LogMailer) Send(ctx context.Context, data events.EmailData) error {
	composed, err := compose(m.renderer, m.cfg, data)
	if err != nil {
		return err
	}
	log.Info().
		Str("from", fmt.Sprintf("%s <%s>", composed.FromName, composed.FromEmail)).
		Strs("to", composed.To).
		Str("subject", composed.Subject).
		Int("html_bytes", len(composed.HTML)).
		Msg("Email not sent: SMTP is not configured")
	log.Debug().Str("html", composed.HTML).Msg("Email body")
	return nil
}
