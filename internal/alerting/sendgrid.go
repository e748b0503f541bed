package alerting

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendgridOptions configure the SendGrid v3 transport.
type SendgridOptions struct {
	APIKey     string
	From       string
	FromName   string
	Recipients []string
}

// SendgridNotifier delivers notifications through the SendGrid mail API.
type SendgridNotifier struct {
	opts   SendgridOptions
	client *sendgrid.Client
	logger zerolog.Logger
}

// NewSendgridNotifier constructs a SendGrid notifier.
func NewSendgridNotifier(opts SendgridOptions, logger zerolog.Logger) *SendgridNotifier {
	return &SendgridNotifier{
		opts:   opts,
		client: sendgrid.NewSendClient(opts.APIKey),
		logger: logger.With().Str("component", "alert_sendgrid").Logger(),
	}
}

// Notify sends one message with every recipient in a single personalization.
func (n *SendgridNotifier) Notify(ctx context.Context, note Notification) error {
	if len(n.opts.Recipients) == 0 {
		return &SendError{Transport: "sendgrid", Err: fmt.Errorf("no recipients configured")}
	}

	resp, err := n.client.SendWithContext(ctx, n.buildMail(note))
	if err != nil {
		return &SendError{Transport: "sendgrid", Err: err}
	}
	if resp.StatusCode >= 400 {
		return &SendError{Transport: "sendgrid", Err: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(resp.Body))}
	}

	n.logger.Info().
		Str("kind", note.Kind.String()).
		Int("recipients", len(n.opts.Recipients)).
		Int("status", resp.StatusCode).
		Msg("notification sent (sendgrid)")
	return nil
}

func (n *SendgridNotifier) buildMail(note Notification) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(n.opts.FromName, n.opts.From))
	m.Subject = note.Subject

	p := mail.NewPersonalization()
	for _, addr := range n.opts.Recipients {
		p.AddTos(mail.NewEmail("", addr))
	}
	m.AddPersonalizations(p)
	m.AddContent(mail.NewContent("text/html", note.HTMLBody))
	return m
}

var _ Notifier = (*SendgridNotifier)(nil)
