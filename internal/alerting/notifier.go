package alerting

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrSend is matched by every SendError.
var ErrSend = errors.New("send notification")

// SendError wraps a mail transport or authentication failure.
type SendError struct {
	Transport string
	Err       error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s send failed: %v", e.Transport, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrSend) true.
func (e *SendError) Is(target error) bool {
	return target == ErrSend
}

// RateSample is one observation of the monitored rate and the threshold it
// was compared against.
type RateSample struct {
	CurrentRate  decimal.Decimal
	Threshold    decimal.Decimal
	Timestamp    time.Time
	CurrencyPair string
}

// Kind selects the notification template.
type Kind int

const (
	KindAlert Kind = iota + 1
	KindSummary
)

func (k Kind) String() string {
	switch k {
	case KindAlert:
		return "alert"
	case KindSummary:
		return "summary"
	default:
		return "unknown"
	}
}

// Notification is a rendered message ready for a transport.
type Notification struct {
	Kind     Kind
	Subject  string
	HTMLBody string
	Sample   RateSample
}

// Notifier delivers a notification.
type Notifier interface {
	Notify(ctx context.Context, note Notification) error
}

// SMTPOptions configure the SMTP submission transport.
type SMTPOptions struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	FromName   string
	Recipients []string
	Timeout    time.Duration
}

// SMTPNotifier sends HTML mail over STARTTLS submission with PLAIN auth.
type SMTPNotifier struct {
	opts   SMTPOptions
	logger zerolog.Logger
	now    func() time.Time
}

// NewSMTPNotifier constructs an SMTP notifier. Username defaults to From.
func NewSMTPNotifier(opts SMTPOptions, logger zerolog.Logger) *SMTPNotifier {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Port <= 0 {
		opts.Port = 587
	}
	if opts.Username == "" {
		opts.Username = opts.From
	}

	return &SMTPNotifier{
		opts:   opts,
		logger: logger.With().Str("component", "alert_smtp").Logger(),
		now:    time.Now,
	}
}

// Notify submits one multipart message addressed to every recipient.
func (n *SMTPNotifier) Notify(ctx context.Context, note Notification) error {
	if len(n.opts.Recipients) == 0 {
		return &SendError{Transport: "smtp", Err: errors.New("no recipients configured")}
	}

	msg, err := buildMessage(n.opts.From, n.opts.FromName, n.opts.Recipients, note.Subject, note.HTMLBody, n.now())
	if err != nil {
		return &SendError{Transport: "smtp", Err: fmt.Errorf("build message: %w", err)}
	}

	if err := n.submit(ctx, msg); err != nil {
		return &SendError{Transport: "smtp", Err: err}
	}

	n.logger.Info().
		Str("kind", note.Kind.String()).
		Int("recipients", len(n.opts.Recipients)).
		Str("to", strings.Join(n.opts.Recipients, ", ")).
		Msg("notification sent (smtp)")
	return nil
}

func (n *SMTPNotifier) submit(ctx context.Context, msg []byte) error {
	addr := net.JoinHostPort(n.opts.Host, strconv.Itoa(n.opts.Port))

	dialer := &net.Dialer{Timeout: n.opts.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, n.opts.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); !ok {
		return errors.New("server does not offer STARTTLS")
	}
	if err := c.StartTLS(&tls.Config{ServerName: n.opts.Host}); err != nil {
		return fmt.Errorf("starttls: %w", err)
	}

	if n.opts.Password != "" {
		auth := smtp.PlainAuth("", n.opts.Username, n.opts.Password, n.opts.Host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := c.Mail(n.opts.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range n.opts.Recipients {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close body: %w", err)
	}
	return c.Quit()
}

// buildMessage renders an RFC 5322 multipart/mixed message with a single
// quoted-printable HTML part.
func buildMessage(from, fromName string, to []string, subject, html string, date time.Time) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=UTF-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return nil, err
	}
	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write([]byte(html)); err != nil {
		return nil, err
	}
	if err := qp.Close(); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	sender := (&mail.Address{Name: fromName, Address: from}).String()

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", sender)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&msg, "Date: %s\r\n", date.Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/mixed; boundary=%q\r\n", mw.Boundary())
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

var _ Notifier = (*SMTPNotifier)(nil)
