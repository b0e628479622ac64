package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"standings-sync/internal/assert"
	"standings-sync/internal/telemetry"
	"strconv"
	"strings"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("standings-sync.notify")

const DefaultSMTPPort = 587

// Error is returned when the announcement could not be handed to the mail
// server. It is never retried.
type Error struct {
	To  []string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("notify %s: %s", strings.Join(e.To, ", "), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transport delivers a composed message.
type Transport interface {
	Send(ctx context.Context, mail *email.Email) error
}

type SMTPConfig struct {
	Server   string
	Port     int
	Username string
	Password string
}

func (c SMTPConfig) Addr() string {
	port := c.Port
	if port <= 0 {
		port = DefaultSMTPPort
	}
	return net.JoinHostPort(c.Server, strconv.Itoa(port))
}

// SMTPTransport sends over SMTP, upgrading with STARTTLS before PLAIN auth.
type SMTPTransport struct {
	cfg SMTPConfig
}

func NewSMTPTransport(cfg SMTPConfig) SMTPTransport {
	assert.NotEmptyStr(cfg.Server, "smtp server")
	return SMTPTransport{cfg: cfg}
}

func (t SMTPTransport) Send(ctx context.Context, mail *email.Email) error {
	err := ctx.Err()
	if err != nil {
		return err
	}
	return mail.SendWithStartTLS(
		t.cfg.Addr(),
		smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Server),
		&tls.Config{ServerName: t.cfg.Server},
	)
}

type Options struct {
	From          string
	To            []string
	Title         string
	PublicBaseURL string
}

type Notifier struct {
	opts      Options
	transport Transport
	tel       telemetry.API
}

func NewNotifier(opts Options, transport Transport, tel telemetry.API) Notifier {
	assert.NotEmptyStr(opts.From, "from address")
	assert.NotEmptyStr(opts.Title, "feed title")
	assert.NotNil(transport, "transport")
	assert.NotNil(tel, "tel")
	if len(opts.To) == 0 {
		panic("expected at least one recipient")
	}
	return Notifier{
		opts:      opts,
		transport: transport,
		tel:       telemetry.NewScopedAPI("notify", tel),
	}
}

// ParseRecipients splits a comma separated address list.
func ParseRecipients(list string) []string {
	var out []string
	for _, addr := range strings.Split(list, ",") {
		addr = strings.TrimSpace(addr)
		if addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// PublicURL is where datedName can be downloaded once published.
func PublicURL(baseURL, datedName string) string {
	return strings.TrimSuffix(baseURL, "/") + "/" + datedName
}

// Compose builds the announcement for datedName.
func (n Notifier) Compose(datedName string) *email.Email {
	mail := email.NewEmail()
	mail.From = n.opts.From
	mail.To = append([]string(nil), n.opts.To...)
	mail.Subject = fmt.Sprintf("New %s PDF Posted!", n.opts.Title)
	mail.Text = []byte(fmt.Sprintf(
		"A new %s PDF is available: %s",
		n.opts.Title,
		PublicURL(n.opts.PublicBaseURL, datedName),
	))
	return mail
}

// Notify sends exactly one announcement for datedName.
func (n Notifier) Notify(ctx context.Context, datedName string) error {
	ctx, span := tracer.Start(ctx, "send")
	defer span.End()
	span.SetAttributes(attribute.String("dated_name", datedName))

	err := n.transport.Send(ctx, n.Compose(datedName))
	if err != nil {
		notifyErr := &Error{To: n.opts.To, Err: err}
		span.RecordError(notifyErr)
		span.SetStatus(codes.Error, "failed to send email")
		n.tel.ReportBroken("send", notifyErr, "dated_name", datedName)
		return notifyErr
	}
	n.tel.ReportDebug("sent announcement", "dated_name", datedName, "to", n.opts.To)
	return nil
}
