// Package mailer is the send channel used by campaigns: one message, one
// SMTP session.
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/unclebandit/mailcampaign/internal/model"
)

// Message is a single rendered email addressed to one recipient.
type Message struct {
	Identity model.SenderIdentity
	To       model.Recipient
	Subject  string
	HTMLBody string
}

// Sender is the opaque delivery capability the campaign engine calls.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

type SMTPSender struct {
	// Timeout bounds every SMTP command and the DATA submission.
	Timeout   time.Duration
	LocalName string
	// TLSConfig overrides the STARTTLS configuration; nil verifies against the host name.
	TLSConfig *tls.Config

	now func() time.Time
}

func NewSMTPSender(timeout time.Duration) *SMTPSender {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SMTPSender{Timeout: timeout, LocalName: "localhost", now: time.Now}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now
	if s.now != nil {
		now = s.now
	}
	raw, err := Compose(msg, now())
	if err != nil {
		return err
	}

	id := msg.Identity
	addr := net.JoinHostPort(id.Host, strconv.Itoa(id.Port))

	c, err := s.dial(addr, id)
	if err != nil {
		return err
	}
	defer c.Close()

	c.CommandTimeout = s.Timeout
	c.SubmissionTimeout = s.Timeout

	// After STARTTLS the client must greet again.
	if s.LocalName != "" {
		if err := c.Hello(s.LocalName); err != nil {
			return fmt.Errorf("hello: %w", err)
		}
	}

	if id.Username != "" && id.Password != "" {
		if err := c.Auth(sasl.NewPlainClient("", id.Username, id.Password)); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := c.SendMail(id.FromEmail, []string{msg.To.Email}, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("send to %s: %w", msg.To.Email, err)
	}
	return c.Quit()
}

// dial opens the session, upgrading it with STARTTLS when the identity asks
// for TLS.
func (s *SMTPSender) dial(addr string, id model.SenderIdentity) (*smtp.Client, error) {
	if !id.UseTLS {
		c, err := smtp.Dial(addr)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		return c, nil
	}

	cfg := s.TLSConfig
	if cfg == nil {
		cfg = &tls.Config{ServerName: id.Host}
	}
	c, err := smtp.DialStartTLS(addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("starttls %s: %w", addr, err)
	}
	return c, nil
}

// Compose builds a single-part text/html message.
func Compose(msg Message, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{{Address: msg.Identity.FromEmail}})
	h.SetAddressList("To", []*mail.Address{{Name: msg.To.Name, Address: msg.To.Email}})
	h.SetSubject(msg.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}
	h.SetContentType("text/html", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	if _, err := io.WriteString(w, msg.HTMLBody); err != nil {
		return nil, fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close message: %w", err)
	}
	return buf.Bytes(), nil
}

var _ Sender = (*SMTPSender)(nil)
