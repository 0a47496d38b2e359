package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"os"
	"strconv"
	"time"

	"github.com/welldanyogia/feedback-forms/internal/config"
	"github.com/welldanyogia/feedback-forms/internal/feedback"
	"github.com/welldanyogia/feedback-forms/internal/logger"
)

// ErrNoRecipients is returned when a message has nobody to go to.
var ErrNoRecipients = errors.New("message has no recipients")

// DefaultTimeout bounds a whole SMTP exchange when the context has no
// deadline of its own.
const DefaultTimeout = 30 * time.Second

// SMTPMailer hands messages to an SMTP relay. Each Send opens one
// connection and delivers a single message to all recipients.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewSMTPMailer creates a mailer for the relay in cfg.
func NewSMTPMailer(cfg config.MailConfig, log *slog.Logger) *SMTPMailer {
	if log == nil {
		log = slog.Default()
	}
	return &SMTPMailer{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		timeout:  DefaultTimeout,
		logger:   log,
		now:      time.Now,
	}
}

// Send implements feedback.Mailer
func (m *SMTPMailer) Send(ctx context.Context, msg feedback.Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}

	rcpts, err := envelopeAddresses(msg.To)
	if err != nil {
		return err
	}
	sender, err := envelopeAddresses([]string{m.from})
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}

	data, err := buildMessage(m.from, msg, m.now())
	if err != nil {
		return err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	addr := net.JoinHostPort(m.host, strconv.Itoa(m.port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, m.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to start smtp session: %w", err)
	}
	defer c.Close()

	if err := m.deliver(c, sender[0], rcpts, data); err != nil {
		return err
	}

	logger.WithCorrelationID(ctx, m.logger).Debug("notification sent",
		slog.Int("recipients", len(rcpts)),
		slog.Int("size", len(data)),
	)
	return nil
}

func (m *SMTPMailer) deliver(c *smtp.Client, from string, rcpts []string, data []byte) error {
	if err := c.Hello(localName()); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("STARTTLS failed: %w", err)
		}
	}

	if m.username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", m.username, m.password, m.host)); err != nil {
				return fmt.Errorf("AUTH failed: %w", err)
			}
		}
	}

	if err := c.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	for _, rcpt := range rcpts {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO %s failed: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA failed: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("message refused: %w", err)
	}

	return c.Quit()
}

func localName() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "localhost"
	}
	return name
}
