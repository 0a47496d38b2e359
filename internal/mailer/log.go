package mailer

import (
	"context"
	"log/slog"

	"github.com/welldanyogia/feedback-forms/internal/config"
	"github.com/welldanyogia/feedback-forms/internal/feedback"
	"github.com/welldanyogia/feedback-forms/internal/logger"
)

// LogMailer logs messages instead of sending them. It is used when SMTP
// delivery is disabled.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(log *slog.Logger) *LogMailer {
	if log == nil {
		log = slog.Default()
	}
	return &LogMailer{logger: log}
}

// Send implements feedback.Mailer
func (m *LogMailer) Send(ctx context.Context, msg feedback.Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	logger.WithCorrelationID(ctx, m.logger).Info("mail delivery disabled, notification dropped",
		slog.Any("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}

// New returns the mailer configured by cfg.
func New(cfg config.MailConfig, log *slog.Logger) feedback.Mailer {
	if cfg.Disabled {
		return NewLogMailer(log)
	}
	return NewSMTPMailer(cfg, log)
}
