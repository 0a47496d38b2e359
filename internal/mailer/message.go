// Package mailer delivers feedback notifications over SMTP.
package mailer

import (
	"bytes"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/welldanyogia/feedback-forms/internal/feedback"
)

// MaxHeaderLength is the longest header value written; longer values are
// truncated.
const MaxHeaderLength = 1000

// SanitizeHeaderValue folds CR and LF into spaces and truncates the value.
func SanitizeHeaderValue(value string) string {
	value = strings.ReplaceAll(value, "\r\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.ReplaceAll(value, "\n", " ")
	if len(value) > MaxHeaderLength {
		value = value[:MaxHeaderLength]
	}
	return value
}

// envelopeAddresses extracts the bare addresses for RCPT TO.
func envelopeAddresses(list []string) ([]string, error) {
	out := make([]string, 0, len(list))
	for _, entry := range list {
		addr, err := mail.ParseAddress(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid recipient %q: %w", entry, err)
		}
		out = append(out, addr.Address)
	}
	return out, nil
}

// buildMessage renders msg as a single-part HTML mail with a
// quoted-printable body.
func buildMessage(from string, msg feedback.Message, now time.Time) ([]byte, error) {
	var buf bytes.Buffer

	header := func(name, value string) {
		fmt.Fprintf(&buf, "%s: %s\r\n", name, SanitizeHeaderValue(value))
	}

	header("From", from)
	header("To", strings.Join(msg.To, ", "))
	if msg.ReplyTo != "" {
		header("Reply-To", msg.ReplyTo)
	}
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", now.Format(time.RFC1123Z))
	header("Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(from)))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/html; charset="utf-8"`)
	header("Content-Transfer-Encoding", "quoted-printable")
	buf.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(msg.HTML)); err != nil {
		return nil, fmt.Errorf("failed to encode body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode body: %w", err)
	}
	buf.WriteString("\r\n")

	return buf.Bytes(), nil
}

func domainOf(from string) string {
	if addr, err := mail.ParseAddress(from); err == nil {
		from = addr.Address
	}
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		return from[at+1:]
	}
	return "localhost"
}
