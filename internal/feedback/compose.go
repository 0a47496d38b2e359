package feedback

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/welldanyogia/feedback-forms/internal/field"
	"github.com/welldanyogia/feedback-forms/internal/form"
	"github.com/welldanyogia/feedback-forms/internal/sanitizer"
)

// BodyHeader holds the canonical values written above the field list.
type BodyHeader struct {
	Comment     string
	Author      string
	AuthorEmail string
	AuthorURL   string
	Subject     string
	IP          string
}

// BuildBody renders the plain-text record body: the comment, the more
// marker, the canonical values and one "[{i}_{label}] => value" line per
// field in form order.
func BuildBody(sub form.Submission, h BodyHeader, spam bool) string {
	var b strings.Builder
	if spam {
		b.WriteString(SpamPrefix)
		b.WriteByte('\n')
	}
	b.WriteString(h.Comment)
	b.WriteString("\n" + MoreMarker + "\n")
	fmt.Fprintf(&b, "AUTHOR: %s\n", h.Author)
	fmt.Fprintf(&b, "AUTHOR EMAIL: %s\n", h.AuthorEmail)
	fmt.Fprintf(&b, "AUTHOR URL: %s\n", h.AuthorURL)
	fmt.Fprintf(&b, "SUBJECT: %s\n", h.Subject)
	fmt.Fprintf(&b, "IP: %s\n", h.IP)
	for _, v := range sub.Values {
		fmt.Fprintf(&b, "[%s] => %s\n", v.Definition.Key(), v.String())
	}
	return b.String()
}

// ExtraFields keys every non-canonical field value by "{i}_{label}".
func ExtraFields(sub form.Submission) map[string]string {
	extra := make(map[string]string)
	for _, v := range sub.Values {
		if v.Definition.Type.Canonical() {
			continue
		}
		extra[v.Definition.Key()] = v.String()
	}
	return extra
}

// Recipients parses a comma separated "to" setting. Entries without a
// display name get the local part as name. Order and duplicates are kept;
// unparseable entries are returned separately.
func Recipients(to string) (valid []string, invalid []string) {
	for _, part := range strings.Split(to, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		addr, err := mail.ParseAddress(part)
		if err != nil {
			invalid = append(invalid, part)
			continue
		}
		if addr.Name == "" {
			if at := strings.LastIndex(addr.Address, "@"); at > 0 {
				addr.Name = addr.Address[:at]
			}
		}
		valid = append(valid, addr.String())
	}
	return valid, invalid
}

// DefaultSubject is used when a form has no subject template.
func DefaultSubject(site, title string) string {
	if title == "" {
		return "[" + site + "]"
	}
	return "[" + site + "] " + title
}

// MessageFooter holds the details appended below the field list.
type MessageFooter struct {
	Time    time.Time
	IP      string
	FormURL string
}

// BuildMessage renders the HTML notification: one "<b>label:</b> value"
// block per field, then the time, submitter IP and form URL.
func BuildMessage(sub form.Submission, footer MessageFooter, s sanitizer.HTMLSanitizer) string {
	var b strings.Builder
	for _, v := range sub.Values {
		value := v.String()
		if v.Definition.Type == field.TypeTextarea {
			value = strings.ReplaceAll(s.Text(value), "\n", "<br />")
		} else {
			value = s.Text(value)
		}
		fmt.Fprintf(&b, "<b>%s:</b> %s<br /><br />", s.Text(v.Definition.Label), value)
	}
	b.WriteString("<br /><br />")
	fmt.Fprintf(&b, "Time: %s<br />", footer.Time.UTC().Format("January 2, 2006 at 3:04 PM MST"))
	fmt.Fprintf(&b, "IP Address: %s<br />", s.Text(footer.IP))
	if footer.FormURL != "" {
		fmt.Fprintf(&b, "Contact Form URL: %s<br />", s.Text(footer.FormURL))
	}
	return b.String()
}
