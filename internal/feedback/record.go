// Package feedback turns collected form submissions into stored feedback
// records and notification mail.
package feedback

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a stored record.
type Status string

const (
	StatusPublished Status = "published"
	StatusSpam      Status = "spam"
)

// Internal field keys a stored record exposes to exporters.
const (
	KeySubject     = "_feedback_subject"
	KeyAuthor      = "_feedback_author"
	KeyAuthorEmail = "_feedback_author_email"
	KeyAuthorURL   = "_feedback_author_url"
	KeyMainComment = "_feedback_main_comment"
)

// Body markers.
const (
	SpamPrefix = "***SPAM***"
	MoreMarker = "<!--more-->"
)

// EmailMeta is the notification mail as composed for a record.
type EmailMeta struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Message string   `json:"message"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

// RequestMeta describes where a submission came from.
type RequestMeta struct {
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
	Referrer  string `json:"referrer"`
}

// Record is a persisted submission.
type Record struct {
	ID          uuid.UUID         `db:"id" json:"id"`
	FormID      string            `db:"form_id" json:"form_id"`
	Status      Status            `db:"status" json:"status"`
	AuthorName  string            `db:"author_name" json:"author_name"`
	AuthorEmail string            `db:"author_email" json:"author_email"`
	AuthorURL   string            `db:"author_url" json:"author_url"`
	Subject     string            `db:"subject" json:"subject"`
	Comment     string            `db:"comment" json:"comment"`
	IPAddress   string            `db:"ip_address" json:"ip_address"`
	UserAgent   string            `db:"user_agent" json:"user_agent"`
	Referrer    string            `db:"referrer" json:"referrer"`
	Body        string            `db:"body" json:"body"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	Email       EmailMeta         `db:"-" json:"email"`
	ExtraFields map[string]string `db:"-" json:"extra_fields"`
}

// ParsedFields returns the record's canonical values keyed by the internal
// field keys. The main comment is read from the body.
func (r *Record) ParsedFields() map[string]string {
	return map[string]string{
		KeySubject:     r.Subject,
		KeyAuthor:      r.AuthorName,
		KeyAuthorEmail: r.AuthorEmail,
		KeyAuthorURL:   r.AuthorURL,
		KeyMainComment: CommentFromBody(r.Body),
	}
}

// CommentFromBody returns the free-text part of a body: everything before
// the more marker, without any spam prefix.
func CommentFromBody(body string) string {
	body = strings.TrimPrefix(body, SpamPrefix+"\n")
	if i := strings.Index(body, "\n"+MoreMarker+"\n"); i >= 0 {
		return body[:i]
	}
	return body
}

// ExtraKeys returns the extra field keys in form order.
func (r *Record) ExtraKeys() []string {
	keys := make([]string, 0, len(r.ExtraFields))
	for k := range r.ExtraFields {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keyIndex(keys[i]), keyIndex(keys[j])
		if a != b {
			return a < b
		}
		return keys[i] < keys[j]
	})
	return keys
}

// keyIndex reads the order index prefix of a "{i}_{label}" key.
func keyIndex(key string) int {
	prefix, _, _ := strings.Cut(key, "_")
	n, err := strconv.Atoi(prefix)
	if err != nil {
		return int(^uint(0) >> 1)
	}
	return n
}
