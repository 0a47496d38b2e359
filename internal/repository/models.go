package repository

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/welldanyogia/feedback-forms/internal/feedback"
)

// Meta keys starting with an underscore are internal and never exported.
const (
	MetaEmailKey = "_feedback_email"
	internalMeta = "_"
)

// metaRow is one feedback_meta row
type metaRow struct {
	FeedbackID uuid.UUID `db:"feedback_id"`
	Key        string    `db:"meta_key"`
	Value      string    `db:"meta_value"`
	Position   int       `db:"position"`
}

// ListFeedbackParams holds parameters for listing feedback
type ListFeedbackParams struct {
	Page   int
	Limit  int
	FormID string
	Status feedback.Status
	Search string
	Order  string
}

// FeedbackSummary is a feedback record with a comment preview for list
// responses
type FeedbackSummary struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	FormID      string          `db:"form_id" json:"form_id"`
	Status      feedback.Status `db:"status" json:"status"`
	AuthorName  string          `db:"author_name" json:"author_name"`
	AuthorEmail string          `db:"author_email" json:"author_email"`
	Subject     string          `db:"subject" json:"subject"`
	PreviewText string          `db:"-" json:"preview_text"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// GeneratePreviewText shortens text to maxLength characters, cutting at a
// word boundary when one is close, and appends an ellipsis.
func GeneratePreviewText(text string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = 200
	}

	text = strings.TrimSpace(text)
	if len(text) <= maxLength {
		return text
	}

	truncated := text[:maxLength]
	if lastSpace := strings.LastIndexFunc(truncated, unicode.IsSpace); lastSpace > maxLength/2 {
		truncated = truncated[:lastSpace]
	}

	return strings.TrimSpace(truncated) + "..."
}
