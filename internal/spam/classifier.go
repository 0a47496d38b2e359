// Package spam provides SpamClassifier implementations for the
// submission pipeline.
package spam

import (
	"context"
	"regexp"
	"strings"

	"github.com/welldanyogia/feedback-forms/internal/feedback"
	"github.com/welldanyogia/feedback-forms/internal/field"
)

// Chain consults classifiers in order. The first error rejects the
// submission; any spam verdict marks it spam.
type Chain []feedback.SpamClassifier

// Classify implements feedback.SpamClassifier
func (c Chain) Classify(ctx context.Context, in feedback.ClassifyInput) (feedback.Verdict, error) {
	verdict := feedback.VerdictClean
	for _, classifier := range c {
		v, err := classifier.Classify(ctx, in)
		if err != nil {
			return feedback.VerdictClean, err
		}
		if v == feedback.VerdictSpam {
			verdict = feedback.VerdictSpam
		}
	}
	return verdict, nil
}

// ContentRules flags submissions containing blocked words or too many links.
type ContentRules struct {
	BlockedWords []string
	// MaxLinks is the number of links tolerated across all values; zero
	// disables the check.
	MaxLinks int
}

var linkPattern = regexp.MustCompile(`(?i)(https?://|www\.)`)

// Classify implements feedback.SpamClassifier
func (r ContentRules) Classify(ctx context.Context, in feedback.ClassifyInput) (feedback.Verdict, error) {
	text := strings.ToLower(submittedText(in))

	for _, word := range r.BlockedWords {
		if word = strings.ToLower(strings.TrimSpace(word)); word != "" && strings.Contains(text, word) {
			return feedback.VerdictSpam, nil
		}
	}

	if r.MaxLinks > 0 && len(linkPattern.FindAllStringIndex(text, -1)) > r.MaxLinks {
		return feedback.VerdictSpam, nil
	}

	return feedback.VerdictClean, nil
}

// submittedText joins every value except the author url, which is expected
// to be a link.
func submittedText(in feedback.ClassifyInput) string {
	var b strings.Builder
	for _, v := range in.Values {
		if v.Definition.Type == field.TypeURL {
			continue
		}
		b.WriteString(v.String())
		b.WriteByte('\n')
	}
	return b.String()
}
