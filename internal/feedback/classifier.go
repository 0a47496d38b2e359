package feedback

import (
	"context"
	"errors"

	"github.com/welldanyogia/feedback-forms/internal/form"
)

// Verdict is a spam classifier outcome.
type Verdict int

const (
	VerdictClean Verdict = iota
	VerdictSpam
)

func (v Verdict) String() string {
	if v == VerdictSpam {
		return "spam"
	}
	return "clean"
}

// ClassifyInput is everything a classifier may look at.
type ClassifyInput struct {
	FormID      string
	Author      string
	AuthorEmail string
	AuthorURL   string
	Comment     string
	Values      []form.Value
	Meta        RequestMeta
}

// SpamClassifier decides whether a submission is spam. Returning an error
// rejects the submission outright; the error text is shown to the submitter.
type SpamClassifier interface {
	Classify(ctx context.Context, in ClassifyInput) (Verdict, error)
}

// ClassifierFunc adapts a function to SpamClassifier.
type ClassifierFunc func(ctx context.Context, in ClassifyInput) (Verdict, error)

// Classify calls f.
func (f ClassifierFunc) Classify(ctx context.Context, in ClassifyInput) (Verdict, error) {
	return f(ctx, in)
}

// NopClassifier treats every submission as clean.
type NopClassifier struct{}

// Classify always returns VerdictClean.
func (NopClassifier) Classify(context.Context, ClassifyInput) (Verdict, error) {
	return VerdictClean, nil
}

// asRejection converts a classifier error into a *RejectionError.
func asRejection(err error) *RejectionError {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej
	}
	return &RejectionError{Message: err.Error()}
}
