package feedback

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/welldanyogia/feedback-forms/internal/field"
	"github.com/welldanyogia/feedback-forms/internal/form"
	"github.com/welldanyogia/feedback-forms/internal/logger"
	"github.com/welldanyogia/feedback-forms/internal/metrics"
	"github.com/welldanyogia/feedback-forms/internal/sanitizer"
)

// SuccessMessage is returned to the submitter when a submission is stored.
const SuccessMessage = "Message Sent"

// State is a step of the submission pipeline.
type State string

const (
	StateCollecting State = "collecting"
	StateValidated  State = "validated"
	StateClassified State = "classified"
	StateRecorded   State = "recorded"
	StateRejected   State = "rejected"
)

// Store persists records. Create writes the record and all of its meta
// atomically.
type Store interface {
	Create(ctx context.Context, record *Record) error
}

// Message is one notification mail, sent once to every recipient.
type Message struct {
	To      []string
	ReplyTo string
	Subject string
	HTML    string
}

// Mailer hands a message to a mail transport.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Settings are the site-wide pipeline options.
type Settings struct {
	SiteName string
	// DefaultTo receives mail for forms whose recipient list is empty or
	// entirely invalid.
	DefaultTo string
	// StillEmailSpam mails spam submissions too, with a marked subject.
	StillEmailSpam bool
}

// ProcessorConfig holds the collaborators of a Processor
type ProcessorConfig struct {
	Store      Store
	Classifier SpamClassifier
	Mailer     Mailer
	Sanitizer  sanitizer.HTMLSanitizer
	Settings   Settings
	Logger     *slog.Logger
	Now        func() time.Time
}

// Processor runs submissions through collection, classification,
// recording and notification.
type Processor struct {
	store      Store
	classifier SpamClassifier
	mailer     Mailer
	sanitizer  sanitizer.HTMLSanitizer
	settings   Settings
	logger     *slog.Logger
	now        func() time.Time
}

// NewProcessor creates a Processor. Classifier, sanitizer, logger and clock
// default to NopClassifier, the bluemonday sanitizer, slog.Default and
// time.Now.
func NewProcessor(cfg ProcessorConfig) *Processor {
	p := &Processor{
		store:      cfg.Store,
		classifier: cfg.Classifier,
		mailer:     cfg.Mailer,
		sanitizer:  cfg.Sanitizer,
		settings:   cfg.Settings,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}
	if p.classifier == nil {
		p.classifier = NopClassifier{}
	}
	if p.sanitizer == nil {
		p.sanitizer = sanitizer.NewHTMLSanitizer()
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Result describes a finished submission.
type Result struct {
	RecordID uuid.UUID `json:"record_id"`
	State    State     `json:"state"`
	Status   Status    `json:"status"`
	Message  string    `json:"message"`
	Mailed   bool      `json:"mailed"`
}

// Process validates raw input against f, classifies it, stores exactly one
// record and mails the form recipients. It returns *field.ValidationError,
// *RejectionError or *StorageError when no record was stored. A mail
// failure is logged and does not fail the submission.
func (p *Processor) Process(ctx context.Context, f *form.Form, raw map[string][]string, meta RequestMeta) (*Result, error) {
	log := logger.WithCorrelationID(ctx, p.logger).With(slog.String("form_id", f.ID))

	// Collecting -> Validated
	sub, err := form.Collect(f.Fields, raw)
	if err != nil {
		metrics.RecordSubmission(metrics.OutcomeInvalid)
		return nil, err
	}

	in := ClassifyInput{
		FormID:      f.ID,
		Author:      sub.First(field.TypeName),
		AuthorEmail: sub.First(field.TypeEmail),
		AuthorURL:   sub.First(field.TypeURL),
		Comment:     sub.First(field.TypeTextarea),
		Values:      sub.Values,
		Meta:        meta,
	}

	// Validated -> Classified
	verdict, err := p.classifier.Classify(ctx, in)
	if err != nil {
		rej := asRejection(err)
		log.Info("submission rejected", slog.String("reason", rej.Message))
		metrics.RecordSubmission(metrics.OutcomeRejected)
		return nil, rej
	}
	spam := verdict == VerdictSpam

	// Classified -> Recorded
	record := p.compose(f, sub, in, meta, spam)
	if err := p.store.Create(ctx, record); err != nil {
		log.Error("failed to store submission", slog.String("error", err.Error()))
		metrics.RecordSubmission(metrics.OutcomeFailed)
		var serr *StorageError
		if errors.As(err, &serr) {
			return nil, serr
		}
		return nil, &StorageError{Op: "create", Err: err}
	}

	result := &Result{
		RecordID: record.ID,
		State:    StateRecorded,
		Status:   record.Status,
		Message:  SuccessMessage,
	}

	if spam {
		metrics.RecordSubmission(metrics.OutcomeSpam)
	} else {
		metrics.RecordSubmission(metrics.OutcomeRecorded)
	}

	if spam && !p.settings.StillEmailSpam {
		log.Info("spam submission stored without mail", slog.String("record_id", record.ID.String()))
		return result, nil
	}

	err = p.mailer.Send(ctx, Message{
		To:      record.Email.To,
		ReplyTo: record.Email.ReplyTo,
		Subject: record.Email.Subject,
		HTML:    record.Email.Message,
	})
	metrics.RecordMail(err)
	if err != nil {
		log.Warn("failed to send notification",
			slog.String("record_id", record.ID.String()),
			slog.String("error", err.Error()),
		)
		return result, nil
	}
	result.Mailed = true

	log.Info("submission recorded",
		slog.String("record_id", record.ID.String()),
		slog.String("status", string(record.Status)),
		slog.Int("recipients", len(record.Email.To)),
	)
	return result, nil
}

// compose builds the record, its body, extra fields and mail.
func (p *Processor) compose(f *form.Form, sub form.Submission, in ClassifyInput, meta RequestMeta, spam bool) *Record {
	now := p.now().UTC()

	template := f.Subject
	if template == "" {
		template = DefaultSubject(p.settings.SiteName, f.Title)
	}
	subject := form.ResolveSubject(template, sub.Labels())

	status := StatusPublished
	mailSubject := subject
	if spam {
		status = StatusSpam
		mailSubject = SpamPrefix + " " + subject
	}

	to, invalid := Recipients(f.To)
	if len(invalid) > 0 {
		p.logger.Warn("ignoring invalid recipients", slog.String("form_id", f.ID), slog.Int("count", len(invalid)))
	}
	if len(to) == 0 {
		to, _ = Recipients(p.settings.DefaultTo)
	}

	return &Record{
		ID:          uuid.New(),
		FormID:      f.ID,
		Status:      status,
		AuthorName:  in.Author,
		AuthorEmail: in.AuthorEmail,
		AuthorURL:   in.AuthorURL,
		Subject:     subject,
		Comment:     in.Comment,
		IPAddress:   meta.IP,
		UserAgent:   meta.UserAgent,
		Referrer:    meta.Referrer,
		Body: BuildBody(sub, BodyHeader{
			Comment:     in.Comment,
			Author:      in.Author,
			AuthorEmail: in.AuthorEmail,
			AuthorURL:   in.AuthorURL,
			Subject:     subject,
			IP:          meta.IP,
		}, spam),
		CreatedAt: now,
		Email: EmailMeta{
			To:      to,
			Subject: mailSubject,
			ReplyTo: in.AuthorEmail,
			Message: BuildMessage(sub, MessageFooter{Time: now, IP: meta.IP, FormURL: f.URL}, p.sanitizer),
		},
		ExtraFields: ExtraFields(sub),
	}
}
