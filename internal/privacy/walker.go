// Package privacy erases and exports the feedback left by one submitter.
package privacy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/welldanyogia/feedback-forms/internal/export"
	"github.com/welldanyogia/feedback-forms/internal/feedback"
	"github.com/welldanyogia/feedback-forms/internal/logger"
	"github.com/welldanyogia/feedback-forms/internal/metrics"
)

// DefaultPageSize bounds one erase or export call.
const DefaultPageSize = 500

// Export item group.
const (
	GroupID    = "feedback"
	GroupLabel = "Feedback"
)

// ErrNoIdentity is returned for a blank submitter email.
var ErrNoIdentity = errors.New("submitter email is required")

// Store finds and deletes records by submitter.
type Store interface {
	FindBySubmitter(ctx context.Context, email string, limit, offset int) ([]*feedback.Record, error)
	DeleteBatch(ctx context.Context, ids []uuid.UUID) (int, error)
	MetaForExport(ctx context.Context, id uuid.UUID) ([]export.Cell, error)
}

// Erasure is the outcome of one erase call.
type Erasure struct {
	ItemsRemoved int  `json:"items_removed"`
	Done         bool `json:"done"`
}

// NameValue is one exported datum.
type NameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ExportItem is one record in a personal data export.
type ExportItem struct {
	GroupID    string      `json:"group_id"`
	GroupLabel string      `json:"group_label"`
	ItemID     string      `json:"item_id"`
	Data       []NameValue `json:"data"`
}

// PersonalData is one page of a personal data export.
type PersonalData struct {
	Items []ExportItem `json:"items"`
	Done  bool         `json:"done"`
}

// Walker pages through a submitter's records.
type Walker struct {
	store  Store
	logger *slog.Logger
}

// NewWalker creates a Walker.
func NewWalker(store Store, log *slog.Logger) *Walker {
	if log == nil {
		log = slog.Default()
	}
	return &Walker{store: store, logger: log}
}

func normalize(email string, page, size int) (string, int, int, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", 0, 0, ErrNoIdentity
	}
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	return email, page, size, nil
}

// Erase deletes the records on one page of the submitter's match set. The
// set is queried again on every call, so records deleted by an earlier call
// no longer occupy a page. Done reports that the page was not full.
func (w *Walker) Erase(ctx context.Context, email string, page, size int) (Erasure, error) {
	email, page, size, err := normalize(email, page, size)
	if err != nil {
		return Erasure{}, err
	}

	records, err := w.store.FindBySubmitter(ctx, email, size, (page-1)*size)
	if err != nil {
		return Erasure{}, fmt.Errorf("failed to find records: %w", err)
	}
	if len(records) == 0 {
		return Erasure{Done: true}, nil
	}

	ids := make([]uuid.UUID, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	removed, err := w.store.DeleteBatch(ctx, ids)
	if err != nil {
		return Erasure{}, fmt.Errorf("failed to delete records: %w", err)
	}
	metrics.RecordDeleted("erasure", removed)

	w.logger.Info("erased submitter records",
		slog.String("author_email", logger.MaskValue(email)),
		slog.Int("page", page),
		slog.Int("removed", removed),
	)

	return Erasure{ItemsRemoved: removed, Done: len(records) < size}, nil
}

// EraseAll erases page 1 until the match set is empty and returns the total
// removed.
func (w *Walker) EraseAll(ctx context.Context, email string, size int) (int, error) {
	total := 0
	for {
		res, err := w.Erase(ctx, email, 1, size)
		if err != nil {
			return total, err
		}
		total += res.ItemsRemoved
		if res.Done || res.ItemsRemoved == 0 {
			return total, nil
		}
	}
}

// Export returns one page of the submitter's records as name/value data.
// Empty values are left out.
func (w *Walker) Export(ctx context.Context, email string, page, size int) (*PersonalData, error) {
	email, page, size, err := normalize(email, page, size)
	if err != nil {
		return nil, err
	}

	records, err := w.store.FindBySubmitter(ctx, email, size, (page-1)*size)
	if err != nil {
		return nil, fmt.Errorf("failed to find records: %w", err)
	}

	out := &PersonalData{Items: make([]ExportItem, 0, len(records)), Done: len(records) < size}
	for _, r := range records {
		meta, err := w.store.MetaForExport(ctx, r.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to read meta of %s: %w", r.ID, err)
		}
		out.Items = append(out.Items, ExportItem{
			GroupID:    GroupID,
			GroupLabel: GroupLabel,
			ItemID:     "feedback-" + r.ID.String(),
			Data:       itemData(r, meta),
		})
	}
	return out, nil
}

func itemData(r *feedback.Record, meta []export.Cell) []NameValue {
	cells := append(export.MapFieldNames(r.ParsedFields()), meta...)
	data := make([]NameValue, 0, len(cells))
	for _, c := range cells {
		if c.Value == "" {
			continue
		}
		data = append(data, NameValue{Name: c.Column, Value: c.Value})
	}
	return data
}
