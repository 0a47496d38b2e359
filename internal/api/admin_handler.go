package api

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/welldanyogia/feedback-forms/internal/export"
	"github.com/welldanyogia/feedback-forms/internal/feedback"
	"github.com/welldanyogia/feedback-forms/internal/logger"
	"github.com/welldanyogia/feedback-forms/internal/metrics"
	"github.com/welldanyogia/feedback-forms/internal/privacy"
	"github.com/welldanyogia/feedback-forms/internal/repository"
	"github.com/welldanyogia/feedback-forms/internal/retention"
)

// Exporter merges records into an export table
type Exporter interface {
	Export(ctx context.Context, ids []uuid.UUID) (*export.Table, error)
}

// ArchiveUploader stores an export table and returns a download link
type ArchiveUploader interface {
	Upload(ctx context.Context, t *export.Table) (*export.Archive, error)
}

// FeedbackStore reads and moderates stored feedback
type FeedbackStore interface {
	List(ctx context.Context, params repository.ListFeedbackParams) ([]repository.FeedbackSummary, int, error)
	GetByID(ctx context.Context, id uuid.UUID) (*feedback.Record, error)
	MarkSpam(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountByStatus(ctx context.Context) (map[feedback.Status]int, error)
}

// PrivacyWalker erases and exports a submitter's records
type PrivacyWalker interface {
	Erase(ctx context.Context, email string, page, size int) (privacy.Erasure, error)
	EraseAll(ctx context.Context, email string, size int) (int, error)
	Export(ctx context.Context, email string, page, size int) (*privacy.PersonalData, error)
}

// SpamSweeper deletes aged spam
type SpamSweeper interface {
	SweepOldSpam(ctx context.Context, threshold time.Duration) (int, error)
}

// AdminConfig holds the collaborators of an AdminHandler. Archiver may be
// nil when no bucket is configured.
type AdminConfig struct {
	Records  FeedbackStore
	Exporter Exporter
	Archiver ArchiveUploader
	Privacy  PrivacyWalker
	Sweeper  SpamSweeper
	// SpamThreshold is used when a sweep request names no threshold.
	SpamThreshold time.Duration
	Logger        *slog.Logger
}

// AdminHandler handles the operator endpoints
type AdminHandler struct {
	records       FeedbackStore
	exporter      Exporter
	archiver      ArchiveUploader
	privacy       PrivacyWalker
	sweeper       SpamSweeper
	spamThreshold time.Duration
	logger        *slog.Logger
}

// NewAdminHandler creates a new AdminHandler instance
func NewAdminHandler(cfg AdminConfig) *AdminHandler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	threshold := cfg.SpamThreshold
	if threshold <= 0 {
		threshold = retention.DefaultThreshold
	}
	return &AdminHandler{
		records:       cfg.Records,
		exporter:      cfg.Exporter,
		archiver:      cfg.Archiver,
		privacy:       cfg.Privacy,
		sweeper:       cfg.Sweeper,
		spamThreshold: threshold,
		logger:        log,
	}
}

// ListFeedback handles GET /api/v1/feedback
func (h *AdminHandler) ListFeedback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := repository.ListFeedbackParams{
		Page:   queryInt(q.Get("page"), 1),
		Limit:  queryInt(q.Get("limit"), 20),
		FormID: q.Get("form_id"),
		Search: q.Get("search"),
		Order:  q.Get("order"),
	}
	if params.Limit > 100 {
		params.Limit = 100
	}
	switch status := feedback.Status(q.Get("status")); status {
	case feedback.StatusPublished, feedback.StatusSpam:
		params.Status = status
	}

	items, total, err := h.records.List(r.Context(), params)
	if err != nil {
		h.internalError(w, r, "Failed to list feedback", err)
		return
	}

	writeSuccess(w, http.StatusOK, ListFeedbackResponse{
		Feedback: items,
		Pagination: PaginationInfo{
			CurrentPage: params.Page,
			PerPage:     params.Limit,
			TotalPages:  CalculateTotalPages(total, params.Limit),
			TotalCount:  total,
		},
	})
}

// GetFeedback handles GET /api/v1/feedback/{id}
func (h *AdminHandler) GetFeedback(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	record, err := h.records.GetByID(r.Context(), id)
	if err != nil {
		h.recordError(w, r, "Failed to get feedback", err)
		return
	}
	writeSuccess(w, http.StatusOK, record)
}

// MarkSpam handles POST /api/v1/feedback/{id}/spam
func (h *AdminHandler) MarkSpam(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.records.MarkSpam(r.Context(), id); err != nil {
		h.recordError(w, r, "Failed to mark feedback as spam", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"id": id.String(), "status": string(feedback.StatusSpam)})
}

// DeleteFeedback handles DELETE /api/v1/feedback/{id}
func (h *AdminHandler) DeleteFeedback(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.records.Delete(r.Context(), id); err != nil {
		h.recordError(w, r, "Failed to delete feedback", err)
		return
	}
	metrics.RecordDeleted("operator", 1)
	w.WriteHeader(http.StatusNoContent)
}

// Stats handles GET /api/v1/feedback/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.records.CountByStatus(r.Context())
	if err != nil {
		h.internalError(w, r, "Failed to count feedback", err)
		return
	}
	writeSuccess(w, http.StatusOK, counts)
}

// ExportCSV handles GET /api/v1/feedback/export?ids=a,b and streams the
// merged table as CSV.
func (h *AdminHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	ids, ok := parseIDs(w, strings.Split(r.URL.Query().Get("ids"), ","))
	if !ok {
		return
	}

	table, err := h.exporter.Export(r.Context(), ids)
	if err != nil {
		h.internalError(w, r, "Failed to export feedback", err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, table); err != nil {
		h.internalError(w, r, "Failed to export feedback", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="feedback-export-`+time.Now().UTC().Format("2006-01-02")+`.csv"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// ArchiveExport handles POST /api/v1/feedback/export/archive
func (h *AdminHandler) ArchiveExport(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		writeError(w, http.StatusServiceUnavailable, CodeNotConfigured, "Export storage is not configured", nil)
		return
	}

	var req ArchiveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ids, ok := parseIDs(w, req.IDs)
	if !ok {
		return
	}

	table, err := h.exporter.Export(r.Context(), ids)
	if err != nil {
		h.internalError(w, r, "Failed to export feedback", err)
		return
	}
	archive, err := h.archiver.Upload(r.Context(), table)
	if err != nil {
		h.internalError(w, r, "Failed to store export", err)
		return
	}

	writeSuccess(w, http.StatusCreated, archive)
}

// Erase handles POST /api/v1/privacy/erase
func (h *AdminHandler) Erase(w http.ResponseWriter, r *http.Request) {
	var req EraseRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.All {
		removed, err := h.privacy.EraseAll(r.Context(), req.Email, req.PageSize)
		if err != nil {
			h.internalError(w, r, "Failed to erase feedback", err)
			return
		}
		writeSuccess(w, http.StatusOK, EraseResponse{ItemsRemoved: removed, Done: true})
		return
	}

	page := req.Page
	if page == 0 {
		page = 1
	}
	res, err := h.privacy.Erase(r.Context(), req.Email, page, req.PageSize)
	if err != nil {
		h.internalError(w, r, "Failed to erase feedback", err)
		return
	}
	writeSuccess(w, http.StatusOK, EraseResponse{ItemsRemoved: res.ItemsRemoved, Done: res.Done})
}

// PersonalData handles GET /api/v1/privacy/export?email=&page=&page_size=
func (h *AdminHandler) PersonalData(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := PersonalDataQuery{
		Email:    strings.TrimSpace(q.Get("email")),
		Page:     queryInt(q.Get("page"), 1),
		PageSize: queryInt(q.Get("page_size"), privacy.DefaultPageSize),
	}
	if !validateRequest(w, &query) {
		return
	}

	data, err := h.privacy.Export(r.Context(), query.Email, query.Page, query.PageSize)
	if err != nil {
		h.internalError(w, r, "Failed to export personal data", err)
		return
	}
	writeSuccess(w, http.StatusOK, data)
}

// SweepSpam handles POST /api/v1/maintenance/sweep-spam
func (h *AdminHandler) SweepSpam(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}

	threshold := h.spamThreshold
	if req.ThresholdDays > 0 {
		threshold = time.Duration(req.ThresholdDays) * 24 * time.Hour
	}

	deleted, err := h.sweeper.SweepOldSpam(r.Context(), threshold)
	if err != nil {
		h.internalError(w, r, "Failed to sweep spam", err)
		return
	}
	writeSuccess(w, http.StatusOK, SweepResponse{
		Deleted:       deleted,
		ThresholdDays: int(threshold / (24 * time.Hour)),
	})
}

func (h *AdminHandler) internalError(w http.ResponseWriter, r *http.Request, message string, err error) {
	logger.WithCorrelationID(r.Context(), h.logger).Error(message, slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, CodeInternalError, message, nil)
}

func (h *AdminHandler) recordError(w http.ResponseWriter, r *http.Request, message string, err error) {
	if errors.Is(err, feedback.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, CodeRecordNotFound, "Feedback not found", nil)
		return
	}
	h.internalError(w, r, message, err)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid record id", nil)
		return uuid.Nil, false
	}
	return id, true
}

// parseIDs parses record ids, skipping blanks. It writes a 400 response
// for an invalid or empty list.
func parseIDs(w http.ResponseWriter, raw []string) ([]uuid.UUID, bool) {
	ids := make([]uuid.UUID, 0, len(raw))
	var invalid []string
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := uuid.Parse(s)
		if err != nil {
			invalid = append(invalid, s)
			continue
		}
		ids = append(ids, id)
	}
	if len(invalid) > 0 {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid record id", map[string][]string{"ids": invalid})
		return nil, false
	}
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, CodeValidationError, "At least one record id is required", nil)
		return nil, false
	}
	return ids, true
}

func queryInt(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return def
}
