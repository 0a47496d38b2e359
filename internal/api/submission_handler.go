package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/welldanyogia/feedback-forms/internal/feedback"
	"github.com/welldanyogia/feedback-forms/internal/field"
	"github.com/welldanyogia/feedback-forms/internal/form"
	"github.com/welldanyogia/feedback-forms/internal/logger"
	"github.com/welldanyogia/feedback-forms/internal/repository"
)

// FormStore loads forms by id
type FormStore interface {
	Get(ctx context.Context, id string) (*form.Form, error)
}

// SubmissionProcessor runs one submission through the pipeline
type SubmissionProcessor interface {
	Process(ctx context.Context, f *form.Form, raw map[string][]string, meta feedback.RequestMeta) (*feedback.Result, error)
}

// SubmissionHandler handles the public form endpoints
type SubmissionHandler struct {
	forms     FormStore
	processor SubmissionProcessor
	siteName  string
	logger    *slog.Logger
}

// NewSubmissionHandler creates a new SubmissionHandler instance. siteName
// titles the built-in form when no stored form overrides it.
func NewSubmissionHandler(forms FormStore, processor SubmissionProcessor, siteName string, log *slog.Logger) *SubmissionHandler {
	if log == nil {
		log = slog.Default()
	}
	return &SubmissionHandler{
		forms:     forms,
		processor: processor,
		siteName:  siteName,
		logger:    log,
	}
}

// ParseField handles POST /api/v1/fields/parse
func (h *SubmissionHandler) ParseField(w http.ResponseWriter, r *http.Request) {
	var req ParseFieldRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	canonical, err := field.CanonicalString(req.Tag)
	if err != nil {
		h.writeFieldError(w, err)
		return
	}
	defs, err := field.ParseDefinitions(canonical)
	if err != nil {
		h.writeFieldError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, ParseFieldResponse{
		Canonical:   canonical,
		Definitions: defs,
	})
}

func (h *SubmissionHandler) writeFieldError(w http.ResponseWriter, err error) {
	var verr *field.ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusUnprocessableEntity, CodeInvalidField, verr.Error(), fieldDetails(verr))
		return
	}
	writeError(w, http.StatusInternalServerError, CodeInternalError, "An unexpected error occurred", nil)
}

// Submit handles POST /api/v1/forms/{formID}/submissions. The body is
// either form-encoded (as posted by a browser) or a JSON object of field
// id to string or string array.
func (h *SubmissionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	log := logger.WithCorrelationID(r.Context(), h.logger)
	formID := chi.URLParam(r, "formID")

	f, err := h.loadForm(r.Context(), formID)
	if err != nil {
		if errors.Is(err, repository.ErrFormNotFound) {
			writeError(w, http.StatusNotFound, CodeFormNotFound, "Form not found", nil)
			return
		}
		log.Error("failed to load form", slog.String("form_id", formID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to load form", nil)
		return
	}

	raw, err := readSubmission(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body", nil)
		return
	}

	result, err := h.processor.Process(r.Context(), f, raw, requestMeta(r))
	if err != nil {
		var verr *field.ValidationError
		var rej *feedback.RejectionError
		var serr *feedback.StorageError
		switch {
		case errors.As(err, &verr):
			writeError(w, http.StatusUnprocessableEntity, CodeValidationError, "Please correct the highlighted fields", fieldDetails(verr))
		case errors.As(err, &rej):
			writeError(w, http.StatusForbidden, CodeRejected, rej.Message, nil)
		case errors.As(err, &serr):
			writeError(w, http.StatusInternalServerError, CodeStorageError, "Your message could not be saved", nil)
		default:
			log.Error("submission failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, CodeInternalError, "An unexpected error occurred", nil)
		}
		return
	}

	writeSuccess(w, http.StatusCreated, result)
}

// loadForm returns the stored form, or the built-in form for the default id
// when none is stored.
func (h *SubmissionHandler) loadForm(ctx context.Context, id string) (*form.Form, error) {
	f, err := h.forms.Get(ctx, id)
	if errors.Is(err, repository.ErrFormNotFound) && id == form.DefaultID {
		return form.Default(h.siteName), nil
	}
	return f, err
}

func readSubmission(w http.ResponseWriter, r *http.Request) (map[string][]string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/json":
		return readJSONSubmission(io.LimitReader(r.Body, maxBodyBytes))
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			return nil, err
		}
		return r.MultipartForm.Value, nil
	default:
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		return r.PostForm, nil
	}
}

func readJSONSubmission(body io.Reader) (map[string][]string, error) {
	var in map[string]interface{}
	if err := json.NewDecoder(body).Decode(&in); err != nil {
		return nil, err
	}

	raw := make(map[string][]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case nil:
		case string:
			raw[k] = []string{val}
		case []interface{}:
			for _, item := range val {
				if item != nil {
					raw[k] = append(raw[k], fmt.Sprint(item))
				}
			}
		default:
			raw[k] = []string{fmt.Sprint(val)}
		}
	}
	return raw, nil
}

func requestMeta(r *http.Request) feedback.RequestMeta {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return feedback.RequestMeta{
		IP:        ip,
		UserAgent: r.UserAgent(),
		Referrer:  r.Referer(),
	}
}
