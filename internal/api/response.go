// Package api exposes the feedback pipeline, exports and privacy tools over
// HTTP.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/welldanyogia/feedback-forms/internal/field"
)

// Error codes
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeInvalidField    = "INVALID_FIELD"
	CodeFormNotFound    = "FORM_NOT_FOUND"
	CodeRecordNotFound  = "FEEDBACK_NOT_FOUND"
	CodeRejected        = "SUBMISSION_REJECTED"
	CodeStorageError    = "STORAGE_ERROR"
	CodeNotConfigured   = "NOT_CONFIGURED"
	CodeInternalError   = "INTERNAL_ERROR"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// APIResponse is the envelope every JSON endpoint answers with
type APIResponse struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// APIError describes a failed request. Details maps a field or problem
// code to its messages.
type APIError struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details map[string][]string `json:"details,omitempty"`
}

var validate = validator.New()

func writeEnvelope(w http.ResponseWriter, status int, env APIResponse) {
	env.Timestamp = time.Now().UTC()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, APIResponse{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string, details map[string][]string) {
	writeEnvelope(w, status, APIResponse{Error: &APIError{Code: code, Message: message, Details: details}})
}

// decodeJSON reads a JSON body into dst and validates it. It writes the
// error response itself and reports whether the handler should go on.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body", nil)
		return false
	}
	return validateRequest(w, dst)
}

func validateRequest(w http.ResponseWriter, req any) bool {
	err := validate.Struct(req)
	if err == nil {
		return true
	}
	var (
		details map[string][]string
		verrs   validator.ValidationErrors
	)
	if errors.As(err, &verrs) {
		details = validationDetails(verrs)
	}
	writeError(w, http.StatusBadRequest, CodeValidationError, "Request validation failed", details)
	return false
}

func validationDetails(verrs validator.ValidationErrors) map[string][]string {
	details := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		name := strings.ToLower(fe.Field())
		msg := "failed " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		details[name] = append(details[name], msg)
	}
	return details
}

// fieldDetails lists field problems by field id, or by label when a
// problem has no id.
func fieldDetails(verr *field.ValidationError) map[string][]string {
	details := make(map[string][]string, len(verr.Fields))
	for _, fe := range verr.Fields {
		key := fe.FieldID
		if key == "" {
			key = fe.Code
		}
		details[key] = append(details[key], fe.Message)
	}
	return details
}
