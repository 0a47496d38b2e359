package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterPublicRoutes registers the field parser and submission routes.
// No authentication is required.
func RegisterPublicRoutes(r chi.Router, handler *SubmissionHandler) {
	// POST /api/v1/fields/parse - Canonicalize a field tag
	r.Post("/fields/parse", handler.ParseField)

	// POST /api/v1/forms/:formID/submissions - Submit a form
	r.Post("/forms/{formID}/submissions", handler.Submit)
}

// RegisterAdminRoutes registers operator routes behind authMiddleware.
// heavy limits the routes that scan or delete many records.
func RegisterAdminRoutes(r chi.Router, handler *AdminHandler, authMiddleware, heavy func(next http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)

		// GET /api/v1/feedback - List feedback
		r.Get("/feedback", handler.ListFeedback)

		// GET /api/v1/feedback/stats - Record counts by status
		r.Get("/feedback/stats", handler.Stats)

		// GET /api/v1/feedback/:id - Get one record
		r.Get("/feedback/{id}", handler.GetFeedback)

		// POST /api/v1/feedback/:id/spam - Mark a record as spam
		r.Post("/feedback/{id}/spam", handler.MarkSpam)

		// DELETE /api/v1/feedback/:id - Delete a record
		r.Delete("/feedback/{id}", handler.DeleteFeedback)

		// GET /api/v1/privacy/export - Personal data export for one submitter
		r.Get("/privacy/export", handler.PersonalData)

		r.Group(func(r chi.Router) {
			r.Use(heavy)

			// GET /api/v1/feedback/export - CSV export of selected records
			r.Get("/feedback/export", handler.ExportCSV)

			// POST /api/v1/feedback/export/archive - Store an export in the bucket
			r.Post("/feedback/export/archive", handler.ArchiveExport)

			// POST /api/v1/privacy/erase - Erase one page of a submitter's records
			r.Post("/privacy/erase", handler.Erase)

			// POST /api/v1/maintenance/sweep-spam - Delete aged spam now
			r.Post("/maintenance/sweep-spam", handler.SweepSpam)
		})
	})
}
