package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/welldanyogia/feedback-forms/internal/form"
)

// ErrFormNotFound is returned when a form id does not exist
var ErrFormNotFound = errors.New("form not found")

// FormRepo stores form definitions
type FormRepo struct {
	db *sqlx.DB
}

// NewFormRepo creates a new FormRepo instance
func NewFormRepo(db *sqlx.DB) *FormRepo {
	return &FormRepo{db: db}
}

// formRow is the stored shape of a form. Fields are rebuilt from content.
type formRow struct {
	ID      string `db:"id"`
	Title   string `db:"title"`
	URL     string `db:"url"`
	To      string `db:"recipients"`
	Subject string `db:"subject"`
	Content string `db:"content"`
}

func (row formRow) toForm() (*form.Form, error) {
	f, err := form.New(row.ID, row.Title, row.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse form %s: %w", row.ID, err)
	}
	f.URL = row.URL
	f.To = row.To
	f.Subject = row.Subject
	return f, nil
}

// Get retrieves a form by ID with its field definitions
func (r *FormRepo) Get(ctx context.Context, id string) (*form.Form, error) {
	var row formRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, title, url, recipients, subject, content
		FROM forms
		WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFormNotFound
		}
		return nil, fmt.Errorf("failed to get form: %w", err)
	}
	return row.toForm()
}

// Upsert creates a form or replaces the stored one with the same ID
func (r *FormRepo) Upsert(ctx context.Context, f *form.Form) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO forms (id, title, url, recipients, subject, content)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			url = EXCLUDED.url,
			recipients = EXCLUDED.recipients,
			subject = EXCLUDED.subject,
			content = EXCLUDED.content,
			updated_at = NOW()
	`, f.ID, f.Title, f.URL, f.To, f.Subject, f.Content)
	if err != nil {
		return fmt.Errorf("failed to save form: %w", err)
	}
	return nil
}

// List retrieves all forms ordered by ID
func (r *FormRepo) List(ctx context.Context) ([]*form.Form, error) {
	var rows []formRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, title, url, recipients, subject, content
		FROM forms
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list forms: %w", err)
	}

	forms := make([]*form.Form, 0, len(rows))
	for _, row := range rows {
		f, err := row.toForm()
		if err != nil {
			return nil, err
		}
		forms = append(forms, f)
	}
	return forms, nil
}

// Delete deletes a form. Stored feedback keeps its form_id.
func (r *FormRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM forms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete form: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrFormNotFound
	}
	return nil
}
