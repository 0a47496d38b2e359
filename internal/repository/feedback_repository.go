package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/welldanyogia/feedback-forms/internal/export"
	"github.com/welldanyogia/feedback-forms/internal/feedback"
	"github.com/welldanyogia/feedback-forms/internal/metrics"
)

const recordColumns = `id, form_id, status, author_name, author_email, author_url, subject,
	comment, ip_address, user_agent, referrer, body, created_at`

// FeedbackRepo stores feedback records and their meta in PostgreSQL
type FeedbackRepo struct {
	db *sqlx.DB
}

// NewFeedbackRepo creates a new FeedbackRepo instance
func NewFeedbackRepo(db *sqlx.DB) *FeedbackRepo {
	return &FeedbackRepo{db: db}
}

// Create inserts the record, its extra fields and its mail meta in one
// transaction. Nothing is written when any statement fails.
func (r *FeedbackRepo) Create(ctx context.Context, record *feedback.Record) error {
	defer metrics.TimeQuery("feedback_create")()

	emailJSON, err := json.Marshal(record.Email)
	if err != nil {
		return &feedback.StorageError{Op: "create", Err: fmt.Errorf("failed to encode mail meta: %w", err)}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return &feedback.StorageError{Op: "create", Err: fmt.Errorf("failed to begin transaction: %w", err)}
	}
	defer tx.Rollback()

	query := `
		INSERT INTO feedback (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = tx.ExecContext(ctx, query,
		record.ID,
		record.FormID,
		record.Status,
		record.AuthorName,
		record.AuthorEmail,
		record.AuthorURL,
		record.Subject,
		record.Comment,
		record.IPAddress,
		record.UserAgent,
		record.Referrer,
		record.Body,
		record.CreatedAt,
	)
	if err != nil {
		return &feedback.StorageError{Op: "create", Err: fmt.Errorf("failed to insert feedback: %w", err)}
	}

	metaQuery := `
		INSERT INTO feedback_meta (feedback_id, meta_key, meta_value, position)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := tx.ExecContext(ctx, metaQuery, record.ID, MetaEmailKey, string(emailJSON), 0); err != nil {
		return &feedback.StorageError{Op: "create", Err: fmt.Errorf("failed to insert mail meta: %w", err)}
	}
	for i, key := range record.ExtraKeys() {
		if _, err := tx.ExecContext(ctx, metaQuery, record.ID, key, record.ExtraFields[key], i+1); err != nil {
			return &feedback.StorageError{Op: "create", Err: fmt.Errorf("failed to insert field %s: %w", key, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &feedback.StorageError{Op: "create", Err: fmt.Errorf("failed to commit transaction: %w", err)}
	}
	return nil
}

// GetByID retrieves a record with its extra fields and mail meta
func (r *FeedbackRepo) GetByID(ctx context.Context, id uuid.UUID) (*feedback.Record, error) {
	defer metrics.TimeQuery("feedback_get")()

	var record feedback.Record
	err := r.db.GetContext(ctx, &record, `SELECT `+recordColumns+` FROM feedback WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, feedback.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get feedback: %w", err)
	}

	rows, err := r.metaRows(ctx, id)
	if err != nil {
		return nil, err
	}
	applyMeta(&record, rows)

	return &record, nil
}

// applyMeta fills the extra fields and mail meta of a record from its rows
func applyMeta(record *feedback.Record, rows []metaRow) {
	record.ExtraFields = make(map[string]string)
	for _, row := range rows {
		switch {
		case row.Key == MetaEmailKey:
			if err := json.Unmarshal([]byte(row.Value), &record.Email); err != nil {
				record.Email = feedback.EmailMeta{}
			}
		case strings.HasPrefix(row.Key, internalMeta):
		default:
			record.ExtraFields[row.Key] = row.Value
		}
	}
}

func (r *FeedbackRepo) metaRows(ctx context.Context, id uuid.UUID) ([]metaRow, error) {
	var rows []metaRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT feedback_id, meta_key, meta_value, position
		FROM feedback_meta
		WHERE feedback_id = $1
		ORDER BY position, meta_key
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback meta: %w", err)
	}
	return rows, nil
}

// List retrieves feedback with pagination and filters
func (r *FeedbackRepo) List(ctx context.Context, params ListFeedbackParams) ([]FeedbackSummary, int, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.Limit < 1 {
		params.Limit = 20
	}
	if params.Limit > 100 {
		params.Limit = 100
	}

	baseQuery := ` FROM feedback WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if params.FormID != "" {
		baseQuery += fmt.Sprintf(" AND form_id = $%d", argIdx)
		args = append(args, params.FormID)
		argIdx++
	}
	if params.Status != "" {
		baseQuery += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, params.Status)
		argIdx++
	}
	if params.Search != "" {
		baseQuery += fmt.Sprintf(` AND (
			subject ILIKE $%d OR
			author_name ILIKE $%d OR
			author_email ILIKE $%d OR
			comment ILIKE $%d
		)`, argIdx, argIdx, argIdx, argIdx)
		args = append(args, "%"+params.Search+"%")
		argIdx++
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*)"+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count feedback: %w", err)
	}

	order := "DESC"
	if params.Order == "asc" {
		order = "ASC"
	}
	selectQuery := `SELECT id, form_id, status, author_name, author_email, subject, comment, created_at` +
		baseQuery +
		fmt.Sprintf(" ORDER BY created_at %s LIMIT $%d OFFSET $%d", order, argIdx, argIdx+1)
	args = append(args, params.Limit, (params.Page-1)*params.Limit)

	rows, err := r.db.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	summaries := []FeedbackSummary{}
	for rows.Next() {
		var s FeedbackSummary
		var comment string
		if err := rows.Scan(&s.ID, &s.FormID, &s.Status, &s.AuthorName, &s.AuthorEmail, &s.Subject, &comment, &s.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan feedback: %w", err)
		}
		s.PreviewText = GeneratePreviewText(comment, 200)
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating feedback: %w", err)
	}

	return summaries, total, nil
}

// MarkSpam moves a published record to spam
func (r *FeedbackRepo) MarkSpam(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `UPDATE feedback SET status = $2 WHERE id = $1`, id, feedback.StatusSpam)
	if err != nil {
		return fmt.Errorf("failed to mark feedback as spam: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return feedback.ErrRecordNotFound
	}
	return nil
}

// Delete deletes a record and, by cascade, its meta
func (r *FeedbackRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM feedback WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete feedback: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return feedback.ErrRecordNotFound
	}
	return nil
}

// DeleteBatch deletes multiple records by their IDs
func (r *FeedbackRepo) DeleteBatch(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	defer metrics.TimeQuery("feedback_delete_batch")()

	query, args := inClause("DELETE FROM feedback WHERE id IN (%s)", ids)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete feedback: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rowsAffected), nil
}

// inClause fills a query's single %s with $1..$n placeholders for ids
func inClause(format string, ids []uuid.UUID) (string, []interface{}) {
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	return fmt.Sprintf(format, strings.Join(placeholders, ", ")), args
}

// ListSpamBefore returns up to limit spam record IDs created before cutoff,
// oldest first
func (r *FeedbackRepo) ListSpamBefore(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, `
		SELECT id FROM feedback
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at
		LIMIT $3
	`, feedback.StatusSpam, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list old spam: %w", err)
	}
	return ids, nil
}

// FindBySubmitter returns one page of records whose author email matches,
// case-insensitively, newest first
func (r *FeedbackRepo) FindBySubmitter(ctx context.Context, email string, limit, offset int) ([]*feedback.Record, error) {
	defer metrics.TimeQuery("feedback_find_by_submitter")()

	var records []*feedback.Record
	err := r.db.SelectContext(ctx, &records, `
		SELECT `+recordColumns+`
		FROM feedback
		WHERE LOWER(author_email) = LOWER($1)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, strings.TrimSpace(email), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to find feedback by submitter: %w", err)
	}
	return records, nil
}

// ParsedFieldContents implements export.Source. A missing record yields an
// empty map.
func (r *FeedbackRepo) ParsedFieldContents(ctx context.Context, id uuid.UUID) (map[string]string, error) {
	var record feedback.Record
	err := r.db.GetContext(ctx, &record, `SELECT `+recordColumns+` FROM feedback WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to get feedback fields: %w", err)
	}
	return record.ParsedFields(), nil
}

// MetaForExport implements export.Source. Internal meta keys are left out.
func (r *FeedbackRepo) MetaForExport(ctx context.Context, id uuid.UUID) ([]export.Cell, error) {
	rows, err := r.metaRows(ctx, id)
	if err != nil {
		return nil, err
	}
	return exportCells(rows), nil
}

func exportCells(rows []metaRow) []export.Cell {
	var cells []export.Cell
	for _, row := range rows {
		if strings.HasPrefix(row.Key, internalMeta) {
			continue
		}
		cells = append(cells, export.Cell{Column: row.Key, Value: row.Value})
	}
	return cells
}

// ContentForExport implements export.Source. It returns the comment part of
// the body, or "" for a missing record.
func (r *FeedbackRepo) ContentForExport(ctx context.Context, id uuid.UUID) (string, error) {
	var body string
	err := r.db.GetContext(ctx, &body, `SELECT body FROM feedback WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get feedback body: %w", err)
	}
	return feedback.CommentFromBody(body), nil
}

// CountByStatus returns the number of records per status
func (r *FeedbackRepo) CountByStatus(ctx context.Context) (map[feedback.Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM feedback GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count feedback: %w", err)
	}
	defer rows.Close()

	counts := map[feedback.Status]int{feedback.StatusPublished: 0, feedback.StatusSpam: 0}
	for rows.Next() {
		var status feedback.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
