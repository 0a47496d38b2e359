// Package export merges stored feedback records into a column table and
// renders it as CSV.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/welldanyogia/feedback-forms/internal/feedback"
	"github.com/welldanyogia/feedback-forms/internal/metrics"
)

// Column names for the canonical fields.
const (
	ColumnForm    = "Contact Form"
	ColumnName    = "1_Name"
	ColumnEmail   = "2_Email"
	ColumnWebsite = "3_Website"
)

// Cell is one named value of a record.
type Cell struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

// Source supplies the per-record lookups. Absent data is returned as an
// empty map, nil slice or empty string, never as an error.
type Source interface {
	// ParsedFieldContents returns the record's values keyed by internal
	// field name. An empty result means the record is skipped.
	ParsedFieldContents(ctx context.Context, id uuid.UUID) (map[string]string, error)
	// MetaForExport returns the record's extra columns in form order.
	MetaForExport(ctx context.Context, id uuid.UUID) ([]Cell, error)
	// ContentForExport returns the free-text comment of the record.
	ContentForExport(ctx context.Context, id uuid.UUID) (string, error)
}

// Table is the merged export. Every column has one value per exported
// record, in record order.
type Table struct {
	Columns []string            `json:"columns"`
	Values  map[string][]string `json:"values"`
}

// Rows returns the number of records in the table.
func (t *Table) Rows() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return len(t.Values[t.Columns[0]])
}

// Row returns the i-th record's values in column order.
func (t *Table) Row(i int) []string {
	row := make([]string, len(t.Columns))
	for j, col := range t.Columns {
		row[j] = t.Values[col][i]
	}
	return row
}

// MapFieldNames converts internal field names to export column names.
// The author email is only emitted when non-empty. Unrecognised keys pass
// through in sorted order, before the comment column, whose number counts
// the numbered canonical columns and the custom keys.
func MapFieldNames(parsed map[string]string) []Cell {
	var cells []Cell

	if v, ok := parsed[feedback.KeySubject]; ok {
		cells = append(cells, Cell{ColumnForm, v})
	}
	if v, ok := parsed[feedback.KeyAuthor]; ok {
		cells = append(cells, Cell{ColumnName, v})
	}
	if v := parsed[feedback.KeyAuthorEmail]; v != "" {
		cells = append(cells, Cell{ColumnEmail, v})
	}
	if v, ok := parsed[feedback.KeyAuthorURL]; ok {
		cells = append(cells, Cell{ColumnWebsite, v})
	}

	custom := make([]string, 0, len(parsed))
	for k := range parsed {
		if !isCanonicalKey(k) {
			custom = append(custom, k)
		}
	}
	sort.Strings(custom)
	for _, k := range custom {
		cells = append(cells, Cell{k, parsed[k]})
	}

	if v, ok := parsed[feedback.KeyMainComment]; ok {
		cells = append(cells, Cell{CommentColumn(len(custom)), v})
	}
	return cells
}

// CommentColumn names the comment column for a record with custom keys.
func CommentColumn(custom int) string {
	return strconv.Itoa(3+custom+1) + "_Comment"
}

// withMeta places the meta columns after the canonical columns and before
// the custom and comment columns.
func withMeta(mapped, meta []Cell) []Cell {
	n := 0
	for n < len(mapped) && isHeadColumn(mapped[n].Column) {
		n++
	}
	out := make([]Cell, 0, len(mapped)+len(meta))
	out = append(out, mapped[:n]...)
	out = append(out, meta...)
	return append(out, mapped[n:]...)
}

func isHeadColumn(c string) bool {
	return c == ColumnForm || c == ColumnName || c == ColumnEmail || c == ColumnWebsite
}

func isCanonicalKey(k string) bool {
	switch k {
	case feedback.KeySubject, feedback.KeyAuthor, feedback.KeyAuthorEmail,
		feedback.KeyAuthorURL, feedback.KeyMainComment:
		return true
	}
	return false
}

// Aggregator builds export tables from a Source.
type Aggregator struct {
	source Source
	logger *slog.Logger
}

// NewAggregator creates an Aggregator.
func NewAggregator(source Source, log *slog.Logger) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{source: source, logger: log}
}

type cellKey struct {
	row    int
	column string
}

// Export merges the records in ids order. A record whose parsed fields are
// empty is skipped without any further lookups. Columns are ordered by
// first appearance; a record lacking a column gets an empty cell, including
// columns first seen in later records.
func (a *Aggregator) Export(ctx context.Context, ids []uuid.UUID) (*Table, error) {
	var columns []string
	seen := make(map[string]bool)
	cells := make(map[cellKey]string)
	rows := 0

	for _, id := range ids {
		parsed, err := a.source.ParsedFieldContents(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to read fields of %s: %w", id, err)
		}
		if len(parsed) == 0 {
			a.logger.Debug("skipping record without fields", slog.String("record_id", id.String()))
			continue
		}

		meta, err := a.source.MetaForExport(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to read meta of %s: %w", id, err)
		}
		content, err := a.source.ContentForExport(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to read content of %s: %w", id, err)
		}

		fields := make(map[string]string, len(parsed)+1)
		for k, v := range parsed {
			fields[k] = v
		}
		fields[feedback.KeyMainComment] = content

		for _, c := range withMeta(MapFieldNames(fields), meta) {
			if !seen[c.Column] {
				seen[c.Column] = true
				columns = append(columns, c.Column)
			}
			cells[cellKey{rows, c.Column}] = c.Value
		}
		rows++
	}

	table := &Table{Columns: columns, Values: make(map[string][]string, len(columns))}
	for _, col := range columns {
		values := make([]string, rows)
		for r := 0; r < rows; r++ {
			values[r] = cells[cellKey{r, col}]
		}
		table.Values[col] = values
	}

	metrics.ExportRowsTotal.Add(float64(rows))
	return table, nil
}
