package privacy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"pgregory.net/rapid"

	"github.com/welldanyogia/feedback-forms/internal/export"
	"github.com/welldanyogia/feedback-forms/internal/feedback"
)

// MockStore is an in-memory record store ordered newest first
type MockStore struct {
	mu      sync.Mutex
	records []*feedback.Record
	meta    map[uuid.UUID][]export.Cell
	findErr error

	findCalls int
}

func NewMockStore() *MockStore {
	return &MockStore{meta: make(map[uuid.UUID][]export.Cell)}
}

func (m *MockStore) Add(email string, createdAt time.Time) *feedback.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := &feedback.Record{
		ID:          uuid.New(),
		AuthorName:  "John Doe",
		AuthorEmail: email,
		CreatedAt:   createdAt,
	}
	m.records = append(m.records, r)
	sort.SliceStable(m.records, func(i, j int) bool {
		return m.records[i].CreatedAt.After(m.records[j].CreatedAt)
	})
	return r
}

func (m *MockStore) FindBySubmitter(ctx context.Context, email string, limit, offset int) ([]*feedback.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findCalls++
	if m.findErr != nil {
		return nil, m.findErr
	}
	var matched []*feedback.Record
	for _, r := range m.records {
		if strings.EqualFold(r.AuthorEmail, email) {
			matched = append(matched, r)
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (m *MockStore) DeleteBatch(ctx context.Context, ids []uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := m.records[:0]
	deleted := 0
	for _, r := range m.records {
		if drop[r.ID] {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept
	return deleted, nil
}

func (m *MockStore) MetaForExport(ctx context.Context, id uuid.UUID) ([]export.Cell, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meta[id], nil
}

func (m *MockStore) Count(email string) int {
	n, _ := m.FindBySubmitter(context.Background(), email, 1<<30, 0)
	return len(n)
}

func seed(store *MockStore, email string, n int) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		store.Add(email, base.Add(time.Duration(i)*time.Minute))
	}
}

func TestErase_RemovesOnePage(t *testing.T) {
	store := NewMockStore()
	seed(store, "john@example.com", 5)
	seed(store, "jane@example.com", 2)
	w := NewWalker(store, nil)

	res, err := w.Erase(context.Background(), "John@Example.com", 1, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ItemsRemoved != 2 || res.Done {
		t.Errorf("expected 2 removed and not done, got %+v", res)
	}
	if got := store.Count("john@example.com"); got != 3 {
		t.Errorf("expected 3 records left, got %d", got)
	}
	if got := store.Count("jane@example.com"); got != 2 {
		t.Errorf("other submitter touched: %d left", got)
	}
}

func TestErase_PageBeyondMatchSet(t *testing.T) {
	store := NewMockStore()
	seed(store, "john@example.com", 2)
	w := NewWalker(store, nil)

	res, err := w.Erase(context.Background(), "john@example.com", 3, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ItemsRemoved != 0 || !res.Done {
		t.Errorf("expected nothing removed and done, got %+v", res)
	}
}

func TestErase_IncrementingPagesSkipShiftedRecords(t *testing.T) {
	store := NewMockStore()
	seed(store, "john@example.com", 4)
	w := NewWalker(store, nil)
	ctx := context.Background()

	if _, err := w.Erase(ctx, "john@example.com", 1, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// page 2 of the re-queried set is the third original record
	if _, err := w.Erase(ctx, "john@example.com", 2, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := store.Count("john@example.com"); got != 2 {
		t.Errorf("expected 2 records left, got %d", got)
	}
}

func TestErase_BlankEmail(t *testing.T) {
	store := NewMockStore()
	w := NewWalker(store, nil)

	_, err := w.Erase(context.Background(), "   ", 1, 10)
	if !errors.Is(err, ErrNoIdentity) {
		t.Errorf("expected ErrNoIdentity, got %v", err)
	}
	if store.findCalls != 0 {
		t.Errorf("expected no lookups, got %d", store.findCalls)
	}
}

func TestErase_StoreError(t *testing.T) {
	store := NewMockStore()
	store.findErr = errors.New("connection reset")
	w := NewWalker(store, nil)

	if _, err := w.Erase(context.Background(), "john@example.com", 1, 10); err == nil {
		t.Error("expected error")
	}
}

func TestEraseAll(t *testing.T) {
	store := NewMockStore()
	seed(store, "john@example.com", 7)
	w := NewWalker(store, nil)

	total, err := w.EraseAll(context.Background(), "john@example.com", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 7 {
		t.Errorf("expected 7 removed, got %d", total)
	}
	if got := store.Count("john@example.com"); got != 0 {
		t.Errorf("expected empty match set, got %d", got)
	}
}

func TestExport_DropsEmptyValues(t *testing.T) {
	store := NewMockStore()
	r := store.Add("john@example.com", time.Now())
	r.Subject = "Contact"
	r.AuthorURL = ""
	r.Body = "\n<!--more-->\nAUTHOR: John Doe"
	store.meta[r.ID] = []export.Cell{
		{Column: "4_Dropdown", Value: "First option"},
		{Column: "5_Radio", Value: "Second option"},
		{Column: "6_Text", Value: "Some text"},
	}
	w := NewWalker(store, nil)

	data, err := w.Export(context.Background(), "john@example.com", 1, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !data.Done || len(data.Items) != 1 {
		t.Fatalf("expected one item and done, got %+v", data)
	}

	item := data.Items[0]
	if item.GroupID != "feedback" || item.GroupLabel != "Feedback" {
		t.Errorf("unexpected group %q/%q", item.GroupID, item.GroupLabel)
	}
	if item.ItemID != "feedback-"+r.ID.String() {
		t.Errorf("unexpected item id %q", item.ItemID)
	}

	names := make([]string, len(item.Data))
	for i, d := range item.Data {
		names[i] = d.Name
	}
	want := []string{"Contact Form", "1_Name", "2_Email", "4_Dropdown", "5_Radio", "6_Text"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Errorf("expected %v, got %v", want, names)
	}
}

func TestExport_Paginates(t *testing.T) {
	store := NewMockStore()
	seed(store, "john@example.com", 3)
	w := NewWalker(store, nil)

	first, err := w.Export(context.Background(), "john@example.com", 1, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := w.Export(context.Background(), "john@example.com", 2, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first.Items) != 2 || first.Done {
		t.Errorf("unexpected first page %+v", first)
	}
	if len(second.Items) != 1 || !second.Done {
		t.Errorf("unexpected second page %+v", second)
	}
	if store.Count("john@example.com") != 3 {
		t.Error("export must not delete records")
	}
}

// Feature: privacy-erasure, Property 1: Page One Erasure Drains Match Set
//
// *For any* match set of size S, erasing page 1 with page size 1 removes
// exactly one record per call and leaves nothing after S calls.
func TestProperty1_PageOneErasureDrainsMatchSet(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(0, 30).Draw(t, "size")
		others := rapid.IntRange(0, 5).Draw(t, "others")

		store := NewMockStore()
		seed(store, "john@example.com", size)
		seed(store, "jane@example.com", others)
		w := NewWalker(store, nil)

		for i := 0; i < size; i++ {
			res, err := w.Erase(context.Background(), "john@example.com", 1, 1)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.ItemsRemoved != 1 {
				t.Fatalf("call %d removed %d records", i+1, res.ItemsRemoved)
			}
			if got := store.Count("john@example.com"); got != size-i-1 {
				t.Fatalf("after call %d expected %d left, got %d", i+1, size-i-1, got)
			}
		}

		res, err := w.Erase(context.Background(), "john@example.com", 1, 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.ItemsRemoved != 0 || !res.Done {
			t.Fatalf("expected drained match set, got %+v", res)
		}
		if got := store.Count("jane@example.com"); got != others {
			t.Fatalf("other submitter lost records: %d of %d", got, others)
		}
	})
}
