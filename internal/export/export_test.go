package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"pgregory.net/rapid"

	"github.com/welldanyogia/feedback-forms/internal/feedback"
)

// MockSource serves canned lookups and counts calls per method
type MockSource struct {
	parsed  map[uuid.UUID]map[string]string
	meta    map[uuid.UUID][]Cell
	content map[uuid.UUID]string
	err     error

	parsedCalls  int
	metaCalls    int
	contentCalls int
}

func NewMockSource() *MockSource {
	return &MockSource{
		parsed:  make(map[uuid.UUID]map[string]string),
		meta:    make(map[uuid.UUID][]Cell),
		content: make(map[uuid.UUID]string),
	}
}

func (m *MockSource) ParsedFieldContents(ctx context.Context, id uuid.UUID) (map[string]string, error) {
	m.parsedCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.parsed[id], nil
}

func (m *MockSource) MetaForExport(ctx context.Context, id uuid.UUID) ([]Cell, error) {
	m.metaCalls++
	return m.meta[id], nil
}

func (m *MockSource) ContentForExport(ctx context.Context, id uuid.UUID) (string, error) {
	m.contentCalls++
	return m.content[id], nil
}

func cells(kv ...string) []Cell {
	out := make([]Cell, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, Cell{Column: kv[i], Value: kv[i+1]})
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// twoRecords sets up the records of the original CSV export fixtures.
func twoRecords(src *MockSource) (uuid.UUID, uuid.UUID) {
	a, b := uuid.New(), uuid.New()
	src.meta[a] = cells("key1", "value1", "key2", "value2", "key3", "value3", "key4", "value4")
	src.meta[b] = cells("key3", "value3", "key4", "value4", "key5", "value5", "key6", "value6")
	src.parsed[a] = map[string]string{feedback.KeySubject: "subj1"}
	src.parsed[b] = map[string]string{feedback.KeySubject: "subj2"}
	src.content[a] = "This is my test 15"
	src.content[b] = "This is my test 16"
	return a, b
}

func TestExport_FullyValidData(t *testing.T) {
	src := NewMockSource()
	a, b := twoRecords(src)

	table, err := NewAggregator(src, quietLogger()).Export(context.Background(), []uuid.UUID{a, b})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	wantColumns := []string{"Contact Form", "key1", "key2", "key3", "key4", "4_Comment", "key5", "key6"}
	if !reflect.DeepEqual(table.Columns, wantColumns) {
		t.Errorf("columns = %v, want %v", table.Columns, wantColumns)
	}

	want := map[string][]string{
		"Contact Form": {"subj1", "subj2"},
		"key1":         {"value1", ""},
		"key2":         {"value2", ""},
		"key3":         {"value3", "value3"},
		"key4":         {"value4", "value4"},
		"key5":         {"", "value5"},
		"key6":         {"", "value6"},
		"4_Comment":    {"This is my test 15", "This is my test 16"},
	}
	if !reflect.DeepEqual(table.Values, want) {
		t.Errorf("values = %v, want %v", table.Values, want)
	}

	if src.parsedCalls != 2 || src.metaCalls != 2 || src.contentCalls != 2 {
		t.Errorf("calls = %d/%d/%d, want 2/2/2", src.parsedCalls, src.metaCalls, src.contentCalls)
	}
}

func TestExport_MissingMetaForOneRecord(t *testing.T) {
	src := NewMockSource()
	a, b := twoRecords(src)
	delete(src.meta, a)

	table, err := NewAggregator(src, quietLogger()).Export(context.Background(), []uuid.UUID{a, b})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	want := map[string][]string{
		"Contact Form": {"subj1", "subj2"},
		"key3":         {"", "value3"},
		"key4":         {"", "value4"},
		"key5":         {"", "value5"},
		"key6":         {"", "value6"},
		"4_Comment":    {"This is my test 15", "This is my test 16"},
	}
	if !reflect.DeepEqual(table.Values, want) {
		t.Errorf("values = %v, want %v", table.Values, want)
	}
}

func TestExport_SkipsRecordWithoutParsedFields(t *testing.T) {
	src := NewMockSource()
	a, b := twoRecords(src)
	src.parsed[a] = map[string]string{}

	table, err := NewAggregator(src, quietLogger()).Export(context.Background(), []uuid.UUID{a, b})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	want := map[string][]string{
		"Contact Form": {"subj2"},
		"key3":         {"value3"},
		"key4":         {"value4"},
		"key5":         {"value5"},
		"key6":         {"value6"},
		"4_Comment":    {"This is my test 16"},
	}
	if !reflect.DeepEqual(table.Values, want) {
		t.Errorf("values = %v, want %v", table.Values, want)
	}
	if src.parsedCalls != 2 || src.metaCalls != 1 || src.contentCalls != 1 {
		t.Errorf("calls = %d/%d/%d, want 2/1/1", src.parsedCalls, src.metaCalls, src.contentCalls)
	}
}

func TestExport_AllRecordsSkipped(t *testing.T) {
	src := NewMockSource()
	table, err := NewAggregator(src, quietLogger()).Export(context.Background(), []uuid.UUID{uuid.New(), uuid.New()})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(table.Columns) != 0 || len(table.Values) != 0 || table.Rows() != 0 {
		t.Errorf("expected empty table, got %+v", table)
	}
	if src.metaCalls != 0 || src.contentCalls != 0 {
		t.Errorf("meta/content looked up for skipped records: %d/%d", src.metaCalls, src.contentCalls)
	}
}

func TestExport_SourceError(t *testing.T) {
	src := NewMockSource()
	src.err = errors.New("connection reset")

	_, err := NewAggregator(src, quietLogger()).Export(context.Background(), []uuid.UUID{uuid.New()})
	if err == nil || !errors.Is(err, src.err) {
		t.Fatalf("err = %v, want wrapped source error", err)
	}
}

func TestMapFieldNames(t *testing.T) {
	got := MapFieldNames(map[string]string{
		feedback.KeySubject:     "This is my form",
		feedback.KeyAuthorEmail: "",
		feedback.KeyAuthor:      "John Smith",
		feedback.KeyAuthorURL:   "http://example.com",
		feedback.KeyMainComment: "This is my comment!",
	})
	want := cells(
		"Contact Form", "This is my form",
		"1_Name", "John Smith",
		"3_Website", "http://example.com",
		"4_Comment", "This is my comment!",
	)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MapFieldNames = %v, want %v", got, want)
	}
}

func TestMapFieldNames_CustomKeysPassThrough(t *testing.T) {
	got := MapFieldNames(map[string]string{
		"test_field":            "moonstruck",
		feedback.KeyAuthorEmail: "john@example.com",
		feedback.KeyMainComment: "hi",
		"another_field":         "thunderstruck",
	})
	want := cells(
		"2_Email", "john@example.com",
		"another_field", "thunderstruck",
		"test_field", "moonstruck",
		"6_Comment", "hi",
	)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MapFieldNames = %v, want %v", got, want)
	}
}

func TestWriteCSV(t *testing.T) {
	table := &Table{
		Columns: []string{"Contact Form", "1_Name", "4_Comment"},
		Values: map[string][]string{
			"Contact Form": {"Contact", "Contact"},
			"1_Name":       {"John Doe", "Jane, Doe"},
			"4_Comment":    {"line one\nline two", ""},
		},
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, table); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	want := "Contact Form,1_Name,4_Comment\n" +
		"Contact,John Doe,\"line one\nline two\"\n" +
		"Contact,\"Jane, Doe\",\n"
	if buf.String() != want {
		t.Errorf("csv =\n%q\nwant\n%q", buf.String(), want)
	}
}

// MockObjectStore is an in-memory ObjectAPI and Presigner
type MockObjectStore struct {
	objects  map[string][]byte
	modified map[string]time.Time
	putErr   error
	headErr  error
}

func NewMockObjectStore() *MockObjectStore {
	return &MockObjectStore{objects: make(map[string][]byte), modified: make(map[string]time.Time)}
}

func (m *MockObjectStore) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, _ := io.ReadAll(in.Body)
	m.objects[*in.Key] = data
	m.modified[*in.Key] = time.Now()
	return &s3.PutObjectOutput{}, nil
}

func (m *MockObjectStore) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{}
	for key := range m.objects {
		if strings.HasPrefix(key, *in.Prefix) {
			k := key
			mod := m.modified[key]
			out.Contents = append(out.Contents, types.Object{Key: &k, LastModified: &mod})
		}
	}
	return out, nil
}

func (m *MockObjectStore) DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	for _, obj := range in.Delete.Objects {
		delete(m.objects, *obj.Key)
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (m *MockObjectStore) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if m.headErr != nil {
		return nil, m.headErr
	}
	return &s3.HeadBucketOutput{}, nil
}

func (m *MockObjectStore) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	return &v4.PresignedHTTPRequest{URL: "https://s3.test/" + *in.Bucket + "/" + *in.Key + "?X-Amz-Signature=x", Method: "GET"}, nil
}

func TestArchiver_Upload(t *testing.T) {
	store := NewMockObjectStore()
	a := newArchiver(store, store, "feedback", time.Hour, quietLogger())
	a.now = func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) }

	table := &Table{Columns: []string{"1_Name"}, Values: map[string][]string{"1_Name": {"John Doe"}}}
	archive, err := a.Upload(context.Background(), table)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if !strings.HasPrefix(archive.Key, "exports/2026-03-14/") || !strings.HasSuffix(archive.Key, ".csv") {
		t.Errorf("key = %s", archive.Key)
	}
	if got := string(store.objects[archive.Key]); got != "1_Name\nJohn Doe\n" {
		t.Errorf("stored csv = %q", got)
	}
	if !strings.Contains(archive.URL, archive.Key) || archive.ExpiresIn != time.Hour || archive.Rows != 1 {
		t.Errorf("archive = %+v", archive)
	}
}

func TestArchiver_UploadError(t *testing.T) {
	store := NewMockObjectStore()
	store.putErr = errors.New("access denied")
	a := newArchiver(store, store, "feedback", 0, quietLogger())

	if _, err := a.Upload(context.Background(), &Table{}); !errors.Is(err, store.putErr) {
		t.Fatalf("err = %v, want access denied", err)
	}
}

func TestArchiver_Ping(t *testing.T) {
	store := NewMockObjectStore()
	a := newArchiver(store, store, "feedback", 0, quietLogger())

	if err := a.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	store.headErr = errors.New("no such bucket")
	if err := a.Ping(context.Background()); !errors.Is(err, store.headErr) {
		t.Fatalf("err = %v, want no such bucket", err)
	}
}

func TestArchiver_Prune(t *testing.T) {
	store := NewMockObjectStore()
	a := newArchiver(store, store, "feedback", 0, quietLogger())

	now := time.Now()
	store.objects["exports/old.csv"] = nil
	store.modified["exports/old.csv"] = now.Add(-48 * time.Hour)
	store.objects["exports/new.csv"] = nil
	store.modified["exports/new.csv"] = now
	store.objects["other/old.csv"] = nil
	store.modified["other/old.csv"] = now.Add(-48 * time.Hour)

	deleted, err := a.Prune(context.Background(), now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if _, ok := store.objects["exports/old.csv"]; ok {
		t.Error("stale archive kept")
	}
	if _, ok := store.objects["exports/new.csv"]; !ok {
		t.Error("fresh archive removed")
	}
	if _, ok := store.objects["other/old.csv"]; !ok {
		t.Error("object outside the archive prefix removed")
	}
}

// Feature: export, Property 1: every column has exactly one value per
// exported record and a record's own cells are never lost.
func TestProperty1_DenseBackfill(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		src := NewMockSource()
		n := rapid.IntRange(1, 6).Draw(t, "records")

		ids := make([]uuid.UUID, n)
		for i := range ids {
			ids[i] = uuid.New()
			src.parsed[ids[i]] = map[string]string{feedback.KeySubject: fmt.Sprintf("subj%d", i)}
			keys := rapid.SliceOfDistinct(rapid.SampledFrom([]string{"k1", "k2", "k3", "k4", "k5", "k6"}), rapid.ID[string]).Draw(t, "keys")
			for _, k := range keys {
				src.meta[ids[i]] = append(src.meta[ids[i]], Cell{k, fmt.Sprintf("%s-%d", k, i)})
			}
		}

		table, err := NewAggregator(src, quietLogger()).Export(context.Background(), ids)
		if err != nil {
			t.Fatalf("Export: %v", err)
		}

		for _, col := range table.Columns {
			if len(table.Values[col]) != n {
				t.Fatalf("column %s has %d values, want %d", col, len(table.Values[col]), n)
			}
		}
		for i, id := range ids {
			for _, c := range src.meta[id] {
				if got := table.Values[c.Column][i]; got != c.Value {
					t.Fatalf("record %d column %s = %q, want %q", i, c.Column, got, c.Value)
				}
			}
		}
	})
}

// Feature: export, Property 2: records with empty parsed fields contribute
// nothing and are never looked up further.
func TestProperty2_SkippedRecordsContributeNothing(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		src := NewMockSource()
		flags := rapid.SliceOfN(rapid.Bool(), 1, 8).Draw(t, "kept")

		ids := make([]uuid.UUID, len(flags))
		kept := 0
		for i, keep := range flags {
			ids[i] = uuid.New()
			src.meta[ids[i]] = cells(fmt.Sprintf("only-%d", i), "x")
			if keep {
				src.parsed[ids[i]] = map[string]string{feedback.KeySubject: "s"}
				kept++
			}
		}

		table, err := NewAggregator(src, quietLogger()).Export(context.Background(), ids)
		if err != nil {
			t.Fatalf("Export: %v", err)
		}

		if table.Rows() != kept {
			t.Fatalf("rows = %d, want %d", table.Rows(), kept)
		}
		if src.metaCalls != kept || src.contentCalls != kept {
			t.Fatalf("lookups = %d/%d, want %d", src.metaCalls, src.contentCalls, kept)
		}
		for i, keep := range flags {
			if _, ok := table.Values[fmt.Sprintf("only-%d", i)]; ok != keep {
				t.Fatalf("column only-%d present = %v, want %v", i, ok, keep)
			}
		}
	})
}

// Feature: export, Property 3: the CSV header equals the column order.
func TestProperty3_CSVHeaderMatchesColumns(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cols := rapid.SliceOfNDistinct(rapid.StringMatching(`[A-Za-z0-9_]{1,10}`), 1, 6, rapid.ID[string]).Draw(t, "columns")
		table := &Table{Columns: cols, Values: map[string][]string{}}
		for _, c := range cols {
			table.Values[c] = []string{"v"}
		}

		var buf bytes.Buffer
		if err := WriteCSV(&buf, table); err != nil {
			t.Fatalf("WriteCSV: %v", err)
		}
		header := strings.SplitN(buf.String(), "\n", 2)[0]
		if header != strings.Join(cols, ",") {
			t.Fatalf("header = %q, want %q", header, strings.Join(cols, ","))
		}
	})
}
