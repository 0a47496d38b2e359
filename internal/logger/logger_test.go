package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
)

func newBufferLogger(buf *bytes.Buffer, mask bool) *slog.Logger {
	opts := &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			return sanitizeAttribute(a, mask)
		},
	}
	return slog.New(slog.NewJSONHandler(buf, opts))
}

func TestSecretsAreRedacted(t *testing.T) {
	var buf bytes.Buffer
	log := newBufferLogger(&buf, false)

	log.Info("login", "jwt_token", "abc.def", "smtp_password", "hunter2", "form_id", "contact")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if entry["jwt_token"] != "[REDACTED]" {
		t.Errorf("jwt_token = %v", entry["jwt_token"])
	}
	if entry["smtp_password"] != "[REDACTED]" {
		t.Errorf("smtp_password = %v", entry["smtp_password"])
	}
	if entry["form_id"] != "contact" {
		t.Errorf("form_id = %v", entry["form_id"])
	}
}

func TestSubmitterMasking(t *testing.T) {
	var buf bytes.Buffer
	log := newBufferLogger(&buf, true)

	log.Info("stored", "author_email", "john@example.com", "ip_address", "203.0.113.7")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if entry["author_email"] != "j***@example.com" {
		t.Errorf("author_email = %v", entry["author_email"])
	}
	if entry["ip_address"] != "2***" {
		t.Errorf("ip_address = %v", entry["ip_address"])
	}
}

func TestMaskValue(t *testing.T) {
	tests := map[string]string{
		"":                 "",
		"a@b.c":            "a***@b.c",
		"127.0.0.1":        "1***",
		"john@example.com": "j***@example.com",
	}
	for in, want := range tests {
		if got := MaskValue(in); got != want {
			t.Errorf("MaskValue(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCorrelationID(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelationID(ctx); got != "" {
		t.Fatalf("expected empty id, got %q", got)
	}

	ctx = context.WithValue(ctx, chimw.RequestIDKey, "req-1")
	if got := GetCorrelationID(ctx); got != "req-1" {
		t.Errorf("fallback id = %q", got)
	}

	ctx = SetCorrelationID(ctx, "corr-1")
	if got := GetCorrelationID(ctx); got != "corr-1" {
		t.Errorf("correlation id = %q", got)
	}

	var buf bytes.Buffer
	WithCorrelationID(ctx, newBufferLogger(&buf, false)).Info("x")
	if !bytes.Contains(buf.Bytes(), []byte(`"correlation_id":"corr-1"`)) {
		t.Errorf("correlation id missing from %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"loud":    slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
