// Package logger builds the structured slog logger shared by the service
// binaries and carries the request correlation id through context.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"
)

type ctxKey struct{}

// Config holds logger configuration
type Config struct {
	Level  string // debug, info, warn or error
	Format string // json or text
	Output string // stdout, stderr or a file path

	AddSource bool
	// MaskSubmitter masks submitter email and ip attributes
	MaskSubmitter bool
}

// New creates a structured logger from cfg. Unknown levels fall back to
// info and unknown formats to JSON.
func New(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			return sanitizeAttribute(a, cfg.MaskSubmitter)
		},
	}

	w := openOutput(cfg.Output)
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// openOutput falls back to stdout when a log file cannot be opened.
func openOutput(dest string) io.Writer {
	switch strings.ToLower(dest) {
	case "", "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return os.Stdout
	}
	return f
}

// Attribute keys containing any of these fragments are always redacted.
var secretFragments = []string{"password", "token", "secret", "api_key", "authorization", "credential", "private_key", "access_key"}

// Attribute keys that identify a submitter.
var submitterKeys = map[string]struct{}{
	"author_email": {}, "email": {}, "ip": {}, "ip_address": {}, "remote_addr": {},
}

// sanitizeAttribute redacts secrets and, when mask is set, submitter PII.
func sanitizeAttribute(a slog.Attr, mask bool) slog.Attr {
	key := strings.ToLower(a.Key)
	for _, frag := range secretFragments {
		if strings.Contains(key, frag) {
			return slog.String(a.Key, "[REDACTED]")
		}
	}
	if _, pii := submitterKeys[key]; mask && pii && a.Value.Kind() == slog.KindString {
		a.Value = slog.StringValue(MaskValue(a.Value.String()))
	}
	return a
}

// MaskValue keeps the first character and any domain part of v.
//
//	john@example.com -> j***@example.com
//	203.0.113.7      -> 2***
func MaskValue(v string) string {
	if v == "" {
		return v
	}
	suffix := ""
	if at := strings.LastIndexByte(v, '@'); at > 0 {
		suffix = v[at:]
	}
	return v[:1] + "***" + suffix
}

// WithCorrelationID returns logger annotated with the correlation id in ctx.
func WithCorrelationID(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if id := GetCorrelationID(ctx); id != "" {
		return logger.With(slog.String("correlation_id", id))
	}
	return logger
}

// GetCorrelationID returns the id set by SetCorrelationID, falling back to
// the id chi's RequestID middleware assigned.
func GetCorrelationID(ctx context.Context) string {
	if id, _ := ctx.Value(ctxKey{}).(string); id != "" {
		return id
	}
	return chimw.GetReqID(ctx)
}

// SetCorrelationID stores id in ctx
func SetCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}
