package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// contextKey is a private type to avoid collisions in context.
type contextKey string

const (
	ctxRID       contextKey = "rid"
	ctxEventID   contextKey = "webhook_event_id"
	ctxEventType contextKey = "event_type"
	ctxUserID    contextKey = "user_id"
	ctxLogger    contextKey = "logger"
	ctxHandler   contextKey = "handler"
	ctxTraceID   contextKey = "trace_id"
	ctxSpanID    contextKey = "span_id"
)

// WithLogger stores the provided slog.Logger in context for propagation across layers.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxLogger, log)
}

// FromContext extracts slog.Logger from context or returns global default.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return L
	}
	if v := ctx.Value(ctxLogger); v != nil {
		if l, ok := v.(*slog.Logger); ok {
			return l
		}
	}
	return L
}

// WithRID attaches request correlation id into context.
func WithRID(ctx context.Context, rid string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRID, rid)
}

// RIDFrom extracts rid from context if present.
func RIDFrom(ctx context.Context) string {
	return stringValue(ctx, ctxRID)
}

// WithEventMeta attaches the identifiers of one webhook event to context.
func WithEventMeta(ctx context.Context, eventID, eventType, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if eventID != "" {
		ctx = context.WithValue(ctx, ctxEventID, eventID)
	}
	if eventType != "" {
		ctx = context.WithValue(ctx, ctxEventType, eventType)
	}
	if userID != "" {
		ctx = context.WithValue(ctx, ctxUserID, userID)
	}
	return ctx
}

// EventIDFrom extracts the webhook event id from context.
func EventIDFrom(ctx context.Context) string {
	return stringValue(ctx, ctxEventID)
}

// EventTypeFrom extracts the webhook event type from context.
func EventTypeFrom(ctx context.Context) string {
	return stringValue(ctx, ctxEventType)
}

// UserIDFrom extracts the LINE user id from context.
func UserIDFrom(ctx context.Context) string {
	return stringValue(ctx, ctxUserID)
}

// WithHandler stores handler identifier in context for downstream logs.
func WithHandler(ctx context.Context, handler string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if handler == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxHandler, handler)
}

// HandlerFrom returns handler identifier from context if present.
func HandlerFrom(ctx context.Context) string {
	return stringValue(ctx, ctxHandler)
}

// WithTrace attaches trace and span identifiers to context.
func WithTrace(ctx context.Context, traceID, spanID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if traceID != "" {
		ctx = context.WithValue(ctx, ctxTraceID, traceID)
	}
	if spanID != "" {
		ctx = context.WithValue(ctx, ctxSpanID, spanID)
	}
	return ctx
}

// TraceIDFrom extracts trace id from context.
func TraceIDFrom(ctx context.Context) string {
	return stringValue(ctx, ctxTraceID)
}

// SpanIDFrom extracts span id from context.
func SpanIDFrom(ctx context.Context) string {
	return stringValue(ctx, ctxSpanID)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(key); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Sanitize trims non-printable runes from s to keep logs clean.
// It removes control characters (Unicode categories Cc, Cf) except for tab and newline.
func Sanitize(s string) string {
	if s == "" {
		return s
	}
	b := strings.Builder{}
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SanitizeLimit applies Sanitize and limits the output length in runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(Sanitize(s))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max])
}

// NewRID returns a fresh request correlation identifier.
func NewRID() string {
	return uuid.NewString()
}

// BuildRID derives the correlation identifier of the n-th event of a request.
func BuildRID(requestRID string, index int) string {
	return fmt.Sprintf("%s/%d", requestRID, index)
}

// CompactRID shortens a uuid based RID to its first 8 hex digits, keeping any event suffix.
// When the input does not match the expected format it is returned unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	if rid == "" {
		return ""
	}
	base, suffix, hasSuffix := strings.Cut(rid, "/")
	id, err := uuid.Parse(base)
	if err != nil {
		return rid
	}
	compact := strings.ReplaceAll(id.String(), "-", "")[:8]
	if hasSuffix {
		return compact + "/" + suffix
	}
	return compact
}
