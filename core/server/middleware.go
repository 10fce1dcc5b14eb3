package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/m3rciful/secretbot/core/logger"
)

// RequestIDHeader carries the request correlation id in both directions.
const RequestIDHeader = "X-Request-Id"

// RequestID stores a request id in the context and echoes it in the response.
// An incoming X-Request-Id is kept when present.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if rid == "" || len(rid) > 128 {
			rid = logger.NewRID()
		}
		w.Header().Set(RequestIDHeader, rid)

		ctx := logger.WithRID(r.Context(), rid)
		if traceID, spanID, ok := parseTraceparent(r.Header.Get("traceparent")); ok {
			ctx = logger.WithTrace(ctx, traceID, spanID)
		}
		ctx = logger.WithLogger(ctx, logger.HTTP)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// parseTraceparent extracts ids from a W3C traceparent header: version-trace-parent-flags.
func parseTraceparent(h string) (traceID, spanID string, ok bool) {
	parts := strings.Split(strings.TrimSpace(h), "-")
	if len(parts) != 4 || len(parts[0]) != 2 || len(parts[1]) != 32 || len(parts[2]) != 16 {
		return "", "", false
	}
	if !isHex(parts[1]) || !isHex(parts[2]) || strings.Trim(parts[1], "0") == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

func isHex(s string) bool {
	for _, c := range s {
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}

// AccessLog writes one line per request. Successful requests are logged at debug level and sampled.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		level := slog.LevelDebug
		status := "ok"
		switch {
		case code >= 500:
			level, status = slog.LevelError, "error"
		case code >= 400:
			level, status = slog.LevelWarn, "fail"
		}
		if level == slog.LevelDebug && !logger.ShouldSampleDebug() {
			return
		}
		logger.LogEvent(r.Context(), logger.HTTP, level, "http.request",
			slog.String("status", status),
			slog.String("method", r.Method),
			slog.String("path", logger.SanitizeLimit(r.URL.Path, 128)),
			slog.Int("http_code", code),
			slog.String("remote", r.RemoteAddr),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", logger.Took(start)),
		)
	})
}
