package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/m3rciful/secretbot/core/logger"
)

// ErrInvalidSignature reports a body whose X-Line-Signature does not match the channel secret.
var ErrInvalidSignature = webhook.ErrInvalidSignature

// Handler serves the LINE webhook callback.
type Handler struct {
	secret     string
	dispatcher *Dispatcher
}

// NewHandler returns the callback handler verifying bodies with channelSecret.
func NewHandler(channelSecret string, d *Dispatcher) *Handler {
	return &Handler{secret: channelSecret, dispatcher: d}
}

// ServeHTTP verifies and decodes the delivery, dispatches every event in order
// and acknowledges with 200 OK. Per-event failures never change the response.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	cb, err := webhook.ParseRequest(h.secret, r)
	if err != nil {
		reason := "malformed_body"
		if errors.Is(err, ErrInvalidSignature) {
			reason = "invalid_signature"
		}
		logger.LogEvent(ctx, logger.HTTP, slog.LevelWarn, "webhook.rejected",
			slog.String("status", "fail"),
			slog.String("cause", reason),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	events := Decode(cb)
	logger.LogEvent(ctx, logger.HTTP, slog.LevelDebug, "webhook.received",
		slog.String("status", "ok"),
		slog.Int("events", len(events)),
	)

	// Replies must still go out if LINE drops the connection early.
	work := context.WithoutCancel(ctx)
	failed := 0
	for i, ev := range events {
		evCtx := work
		if rid := logger.RIDFrom(ctx); rid != "" {
			evCtx = logger.WithRID(work, logger.BuildRID(rid, i))
		}
		if err := h.dispatcher.Dispatch(evCtx, ev); err != nil {
			failed++
		}
	}

	if failed > 0 {
		logger.LogEvent(ctx, logger.HTTP, slog.LevelWarn, "webhook.handled",
			slog.String("status", "fail"),
			slog.Int("events", len(events)),
			slog.Int("count", failed),
			slog.Duration("duration", logger.Took(start)),
		)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "OK")
}
