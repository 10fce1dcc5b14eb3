package users

import (
	"context"
	"log/slog"

	"github.com/m3rciful/secretbot/core/logger"
)

// Store is the user store accessor used by the webhook dispatcher.
type Store interface {
	// EnsureUser returns the record for id, creating it with defaults on first contact.
	EnsureUser(ctx context.Context, id, name string) (Record, error)
	// Commit persists SecretText and Armed of rec.
	Commit(ctx context.Context, rec Record) error
}

func logEnsured(ctx context.Context, rec Record, created bool, count func() (int, error)) {
	if created {
		logger.LogEvent(ctx, logger.SVCUsers, slog.LevelInfo, "user.created",
			slog.String("status", "ok"),
			slog.String("user_id", rec.ID),
			slog.Bool("created", true),
		)
		return
	}
	if !logger.SVCUsers.Enabled(ctx, slog.LevelDebug) || !logger.ShouldSampleDebug() {
		return
	}
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("user_id", rec.ID),
		slog.Bool("created", false),
	}
	if n, err := count(); err == nil {
		attrs = append(attrs, slog.Int("count", n))
	}
	logger.LogEvent(ctx, logger.SVCUsers, slog.LevelDebug, "user.found", attrs...)
}
