// Package server exposes the bot over HTTP.
package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/m3rciful/secretbot/core/logger"
)

// WelcomeText is served on GET / once the schema is in place.
const WelcomeText = "Welcome to Line Bot!"

// SchemaEnsurer creates the storage schema if it is absent.
type SchemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

// RouterOptions selects the handlers mounted on the router.
type RouterOptions struct {
	Callback http.Handler
	Schema   SchemaEnsurer
}

// NewRouter builds the chi router serving GET / and POST /callback.
func NewRouter(opts RouterOptions) chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(AccessLog)
	r.Use(middleware.Recoverer)

	r.Get("/", welcome(opts.Schema))
	if opts.Callback != nil {
		r.Method(http.MethodPost, "/callback", opts.Callback)
	}
	return r
}

func welcome(schema SchemaEnsurer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if schema != nil {
			if err := schema.EnsureSchema(r.Context()); err != nil {
				logger.LogEvent(r.Context(), logger.HTTP, slog.LevelError, "schema.ensure",
					slog.String("status", "fail"),
					slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
				)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, WelcomeText)
	}
}
