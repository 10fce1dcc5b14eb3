package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	coreconfig "github.com/m3rciful/secretbot/core/config"
	"github.com/m3rciful/secretbot/core/logger"
)

// RunOptions controls the behaviour of Run.
type RunOptions struct {
	Config  coreconfig.ServerConfig
	Handler http.Handler

	OnStart func(ctx context.Context, addr net.Addr) error
	OnStop  func(ctx context.Context) error
}

// Run serves Handler until ctx is done, then drains in-flight requests.
func Run(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Handler == nil {
		return fmt.Errorf("server: nil handler")
	}
	cfg := opts.Config

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", cfg.Addr(), err)
	}

	readTimeout := time.Duration(cfg.ReadTimeoutSeconds) * time.Second
	srv := &http.Server{
		Handler:           opts.Handler,
		ReadHeaderTimeout: readTimeout,
		ReadTimeout:       readTimeout,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	logger.HTTP.Info("listening",
		slog.String("event", "server.listen"),
		slog.String("listen", ln.Addr().String()),
	)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, ln.Addr()); err != nil {
			_ = ln.Close()
			return err
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		drain := time.Duration(cfg.ShutdownTimeoutSeconds) * time.Second
		if drain <= 0 {
			drain = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drain)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			runErr = fmt.Errorf("server: shutdown: %w", err)
		}
		<-serveErr
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server: serve: %w", err)
		}
	}

	if opts.OnStop != nil {
		if err := opts.OnStop(context.WithoutCancel(ctx)); err != nil && runErr == nil {
			runErr = err
		}
	}
	return runErr
}
