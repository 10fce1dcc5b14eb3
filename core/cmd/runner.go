package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	coreconfig "github.com/m3rciful/secretbot/core/config"
	"github.com/m3rciful/secretbot/core/logger"
	coreserver "github.com/m3rciful/secretbot/core/server"
)

// ConfigCarrier exposes access to the embedded core configuration.
type ConfigCarrier interface {
	CoreConfig() *coreconfig.Config
}

// HTTPApp is the minimal interface required to serve the webhook.
type HTTPApp interface {
	ServerRunOptions() (coreserver.RunOptions, error)
}

// Options describe how to load configuration, bootstrap the app, and run the server.
type Options struct {
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig func(path string) (ConfigCarrier, error)
	Bootstrap  func(ctx context.Context, cfg ConfigCarrier) (HTTPApp, error)

	ShutdownLogger func() error
	RunServer      func(ctx context.Context, opts coreserver.RunOptions) error
}

// ConfigPath resolves the config file from envVar, falling back to def.
func ConfigPath(envVar, def string) string {
	if envVar == "" {
		envVar = "CONFIG_PATH"
	}
	if p := os.Getenv(envVar); p != "" {
		return p
	}
	return def
}

// Run loads configuration, bootstraps the app, and serves until SIGINT or SIGTERM.
func Run(opts Options) error {
	if opts.LoadConfig == nil {
		return fmt.Errorf("cmd: LoadConfig is required")
	}
	if opts.Bootstrap == nil {
		return fmt.Errorf("cmd: Bootstrap is required")
	}

	cfgPath := ConfigPath(opts.ConfigEnvVar, opts.DefaultConfigPath)
	log.Printf("loading config: %s", cfgPath)
	cfg, err := opts.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}
	if cfg.CoreConfig() == nil {
		return fmt.Errorf("cmd: loaded config is missing core configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	startedAt := time.Now()
	application, err := opts.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}

	runOpts, err := application.ServerRunOptions()
	if err != nil {
		return fmt.Errorf("cmd: server options build failed: %w", err)
	}

	prevStart := runOpts.OnStart
	runOpts.OnStart = func(ctx context.Context, addr net.Addr) error {
		if prevStart != nil {
			if err := prevStart(ctx, addr); err != nil {
				return err
			}
		}
		logger.Component("app").Info("app ready",
			slog.String("event", "ready"),
			slog.String("listen", addr.String()),
			slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
		)
		return nil
	}

	prevStop := runOpts.OnStop
	runOpts.OnStop = func(ctx context.Context) error {
		logger.Component("app").Info("shutting down...",
			slog.String("event", "shutdown"),
		)
		if prevStop != nil {
			return prevStop(ctx)
		}
		return nil
	}

	run := opts.RunServer
	if run == nil {
		run = coreserver.Run
	}
	return run(ctx, runOpts)
}
