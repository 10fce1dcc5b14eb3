package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/m3rciful/secretbot/core/bootstrap"
	corecmd "github.com/m3rciful/secretbot/core/cmd"
	"github.com/m3rciful/secretbot/core/line"
	coreserver "github.com/m3rciful/secretbot/core/server"
	"github.com/m3rciful/secretbot/core/webhook"
)

// App holds the wired components of a running bot.
type App struct {
	cfg   *Config
	infra *bootstrap.Result
	line  *line.Client
}

// Bootstrap initializes logging, storage and the LINE client for cfg.
func Bootstrap(ctx context.Context, carrier corecmd.ConfigCarrier) (corecmd.HTTPApp, error) {
	cfg, ok := carrier.(*Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}
	infra, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:   &cfg.Config,
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}
	client, err := line.NewClient(cfg.Line, nil)
	if err != nil {
		_ = infra.Close()
		return nil, err
	}
	return &App{cfg: cfg, infra: infra, line: client}, nil
}

// Router builds the HTTP router serving GET / and POST /callback.
func (a *App) Router() (http.Handler, error) {
	d, err := webhook.NewDispatcher(webhook.Options{
		Store:    a.infra.Store,
		Profiles: a.line,
		Replier:  a.line,
		Reply:    a.cfg.Reply,
	})
	if err != nil {
		return nil, err
	}
	return coreserver.NewRouter(coreserver.RouterOptions{
		Callback: webhook.NewHandler(a.cfg.Line.ChannelSecret, d),
		Schema:   a.infra.Migrator,
	}), nil
}

// ServerRunOptions implements corecmd.HTTPApp. The database is closed once the server stops.
func (a *App) ServerRunOptions() (coreserver.RunOptions, error) {
	router, err := a.Router()
	if err != nil {
		return coreserver.RunOptions{}, err
	}
	return coreserver.RunOptions{
		Config:  a.cfg.Server,
		Handler: router,
		OnStop: func(context.Context) error {
			return a.infra.Close()
		},
	}, nil
}
