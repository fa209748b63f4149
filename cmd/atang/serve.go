package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/atangai/atang/internal/backend"
	"github.com/atangai/atang/internal/config"
	"github.com/atangai/atang/internal/handlers"
	"github.com/atangai/atang/internal/logger"
	"github.com/atangai/atang/internal/server"
	"github.com/atangai/atang/internal/session"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBackendClient,
			provideSessionStore,
			provideServerHandler(providePingHandler),
			provideServerHandler(provideSearchHandler),
			provideServerHandler(provideWidgetHandler),
			provideServerHandler(provideChatHandler),
			provideServerHandler(provideWSHandler),
			provideServer,
		),
		fx.Invoke(
			startSessionSweeper,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideBackendClient(cfg config.Config) *backend.Client {
	return backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.ChatTimeoutDuration())
}

func provideSessionStore(log *slog.Logger, cfg config.Config, client *backend.Client) *session.Store {
	return session.NewStore(log, client, cfg.Session.TTLDuration())
}

func providePingHandler(log *slog.Logger, client *backend.Client) *handlers.PingHandler {
	return handlers.NewPingHandler(log, client)
}

func provideSearchHandler(log *slog.Logger, client *backend.Client) *handlers.SearchHandler {
	return handlers.NewSearchHandler(log, client)
}

func provideWidgetHandler(log *slog.Logger, store *session.Store) *handlers.WidgetHandler {
	return handlers.NewWidgetHandler(log, store)
}

func provideChatHandler(log *slog.Logger, store *session.Store) *handlers.ChatHandler {
	return handlers.NewChatHandler(log, store)
}

func provideWSHandler(log *slog.Logger, store *session.Store) *handlers.WSHandler {
	return handlers.NewWSHandler(log, store)
}

type serverParams struct {
	fx.In

	Config   config.Config
	Logger   *slog.Logger
	Handlers []server.Handler `group:"server_handlers"`
}

func provideServer(p serverParams) *server.Server {
	return server.NewServer(p.Config.Server.Addr, p.Logger, p.Handlers)
}

func startSessionSweeper(lc fx.Lifecycle, cfg config.Config, store *session.Store) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go store.RunSweeper(ctx, cfg.Session.SweepIntervalDuration())
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, srv *server.Server) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && err != http.ErrServerClosed {
					log.Error("server stopped", slog.Any("error", err))
				}
			}()
			log.Info("widget gateway listening", slog.String("addr", cfg.Server.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
