package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gmsas95/medtracker/internal/api"
	"github.com/gmsas95/medtracker/internal/config"
	"github.com/gmsas95/medtracker/internal/events"
	"github.com/gmsas95/medtracker/internal/logger"
	"github.com/gmsas95/medtracker/internal/metrics"
	"github.com/gmsas95/medtracker/internal/poller"
	"github.com/gmsas95/medtracker/internal/services"
	"github.com/gmsas95/medtracker/internal/store"
	"github.com/gmsas95/medtracker/internal/tracker"
	"go.uber.org/zap"
)

type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Level    zap.AtomicLevel
	Location *time.Location
	Repo     store.Repository
	Metrics  *metrics.Metrics
	Tracker  *tracker.Tracker
	Services *services.Registry
	Version  string

	hub   *events.Hub
	redis *events.RedisPublisher
}

// New opens the configured store and builds the tracker and service
// registry. Event sinks and the poller are only started by RunServer.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, level zap.AtomicLevel, version string) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	repo, err := store.Open(cfg.Storage, loc, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	m := metrics.Default()
	t, err := tracker.New(ctx, repo, log, tracker.Options{
		Location: loc,
		Metrics:  m,
	})
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to load medications: %w", err)
	}

	registry := services.NewRegistry()
	if err := services.NewMedicationServices(t, log).Register(registry); err != nil {
		repo.Close()
		return nil, err
	}

	return &App{
		Config:   cfg,
		Logger:   log,
		Level:    level,
		Location: loc,
		Repo:     repo,
		Metrics:  m,
		Tracker:  t,
		Services: registry,
		Version:  version,
	}, nil
}

// Publisher builds the configured event sinks.
func (app *App) Publisher() *events.Multi {
	var sinks []events.Publisher
	if app.Config.Events.Log {
		sinks = append(sinks, events.NewLogPublisher(app.Logger))
	}
	if app.Config.Events.WebSocket {
		if app.hub == nil {
			app.hub = events.NewHub(32, app.Logger)
		}
		sinks = append(sinks, app.hub)
	}
	if app.Config.Events.Redis.Enabled {
		if app.redis == nil {
			client := events.NewRedisClient(app.Config.Events.Redis)
			app.redis = events.NewRedisPublisher(client, app.Config.Events.Redis, app.Logger)
		}
		sinks = append(sinks, app.redis)
	}
	return events.NewMulti(app.Metrics, sinks...)
}

// Hub returns the websocket hub, nil when that sink is disabled.
func (app *App) Hub() *events.Hub { return app.hub }

func (app *App) RunServer() {
	publisher := app.Publisher()
	app.Logger.Info("Event sinks configured", zap.Strings("sinks", publisher.Sinks()))

	if app.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := app.redis.Ping(ctx); err != nil {
			app.Logger.Warn("Redis not reachable, events will be retried per poll", zap.Error(err))
		}
		cancel()
	}

	interval, _ := app.Config.PollInterval()
	p := poller.New(poller.Config{Interval: interval}, app.Tracker, publisher, app.Metrics, app.Logger)
	if err := p.Start(); err != nil {
		app.Logger.Fatal("Failed to start poller", zap.Error(err))
	}

	config.Watch(app.Config, app.reload, func(err error) {
		app.Logger.Warn("Ignoring invalid config change", zap.Error(err))
	})

	server := api.New(app.Config, api.Deps{
		Tracker:  app.Tracker,
		Services: app.Services,
		Hub:      app.hub,
		Metrics:  app.Metrics,
		Version:  app.Version,
	}, app.Logger)

	go func() {
		if err := server.Start(); err != nil {
			app.Logger.Fatal("Server error", zap.Error(err))
		}
	}()

	app.Logger.Info("Server started",
		zap.String("address", app.Config.Server.Address),
		zap.Int("port", app.Config.Server.Port),
		zap.String("url", fmt.Sprintf("http://localhost:%d", app.Config.Server.Port)),
		zap.Int("medications", len(app.Tracker.List())),
		zap.Int("services", len(app.Services.List())),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info("Shutting down...")

	if err := server.Shutdown(); err != nil {
		app.Logger.Error("Server shutdown error", zap.Error(err))
	}
	p.Stop()
	if err := app.Close(); err != nil {
		app.Logger.Error("Close error", zap.Error(err))
	}
}

// reload applies the settings that can change without a restart.
func (app *App) reload(next *config.Config) {
	level := logger.ParseLevel(next.Log.Level)
	if level != app.Level.Level() {
		app.Level.SetLevel(level)
		app.Logger.Info("Log level changed", zap.String("level", level.String()))
	}
}

func (app *App) Close() error {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.Logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}
	return app.Repo.Close()
}
