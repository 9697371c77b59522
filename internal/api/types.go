package api

import (
	"time"

	"github.com/gmsas95/medtracker/internal/config"
	"github.com/gmsas95/medtracker/internal/events"
	"github.com/gmsas95/medtracker/internal/metrics"
	"github.com/gmsas95/medtracker/internal/services"
	"github.com/gmsas95/medtracker/internal/tracker"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Deps are the components the server exposes. Hub and Metrics are optional.
type Deps struct {
	Tracker  *tracker.Tracker
	Services *services.Registry
	Hub      *events.Hub
	Metrics  *metrics.Metrics
	Version  string
}

type Server struct {
	app      *fiber.App
	config   *config.Config
	tracker  *tracker.Tracker
	services *services.Registry
	hub      *events.Hub
	metrics  *metrics.Metrics
	limiter  *rate.Limiter
	version  string
	logger   *zap.Logger
}

func New(cfg *config.Config, deps Deps, logger *zap.Logger) *Server {
	limit := rate.Inf
	if cfg.Security.RateLimit > 0 {
		limit = rate.Limit(cfg.Security.RateLimit)
	}
	burst := cfg.Security.RateBurst
	if burst <= 0 {
		burst = 1
	}

	s := &Server{
		config:   cfg,
		tracker:  deps.Tracker,
		services: deps.Services,
		hub:      deps.Hub,
		metrics:  deps.Metrics,
		limiter:  rate.NewLimiter(limit, burst),
		version:  deps.Version,
		logger:   logger.Named("api"),
	}
	s.app = fiber.New(fiber.Config{
		ReadTimeout:           time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:           120 * time.Second,
		DisableStartupMessage: true,
		Immutable:             true,
		ErrorHandler:          s.errorHandler,
	})

	s.setupRoutes()
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }
