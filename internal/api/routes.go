package api

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

func (s *Server) setupRoutes() {
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "${status} - ${latency} ${method} ${path}\n",
		Output: zap.NewStdLog(s.logger).Writer(),
	}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(s.config.Security.AllowOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PATCH, DELETE, OPTIONS",
	}))

	s.app.Get("/api/health", s.handleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))

	api := s.app.Group("/api")

	if s.config.Security.AuthEnabled {
		api.Post("/auth/login", s.rateLimit(), s.handleLogin)
		api.Use(s.authMiddleware())
	}

	api.Get("/medications", s.handleListMedications)
	api.Post("/medications", s.rateLimit(), s.handleCreateMedication)
	api.Get("/medications/:id", s.handleGetMedication)
	api.Patch("/medications/:id", s.rateLimit(), s.handleUpdateMedication)
	api.Delete("/medications/:id", s.rateLimit(), s.handleDeleteMedication)
	api.Post("/medications/:id/take", s.rateLimit(), s.handleTake)
	api.Post("/medications/:id/skip", s.rateLimit(), s.handleSkip)
	api.Get("/medications/:id/status", s.handleStatus)
	api.Get("/medications/:id/history", s.handleHistory)

	api.Get("/services", s.handleListServices)
	api.Post("/services/:name", s.rateLimit(), s.handleCallService)

	if s.hub != nil {
		ws := s.app.Group("/ws")
		if s.config.Security.AuthEnabled {
			ws.Use(s.authMiddleware())
		}
		ws.Use(func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		ws.Get("/events", websocket.New(s.handleEvents))
	}
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.config.ListenAddr()))
	return s.app.Listen(s.config.ListenAddr())
}

func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}
