package api

import (
	"errors"
	"strings"

	apperrors "github.com/gmsas95/medtracker/internal/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// authMiddleware accepts a bearer token, or a token query parameter for
// clients that cannot set headers on a websocket upgrade.
func (s *Server) authMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
		if tokenString == "" {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			return apperrors.New(apperrors.ErrUnauthorized.Code, "missing authorization header")
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			return []byte(s.config.Security.JWTSecret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

		if err != nil || !token.Valid {
			return apperrors.New(apperrors.ErrUnauthorized.Code, "invalid token")
		}

		return c.Next()
	}
}

// rateLimit applies the shared token bucket to mutating routes.
func (s *Server) rateLimit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !s.limiter.Allow() {
			return apperrors.ErrRateLimited
		}
		return c.Next()
	}
}

// errorHandler maps application error codes to HTTP statuses.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}

	code := apperrors.GetCode(err)
	status := fiber.StatusInternalServerError
	switch code {
	case apperrors.CodeValidation, apperrors.CodeConfiguration, apperrors.ErrBadRequest.Code:
		status = fiber.StatusBadRequest
	case apperrors.CodeNotFound, apperrors.ErrServiceNotFound.Code:
		status = fiber.StatusNotFound
	case apperrors.ErrUnauthorized.Code:
		status = fiber.StatusUnauthorized
	case apperrors.ErrRateLimited.Code:
		status = fiber.StatusTooManyRequests
	}

	if status == fiber.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err))
		return c.Status(status).JSON(fiber.Map{"error": "internal error", "code": code})
	}

	msg := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	return c.Status(status).JSON(fiber.Map{"error": msg, "code": code})
}
