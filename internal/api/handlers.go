package api

import (
	"crypto/subtle"
	"encoding/json"
	"time"

	apperrors "github.com/gmsas95/medtracker/internal/errors"
	"github.com/gmsas95/medtracker/internal/medication"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":      "healthy",
		"version":     s.version,
		"timestamp":   time.Now().Unix(),
		"medications": len(s.tracker.List()),
		"metrics":     s.metrics.Snapshot(),
	})
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req struct {
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return apperrors.New(apperrors.ErrBadRequest.Code, "invalid request")
	}

	want := []byte(s.config.Security.AdminPassword)
	if subtle.ConstantTimeCompare([]byte(req.Password), want) != 1 {
		return apperrors.New(apperrors.ErrUnauthorized.Code, "invalid password")
	}

	now := time.Now()
	expires := now.Add(s.config.Security.TokenLifetime())
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "admin",
		"iat": now.Unix(),
		"exp": expires.Unix(),
	})

	tokenString, err := token.SignedString([]byte(s.config.Security.JWTSecret))
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrInternal.Code, "failed to generate token")
	}

	return c.JSON(fiber.Map{"token": tokenString, "expires_at": expires})
}

func (s *Server) handleListMedications(c *fiber.Ctx) error {
	snaps := s.tracker.Snapshots(s.tracker.Now())
	return c.JSON(fiber.Map{
		"count":       len(snaps),
		"medications": snaps,
	})
}

func (s *Server) handleCreateMedication(c *fiber.Ctx) error {
	args, err := bodyArgs(c)
	if err != nil {
		return err
	}
	result, err := s.services.Call(c.UserContext(), "add_medication", args)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

func (s *Server) handleGetMedication(c *fiber.Ctx) error {
	m, err := s.tracker.Get(c.Params("id"))
	if err != nil {
		return err
	}
	m.History = medication.SortedHistory(m.History)
	return c.JSON(m)
}

func (s *Server) handleUpdateMedication(c *fiber.Ctx) error {
	return s.callWithID(c, "update_medication")
}

func (s *Server) handleDeleteMedication(c *fiber.Ctx) error {
	return s.callWithID(c, "remove_medication")
}

func (s *Server) handleTake(c *fiber.Ctx) error {
	return s.callWithID(c, "take_medication")
}

func (s *Server) handleSkip(c *fiber.Ctx) error {
	return s.callWithID(c, "skip_medication")
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	snap, err := s.tracker.Snapshot(c.Params("id"), s.tracker.Now())
	if err != nil {
		return err
	}
	return c.JSON(snap)
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	loc := s.tracker.Location()
	from, err := parseBound(c.Query("from"), loc)
	if err != nil {
		return err
	}
	to, err := parseBound(c.Query("to"), loc)
	if err != nil {
		return err
	}

	id := c.Params("id")
	history, err := s.tracker.History(id, from, to)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"medication_id": id,
		"count":         len(history),
		"history":       history,
	})
}

func (s *Server) handleListServices(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"services": s.services.List()})
}

func (s *Server) handleCallService(c *fiber.Ctx) error {
	result, err := s.services.CallJSON(c.UserContext(), c.Params("name"), json.RawMessage(c.Body()))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"result": result})
}

// callWithID runs a service with the route id as medication_id.
func (s *Server) callWithID(c *fiber.Ctx, name string) error {
	args, err := bodyArgs(c)
	if err != nil {
		return err
	}
	args["medication_id"] = c.Params("id")
	result, err := s.services.Call(c.UserContext(), name, args)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

func bodyArgs(c *fiber.Ctx) (map[string]interface{}, error) {
	args := map[string]interface{}{}
	if len(c.Body()) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(c.Body(), &args); err != nil {
		return nil, apperrors.New(apperrors.ErrBadRequest.Code, "request body must be a JSON object")
	}
	return args, nil
}

// parseBound reads a history bound given as a timestamp or a local date.
func parseBound(raw string, loc *time.Location) (*time.Time, error) {
	t, err := medication.ParseBound(raw, loc)
	if err != nil {
		return nil, apperrors.Validation("%v", err)
	}
	return t, nil
}
