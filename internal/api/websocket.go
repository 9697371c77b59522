package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// handleEvents streams status transitions. The client first receives the
// current state of every medication, then one message per transition.
func (s *Server) handleEvents(c *websocket.Conn) {
	defer c.Close()

	events, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	s.metrics.IncrementWebSocketClients()
	defer s.metrics.DecrementWebSocketClients()

	// reads only to notice the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := c.WriteJSON(fiber.Map{
		"type":        "snapshot",
		"medications": s.tracker.Snapshots(s.tracker.Now()),
	}); err != nil {
		s.logger.Warn("WebSocket write error", zap.Error(err))
		return
	}

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := c.WriteJSON(fiber.Map{"type": "status_changed", "event": ev}); err != nil {
				s.logger.Warn("WebSocket write error", zap.Error(err))
				return
			}
		}
	}
}
