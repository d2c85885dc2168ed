package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"thirtyday/internal/middleware"
	"thirtyday/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// EventConnections is the only message type on the connections socket.
const EventConnections = "connections"

// ConnectionsEvent is one full snapshot pushed to the client.
type ConnectionsEvent struct {
	Type string                 `json:"type"`
	Data *models.ConnectionList `json:"data"`
}

// websocketUpgradeRequired rejects plain HTTP requests on websocket routes.
func websocketUpgradeRequired(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return c.Next()
}

// watchConnections feeds the hub: one ConnectionWatcher per connected user,
// each snapshot serialized once and shared by all of that user's sockets.
func (s *Server) watchConnections(ctx context.Context, userID uuid.UUID, deliver func([]byte)) error {
	return s.watcher.Watch(ctx, userID, func(list *models.ConnectionList) {
		payload, err := json.Marshal(ConnectionsEvent{Type: EventConnections, Data: list})
		if err != nil {
			middleware.Logger.ErrorContext(ctx, "Failed to encode connections snapshot",
				slog.String("user_id", userID.String()), slog.String("error", err.Error()))
			return
		}
		deliver(payload)
	})
}

// ConnectionsWebSocketHandler handles GET /api/ws/connections. The client
// receives a snapshot on connect and a fresh one after every change.
func (s *Server) ConnectionsWebSocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, ok := conn.Locals(middleware.LocalUserID).(uuid.UUID)
		if !ok {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}

		client, err := s.hub.Register(userID, conn)
		if err != nil {
			middleware.Logger.Warn("Connections socket refused",
				slog.String("user_id", userID.String()), slog.String("error", err.Error()))
			msg, _ := json.Marshal(models.ErrorResponse{Error: err.Error()})
			_ = conn.WriteMessage(websocket.TextMessage, msg)
			_ = conn.Close()
			return
		}

		go client.WritePump()
		client.ReadPump()
	})
}
