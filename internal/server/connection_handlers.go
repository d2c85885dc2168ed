package server

import (
	"context"
	"strings"

	"thirtyday/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type inviteRequest struct {
	Email string `json:"email"`
}

// ListConnections handles GET /api/connections
// @Summary List connections
// @Description Friends, incoming invites and outgoing invites of the caller
// @Tags connections
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.ConnectionList
// @Failure 503 {object} models.ErrorResponse
// @Router /connections [get]
func (s *Server) ListConnections(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return nil
	}
	list, err := s.connections.ListConnections(c.UserContext(), userID)
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}
	return c.JSON(list)
}

// InviteConnection handles POST /api/connections/invite
// @Summary Invite by email
// @Description Sends an invite, or re-sends one after a rejection
// @Tags connections
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{email=string} true "Invite request"
// @Success 201 {object} models.FriendConnection
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /connections/invite [post]
func (s *Server) InviteConnection(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return nil
	}
	var req inviteRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	if strings.TrimSpace(req.Email) == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("email is required"))
	}

	conn, err := s.connections.Invite(c.UserContext(), userID, req.Email)
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}
	return c.Status(fiber.StatusCreated).JSON(conn)
}

// AcceptConnection handles POST /api/connections/:id/accept
// @Summary Accept an invite
// @Tags connections
// @Produce json
// @Security BearerAuth
// @Param id path string true "Connection ID"
// @Success 200 {object} models.FriendConnection
// @Failure 403 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /connections/{id}/accept [post]
func (s *Server) AcceptConnection(c *fiber.Ctx) error {
	return s.decideConnection(c, s.connections.Accept)
}

// RejectConnection handles POST /api/connections/:id/reject
// @Summary Reject an invite
// @Tags connections
// @Produce json
// @Security BearerAuth
// @Param id path string true "Connection ID"
// @Success 200 {object} models.FriendConnection
// @Failure 403 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /connections/{id}/reject [post]
func (s *Server) RejectConnection(c *fiber.Ctx) error {
	return s.decideConnection(c, s.connections.Reject)
}

func (s *Server) decideConnection(c *fiber.Ctx, decide func(ctx context.Context, connectionID, actingUserID uuid.UUID) (*models.FriendConnection, error)) error {
	userID, err := currentUserID(c)
	if err != nil {
		return nil
	}
	id, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	conn, err := decide(c.UserContext(), id, userID)
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}
	return c.JSON(conn)
}
