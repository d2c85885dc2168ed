package server

import (
	"thirtyday/internal/middleware"
	"thirtyday/internal/models"

	"github.com/gofiber/fiber/v2"
)

type updateProfileRequest struct {
	DisplayName *string `json:"display_name"`
}

// GetMyProfile handles GET /api/users/me
// @Summary Current user
// @Description Returns the caller, recording them on first visit
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User
// @Failure 401 {object} models.ErrorResponse
// @Router /users/me [get]
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return nil
	}

	var user *models.User
	// Token callers carry their email, so a first visit creates the row.
	if email, _ := c.Locals(middleware.LocalUserEmail).(string); email != "" {
		user, err = s.userService.EnsureUser(c.UserContext(), userID, email, nil)
	} else {
		user, err = s.userService.GetUser(c.UserContext(), userID)
	}
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}
	return c.JSON(user)
}

// UpdateMyProfile handles PUT /api/users/me
// @Summary Update display name
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{display_name=string} true "Profile update"
// @Success 200 {object} models.User
// @Failure 400 {object} models.ErrorResponse
// @Router /users/me [put]
func (s *Server) UpdateMyProfile(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return nil
	}
	var req updateProfileRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	if req.DisplayName == nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("display_name is required"))
	}

	var user *models.User
	if email, _ := c.Locals(middleware.LocalUserEmail).(string); email != "" {
		user, err = s.userService.EnsureUser(c.UserContext(), userID, email, req.DisplayName)
	} else {
		user, err = s.userService.UpdateDisplayName(c.UserContext(), userID, *req.DisplayName)
	}
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}
	return c.JSON(user)
}
