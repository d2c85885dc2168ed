package server

import (
	"time"

	"thirtyday/internal/models"
	"thirtyday/internal/service"

	"github.com/gofiber/fiber/v2"
)

type createChallengeRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
}

// ListChallenges handles GET /api/challenges
// @Summary List my challenges
// @Tags challenges
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Challenge
// @Router /challenges [get]
func (s *Server) ListChallenges(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return nil
	}
	challenges, err := s.challengeService.List(c.UserContext(), userID)
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}
	return c.JSON(challenges)
}

// CreateChallenge handles POST /api/challenges
// @Summary Create a challenge
// @Description Start defaults to now and end to thirty days after start
// @Tags challenges
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{title=string,description=string,start_date=string,end_date=string} true "Challenge"
// @Success 201 {object} models.Challenge
// @Failure 400 {object} models.ErrorResponse
// @Router /challenges [post]
func (s *Server) CreateChallenge(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return nil
	}
	var req createChallengeRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	challenge, err := s.challengeService.Create(c.UserContext(), service.CreateChallengeInput{
		UserID:      userID,
		Title:       req.Title,
		Description: req.Description,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
	})
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}
	return c.Status(fiber.StatusCreated).JSON(challenge)
}

// GetChallenge handles GET /api/challenges/:id
func (s *Server) GetChallenge(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return nil
	}
	id, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	challenge, err := s.challengeService.Get(c.UserContext(), userID, id)
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}
	return c.JSON(challenge)
}

// DeleteChallenge handles DELETE /api/challenges/:id
func (s *Server) DeleteChallenge(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return nil
	}
	id, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.challengeService.Delete(c.UserContext(), userID, id); err != nil {
		return models.RespondWithError(c, 0, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
