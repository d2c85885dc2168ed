package server

import (
	"thirtyday/internal/models"
	"thirtyday/internal/service"

	"github.com/gofiber/fiber/v2"
)

type createAPIKeyRequest struct {
	Name       string   `json:"name"`
	Scopes     []string `json:"scopes"`
	Expiration string   `json:"expiration"`
}

// apiKeyView adds the derived status to a stored key.
type apiKeyView struct {
	models.APIKey
	Status models.APIKeyStatus `json:"status"`
}

func viewAPIKey(key models.APIKey) apiKeyView {
	return apiKeyView{APIKey: key, Status: key.StatusAt(nowUTC())}
}

// ListAPIKeys handles GET /api/settings/api-keys
// @Summary List my API keys
// @Tags api-keys
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.APIKey
// @Router /settings/api-keys [get]
func (s *Server) ListAPIKeys(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return nil
	}
	keys, err := s.apiKeyService.List(c.UserContext(), userID)
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}
	out := make([]apiKeyView, 0, len(keys))
	for _, k := range keys {
		out = append(out, viewAPIKey(k))
	}
	return c.JSON(out)
}

// CreateAPIKey handles POST /api/settings/api-keys
// @Summary Create an API key
// @Description The raw key is in the response and is never shown again
// @Tags api-keys
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{name=string,scopes=[]string,expiration=string} true "Key request"
// @Success 201 {object} object{key=models.APIKey,secret=string}
// @Failure 400 {object} models.ErrorResponse
// @Router /settings/api-keys [post]
func (s *Server) CreateAPIKey(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return nil
	}
	var req createAPIKeyRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	created, err := s.apiKeyService.Create(c.UserContext(), service.CreateAPIKeyInput{
		UserID:     userID,
		Name:       req.Name,
		Scopes:     req.Scopes,
		Expiration: req.Expiration,
	})
	if err != nil {
		return models.RespondWithError(c, 0, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"key":    viewAPIKey(*created.Key),
		"secret": created.Secret,
	})
}

// RevokeAPIKey handles DELETE /api/settings/api-keys/:id
// @Summary Revoke an API key
// @Tags api-keys
// @Security BearerAuth
// @Param id path string true "API key ID"
// @Success 204
// @Failure 403 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /settings/api-keys/{id} [delete]
func (s *Server) RevokeAPIKey(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return nil
	}
	id, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.apiKeyService.Revoke(c.UserContext(), userID, id); err != nil {
		return models.RespondWithError(c, 0, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
