// Package middleware provides authentication, logging, tracing and rate
// limiting middleware for the application.
package middleware

import (
	"context"
	"errors"
	"strings"

	"thirtyday/internal/config"
	"thirtyday/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Fiber locals set by the auth middleware.
const (
	LocalUserID     = "userID"
	LocalUserEmail  = "userEmail"
	LocalAuthMethod = "authMethod"
	LocalScopes     = "apiKeyScopes"
)

// Auth methods stored under LocalAuthMethod.
const (
	AuthMethodJWT    = "jwt"
	AuthMethodAPIKey = "api_key"
)

// APIKeyHeader carries a raw API key as an alternative to a bearer token.
const APIKeyHeader = "X-API-Key"

// APIKeyAuthenticator resolves a raw API key to its stored record.
type APIKeyAuthenticator interface {
	Authenticate(ctx context.Context, raw string) (*models.APIKey, error)
}

var (
	cfg     *config.Config
	apiKeys APIKeyAuthenticator
)

// InitMiddleware initializes authentication middleware with the given config.
// keys may be nil, in which case X-API-Key is refused.
func InitMiddleware(c *config.Config, keys APIKeyAuthenticator) {
	cfg = c
	apiKeys = keys
}

type identity struct {
	userID uuid.UUID
	email  string
}

// parseToken validates an identity provider token and returns its subject.
func parseToken(tokenString string) (identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
	}
	if cfg.JWTAudience != "" {
		opts = append(opts, jwt.WithAudience(cfg.JWTAudience))
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(cfg.JWTSecret), nil
	}, opts...)
	if err != nil || !token.Valid {
		return identity{}, errors.New("invalid or expired token")
	}

	// Extract user ID from "sub" claim (subject claim per RFC 7519)
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return identity{}, errors.New("invalid token structure - missing subject")
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return identity{}, errors.New("invalid user ID in token")
	}

	email, _ := claims["email"].(string)
	return identity{userID: userID, email: email}, nil
}

func bearerToken(c *fiber.Ctx) (string, error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header required")
	}
	// Extract token from "Bearer <token>"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("invalid authorization header format")
	}
	return parts[1], nil
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError(msg))
}

func setJWTIdentity(c *fiber.Ctx, id identity) {
	c.Locals(LocalUserID, id.userID)
	c.Locals(LocalUserEmail, id.email)
	c.Locals(LocalAuthMethod, AuthMethodJWT)
	c.SetUserContext(WithUserID(c.UserContext(), id.userID))
}

// AuthRequired accepts either an identity provider bearer token or an API key
// in X-API-Key.
func AuthRequired(c *fiber.Ctx) error {
	if raw := c.Get(APIKeyHeader); raw != "" {
		return authenticateAPIKey(c, raw)
	}

	tokenString, err := bearerToken(c)
	if err != nil {
		return unauthorized(c, err.Error())
	}
	id, err := parseToken(tokenString)
	if err != nil {
		return unauthorized(c, err.Error())
	}
	setJWTIdentity(c, id)
	return c.Next()
}

func authenticateAPIKey(c *fiber.Ctx, raw string) error {
	if apiKeys == nil {
		return unauthorized(c, "API keys are not accepted")
	}
	key, err := apiKeys.Authenticate(c.UserContext(), raw)
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			return models.RespondWithError(c, fiber.StatusUnauthorized, err)
		}
		return models.RespondWithError(c, 0, err)
	}
	c.Locals(LocalUserID, key.UserID)
	c.Locals(LocalAuthMethod, AuthMethodAPIKey)
	c.Locals(LocalScopes, key.Scopes)
	c.SetUserContext(WithUserID(c.UserContext(), key.UserID))
	return c.Next()
}

// WebSocketAuthRequired validates a token from the "token" query parameter,
// falling back to the Authorization header. Browsers cannot set headers on a
// websocket upgrade.
func WebSocketAuthRequired(c *fiber.Ctx) error {
	tokenString := c.Query("token")
	if tokenString == "" {
		var err error
		if tokenString, err = bearerToken(c); err != nil {
			return unauthorized(c, "Token required")
		}
	}
	id, err := parseToken(tokenString)
	if err != nil {
		return unauthorized(c, err.Error())
	}
	setJWTIdentity(c, id)
	return c.Next()
}

// RequireScopes enforces API key scopes by HTTP method: GET and HEAD need
// read, POST, PUT and PATCH need write, DELETE needs delete. Bearer token
// sessions carry every scope.
func RequireScopes(c *fiber.Ctx) error {
	if c.Locals(LocalAuthMethod) != AuthMethodAPIKey {
		return c.Next()
	}
	scopes, _ := c.Locals(LocalScopes).(models.Scopes)

	need := models.ScopeRead
	switch c.Method() {
	case fiber.MethodPost, fiber.MethodPut, fiber.MethodPatch:
		need = models.ScopeWrite
	case fiber.MethodDelete:
		need = models.ScopeDelete
	}
	if !scopes.Allows(need) {
		return models.RespondWithError(c, fiber.StatusForbidden,
			models.NewNotAuthorizedError("API key lacks the "+need+" scope"))
	}
	return c.Next()
}

// RequireSession refuses API key callers. Key management needs a real login.
func RequireSession(c *fiber.Ctx) error {
	if c.Locals(LocalAuthMethod) == AuthMethodAPIKey {
		return models.RespondWithError(c, fiber.StatusForbidden,
			models.NewNotAuthorizedError("This endpoint requires a signed-in session"))
	}
	return c.Next()
}

// CurrentUserID returns the authenticated user's id from Fiber locals.
func CurrentUserID(c *fiber.Ctx) (uuid.UUID, bool) {
	id, ok := c.Locals(LocalUserID).(uuid.UUID)
	return id, ok
}
