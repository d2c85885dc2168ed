package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"thirtyday/internal/config"
	"thirtyday/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-12345678901234567890123456789012"

type keyStub map[string]*models.APIKey

func (s keyStub) Authenticate(_ context.Context, raw string) (*models.APIKey, error) {
	if k, ok := s[raw]; ok {
		return k, nil
	}
	return nil, models.NewUnauthorizedError("Invalid API key")
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func userToken(t *testing.T, sub string, exp time.Duration) string {
	return signToken(t, jwt.MapClaims{
		"sub":   sub,
		"email": "user@example.com",
		"aud":   "authenticated",
		"exp":   time.Now().Add(exp).Unix(),
	})
}

func TestAuthRequired(t *testing.T) {
	userID := uuid.New()
	keyOwner := uuid.New()
	InitMiddleware(&config.Config{JWTSecret: testSecret, JWTAudience: "authenticated"}, keyStub{
		"tdc_abcd1234_secret": {UserID: keyOwner, Scopes: models.Scopes{models.ScopeRead}},
	})

	app := fiber.New()
	app.Get("/test", AuthRequired, func(c *fiber.Ctx) error {
		id, _ := CurrentUserID(c)
		ctxID, _ := UserIDFromContext(c.UserContext())
		return c.JSON(fiber.Map{
			"userID": id.String(),
			"ctxID":  ctxID.String(),
			"method": c.Locals(LocalAuthMethod),
		})
	})

	tests := []struct {
		name           string
		authHeader     string
		apiKey         string
		expectedStatus int
		expectedUserID uuid.UUID
		expectedMethod string
	}{
		{
			name:           "Happy Path",
			authHeader:     "Bearer " + userToken(t, userID.String(), time.Hour),
			expectedStatus: http.StatusOK,
			expectedUserID: userID,
			expectedMethod: AuthMethodJWT,
		},
		{
			name:           "API Key",
			apiKey:         "tdc_abcd1234_secret",
			expectedStatus: http.StatusOK,
			expectedUserID: keyOwner,
			expectedMethod: AuthMethodAPIKey,
		},
		{name: "Unknown API Key", apiKey: "tdc_zzzz_nope", expectedStatus: http.StatusUnauthorized},
		{name: "Missing Header", expectedStatus: http.StatusUnauthorized},
		{name: "Invalid Format", authHeader: "Basic dXNlcjpwYXNz", expectedStatus: http.StatusUnauthorized},
		{name: "Malformed Token", authHeader: "Bearer malformed.token.here", expectedStatus: http.StatusUnauthorized},
		{
			name:           "Expired Token",
			authHeader:     "Bearer " + userToken(t, userID.String(), -time.Hour),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Numeric Subject",
			authHeader:     "Bearer " + userToken(t, "123", time.Hour),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name: "Wrong Audience",
			authHeader: "Bearer " + signToken(t, jwt.MapClaims{
				"sub": userID.String(),
				"aud": "service_role",
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			if tt.apiKey != "" {
				req.Header.Set(APIKeyHeader, tt.apiKey)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			if tt.expectedStatus == http.StatusOK {
				assert.Equal(t, tt.expectedUserID.String(), body["userID"])
				assert.Equal(t, tt.expectedUserID.String(), body["ctxID"])
				assert.Equal(t, tt.expectedMethod, body["method"])
			} else {
				assert.Equal(t, models.CodeUnauthorized, body["code"])
			}
		})
	}
}

func TestWebSocketAuthRequired(t *testing.T) {
	InitMiddleware(&config.Config{JWTSecret: testSecret}, nil)
	app := fiber.New()
	app.Get("/ws-test", WebSocketAuthRequired, func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	token := userToken(t, uuid.NewString(), time.Hour)

	tests := []struct {
		name           string
		tokenParam     string
		authHeader     string
		expectedStatus int
	}{
		{name: "Token via Query Param", tokenParam: token, expectedStatus: http.StatusOK},
		{name: "Token via Header", authHeader: "Bearer " + token, expectedStatus: http.StatusOK},
		{name: "Missing Token", expectedStatus: http.StatusUnauthorized},
		{name: "Invalid Token", tokenParam: "invalid-token", expectedStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := "/ws-test"
			if tt.tokenParam != "" {
				path += "?token=" + tt.tokenParam
			}
			req := httptest.NewRequest(http.MethodGet, path, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
		})
	}
}

func TestRequireScopes(t *testing.T) {
	InitMiddleware(&config.Config{JWTSecret: testSecret}, keyStub{
		"tdc_read_x":  {UserID: uuid.New(), Scopes: models.Scopes{models.ScopeRead}},
		"tdc_write_x": {UserID: uuid.New(), Scopes: models.Scopes{models.ScopeRead, models.ScopeWrite}},
		"tdc_admin_x": {UserID: uuid.New(), Scopes: models.Scopes{models.ScopeAdmin}},
	})
	app := fiber.New()
	ok := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) }
	app.Get("/r", AuthRequired, RequireScopes, ok)
	app.Post("/r", AuthRequired, RequireScopes, ok)
	app.Delete("/r", AuthRequired, RequireScopes, ok)
	app.Get("/session", AuthRequired, RequireSession, ok)

	tests := []struct {
		method, path, key string
		header            string
		want              int
	}{
		{http.MethodGet, "/r", "tdc_read_x", "", http.StatusNoContent},
		{http.MethodPost, "/r", "tdc_read_x", "", http.StatusForbidden},
		{http.MethodPost, "/r", "tdc_write_x", "", http.StatusNoContent},
		{http.MethodDelete, "/r", "tdc_write_x", "", http.StatusForbidden},
		{http.MethodDelete, "/r", "tdc_admin_x", "", http.StatusNoContent},
		{http.MethodDelete, "/r", "", "Bearer " + userToken(t, uuid.NewString(), time.Hour), http.StatusNoContent},
		{http.MethodGet, "/session", "tdc_admin_x", "", http.StatusForbidden},
		{http.MethodGet, "/session", "", "Bearer " + userToken(t, uuid.NewString(), time.Hour), http.StatusNoContent},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		if tt.key != "" {
			req.Header.Set(APIKeyHeader, tt.key)
		}
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, tt.want, resp.StatusCode, "%s %s key=%q", tt.method, tt.path, tt.key)
	}
}
