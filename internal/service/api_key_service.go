package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"thirtyday/internal/models"
	"thirtyday/internal/observability"
	"thirtyday/internal/repository"
	"thirtyday/internal/validation"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// APIKeyPrefix starts every raw key: tdc_<prefix>_<secret>.
const APIKeyPrefix = "tdc"

const (
	keyPrefixBytes = 4
	keySecretBytes = 24
)

// APIKeyService issues, lists, revokes and authenticates API keys.
type APIKeyService struct {
	repo repository.APIKeyRepository
	now  func() time.Time
	cost int
}

type CreateAPIKeyInput struct {
	UserID     uuid.UUID
	Name       string
	Scopes     []string
	Expiration string
}

// CreatedAPIKey carries the raw key, which is shown once and never stored.
type CreatedAPIKey struct {
	Key    *models.APIKey `json:"key"`
	Secret string         `json:"secret"`
}

func NewAPIKeyService(repo repository.APIKeyRepository) *APIKeyService {
	return &APIKeyService{repo: repo, now: time.Now, cost: bcrypt.DefaultCost}
}

func (s *APIKeyService) Create(ctx context.Context, in CreateAPIKeyInput) (*CreatedAPIKey, error) {
	name := strings.TrimSpace(in.Name)
	if err := validation.ValidateAPIKeyName(name); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if len(in.Scopes) == 0 {
		in.Scopes = []string{models.ScopeRead}
	}
	scopes, err := validation.NormalizeScopes(in.Scopes)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if in.Expiration == "" {
		in.Expiration = validation.Expire30Days
	}
	now := s.now().UTC()
	expiresAt, err := validation.ExpiresAt(in.Expiration, now)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	prefix, err := randomHex(keyPrefixBytes)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	secret, err := randomHex(keySecretBytes)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	key := &models.APIKey{
		UserID:       in.UserID,
		Name:         name,
		Prefix:       prefix,
		HashedSecret: string(hash),
		Scopes:       scopes,
		ExpiresAt:    expiresAt,
	}
	if err := s.repo.Create(ctx, key); err != nil {
		return nil, err
	}
	return &CreatedAPIKey{Key: key, Secret: APIKeyPrefix + "_" + prefix + "_" + secret}, nil
}

// List returns userID's keys, newest first.
func (s *APIKeyService) List(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Revoke disables a key. Revoking an already revoked key is ErrInvalidState.
func (s *APIKeyService) Revoke(ctx context.Context, userID, id uuid.UUID) error {
	key, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if key.UserID != userID {
		return models.NewNotAuthorizedError("You can only revoke your own API keys")
	}
	return s.repo.Revoke(ctx, id, s.now().UTC())
}

// Authenticate resolves a raw key to its stored record. Unknown, malformed,
// revoked and expired keys all come back as ErrUnauthorized.
func (s *APIKeyService) Authenticate(ctx context.Context, raw string) (key *models.APIKey, err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "rejected"
			if errors.Is(err, models.ErrTransport) {
				outcome = "error"
			}
		}
		observability.APIKeyAuthentications.WithLabelValues(outcome).Inc()
	}()

	prefix, secret, ok := splitRawKey(raw)
	if !ok {
		return nil, models.NewUnauthorizedError("Malformed API key")
	}
	key, err = s.repo.GetByPrefix(ctx, prefix)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.NewUnauthorizedError("Invalid API key")
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(key.HashedSecret), []byte(secret)) != nil {
		return nil, models.NewUnauthorizedError("Invalid API key")
	}

	now := s.now().UTC()
	switch key.StatusAt(now) {
	case models.APIKeyRevoked:
		return nil, models.NewUnauthorizedError("API key has been revoked")
	case models.APIKeyExpired:
		return nil, models.NewUnauthorizedError("API key has expired")
	}

	if terr := s.repo.TouchLastUsed(ctx, key.ID, now); terr != nil {
		observability.Log().WarnContext(ctx, "api key last-used not recorded",
			slog.String("api_key_id", key.ID.String()),
			slog.String("error", terr.Error()),
		)
	} else {
		key.LastUsedAt = &now
	}
	return key, nil
}

func splitRawKey(raw string) (prefix, secret string, ok bool) {
	parts := strings.Split(strings.TrimSpace(raw), "_")
	if len(parts) != 3 || parts[0] != APIKeyPrefix || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
