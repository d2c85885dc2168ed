package repository

import (
	"context"
	"errors"
	"time"

	"thirtyday/internal/models"
	"thirtyday/internal/observability"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// APIKeyRepository defines persistence operations for API keys.
type APIKeyRepository interface {
	Create(ctx context.Context, key *models.APIKey) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.APIKey, error)
	GetByPrefix(ctx context.Context, prefix string) (*models.APIKey, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error)
	// Revoke stamps revoked_at on a key that is not already revoked.
	Revoke(ctx context.Context, id uuid.UUID, at time.Time) error
	TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error
}

type apiKeyRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewAPIKeyRepository returns a new APIKeyRepository implementation.
func NewAPIKeyRepository(db *gorm.DB) APIKeyRepository {
	return &apiKeyRepository{db: db, log: observability.NewRepoLogger("api_keys")}
}

func (r *apiKeyRepository) Create(ctx context.Context, key *models.APIKey) (err error) {
	ctx, end := instrument(ctx, "Create", "api_keys")
	defer func() { end(err) }()

	if err := r.db.WithContext(ctx).Create(key).Error; err != nil {
		return transportError(ctx, r.log, "insert api_keys", err)
	}
	r.log.LogCreate(ctx, map[string]any{"api_key_id": key.ID.String(), "prefix": key.Prefix})
	return nil
}

func (r *apiKeyRepository) GetByID(ctx context.Context, id uuid.UUID) (key *models.APIKey, err error) {
	ctx, end := instrument(ctx, "GetByID", "api_keys")
	defer func() { end(err) }()

	var k models.APIKey
	if err := r.db.WithContext(ctx).First(&k, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("API key", id)
		}
		return nil, transportError(ctx, r.log, "select api_keys", err)
	}
	return &k, nil
}

func (r *apiKeyRepository) GetByPrefix(ctx context.Context, prefix string) (key *models.APIKey, err error) {
	ctx, end := instrument(ctx, "GetByPrefix", "api_keys")
	defer func() { end(err) }()

	var k models.APIKey
	if err := r.db.WithContext(ctx).Where("prefix = ?", prefix).First(&k).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("API key", prefix)
		}
		return nil, transportError(ctx, r.log, "select api_keys", err)
	}
	return &k, nil
}

func (r *apiKeyRepository) ListByUser(ctx context.Context, userID uuid.UUID) (keys []models.APIKey, err error) {
	ctx, end := instrument(ctx, "ListByUser", "api_keys")
	defer func() { end(err) }()

	keys = []models.APIKey{}
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&keys).Error; err != nil {
		return nil, transportError(ctx, r.log, "select api_keys", err)
	}
	return keys, nil
}

func (r *apiKeyRepository) Revoke(ctx context.Context, id uuid.UUID, at time.Time) (err error) {
	ctx, end := instrument(ctx, "Revoke", "api_keys")
	defer func() { end(err) }()

	res := r.db.WithContext(ctx).
		Model(&models.APIKey{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Updates(map[string]any{"revoked_at": at, "updated_at": at})
	if res.Error != nil {
		return transportError(ctx, r.log, "update api_keys", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewInvalidStateError("API key is already revoked")
	}
	r.log.LogUpdate(ctx, map[string]any{"api_key_id": id.String(), "revoked": true})
	return nil
}

func (r *apiKeyRepository) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) (err error) {
	ctx, end := instrument(ctx, "TouchLastUsed", "api_keys")
	defer func() { end(err) }()

	if err := r.db.WithContext(ctx).
		Model(&models.APIKey{}).
		Where("id = ?", id).
		UpdateColumn("last_used_at", at).Error; err != nil {
		return transportError(ctx, r.log, "update api_keys", err)
	}
	return nil
}
