package repository

import (
	"context"
	"errors"

	"thirtyday/internal/models"
	"thirtyday/internal/observability"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChallengeRepository defines persistence operations for challenges.
type ChallengeRepository interface {
	Create(ctx context.Context, challenge *models.Challenge) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Challenge, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Challenge, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type challengeRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewChallengeRepository returns a new ChallengeRepository implementation.
func NewChallengeRepository(db *gorm.DB) ChallengeRepository {
	return &challengeRepository{db: db, log: observability.NewRepoLogger("challenges")}
}

func (r *challengeRepository) Create(ctx context.Context, challenge *models.Challenge) (err error) {
	ctx, end := instrument(ctx, "Create", "challenges")
	defer func() { end(err) }()

	if err := r.db.WithContext(ctx).Create(challenge).Error; err != nil {
		return transportError(ctx, r.log, "insert challenges", err)
	}
	r.log.LogCreate(ctx, map[string]any{"challenge_id": challenge.ID.String()})
	return nil
}

func (r *challengeRepository) GetByID(ctx context.Context, id uuid.UUID) (challenge *models.Challenge, err error) {
	ctx, end := instrument(ctx, "GetByID", "challenges")
	defer func() { end(err) }()

	var c models.Challenge
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Challenge", id)
		}
		return nil, transportError(ctx, r.log, "select challenges", err)
	}
	return &c, nil
}

func (r *challengeRepository) ListByUser(ctx context.Context, userID uuid.UUID) (challenges []models.Challenge, err error) {
	ctx, end := instrument(ctx, "ListByUser", "challenges")
	defer func() { end(err) }()

	challenges = []models.Challenge{}
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&challenges).Error; err != nil {
		return nil, transportError(ctx, r.log, "select challenges", err)
	}
	return challenges, nil
}

func (r *challengeRepository) Delete(ctx context.Context, id uuid.UUID) (err error) {
	ctx, end := instrument(ctx, "Delete", "challenges")
	defer func() { end(err) }()

	res := r.db.WithContext(ctx).Delete(&models.Challenge{}, "id = ?", id)
	if res.Error != nil {
		return transportError(ctx, r.log, "delete challenges", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Challenge", id)
	}
	r.log.LogDelete(ctx, map[string]any{"challenge_id": id.String()})
	return nil
}
