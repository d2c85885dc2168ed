package service

import (
	"context"
	"strings"
	"time"

	"thirtyday/internal/models"
	"thirtyday/internal/repository"
	"thirtyday/internal/validation"

	"github.com/google/uuid"
)

// ChallengeService manages a user's challenges.
type ChallengeService struct {
	repo repository.ChallengeRepository
	now  func() time.Time
}

type CreateChallengeInput struct {
	UserID      uuid.UUID
	Title       string
	Description string
	// StartDate defaults to now, EndDate to StartDate plus 30 days.
	StartDate *time.Time
	EndDate   *time.Time
}

func NewChallengeService(repo repository.ChallengeRepository) *ChallengeService {
	return &ChallengeService{repo: repo, now: time.Now}
}

func (s *ChallengeService) Create(ctx context.Context, in CreateChallengeInput) (*models.Challenge, error) {
	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	if err := validation.ValidateChallengeTitle(title); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateChallengeDescription(description); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	start := s.now().UTC()
	if in.StartDate != nil {
		start = in.StartDate.UTC()
	}
	end := start.Add(models.DefaultChallengeLength)
	if in.EndDate != nil {
		end = in.EndDate.UTC()
	}
	if err := validation.ValidateChallengeDates(start, end); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	challenge := &models.Challenge{
		UserID:      in.UserID,
		Title:       title,
		Description: description,
		StartDate:   start,
		EndDate:     end,
	}
	if err := s.repo.Create(ctx, challenge); err != nil {
		return nil, err
	}
	return challenge, nil
}

// List returns userID's challenges, newest first.
func (s *ChallengeService) List(ctx context.Context, userID uuid.UUID) ([]models.Challenge, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *ChallengeService) Get(ctx context.Context, userID, id uuid.UUID) (*models.Challenge, error) {
	challenge, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if challenge.UserID != userID {
		return nil, models.NewNotAuthorizedError("You can only view your own challenges")
	}
	return challenge, nil
}

func (s *ChallengeService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	challenge, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if challenge.UserID != userID {
		return models.NewNotAuthorizedError("You can only delete your own challenges")
	}
	return s.repo.Delete(ctx, id)
}
