package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"thirtyday/internal/models"
	"thirtyday/internal/repository"
	"thirtyday/internal/validation"

	"github.com/google/uuid"
)

const maxDisplayNameLen = 100

// UserService mirrors identity provider users into the local directory.
type UserService struct {
	userRepo repository.UserRepository
}

func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

// EnsureUser records the user on first visit and refreshes their email. A
// nil displayName keeps whatever is stored.
func (s *UserService) EnsureUser(ctx context.Context, id uuid.UUID, email string, displayName *string) (*models.User, error) {
	if id == uuid.Nil {
		return nil, models.NewValidationError("User id is required")
	}
	email = repository.NormalizeEmail(email)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	name, err := cleanDisplayName(displayName)
	if err != nil {
		return nil, err
	}
	return s.userRepo.Upsert(ctx, &models.User{ID: id, Email: email, DisplayName: name})
}

func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// ResolveEmail finds the user registered under email.
func (s *UserService) ResolveEmail(ctx context.Context, email string) (*models.User, error) {
	return s.userRepo.GetByEmail(ctx, email)
}

// UpdateDisplayName sets or, with an empty name, clears the display name.
func (s *UserService) UpdateDisplayName(ctx context.Context, id uuid.UUID, displayName string) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	name, err := cleanDisplayName(&displayName)
	if err != nil {
		return nil, err
	}
	user.DisplayName = name
	return s.userRepo.Upsert(ctx, user)
}

func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	return s.userRepo.List(ctx, limit, offset)
}

func cleanDisplayName(name *string) (*string, error) {
	if name == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*name)
	if utf8.RuneCountInString(trimmed) > maxDisplayNameLen {
		return nil, models.NewValidationError("Display name too long (max 100 characters)")
	}
	return &trimmed, nil
}
