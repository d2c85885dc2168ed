package repository

import (
	"context"
	"errors"
	"strings"

	"thirtyday/internal/models"
	"thirtyday/internal/observability"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository defines persistence operations for users. It is also the
// user directory: GetByEmail answers "not found" with ErrUserNotFound and
// everything else with a transport error.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Upsert(ctx context.Context, user *models.User) (*models.User, error)
	List(ctx context.Context, limit, offset int) ([]models.User, error)
}

type userRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db, log: observability.NewRepoLogger("users")}
}

// NormalizeEmail lowercases and trims an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (user *models.User, err error) {
	ctx, end := instrument(ctx, "GetByID", "users")
	defer func() { end(err) }()

	var u models.User
	if err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("User", id)
		}
		return nil, transportError(ctx, r.log, "select users", err)
	}
	return &u, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (user *models.User, err error) {
	ctx, end := instrument(ctx, "GetByEmail", "users")
	defer func() { end(err) }()

	email = NormalizeEmail(email)
	var u models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewUserNotFoundError(email)
		}
		return nil, transportError(ctx, r.log, "select users", err)
	}
	return &u, nil
}

// Upsert inserts the user or refreshes email and display name on an existing
// id. A nil DisplayName leaves the stored one alone.
func (r *userRepository) Upsert(ctx context.Context, user *models.User) (saved *models.User, err error) {
	ctx, end := instrument(ctx, "Upsert", "users")
	defer func() { end(err) }()

	user.Email = NormalizeEmail(user.Email)
	columns := []string{"email", "updated_at"}
	if user.DisplayName != nil {
		columns = append(columns, "display_name")
	}

	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(user).Error; err != nil {
		return nil, transportError(ctx, r.log, "upsert users", err)
	}
	r.log.LogCreate(ctx, map[string]any{"user_id": user.ID.String()})

	return r.GetByID(ctx, user.ID)
}

func (r *userRepository) List(ctx context.Context, limit, offset int) (users []models.User, err error) {
	ctx, end := instrument(ctx, "List", "users")
	defer func() { end(err) }()

	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if err := r.db.WithContext(ctx).Order("created_at ASC").Limit(limit).Offset(offset).Find(&users).Error; err != nil {
		return nil, transportError(ctx, r.log, "select users", err)
	}
	return users, nil
}
