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

// ConnectionChange is a partial update of one friend connection. Nil sender
// and receiver leave the direction unchanged.
type ConnectionChange struct {
	SenderID   *uuid.UUID
	ReceiverID *uuid.UUID
	Status     models.ConnectionStatus
	UpdatedAt  time.Time
}

// FriendConnectionRepository defines persistence operations for friend connections.
type FriendConnectionRepository interface {
	Insert(ctx context.Context, conn *models.FriendConnection) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.FriendConnection, error)
	// FindBetween returns the record for the unordered pair, or nil, nil.
	FindBetween(ctx context.Context, a, b uuid.UUID) (*models.FriendConnection, error)
	// ListForUser returns every record naming userID, newest first, with
	// Sender and Receiver loaded.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.FriendConnection, error)
	// Update applies change only while the row is still in status from.
	// It returns ErrInvalidState when another writer got there first.
	Update(ctx context.Context, id uuid.UUID, from models.ConnectionStatus, change ConnectionChange) error
}

type friendConnectionRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewFriendConnectionRepository creates a new friend connection repository
func NewFriendConnectionRepository(db *gorm.DB) FriendConnectionRepository {
	return &friendConnectionRepository{db: db, log: observability.NewRepoLogger("friend_connections")}
}

func (r *friendConnectionRepository) Insert(ctx context.Context, conn *models.FriendConnection) (err error) {
	ctx, end := instrument(ctx, "Insert", "friend_connections")
	defer func() { end(err) }()

	if err := r.db.WithContext(ctx).Omit("Sender", "Receiver").Create(conn).Error; err != nil {
		return transportError(ctx, r.log, "insert friend_connections", err)
	}
	r.log.LogCreate(ctx, map[string]any{
		"connection_id": conn.ID.String(),
		"sender_id":     conn.SenderID.String(),
		"receiver_id":   conn.ReceiverID.String(),
	})
	return nil
}

func (r *friendConnectionRepository) GetByID(ctx context.Context, id uuid.UUID) (conn *models.FriendConnection, err error) {
	ctx, end := instrument(ctx, "GetByID", "friend_connections")
	defer func() { end(err) }()

	var c models.FriendConnection
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Connection", id)
		}
		return nil, transportError(ctx, r.log, "select friend_connections", err)
	}
	return &c, nil
}

func (r *friendConnectionRepository) FindBetween(ctx context.Context, a, b uuid.UUID) (conn *models.FriendConnection, err error) {
	ctx, end := instrument(ctx, "FindBetween", "friend_connections")
	defer func() { end(err) }()

	var c models.FriendConnection
	if err := r.db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", a, b, b, a).
		First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, transportError(ctx, r.log, "select friend_connections", err)
	}
	return &c, nil
}

func (r *friendConnectionRepository) ListForUser(ctx context.Context, userID uuid.UUID) (conns []models.FriendConnection, err error) {
	ctx, end := instrument(ctx, "ListForUser", "friend_connections")
	defer func() { end(err) }()

	if err := r.db.WithContext(ctx).
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Preload("Sender").
		Preload("Receiver").
		Order("created_at DESC").
		Find(&conns).Error; err != nil {
		return nil, transportError(ctx, r.log, "select friend_connections", err)
	}
	return conns, nil
}

func (r *friendConnectionRepository) Update(ctx context.Context, id uuid.UUID, from models.ConnectionStatus, change ConnectionChange) (err error) {
	ctx, end := instrument(ctx, "Update", "friend_connections")
	defer func() { end(err) }()

	fields := map[string]any{
		"status":     change.Status,
		"updated_at": change.UpdatedAt,
	}
	if change.SenderID != nil {
		fields["sender_id"] = *change.SenderID
	}
	if change.ReceiverID != nil {
		fields["receiver_id"] = *change.ReceiverID
	}

	res := r.db.WithContext(ctx).
		Model(&models.FriendConnection{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return transportError(ctx, r.log, "update friend_connections", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewInvalidStateError("Connection changed before the update was applied")
	}

	r.log.LogUpdate(ctx, map[string]any{
		"connection_id": id.String(),
		"from":          string(from),
		"to":            string(change.Status),
	})
	return nil
}
