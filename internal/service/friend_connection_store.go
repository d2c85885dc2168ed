package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"thirtyday/internal/models"
	"thirtyday/internal/notifications"
	"thirtyday/internal/observability"
	"thirtyday/internal/repository"

	"github.com/google/uuid"
)

// UserDirectory resolves an email to a registered user. A missing user must
// come back as ErrUserNotFound, distinct from a lookup failure.
type UserDirectory interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// ConnectionViewCache caches each user's partitioned connection list.
// *cache.ViewCache satisfies it, including as a nil pointer.
type ConnectionViewCache interface {
	Lookup(ctx context.Context, userID uuid.UUID) (*models.ConnectionList, int64, bool)
	Store(ctx context.Context, userID uuid.UUID, gen int64, list *models.ConnectionList)
	Invalidate(ctx context.Context, userIDs ...uuid.UUID)
}

// Transition kinds, used as the metric label.
const (
	kindInvite   = "invite"
	kindReinvite = "reinvite"
	kindAccept   = "accept"
	kindReject   = "reject"
)

// FriendConnectionStore owns the friend connection records and mediates every
// transition. Each mutation touches exactly one record and, once it is
// stored, signals both users on the change feed.
type FriendConnectionStore struct {
	conns     repository.FriendConnectionRepository
	users     UserDirectory
	publisher notifications.Publisher
	views     ConnectionViewCache
	now       func() time.Time
}

// StoreOption configures a FriendConnectionStore.
type StoreOption func(*FriendConnectionStore)

// WithViewCache serves ListConnections from views when possible.
func WithViewCache(views ConnectionViewCache) StoreOption {
	return func(s *FriendConnectionStore) { s.views = views }
}

// WithClock overrides time.Now for updated_at stamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *FriendConnectionStore) { s.now = now }
}

// NewFriendConnectionStore returns a store. A nil publisher disables the
// change feed.
func NewFriendConnectionStore(conns repository.FriendConnectionRepository, users UserDirectory, publisher notifications.Publisher, opts ...StoreOption) *FriendConnectionStore {
	if publisher == nil {
		publisher = notifications.NopPublisher{}
	}
	s := &FriendConnectionStore{
		conns:     conns,
		users:     users,
		publisher: publisher,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListConnections returns userID's friends and pending invites, newest first.
func (s *FriendConnectionStore) ListConnections(ctx context.Context, userID uuid.UUID) (*models.ConnectionList, error) {
	var gen int64 = -1
	if s.views != nil {
		var (
			cached *models.ConnectionList
			hit    bool
		)
		if cached, gen, hit = s.views.Lookup(ctx, userID); hit {
			return cached, nil
		}
	}

	rows, err := s.conns.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	list := models.PartitionConnections(userID, rows)

	if s.views != nil {
		s.views.Store(ctx, userID, gen, &list)
	}
	return &list, nil
}

// RefreshConnections drops userID's cached view and lists from storage.
func (s *FriendConnectionStore) RefreshConnections(ctx context.Context, userID uuid.UUID) (*models.ConnectionList, error) {
	if s.views != nil {
		s.views.Invalidate(ctx, userID)
	}
	return s.ListConnections(ctx, userID)
}

// Invite proposes a connection from senderID to the user registered under
// receiverEmail. A rejected record for the pair is reused with the direction
// set to the new inviter.
func (s *FriendConnectionStore) Invite(ctx context.Context, senderID uuid.UUID, receiverEmail string) (*models.FriendConnection, error) {
	receiver, err := s.users.GetByEmail(ctx, receiverEmail)
	if err != nil {
		return nil, record(kindInvite, err)
	}
	if receiver.ID == senderID {
		return nil, record(kindInvite, models.ErrInvalidTarget)
	}

	existing, err := s.conns.FindBetween(ctx, senderID, receiver.ID)
	if err != nil {
		return nil, record(kindInvite, err)
	}
	if existing == nil {
		return s.createInvite(ctx, senderID, receiver.ID)
	}
	if err := rejectExisting(existing); err != nil {
		return nil, record(kindInvite, err)
	}
	return s.reinvite(ctx, existing, senderID, receiver.ID)
}

func (s *FriendConnectionStore) createInvite(ctx context.Context, senderID, receiverID uuid.UUID) (*models.FriendConnection, error) {
	now := s.now()
	conn := &models.FriendConnection{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     models.ConnectionPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.conns.Insert(ctx, conn); err != nil {
		return nil, record(kindInvite, err)
	}
	record(kindInvite, nil)
	s.changed(ctx, senderID, receiverID)
	return conn, nil
}

func (s *FriendConnectionStore) reinvite(ctx context.Context, conn *models.FriendConnection, senderID, receiverID uuid.UUID) (*models.FriendConnection, error) {
	now := s.now()
	err := s.conns.Update(ctx, conn.ID, models.ConnectionRejected, repository.ConnectionChange{
		SenderID:   &senderID,
		ReceiverID: &receiverID,
		Status:     models.ConnectionPending,
		UpdatedAt:  now,
	})
	if errors.Is(err, models.ErrInvalidState) {
		// Someone moved the record first; answer for the state it is in now.
		if current, gerr := s.conns.GetByID(ctx, conn.ID); gerr == nil {
			if rerr := rejectExisting(current); rerr != nil {
				err = rerr
			}
		}
	}
	if err != nil {
		return nil, record(kindReinvite, err)
	}

	conn.SenderID, conn.ReceiverID = senderID, receiverID
	conn.Status = models.ConnectionPending
	conn.UpdatedAt = now
	conn.Sender, conn.Receiver = models.User{}, models.User{}

	record(kindReinvite, nil)
	s.changed(ctx, senderID, receiverID)
	return conn, nil
}

// rejectExisting maps a live record to the invite error it implies. Rejected
// records are the only ones an invite may reuse.
func rejectExisting(conn *models.FriendConnection) error {
	switch conn.Status {
	case models.ConnectionAccepted:
		return models.ErrAlreadyConnected
	case models.ConnectionPending:
		return models.ErrInvitePending
	case models.ConnectionRejected:
		return nil
	}
	return models.NewInvalidStateError("Connection has unknown status " + string(conn.Status))
}

// Accept moves a pending connection to accepted. Only the receiver may do so.
func (s *FriendConnectionStore) Accept(ctx context.Context, connectionID, actingUserID uuid.UUID) (*models.FriendConnection, error) {
	return s.decide(ctx, kindAccept, connectionID, actingUserID, models.ConnectionAccepted)
}

// Reject moves a pending connection to rejected. Only the receiver may do so.
// The record is kept so either user can invite again later.
func (s *FriendConnectionStore) Reject(ctx context.Context, connectionID, actingUserID uuid.UUID) (*models.FriendConnection, error) {
	return s.decide(ctx, kindReject, connectionID, actingUserID, models.ConnectionRejected)
}

func (s *FriendConnectionStore) decide(ctx context.Context, kind string, connectionID, actingUserID uuid.UUID, to models.ConnectionStatus) (*models.FriendConnection, error) {
	conn, err := s.conns.GetByID(ctx, connectionID)
	if err != nil {
		return nil, record(kind, err)
	}
	if conn.ReceiverID != actingUserID {
		return nil, record(kind, models.NewNotAuthorizedError("Only the invited user can respond to this invitation"))
	}
	if !conn.Status.CanTransitionTo(to) {
		return nil, record(kind, models.NewInvalidStateError("Invitation is no longer pending"))
	}

	now := s.now()
	if err := s.conns.Update(ctx, conn.ID, models.ConnectionPending, repository.ConnectionChange{
		Status:    to,
		UpdatedAt: now,
	}); err != nil {
		return nil, record(kind, err)
	}
	conn.Status = to
	conn.UpdatedAt = now

	record(kind, nil)
	s.changed(ctx, conn.SenderID, conn.ReceiverID)
	return conn, nil
}

// changed invalidates both users' views and signals the feed. The write is
// already stored, so a publish failure is logged rather than returned.
func (s *FriendConnectionStore) changed(ctx context.Context, a, b uuid.UUID) {
	if s.views != nil {
		s.views.Invalidate(ctx, a, b)
	}
	if err := s.publisher.PublishConnectionsChanged(ctx, a, b); err != nil {
		observability.Log().WarnContext(ctx, "connection change not published",
			slog.String("sender_id", a.String()),
			slog.String("receiver_id", b.String()),
			slog.String("error", err.Error()),
		)
	}
}

// record counts the outcome of one command and returns err unchanged.
func record(kind string, err error) error {
	outcome := "ok"
	if err != nil {
		outcome = models.CodeInternal
		var appErr *models.AppError
		if errors.As(err, &appErr) {
			outcome = appErr.Code
		}
	}
	observability.ConnectionTransitions.WithLabelValues(kind, outcome).Inc()
	return err
}
