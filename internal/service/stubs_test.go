package service

import (
	"context"
	"sync"

	"thirtyday/internal/models"
	"thirtyday/internal/repository"

	"github.com/google/uuid"
)

// recordingPublisher remembers every change signal.
type recordingPublisher struct {
	mu    sync.Mutex
	calls [][]uuid.UUID
	err   error
}

func (p *recordingPublisher) PublishConnectionsChanged(_ context.Context, userIDs ...uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, append([]uuid.UUID(nil), userIDs...))
	return p.err
}

func (p *recordingPublisher) Calls() [][]uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]uuid.UUID(nil), p.calls...)
}

// connRepoStub overrides single methods of an embedded repository.
type connRepoStub struct {
	repository.FriendConnectionRepository
	insertFn      func(context.Context, *models.FriendConnection) error
	getByIDFn     func(context.Context, uuid.UUID) (*models.FriendConnection, error)
	findBetweenFn func(context.Context, uuid.UUID, uuid.UUID) (*models.FriendConnection, error)
	listForUserFn func(context.Context, uuid.UUID) ([]models.FriendConnection, error)
	updateFn      func(context.Context, uuid.UUID, models.ConnectionStatus, repository.ConnectionChange) error
}

func (s *connRepoStub) Insert(ctx context.Context, conn *models.FriendConnection) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, conn)
	}
	return s.FriendConnectionRepository.Insert(ctx, conn)
}

func (s *connRepoStub) GetByID(ctx context.Context, id uuid.UUID) (*models.FriendConnection, error) {
	if s.getByIDFn != nil {
		return s.getByIDFn(ctx, id)
	}
	return s.FriendConnectionRepository.GetByID(ctx, id)
}

func (s *connRepoStub) FindBetween(ctx context.Context, a, b uuid.UUID) (*models.FriendConnection, error) {
	if s.findBetweenFn != nil {
		return s.findBetweenFn(ctx, a, b)
	}
	return s.FriendConnectionRepository.FindBetween(ctx, a, b)
}

func (s *connRepoStub) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.FriendConnection, error) {
	if s.listForUserFn != nil {
		return s.listForUserFn(ctx, userID)
	}
	return s.FriendConnectionRepository.ListForUser(ctx, userID)
}

func (s *connRepoStub) Update(ctx context.Context, id uuid.UUID, from models.ConnectionStatus, change repository.ConnectionChange) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, id, from, change)
	}
	return s.FriendConnectionRepository.Update(ctx, id, from, change)
}

// userDirStub answers from a fixed map.
type userDirStub struct {
	users map[string]*models.User
	err   error
}

func (s *userDirStub) GetByEmail(_ context.Context, email string) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	if u, ok := s.users[email]; ok {
		return u, nil
	}
	return nil, models.NewUserNotFoundError(email)
}
