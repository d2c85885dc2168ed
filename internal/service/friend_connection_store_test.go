package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"thirtyday/internal/cache"
	"thirtyday/internal/models"
	"thirtyday/internal/repository"
	"thirtyday/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type storeFixture struct {
	db                *gorm.DB
	conns             repository.FriendConnectionRepository
	store             *FriendConnectionStore
	pub               *recordingPublisher
	clock             *time.Time
	alice, bob, carol *models.User
}

func newStoreFixture(t *testing.T, opts ...StoreOption) *storeFixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	f := &storeFixture{
		db:    db,
		conns: repository.NewFriendConnectionRepository(db),
		pub:   &recordingPublisher{},
		alice: testutil.CreateUser(t, db, "alice"),
		bob:   testutil.CreateUser(t, db, "bob"),
		carol: testutil.CreateUser(t, db, "carol"),
	}
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	f.clock = &now
	opts = append([]StoreOption{WithClock(func() time.Time { return *f.clock })}, opts...)
	f.store = NewFriendConnectionStore(f.conns, repository.NewUserRepository(db), f.pub, opts...)
	return f
}

func (f *storeFixture) tick(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func (f *storeFixture) count(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.FriendConnection{}).Count(&n).Error)
	return n
}

func (f *storeFixture) list(t *testing.T, u *models.User) *models.ConnectionList {
	t.Helper()
	l, err := f.store.ListConnections(context.Background(), u.ID)
	require.NoError(t, err)
	return l
}

func TestStore_InviteCreatesPending(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	conn, err := f.store.Invite(ctx, f.alice.ID, f.bob.Email)
	require.NoError(t, err)
	assert.Equal(t, f.alice.ID, conn.SenderID)
	assert.Equal(t, f.bob.ID, conn.ReceiverID)
	assert.Equal(t, models.ConnectionPending, conn.Status)
	assert.EqualValues(t, 1, f.count(t))

	a := f.list(t, f.alice)
	require.Len(t, a.Outgoing, 1)
	assert.Equal(t, f.bob.ID, a.Outgoing[0].User.ID)
	assert.Equal(t, conn.ID, a.Outgoing[0].Connection.ID)
	assert.Empty(t, a.Incoming)
	assert.Empty(t, a.Friends)

	b := f.list(t, f.bob)
	require.Len(t, b.Incoming, 1)
	assert.Equal(t, f.alice.ID, b.Incoming[0].User.ID)
	assert.Empty(t, b.Outgoing)

	assert.Equal(t, [][]uuid.UUID{{f.alice.ID, f.bob.ID}}, f.pub.Calls())
}

func TestStore_InviteIsCaseInsensitive(t *testing.T) {
	f := newStoreFixture(t)
	_, err := f.store.Invite(context.Background(), f.alice.ID, "  BOB@Example.com ")
	assert.NoError(t, err)
}

func TestStore_SecondInviteIsPending(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	_, err := f.store.Invite(ctx, f.alice.ID, f.bob.Email)
	require.NoError(t, err)

	_, err = f.store.Invite(ctx, f.alice.ID, f.bob.Email)
	assert.ErrorIs(t, err, models.ErrInvitePending)

	// The other direction is the same pair.
	_, err = f.store.Invite(ctx, f.bob.ID, f.alice.Email)
	assert.ErrorIs(t, err, models.ErrInvitePending)

	assert.EqualValues(t, 1, f.count(t))
	assert.Len(t, f.pub.Calls(), 1)
}

func TestStore_AcceptRoundTrip(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	conn, err := f.store.Invite(ctx, f.alice.ID, f.bob.Email)
	require.NoError(t, err)

	f.tick(time.Minute)
	accepted, err := f.store.Accept(ctx, conn.ID, f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionAccepted, accepted.Status)
	assert.Equal(t, *f.clock, accepted.UpdatedAt)

	for _, u := range []*models.User{f.alice, f.bob} {
		l := f.list(t, u)
		require.Len(t, l.Friends, 1, u.Email)
		assert.Empty(t, l.Incoming)
		assert.Empty(t, l.Outgoing)
	}
	assert.Equal(t, f.bob.ID, f.list(t, f.alice).Friends[0].ID)
	assert.Equal(t, f.alice.ID, f.list(t, f.bob).Friends[0].ID)

	_, err = f.store.Invite(ctx, f.bob.ID, f.alice.Email)
	assert.ErrorIs(t, err, models.ErrAlreadyConnected)

	stored, err := f.conns.GetByID(ctx, conn.ID)
	require.NoError(t, err)
	assert.True(t, stored.UpdatedAt.Equal(*f.clock))
	assert.Len(t, f.pub.Calls(), 2)
}

func TestStore_RejectThenReinviteReusesRecord(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	conn, err := f.store.Invite(ctx, f.alice.ID, f.bob.Email)
	require.NoError(t, err)
	_, err = f.store.Reject(ctx, conn.ID, f.bob.ID)
	require.NoError(t, err)

	for _, u := range []*models.User{f.alice, f.bob} {
		l := f.list(t, u)
		assert.Empty(t, l.Friends)
		assert.Empty(t, l.Incoming)
		assert.Empty(t, l.Outgoing)
	}

	f.tick(time.Hour)
	again, err := f.store.Invite(ctx, f.bob.ID, f.alice.Email)
	require.NoError(t, err)
	assert.Equal(t, conn.ID, again.ID)
	assert.Equal(t, f.bob.ID, again.SenderID)
	assert.Equal(t, f.alice.ID, again.ReceiverID)
	assert.Equal(t, models.ConnectionPending, again.Status)
	assert.EqualValues(t, 1, f.count(t))

	stored, err := f.conns.GetByID(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, f.bob.ID, stored.SenderID)
	assert.Equal(t, f.alice.ID, stored.ReceiverID)
	assert.Equal(t, models.ConnectionPending, stored.Status)
	assert.True(t, stored.UpdatedAt.Equal(*f.clock))

	require.Len(t, f.list(t, f.alice).Incoming, 1)
	require.Len(t, f.list(t, f.bob).Outgoing, 1)

	// Now alice is the receiver and may accept.
	_, err = f.store.Accept(ctx, conn.ID, f.alice.ID)
	assert.NoError(t, err)
}

func TestStore_OriginalSenderMayReinvite(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	conn, err := f.store.Invite(ctx, f.alice.ID, f.bob.Email)
	require.NoError(t, err)
	_, err = f.store.Reject(ctx, conn.ID, f.bob.ID)
	require.NoError(t, err)

	again, err := f.store.Invite(ctx, f.alice.ID, f.bob.Email)
	require.NoError(t, err)
	assert.Equal(t, conn.ID, again.ID)
	assert.Equal(t, f.alice.ID, again.SenderID)
}

func TestStore_OnlyReceiverDecides(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	conn, err := f.store.Invite(ctx, f.alice.ID, f.bob.Email)
	require.NoError(t, err)

	for _, actor := range []*models.User{f.alice, f.carol} {
		_, err = f.store.Accept(ctx, conn.ID, actor.ID)
		assert.ErrorIs(t, err, models.ErrNotAuthorized, actor.Email)
		_, err = f.store.Reject(ctx, conn.ID, actor.ID)
		assert.ErrorIs(t, err, models.ErrNotAuthorized, actor.Email)
	}

	stored, err := f.conns.GetByID(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionPending, stored.Status)
	assert.Len(t, f.pub.Calls(), 1)
}

func TestStore_DecideRequiresPending(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	accepted, err := f.store.Invite(ctx, f.alice.ID, f.bob.Email)
	require.NoError(t, err)
	_, err = f.store.Accept(ctx, accepted.ID, f.bob.ID)
	require.NoError(t, err)

	_, err = f.store.Accept(ctx, accepted.ID, f.bob.ID)
	assert.ErrorIs(t, err, models.ErrInvalidState)
	_, err = f.store.Reject(ctx, accepted.ID, f.bob.ID)
	assert.ErrorIs(t, err, models.ErrInvalidState)

	rejected, err := f.store.Invite(ctx, f.alice.ID, f.carol.Email)
	require.NoError(t, err)
	_, err = f.store.Reject(ctx, rejected.ID, f.carol.ID)
	require.NoError(t, err)
	_, err = f.store.Accept(ctx, rejected.ID, f.carol.ID)
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestStore_InviteErrors(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	_, err := f.store.Invite(ctx, f.alice.ID, f.alice.Email)
	assert.ErrorIs(t, err, models.ErrInvalidTarget)

	_, err = f.store.Invite(ctx, f.alice.ID, "nobody@example.com")
	assert.ErrorIs(t, err, models.ErrUserNotFound)

	_, err = f.store.Accept(ctx, uuid.New(), f.alice.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.EqualValues(t, 0, f.count(t))
	assert.Empty(t, f.pub.Calls())
}

func TestStore_ListOrdersNewestFirst(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	_, err := f.store.Invite(ctx, f.alice.ID, f.bob.Email)
	require.NoError(t, err)
	f.tick(time.Minute)
	_, err = f.store.Invite(ctx, f.alice.ID, f.carol.Email)
	require.NoError(t, err)

	out := f.list(t, f.alice).Outgoing
	require.Len(t, out, 2)
	assert.Equal(t, f.carol.ID, out[0].User.ID)
	assert.Equal(t, f.bob.ID, out[1].User.ID)
}

func TestStore_TransportErrorsLeaveStateAlone(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	boom := models.NewTransportError("select friend_connections", errors.New("connection reset"))

	stub := &connRepoStub{FriendConnectionRepository: f.conns}
	store := NewFriendConnectionStore(stub, repository.NewUserRepository(f.db), f.pub)

	stub.findBetweenFn = func(context.Context, uuid.UUID, uuid.UUID) (*models.FriendConnection, error) { return nil, boom }
	_, err := store.Invite(ctx, f.alice.ID, f.bob.Email)
	assert.ErrorIs(t, err, models.ErrTransport)
	assert.EqualValues(t, 0, f.count(t))

	stub.findBetweenFn = nil
	conn, err := store.Invite(ctx, f.alice.ID, f.bob.Email)
	require.NoError(t, err)

	stub.updateFn = func(context.Context, uuid.UUID, models.ConnectionStatus, repository.ConnectionChange) error { return boom }
	_, err = store.Accept(ctx, conn.ID, f.bob.ID)
	assert.ErrorIs(t, err, models.ErrTransport)

	stored, err := f.conns.GetByID(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionPending, stored.Status)
	assert.Len(t, f.pub.Calls(), 1)

	dir := &userDirStub{err: boom}
	store = NewFriendConnectionStore(f.conns, dir, f.pub)
	_, err = store.Invite(ctx, f.alice.ID, f.bob.Email)
	assert.ErrorIs(t, err, models.ErrTransport)
	assert.NotErrorIs(t, err, models.ErrUserNotFound)
}

func TestStore_ReinviteLosingRaceReportsCurrentState(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	conn, err := f.store.Invite(ctx, f.alice.ID, f.bob.Email)
	require.NoError(t, err)
	_, err = f.store.Reject(ctx, conn.ID, f.bob.ID)
	require.NoError(t, err)

	stub := &connRepoStub{FriendConnectionRepository: f.conns}
	// Another writer re-invites between our read and our update.
	stub.findBetweenFn = func(ctx context.Context, a, b uuid.UUID) (*models.FriendConnection, error) {
		found, err := f.conns.FindBetween(ctx, a, b)
		if err != nil {
			return nil, err
		}
		_, rerr := f.store.Invite(ctx, f.alice.ID, f.bob.Email)
		require.NoError(t, rerr)
		return found, nil
	}
	store := NewFriendConnectionStore(stub, repository.NewUserRepository(f.db), f.pub)

	_, err = store.Invite(ctx, f.bob.ID, f.alice.Email)
	assert.ErrorIs(t, err, models.ErrInvitePending)

	stored, err := f.conns.GetByID(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, f.alice.ID, stored.SenderID)
}

func TestStore_PublishFailureKeepsWrite(t *testing.T) {
	f := newStoreFixture(t)
	f.pub.err = errors.New("redis down")

	conn, err := f.store.Invite(context.Background(), f.alice.ID, f.bob.Email)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, conn.ID)
	assert.EqualValues(t, 1, f.count(t))
}

func TestStore_NilPublisher(t *testing.T) {
	f := newStoreFixture(t)
	store := NewFriendConnectionStore(f.conns, repository.NewUserRepository(f.db), nil)
	_, err := store.Invite(context.Background(), f.alice.ID, f.bob.Email)
	assert.NoError(t, err)
}

func TestStore_ViewCacheInvalidatedOnChange(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb, err := cache.NewClient(mr.Addr())
	require.NoError(t, err)
	defer func() { _ = rdb.Close() }()

	f := newStoreFixture(t, WithViewCache(cache.NewViewCache(rdb, time.Minute)))
	ctx := context.Background()

	assert.Empty(t, f.list(t, f.bob).Incoming)
	require.True(t, mr.Exists(cache.ConnectionsViewKey(f.bob.ID)))

	conn, err := f.store.Invite(ctx, f.alice.ID, f.bob.Email)
	require.NoError(t, err)
	assert.False(t, mr.Exists(cache.ConnectionsViewKey(f.bob.ID)))

	incoming := f.list(t, f.bob).Incoming
	require.Len(t, incoming, 1)
	assert.Equal(t, conn.ID, incoming[0].Connection.ID)

	// Served from cache: a row changed behind the store's back is not seen.
	require.NoError(t, f.db.Model(&models.FriendConnection{}).Where("id = ?", conn.ID).
		Update("status", models.ConnectionAccepted).Error)
	assert.Len(t, f.list(t, f.bob).Incoming, 1)

	refreshed, err := f.store.RefreshConnections(ctx, f.bob.ID)
	require.NoError(t, err)
	assert.Empty(t, refreshed.Incoming)
	assert.Len(t, refreshed.Friends, 1)
}
