package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_NilClientIsNoop(t *testing.T) {
	n := NewNotifier(nil)
	assert.NoError(t, n.PublishConnectionsChanged(context.Background(), uuid.New()))
	assert.NoError(t, n.StartConnectionSubscriber(context.Background(), func(uuid.UUID) {}))
}

func TestConnectionsChannel_RoundTrip(t *testing.T) {
	id := uuid.New()
	ch := ConnectionsChannel(id)
	assert.Equal(t, "connections:user:"+id.String(), ch)

	got, ok := ParseConnectionsChannel(ch)
	require.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = ParseConnectionsChannel("connections:user:not-a-uuid")
	assert.False(t, ok)
	_, ok = ParseConnectionsChannel("notifications:user:" + id.String())
	assert.False(t, ok)
}

func TestNotifier_PublishReachesSubscriber(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan uuid.UUID, 4)
	require.NoError(t, n.StartConnectionSubscriber(ctx, func(id uuid.UUID) { received <- id }))

	alice, bob := uuid.New(), uuid.New()
	require.NoError(t, n.PublishConnectionsChanged(context.Background(), alice, bob))

	got := map[uuid.UUID]bool{}
	assert.Eventually(t, func() bool {
		for {
			select {
			case id := <-received:
				got[id] = true
			default:
				return got[alice] && got[bob]
			}
		}
	}, time.Second, 10*time.Millisecond)
}

func TestNotifier_SubscriberStopsOnCancel(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())

	received := make(chan uuid.UUID, 4)
	require.NoError(t, n.StartConnectionSubscriber(ctx, func(id uuid.UUID) { received <- id }))

	cancel()
	assert.Eventually(t, func() bool {
		return mr.PubSubNumPat() == 0
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, n.PublishConnectionsChanged(context.Background(), uuid.New()))
	assert.Never(t, func() bool { return len(received) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestNotifier_PublishFailsWhenRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer func() { _ = rdb.Close() }()
	mr.Close()

	n := NewNotifier(rdb)
	assert.Error(t, n.PublishConnectionsChanged(context.Background(), uuid.New()))
}
