package notifications

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroker_NotifyReachesOnlyThatUser(t *testing.T) {
	b := NewBroker()
	alice, bob := uuid.New(), uuid.New()
	sa := b.Subscribe(alice)
	sb := b.Subscribe(bob)
	defer sa.Close()
	defer sb.Close()

	b.Notify(alice)

	select {
	case <-sa.C:
	case <-time.After(time.Second):
		t.Fatal("alice was not notified")
	}
	select {
	case <-sb.C:
		t.Fatal("bob should not be notified")
	default:
	}
}

func TestBroker_BurstCoalesces(t *testing.T) {
	b := NewBroker()
	user := uuid.New()
	s := b.Subscribe(user)
	defer s.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, b.PublishConnectionsChanged(context.Background(), user))
	}
	assert.Len(t, s.C, 1)
}

func TestBroker_CloseUnsubscribes(t *testing.T) {
	b := NewBroker()
	user := uuid.New()
	s1 := b.Subscribe(user)
	s2 := b.Subscribe(user)
	assert.Equal(t, 2, b.Subscribers(user))

	s1.Close()
	s1.Close()
	assert.Equal(t, 1, b.Subscribers(user))

	s2.Close()
	assert.Equal(t, 0, b.Subscribers(user))
	b.Notify(user)
	assert.Empty(t, s2.C)
}

func TestBroker_NotifyAll(t *testing.T) {
	b := NewBroker()
	s1 := b.Subscribe(uuid.New())
	s2 := b.Subscribe(uuid.New())

	b.NotifyAll()
	assert.Len(t, s1.C, 1)
	assert.Len(t, s2.C, 1)
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, NopPublisher{}.PublishConnectionsChanged(context.Background(), uuid.New()))
}

func TestParseChangePayload(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	ids, err := ParseChangePayload(`{"sender_id":"` + a.String() + `","receiver_id":"` + b.String() + `"}`)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, ids)

	_, err = ParseChangePayload(`not json`)
	assert.Error(t, err)

	_, err = ParseChangePayload(`{"sender_id":"` + a.String() + `"}`)
	assert.Error(t, err)
}

func TestPGListener_RetriesUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	// Nothing listens on port 1, so every connect fails fast.
	l := NewPGListener("host=127.0.0.1 port=1 user=x dbname=x sslmode=disable connect_timeout=1",
		discardLogger(), func(...uuid.UUID) {}, nil)
	l.MinBackoff = 5 * time.Millisecond
	l.MaxBackoff = 20 * time.Millisecond

	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop after cancel")
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
