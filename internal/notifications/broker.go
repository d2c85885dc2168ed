// Package notifications delivers "friend connections changed" signals from
// whichever feed is configured to in-process subscribers and websocket clients.
package notifications

import (
	"context"
	"sync"

	"thirtyday/internal/observability"

	"github.com/google/uuid"
)

// Publisher announces that the connections of the given users changed.
// Signals carry no payload; receivers refetch.
type Publisher interface {
	PublishConnectionsChanged(ctx context.Context, userIDs ...uuid.UUID) error
}

// NopPublisher is used when the database itself emits change events.
type NopPublisher struct{}

// PublishConnectionsChanged does nothing.
func (NopPublisher) PublishConnectionsChanged(context.Context, ...uuid.UUID) error { return nil }

// Subscription receives a value on C whenever the user's connections may have
// changed. C has a one-slot buffer, so a burst of signals arriving before the
// receiver drains C collapses into one.
type Subscription struct {
	C <-chan struct{}

	ch     chan struct{}
	userID uuid.UUID
	broker *Broker
	once   sync.Once
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.broker.remove(s) })
}

// Broker fans change signals out to subscribers in this process.
type Broker struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]map[*Subscription]struct{}
}

// NewBroker creates an empty Broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[uuid.UUID]map[*Subscription]struct{})}
}

// Subscribe registers interest in userID's connections.
func (b *Broker) Subscribe(userID uuid.UUID) *Subscription {
	ch := make(chan struct{}, 1)
	s := &Subscription{C: ch, ch: ch, userID: userID, broker: b}

	b.mu.Lock()
	m, ok := b.subs[userID]
	if !ok {
		m = make(map[*Subscription]struct{})
		b.subs[userID] = m
	}
	m[s] = struct{}{}
	b.mu.Unlock()
	return s
}

func (b *Broker) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := b.subs[s.userID]; ok {
		delete(m, s)
		if len(m) == 0 {
			delete(b.subs, s.userID)
		}
	}
}

// Notify signals every subscriber of each user. It never blocks.
func (b *Broker) Notify(userIDs ...uuid.UUID) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, id := range userIDs {
		for s := range b.subs[id] {
			select {
			case s.ch <- struct{}{}:
			default:
				observability.ChangeEventsCoalesced.Inc()
			}
		}
	}
}

// NotifyAll signals every subscriber. Used after a feed outage.
func (b *Broker) NotifyAll() {
	b.mu.RLock()
	ids := make([]uuid.UUID, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	b.mu.RUnlock()
	b.Notify(ids...)
}

// PublishConnectionsChanged makes the Broker usable as a single-process feed.
func (b *Broker) PublishConnectionsChanged(_ context.Context, userIDs ...uuid.UUID) error {
	observability.ChangeEventsPublished.WithLabelValues("local").Add(float64(len(userIDs)))
	b.Notify(userIDs...)
	return nil
}

// Subscribers returns how many subscriptions userID has.
func (b *Broker) Subscribers(userID uuid.UUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[userID])
}
