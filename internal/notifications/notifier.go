package notifications

import (
	"context"
	"log"
	"runtime/debug"
	"strings"

	"thirtyday/internal/observability"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const connectionsChannelPrefix = "connections:user:"

// Notifier publishes connection change signals through Redis pub/sub so every
// API instance hears about writes made by any other.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
// A nil client makes every method a no-op.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PublishConnectionsChanged sends an empty signal on each user's channel.
func (n *Notifier) PublishConnectionsChanged(ctx context.Context, userIDs ...uuid.UUID) error {
	if n.rdb == nil || len(userIDs) == 0 {
		return nil
	}
	ctx, span := observability.GetTraceLayer().TraceRedisOperation(ctx, "publish")
	defer span.End()

	pipe := n.rdb.Pipeline()
	for _, id := range userIDs {
		pipe.Publish(ctx, ConnectionsChannel(id), "changed")
	}
	if _, err := pipe.Exec(ctx); err != nil {
		observability.RedisErrorRate.WithLabelValues("publish").Inc()
		observability.RecordErrorInContext(ctx, err)
		return err
	}
	observability.ChangeEventsPublished.WithLabelValues("redis").Add(float64(len(userIDs)))
	return nil
}

// StartConnectionSubscriber subscribes to every user's connections channel
// and calls onChange with the user id for each incoming signal. It returns
// once the subscription is confirmed; delivery stops when ctx is done.
func (n *Notifier) StartConnectionSubscriber(ctx context.Context, onChange func(userID uuid.UUID)) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, connectionsChannelPrefix+"*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		observability.RedisErrorRate.WithLabelValues("psubscribe").Inc()
		return err
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				id, ok := ParseConnectionsChannel(msg.Channel)
				if !ok {
					log.Printf("invalid connections channel: %s", msg.Channel)
					continue
				}
				observability.ChangeEventsReceived.WithLabelValues("redis").Inc()
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Printf("PANIC in ConnectionSubscriber: %v\n%s", r, debug.Stack())
						}
					}()
					onChange(id)
				}()
			}
		}
	}()

	return nil
}

// ConnectionsChannel derives the Redis channel name for a user.
func ConnectionsChannel(userID uuid.UUID) string {
	return connectionsChannelPrefix + userID.String()
}

// ParseConnectionsChannel extracts the user id from a channel name.
func ParseConnectionsChannel(channel string) (uuid.UUID, bool) {
	raw, ok := strings.CutPrefix(channel, connectionsChannelPrefix)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
