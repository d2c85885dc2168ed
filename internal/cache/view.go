package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"thirtyday/internal/models"
	"thirtyday/internal/observability"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	connectionsViewPrefix = "connections:view:"
	connectionsGenPrefix  = "connections:gen:"

	// DefaultViewTTL bounds staleness if an invalidation is ever lost.
	DefaultViewTTL = time.Minute
)

// ConnectionsViewKey is the cache key for one user's partitioned connections.
func ConnectionsViewKey(userID uuid.UUID) string {
	return connectionsViewPrefix + userID.String()
}

// ConnectionsGenKey holds a counter bumped on every invalidation.
func ConnectionsGenKey(userID uuid.UUID) string {
	return connectionsGenPrefix + userID.String()
}

// ViewCache stores each user's ConnectionList. It fails open: a nil cache or
// any Redis error behaves as a miss.
//
// A lookup returns the user's generation. Store only writes if the generation
// is unchanged, so a read that raced an invalidation never repopulates the
// cache with the old view.
type ViewCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewViewCache returns nil when rdb is nil so callers can skip the cache.
func NewViewCache(rdb *redis.Client, ttl time.Duration) *ViewCache {
	if rdb == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultViewTTL
	}
	return &ViewCache{rdb: rdb, ttl: ttl}
}

// Lookup returns the cached view and the generation to pass to Store on a miss.
func (c *ViewCache) Lookup(ctx context.Context, userID uuid.UUID) (list *models.ConnectionList, gen int64, hit bool) {
	if c == nil {
		return nil, 0, false
	}
	ctx, span := observability.GetTraceLayer().TraceRedisOperation(ctx, "GET")
	defer span.End()

	pipe := c.rdb.Pipeline()
	viewCmd := pipe.Get(ctx, ConnectionsViewKey(userID))
	genCmd := pipe.Get(ctx, ConnectionsGenKey(userID))
	_, _ = pipe.Exec(ctx)

	gen, err := genCmd.Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		observability.ViewCacheResults.WithLabelValues("error").Inc()
		observability.RecordErrorInContext(ctx, err)
		return nil, -1, false
	}

	raw, err := viewCmd.Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		observability.ViewCacheResults.WithLabelValues("miss").Inc()
		return nil, gen, false
	case err != nil:
		observability.ViewCacheResults.WithLabelValues("error").Inc()
		observability.RecordErrorInContext(ctx, err)
		return nil, -1, false
	}

	var cached models.ConnectionList
	if err := json.Unmarshal(raw, &cached); err != nil {
		observability.ViewCacheResults.WithLabelValues("error").Inc()
		return nil, gen, false
	}
	observability.ViewCacheResults.WithLabelValues("hit").Inc()
	return &cached, gen, true
}

// Store caches list if no invalidation happened since the Lookup that
// returned gen. A negative gen skips the write.
func (c *ViewCache) Store(ctx context.Context, userID uuid.UUID, gen int64, list *models.ConnectionList) {
	if c == nil || list == nil || gen < 0 {
		return
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return
	}
	ctx, span := observability.GetTraceLayer().TraceRedisOperation(ctx, "SET")
	defer span.End()

	genKey := ConnectionsGenKey(userID)
	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, ConnectionsViewKey(userID), raw, c.ttl)
			return nil
		})
		return err
	}, genKey)
	if err != nil && !errors.Is(err, redis.TxFailedErr) {
		observability.Log().WarnContext(ctx, "connection view cache write failed",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// Invalidate drops the cached views of every listed user.
func (c *ViewCache) Invalidate(ctx context.Context, userIDs ...uuid.UUID) {
	if c == nil || len(userIDs) == 0 {
		return
	}
	ctx, span := observability.GetTraceLayer().TraceRedisOperation(ctx, "DEL")
	defer span.End()

	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range userIDs {
			pipe.Incr(ctx, ConnectionsGenKey(id))
			pipe.Del(ctx, ConnectionsViewKey(id))
		}
		return nil
	})
	if err != nil {
		observability.RecordErrorInContext(ctx, err)
		observability.Log().WarnContext(ctx, "connection view cache invalidation failed",
			slog.Int("users", len(userIDs)),
			slog.String("error", err.Error()),
		)
	}
}
