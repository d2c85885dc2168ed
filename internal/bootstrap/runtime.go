// Package bootstrap wires the long-lived dependencies shared by the cmd
// binaries: database, Redis, the change feed and the services on top.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"thirtyday/internal/cache"
	"thirtyday/internal/config"
	"thirtyday/internal/database"
	"thirtyday/internal/notifications"
	"thirtyday/internal/observability"
	"thirtyday/internal/repository"
	"thirtyday/internal/seed"
	"thirtyday/internal/service"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// FixturePath, when set, is applied with seed.ApplyFixture after connect.
	FixturePath string
}

// InitRuntime connects to DB and Redis and optionally applies a seed fixture.
// The Redis client is nil when Redis is unreachable.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	r := cache.GetClient()

	if opts.FixturePath != "" {
		fx, err := seed.LoadFixtureFile(opts.FixturePath)
		if err != nil {
			return nil, nil, fmt.Errorf("load fixture: %w", err)
		}
		if err := seed.NewSeeder(db, seed.Options{}).ApplyFixture(fx); err != nil {
			return nil, nil, fmt.Errorf("apply fixture: %w", err)
		}
	}

	return db, r, nil
}

// Runtime bundles the services built over one DB and Redis pair.
type Runtime struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  *redis.Client

	// Broker fans change signals out inside this process; Feed is the
	// source that feeds it.
	Broker    *notifications.Broker
	Publisher notifications.Publisher
	Feed      string

	Users       *service.UserService
	Connections *service.FriendConnectionStore
	Watcher     *service.ConnectionWatcher
	Challenges  *service.ChallengeService
	APIKeys     *service.APIKeyService
}

// NewRuntime builds the services. rdb may be nil, in which case the view
// cache is off and a redis change feed falls back to local.
func NewRuntime(cfg *config.Config, db *gorm.DB, rdb *redis.Client) (*Runtime, error) {
	rt := &Runtime{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Broker: notifications.NewBroker(),
		Feed:   cfg.ChangeFeed,
	}

	switch rt.Feed {
	case "", config.ChangeFeedRedis:
		if rdb == nil {
			observability.Log().Warn("Redis unavailable, change feed limited to this process",
				slog.String("requested", config.ChangeFeedRedis))
			rt.Feed = config.ChangeFeedLocal
			rt.Publisher = rt.Broker
		} else {
			rt.Feed = config.ChangeFeedRedis
			rt.Publisher = notifications.NewNotifier(rdb)
		}
	case config.ChangeFeedPostgres:
		if db.Dialector.Name() != "postgres" {
			return nil, fmt.Errorf("change feed %q needs the postgres driver, got %s", rt.Feed, db.Dialector.Name())
		}
		// The trigger on friend_connections emits the signal.
		rt.Publisher = notifications.NopPublisher{}
	case config.ChangeFeedLocal:
		rt.Publisher = rt.Broker
	default:
		return nil, fmt.Errorf("unknown change feed %q", rt.Feed)
	}

	userRepo := repository.NewUserRepository(db)
	ttl := time.Duration(cfg.ConnectionsCacheTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = cache.DefaultViewTTL
	}

	rt.Users = service.NewUserService(userRepo)
	rt.Connections = service.NewFriendConnectionStore(
		repository.NewFriendConnectionRepository(db),
		userRepo,
		rt.Publisher,
		service.WithViewCache(cache.NewViewCache(rdb, ttl)),
	)
	rt.Watcher = service.NewConnectionWatcher(rt.Connections, rt.Broker)
	rt.Challenges = service.NewChallengeService(repository.NewChallengeRepository(db))
	rt.APIKeys = service.NewAPIKeyService(repository.NewAPIKeyRepository(db))
	return rt, nil
}

// StartChangeFeed connects the configured feed to the Broker. It returns once
// the feed is subscribed; delivery stops when ctx is done.
func (rt *Runtime) StartChangeFeed(ctx context.Context) error {
	switch rt.Feed {
	case config.ChangeFeedRedis:
		n := notifications.NewNotifier(rt.Redis)
		return n.StartConnectionSubscriber(ctx, func(id uuid.UUID) { rt.Broker.Notify(id) })
	case config.ChangeFeedPostgres:
		l := notifications.NewPGListener(database.PostgresDSN(rt.Config), observability.Log(),
			rt.Broker.Notify, rt.Broker.NotifyAll)
		go l.Run(ctx)
		return nil
	default:
		// The Broker is its own publisher.
		return nil
	}
}
