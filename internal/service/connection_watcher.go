package service

import (
	"context"
	"log/slog"
	"time"

	"thirtyday/internal/models"
	"thirtyday/internal/notifications"
	"thirtyday/internal/observability"

	"github.com/google/uuid"
)

// ChangeSubscriber hands out per-user change signals. *notifications.Broker
// implements it.
type ChangeSubscriber interface {
	Subscribe(userID uuid.UUID) *notifications.Subscription
}

// ConnectionWatcher turns change signals into fresh connection lists. The
// feed carries no row data, so every signal is treated as invalidate and
// refetch.
type ConnectionWatcher struct {
	store      *FriendConnectionStore
	changes    ChangeSubscriber
	RetryDelay time.Duration
}

// NewConnectionWatcher returns a watcher reading through store.
func NewConnectionWatcher(store *FriendConnectionStore, changes ChangeSubscriber) *ConnectionWatcher {
	return &ConnectionWatcher{store: store, changes: changes, RetryDelay: 2 * time.Second}
}

// Watch calls fn with userID's connections once at start and again after
// every change. Signals that arrive while a refetch is pending fold into it.
// A failed refetch is retried after RetryDelay. Watch returns ctx.Err() when
// ctx is done, or the error of the initial fetch.
func (w *ConnectionWatcher) Watch(ctx context.Context, userID uuid.UUID, fn func(*models.ConnectionList)) error {
	// Subscribe before the first read so no change can slip between them.
	sub := w.changes.Subscribe(userID)
	defer sub.Close()

	list, err := w.store.ListConnections(ctx, userID)
	if err != nil {
		return err
	}
	fn(list)

	var retry <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sub.C:
		case <-retry:
		}
		retry = nil

		list, err := w.store.RefreshConnections(ctx, userID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			observability.Log().WarnContext(ctx, "connection refetch failed",
				slog.String("user_id", userID.String()),
				slog.String("error", err.Error()),
				slog.Duration("retry_in", w.RetryDelay),
			)
			retry = time.After(w.RetryDelay)
			continue
		}
		fn(list)
	}
}
