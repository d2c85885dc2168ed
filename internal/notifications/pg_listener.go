package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"thirtyday/internal/observability"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PGChangeChannel is the LISTEN channel fed by the friend_connections trigger.
const PGChangeChannel = "friend_connections_changed"

type pgChangePayload struct {
	SenderID   uuid.UUID `json:"sender_id"`
	ReceiverID uuid.UUID `json:"receiver_id"`
}

// ParseChangePayload decodes a trigger payload into the two affected users.
func ParseChangePayload(payload string) ([]uuid.UUID, error) {
	var p pgChangePayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("decode change payload: %w", err)
	}
	if p.SenderID == uuid.Nil || p.ReceiverID == uuid.Nil {
		return nil, errors.New("change payload missing user ids")
	}
	return []uuid.UUID{p.SenderID, p.ReceiverID}, nil
}

// PGListener holds a dedicated postgres connection in LISTEN mode and forwards
// each notification. It reconnects with backoff until its context ends.
type PGListener struct {
	dsn      string
	onChange func(userIDs ...uuid.UUID)
	// onResync runs after a reconnect, since notifications sent while the
	// connection was down are lost.
	onResync func()
	logger   *slog.Logger

	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// NewPGListener creates a listener. onResync may be nil.
func NewPGListener(dsn string, logger *slog.Logger, onChange func(userIDs ...uuid.UUID), onResync func()) *PGListener {
	return &PGListener{
		dsn:        dsn,
		onChange:   onChange,
		onResync:   onResync,
		logger:     logger,
		MinBackoff: 500 * time.Millisecond,
		MaxBackoff: 30 * time.Second,
	}
}

// Run blocks until ctx is done.
func (l *PGListener) Run(ctx context.Context) {
	backoff := l.MinBackoff
	connected := false
	for {
		err := l.listen(ctx, func() {
			if connected && l.onResync != nil {
				l.onResync()
			}
			connected = true
			backoff = l.MinBackoff
		})
		if ctx.Err() != nil {
			return
		}
		l.logger.WarnContext(ctx, "postgres change listener disconnected",
			slog.String("error", err.Error()),
			slog.Duration("retry_in", backoff),
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > l.MaxBackoff {
			backoff = l.MaxBackoff
		}
	}
}

func (l *PGListener) listen(ctx context.Context, onConnected func()) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = conn.Close(context.Background()) }()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{PGChangeChannel}.Sanitize()); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	onConnected()
	l.logger.InfoContext(ctx, "postgres change listener ready", slog.String("channel", PGChangeChannel))

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		ids, err := ParseChangePayload(n.Payload)
		if err != nil {
			l.logger.WarnContext(ctx, "ignoring change notification", slog.String("error", err.Error()))
			continue
		}
		observability.ChangeEventsReceived.WithLabelValues("postgres").Inc()
		l.onChange(ids...)
	}
}
