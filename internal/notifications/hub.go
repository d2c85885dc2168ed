package notifications

import (
	"context"
	"errors"
	"sync"

	"thirtyday/internal/observability"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	// Max connections per user
	maxConnsPerUser = 12
	// Max total connections
	maxTotalConns = 10000
)

var (
	ErrHubClosed       = errors.New("hub is shutting down")
	ErrServerConnLimit = errors.New("server connection limit reached")
	ErrUserConnLimit   = errors.New("user connection limit reached")
)

// WatchFunc streams serialized snapshots of userID's connections to deliver
// until ctx is done.
type WatchFunc func(ctx context.Context, userID uuid.UUID, deliver func(payload []byte)) error

type userFeed struct {
	clients map[*Client]struct{}
	cancel  context.CancelFunc
	last    []byte
}

// Hub maps userID -> websocket clients and runs one watcher per connected
// user, so any number of tabs share a single refetch per change.
type Hub struct {
	mu         sync.Mutex
	feeds      map[uuid.UUID]*userFeed
	totalConns int
	closed     bool

	watch   WatchFunc
	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
	log     *observability.WSLogger
}

// NewHub creates a Hub that uses watch to produce snapshots.
func NewHub(watch WatchFunc) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		feeds:   make(map[uuid.UUID]*userFeed),
		watch:   watch,
		baseCtx: ctx,
		stop:    cancel,
		log:     observability.NewWSLogger("connections hub"),
	}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "connections hub" }

// Register a connection for a given userID. The newest snapshot, if one has
// been produced, is queued for the client immediately.
func (h *Hub) Register(userID uuid.UUID, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}
	if h.totalConns >= maxTotalConns {
		return nil, ErrServerConnLimit
	}

	feed, ok := h.feeds[userID]
	if ok && len(feed.clients) >= maxConnsPerUser {
		return nil, ErrUserConnLimit
	}
	if !ok {
		feed = h.startFeed(userID)
	}

	client := newClient(h, conn, userID)
	feed.clients[client] = struct{}{}
	h.totalConns++
	observability.WebSocketConnectionsTotal.Inc()
	if feed.last != nil {
		client.TrySend(feed.last)
	}
	h.log.LogConnect(h.baseCtx, userID.String())
	return client, nil
}

// startFeed must be called with h.mu held.
func (h *Hub) startFeed(userID uuid.UUID) *userFeed {
	ctx, cancel := context.WithCancel(h.baseCtx)
	feed := &userFeed{clients: make(map[*Client]struct{}), cancel: cancel}
	h.feeds[userID] = feed

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		err := h.watch(ctx, userID, func(payload []byte) { h.deliver(userID, feed, payload) })
		if err != nil && ctx.Err() == nil {
			h.log.LogError(ctx, userID.String(), err, "watch")
			h.dropFeed(userID, feed)
		}
	}()
	return feed
}

func (h *Hub) deliver(userID uuid.UUID, feed *userFeed, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.feeds[userID] != feed {
		return
	}
	feed.last = payload
	for c := range feed.clients {
		c.TrySend(payload)
	}
}

// dropFeed disconnects every client of a feed whose watcher failed; they
// reconnect and get a fresh watcher.
func (h *Hub) dropFeed(userID uuid.UUID, feed *userFeed) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.feeds[userID] != feed {
		return
	}
	for c := range feed.clients {
		h.removeLocked(feed, c)
	}
	delete(h.feeds, userID)
}

// removeLocked must be called with h.mu held.
func (h *Hub) removeLocked(feed *userFeed, c *Client) bool {
	if _, ok := feed.clients[c]; !ok {
		return false
	}
	delete(feed.clients, c)
	close(c.Send)
	h.totalConns--
	observability.WebSocketConnectionsTotal.Dec()
	return true
}

// UnregisterClient removes a client and stops the user's watcher once the
// last client is gone.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	feed, ok := h.feeds[client.UserID]
	if !ok || !h.removeLocked(feed, client) {
		return
	}
	h.log.LogDisconnect(h.baseCtx, client.UserID.String(), "unregistered")
	if len(feed.clients) == 0 {
		feed.cancel()
		delete(h.feeds, client.UserID)
	}
}

// ClientCount returns the number of clients registered for userID.
func (h *Hub) ClientCount(userID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if feed, ok := h.feeds[userID]; ok {
		return len(feed.clients)
	}
	return 0
}

// Shutdown gracefully closes all websocket connections and waits for watchers
// to return or ctx to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.stop()

	// Closing Send makes each WritePump send a going-away frame.
	for _, feed := range h.feeds {
		for client := range feed.clients {
			h.removeLocked(feed, client)
		}
	}
	h.feeds = make(map[uuid.UUID]*userFeed)
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
