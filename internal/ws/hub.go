// Package ws is the real-time chat core: connection registry with heartbeat,
// room membership checks, inbound frame routing and event fan-out.
package ws

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labwatch/internal/logger"
	"github.com/labwatch/internal/metrics"
	"github.com/labwatch/internal/model"
)

var (
	ErrHubClosed          = errors.New("ws: hub closed")
	ErrTooManyConnections = errors.New("ws: connection limit reached")
)

const (
	handlerTimeout  = 5 * time.Second
	typingTimeout   = 3 * time.Second
	presenceTimeout = 5 * time.Second
)

// RoomStore is the room/membership part of the persistence gateway.
type RoomStore interface {
	GetByID(ctx context.Context, id int64) (*model.ChatRoom, error)
	GetMember(ctx context.Context, roomID, userID int64) (*model.ChatMember, error)
	GetMemberIDs(ctx context.Context, roomID int64) ([]int64, error)
	AddToPublicRoom(ctx context.Context, userID int64) error
	TouchLastMessage(ctx context.Context, roomID int64, at time.Time) error
	UpdateMemberLastRead(ctx context.Context, roomID, userID int64, t time.Time) error
}

type MessageStore interface {
	Create(ctx context.Context, m *model.ChatMessage) error
	GetByID(ctx context.Context, id int64) (*model.ChatMessage, error)
}

type UserStore interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	SetPresence(ctx context.Context, userID int64, online bool, at time.Time) error
}

type Config struct {
	MaxConnections    int
	SendBufferSize    int
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration
	MaxMessageSize    int64
	FrameRate         float64
	FrameBurst        int
}

func (c *Config) normalize() {
	if c.MaxConnections <= 0 {
		c.MaxConnections = 10000
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = 256
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 16 << 10
	}
	if c.FrameBurst <= 0 {
		c.FrameBurst = 1
	}
}

type lifecycleEvent struct {
	client   *Client
	register bool
	result   chan error
}

// Hub owns the connection registry. Register/unregister and the heartbeat run on the
// hub goroutine; broadcasts read the registry under an RLock and never do I/O under it.
// Presence writes run on per-user workers, off the hub goroutine.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*Client]struct{}
	total   int

	cfg      Config
	rooms    RoomStore
	messages MessageStore
	users    UserStore
	guard    *Guard
	now      func() time.Time

	lifecycle chan lifecycleEvent
	started   atomic.Bool

	// pending presence transitions per user; a key exists while its worker runs
	presenceMu sync.Mutex
	presence   map[int64][]bool
	presenceWG sync.WaitGroup

	stop      chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
}

func NewHub(rooms RoomStore, messages MessageStore, users UserStore, cfg Config) *Hub {
	cfg.normalize()
	return &Hub{
		clients:   make(map[int64]map[*Client]struct{}),
		cfg:       cfg,
		rooms:     rooms,
		messages:  messages,
		users:     users,
		guard:     NewGuard(rooms),
		now:       time.Now,
		lifecycle: make(chan lifecycleEvent, 64),
		presence:  make(map[int64][]bool),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs the hub until ctx is cancelled or Close is called.
func (h *Hub) Start(ctx context.Context) {
	if !h.started.CompareAndSwap(false, true) {
		return
	}
	go h.run(ctx)
}

// Close closes every socket, waits for their pumps and rejects further registrations.
func (h *Hub) Close() {
	h.markStopped()
	if h.started.CompareAndSwap(false, true) {
		// never started: nothing to drain
		close(h.done)
		return
	}
	<-h.done
}

// Closed reports whether the hub stopped accepting connections.
func (h *Hub) Closed() bool {
	select {
	case <-h.stop:
		return true
	default:
		return false
	}
}

func (h *Hub) markStopped() {
	h.stopOnce.Do(func() { close(h.stop) })
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.markStopped()
			h.shutdown()
			return
		case <-h.stop:
			h.shutdown()
			return
		case ev := <-h.lifecycle:
			if ev.register {
				first, err := h.addClient(ev.client)
				ev.result <- err
				if err == nil && first {
					h.queuePresence(ev.client.userID, true)
				}
			} else {
				h.removeClient(ev.client, reasonClosed)
			}
		case <-ticker.C:
			h.heartbeat()
		}
	}
}

// Register adds c to the registry and returns once the hub has accepted or refused it.
func (h *Hub) Register(c *Client) error {
	if h.Closed() {
		return ErrHubClosed
	}
	ev := lifecycleEvent{client: c, register: true, result: make(chan error, 1)}
	select {
	case h.lifecycle <- ev:
	case <-h.stop:
		return ErrHubClosed
	}
	select {
	case err := <-ev.result:
		return err
	case <-h.done:
		return ErrHubClosed
	}
}

// Unregister removes c. Unknown or already removed sockets are ignored.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.lifecycle <- lifecycleEvent{client: c}:
	case <-h.stop:
	}
}

func (h *Hub) addClient(c *Client) (first bool, err error) {
	h.mu.Lock()
	if h.total >= h.cfg.MaxConnections {
		h.mu.Unlock()
		logger.Warnf("ws connection limit reached (%d), rejecting user=%d conn=%s", h.cfg.MaxConnections, c.userID, c.id)
		metrics.WSDisconnects.WithLabelValues(reasonLimit).Inc()
		return false, ErrTooManyConnections
	}
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	h.total++
	c.markAlive()
	c.state.Store(StateOpen)
	h.mu.Unlock()

	metrics.WSConnections.Inc()
	if !ok {
		metrics.WSOnlineUsers.Inc()
	}
	logger.Debugf("ws connected user=%d conn=%s", c.userID, c.id)
	return !ok, nil
}

// removeClient closes c and drops it from the registry. When it was the user's last
// socket the user goes offline.
func (h *Hub) removeClient(c *Client, reason string) {
	c.terminate(reason)

	h.mu.Lock()
	set, ok := h.clients[c.userID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, exists := set[c]; !exists {
		h.mu.Unlock()
		return
	}
	delete(set, c)
	h.total--
	last := len(set) == 0
	if last {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()

	c.state.Store(StateClosed)
	metrics.WSConnections.Dec()
	metrics.WSDisconnects.WithLabelValues(c.closeReason()).Inc()
	logger.Debugf("ws disconnected user=%d conn=%s reason=%s", c.userID, c.id, c.closeReason())

	if last {
		metrics.WSOnlineUsers.Dec()
		h.queuePresence(c.userID, false)
	}
}

// heartbeat terminates sockets that did not answer the previous ping and pings the rest.
func (h *Hub) heartbeat() {
	for _, c := range h.snapshot(0) {
		if !c.markSuspect() {
			logger.Infof("ws heartbeat timeout user=%d conn=%s", c.userID, c.id)
			h.removeClient(c, reasonHeartbeat)
			continue
		}
		c.requestPing()
	}
}

// queuePresence hands a first-socket/last-socket transition to the user's presence
// worker, so a slow store never holds up the hub goroutine. Transitions of one user are
// applied in order; different users do not wait for each other.
func (h *Hub) queuePresence(userID int64, online bool) {
	h.presenceMu.Lock()
	defer h.presenceMu.Unlock()
	q, running := h.presence[userID]
	h.presence[userID] = append(q, online)
	if !running {
		h.presenceWG.Add(1)
		go h.presenceWorker(userID)
	}
}

func (h *Hub) presenceWorker(userID int64) {
	defer h.presenceWG.Done()
	for {
		h.presenceMu.Lock()
		q := h.presence[userID]
		if len(q) == 0 {
			delete(h.presence, userID)
			h.presenceMu.Unlock()
			return
		}
		online := q[0]
		h.presence[userID] = q[1:]
		h.presenceMu.Unlock()

		h.setPresence(userID, online)
	}
}

func (h *Hub) setPresence(userID int64, online bool) {
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := h.users.SetPresence(ctx, userID, online, h.now().UTC()); err != nil {
		logger.Errorf("ws set presence user=%d online=%t: %v", userID, online, err)
	}
	h.BroadcastUserStatus(userID, online)
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	all := make([]*Client, 0, h.total)
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.clients = make(map[int64]map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()

	users := make(map[int64]struct{})
	for _, c := range all {
		users[c.userID] = struct{}{}
		c.closeWith(reasonShutdown, false)
	}
	for _, c := range all {
		c.Wait()
		c.state.Store(StateClosed)
		metrics.WSDisconnects.WithLabelValues(reasonShutdown).Inc()
	}
	metrics.WSConnections.Set(0)
	metrics.WSOnlineUsers.Set(0)
	// queued transitions finish first so none of them lands after the final offline write
	h.presenceWG.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	now := h.now().UTC()
	for uid := range users {
		if err := h.users.SetPresence(ctx, uid, false, now); err != nil {
			logger.Errorf("ws shutdown presence user=%d: %v", uid, err)
		}
	}
	logger.Infof("ws hub stopped, closed %d connections", len(all))
}

// snapshot copies the open sockets, skipping those of excludeUserID (0 = none).
func (h *Hub) snapshot(excludeUserID int64) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, h.total)
	for uid, set := range h.clients {
		if excludeUserID != 0 && uid == excludeUserID {
			continue
		}
		for c := range set {
			out = append(out, c)
		}
	}
	return out
}

func (h *Hub) userClients(userID int64) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.clients[userID]
	out := make([]*Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// ConnectionCount is the number of registered sockets.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// IsOnline reports whether userID has at least one registered socket.
func (h *Hub) IsOnline(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}
