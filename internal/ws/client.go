package ws

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labwatch/internal/logger"
	"golang.org/x/time/rate"
)

// Socket states.
const (
	StateConnecting int32 = iota
	StateOpen
	StateClosing
	StateClosed
)

// Disconnect reasons (metrics label).
const (
	reasonClosed       = "closed"
	reasonHeartbeat    = "heartbeat"
	reasonSlowConsumer = "slow_consumer"
	reasonLimit        = "limit"
	reasonShutdown     = "shutdown"
)

// Client is one WebSocket connection of an authenticated user.
// Lifecycle: NewClient -> Hub.Register -> Start -> [readPump, writePump] -> Close -> Wait.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	userID int64

	send    chan []byte
	ping    chan struct{}
	limiter *rate.Limiter

	state atomic.Int32
	alive atomic.Bool

	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
	once    sync.Once
	reason  string
	wg      sync.WaitGroup
}

// NewClient wraps conn. conn may be nil for a socket that is never started.
func NewClient(hub *Hub, conn *websocket.Conn, userID int64) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	limit := rate.Inf
	if hub.cfg.FrameRate > 0 {
		limit = rate.Limit(hub.cfg.FrameRate)
	}
	c := &Client{
		id:      uuid.NewString(),
		hub:     hub,
		conn:    conn,
		userID:  userID,
		send:    make(chan []byte, hub.cfg.SendBufferSize),
		ping:    make(chan struct{}, 1),
		limiter: rate.NewLimiter(limit, hub.cfg.FrameBurst),
		ctx:     ctx,
		cancel:  cancel,
	}
	c.state.Store(StateConnecting)
	return c
}

func (c *Client) ID() string { return c.id }

func (c *Client) UserID() int64 { return c.userID }

func (c *Client) State() int32 { return c.state.Load() }

func (c *Client) isOpen() bool { return c.state.Load() == StateOpen }

func (c *Client) markAlive() { c.alive.Store(true) }

// markSuspect clears the liveness flag and reports whether it was set.
func (c *Client) markSuspect() bool { return c.alive.Swap(false) }

// Start launches the pumps. Call it after a successful Hub.Register.
func (c *Client) Start() {
	if c.conn == nil || !c.started.CompareAndSwap(false, true) {
		return
	}
	c.wg.Add(2)
	go c.writePump()
	go c.readPump()
}

// Wait blocks until both pumps have exited.
func (c *Client) Wait() {
	c.wg.Wait()
}

// Close asks the write pump to send a close frame and hang up. Safe to call repeatedly.
func (c *Client) Close() {
	c.closeWith(reasonClosed, false)
}

// terminate drops the connection without a close handshake.
func (c *Client) terminate(reason string) {
	c.closeWith(reason, true)
}

func (c *Client) closeWith(reason string, force bool) {
	c.once.Do(func() {
		c.reason = reason
		c.state.Store(StateClosing)
		c.cancel()
		if c.conn != nil && (force || !c.started.Load()) {
			c.conn.Close()
		}
	})
}

// closeReason is valid once closeWith has run.
func (c *Client) closeReason() string {
	if c.reason == "" {
		return reasonClosed
	}
	return c.reason
}

// requestPing queues a ping for the write pump; a pending request is enough.
func (c *Client) requestPing() {
	select {
	case c.ping <- struct{}{}:
	default:
	}
}

func (c *Client) readPump() {
	defer c.wg.Done()
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()

	pongWait := 2 * c.hub.cfg.HeartbeatInterval
	c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Errorf("ws set read deadline user=%d conn=%s: %v", c.userID, c.id, err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		c.markAlive()
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warnf("ws read error user=%d conn=%s: %v", c.userID, c.id, err)
			}
			return
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return
		}
		if !c.limiter.Allow() {
			c.hub.sendError(c, msgRateLimited)
			continue
		}
		c.hub.HandleFrame(c.ctx, c, raw)
	}
}

// writePump is the only goroutine writing to conn.
func (c *Client) writePump() {
	defer c.wg.Done()
	defer func() {
		c.conn.Close()
		c.state.Store(StateClosed)
	}()

	writeWait := c.hub.cfg.WriteTimeout
	for {
		select {
		case <-c.ctx.Done():
			code := websocket.CloseNormalClosure
			if c.closeReason() == reasonShutdown {
				code = websocket.CloseGoingAway
			}
			msg := websocket.FormatCloseMessage(code, "")
			if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
				logger.Debugf("ws close frame user=%d conn=%s: %v", c.userID, c.id, err)
			}
			return
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debugf("ws write user=%d conn=%s: %v", c.userID, c.id, err)
				return
			}
		case <-c.ping:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				logger.Debugf("ws ping user=%d conn=%s: %v", c.userID, c.id, err)
				return
			}
		}
	}
}
