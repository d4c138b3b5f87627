package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"bsn-realtime/internal/events"
	"bsn-realtime/internal/identity"
	bsnredis "bsn-realtime/internal/redis"
	"bsn-realtime/internal/topic"
	bsn_errors "bsn-realtime/pkg/errors"

	"github.com/gorilla/websocket"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	maxFrameSize = 64 * 1024
)

// Close codes
const (
	CloseAuthFailed       = 4401
	CloseNotPermitted     = 4403
	CloseHeartbeatTimeout = 4408
)

type State int32

const (
	StateInit State = iota
	StateAuthenticating
	StateReady
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateReady:
		return "READY"
	case StateClosing:
		return "CLOSING"
	default:
		return "CLOSED"
	}
}

// Connection is one authenticated websocket session. The read pump handles
// commands strictly in order; the write pump owns every data frame write.
type Connection struct {
	id   string
	user identity.Identity
	conn *websocket.Conn
	gw   *Gateway

	send     chan []byte
	done     chan struct{}
	ctx      context.Context // cancelled by close; parent of every command
	cancel   context.CancelFunc
	state    atomic.Int32
	lastSeen atomic.Int64

	mu     sync.Mutex
	groups map[string]struct{}

	filters   *filters
	logger    *zap.Logger
	closeOnce sync.Once
}

func newConnection(gw *Gateway, conn *websocket.Conn, id string, user identity.Identity) *Connection {
	c := &Connection{
		id:      id,
		user:    user,
		conn:    conn,
		gw:      gw,
		send:    make(chan []byte, gw.cfg.SendBuffer),
		done:    make(chan struct{}),
		groups:  make(map[string]struct{}),
		filters: newFilters(),
		logger:  gw.log.With(zap.String("user_id", user.UserID), zap.String("conn_id", id)),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.state.Store(int32(StateAuthenticating))
	c.touch()
	return c
}

// ID implements broker.Handle.
func (c *Connection) ID() string { return c.id }

func (c *Connection) UserID() string { return c.user.UserID }

func (c *Connection) State() State { return State(c.state.Load()) }

func (c *Connection) touch() { c.lastSeen.Store(time.Now().UnixNano()) }

func (c *Connection) idleFor() time.Duration {
	return time.Since(time.Unix(0, c.lastSeen.Load()))
}

// Deliver implements broker.Handle. It never blocks: a full send buffer
// drops the frame.
func (c *Connection) Deliver(evt events.Event) {
	if c.State() != StateReady || !c.accepts(evt) {
		return
	}
	frame, err := evt.Frame()
	if err != nil {
		c.log().Warn("event render failed", zap.String("kind", string(evt.Kind)), zap.Error(err))
		return
	}
	select {
	case c.send <- frame:
		c.gw.metrics.FramesOut.WithLabelValues(string(evt.Kind)).Inc()
	case <-c.done:
	default:
		c.gw.metrics.FramesDropped.Inc()
		c.log().Warn("send buffer full, frame dropped", zap.String("kind", string(evt.Kind)))
	}
}

// accepts applies the subscription set and the connection's filters.
func (c *Connection) accepts(evt events.Event) bool {
	switch evt.Kind {
	case events.KindChatMessage:
		var msg events.ChatMessage
		if err := evt.Decode(&msg); err != nil {
			return false
		}
		return c.isJoined(topic.Chat(msg.ChatID))
	case events.KindFeedNewPost:
		var p events.FeedNewPost
		if err := evt.Decode(&p); err != nil {
			return false
		}
		return c.isJoined(topic.Feed(c.user.UserID)) && c.filters.allowFeed(p)
	case events.KindNotificationNew:
		var n events.NotificationNew
		if err := evt.Decode(&n); err != nil {
			return false
		}
		return c.isJoined(topic.Notifications(c.user.UserID)) && c.filters.allowNotification(n)
	}
	return false
}

// reply enqueues a control frame. Unlike Deliver it waits for buffer space,
// so every command gets its answer.
func (c *Connection) reply(v any, kind string) {
	data, err := json.Marshal(v)
	if err != nil {
		c.log().Error("reply marshal failed", zap.Error(err))
		return
	}
	select {
	case c.send <- data:
		c.gw.metrics.FramesOut.WithLabelValues(kind).Inc()
	case <-c.done:
	}
}

func (c *Connection) ack(correlationID string, result any) {
	c.reply(newAck(correlationID, result), FrameAck)
}

func (c *Connection) fail(correlationID string, err error) {
	c.reply(newError(correlationID, err), FrameError)
}

func (c *Connection) isJoined(group string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.groups[group]
	return ok
}

// Groups returns the current subscription set, sorted.
func (c *Connection) Groups() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.groups))
	for g := range c.groups {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// join records the group only while the connection is open. A broker join
// that completes once close has started is left again here; leaveAll will
// not see it.
func (c *Connection) join(ctx context.Context, group string) error {
	if c.isJoined(group) {
		return nil
	}
	if err := c.gw.broker.Join(ctx, group, c); err != nil {
		return err
	}
	c.mu.Lock()
	if c.State() < StateClosing {
		c.groups[group] = struct{}{}
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	undo, cancel := context.WithTimeout(context.Background(), c.gw.cfg.CommandTimeout)
	defer cancel()
	return multierr.Append(
		fmt.Errorf("join %s: %w", group, bsn_errors.ErrServiceUnavailable),
		c.gw.broker.Leave(undo, group, c),
	)
}

func (c *Connection) leave(ctx context.Context, group string) error {
	c.mu.Lock()
	_, ok := c.groups[group]
	delete(c.groups, group)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return c.gw.broker.Leave(ctx, group, c)
}

// leaveAll drops every subscription and combines the failures.
func (c *Connection) leaveAll(ctx context.Context) error {
	var err error
	for _, group := range c.Groups() {
		err = multierr.Append(err, c.leave(ctx, group))
	}
	return err
}

func (c *Connection) marker() bsnredis.Marker {
	return bsnredis.Marker{InstanceID: c.gw.cfg.InstanceID, ConnectionID: c.id, SeenAt: time.Now().UTC()}
}

// refreshPresence writes the presence key and the connection entry.
func (c *Connection) refreshPresence(ctx context.Context) error {
	if c.gw.presence == nil {
		return nil
	}
	m := c.marker()
	return multierr.Combine(
		c.gw.presence.TrackConnection(ctx, c.user.UserID, m),
		c.gw.presence.Heartbeat(ctx, c.user.UserID, m),
	)
}

// run starts the pumps and blocks until the connection is closed.
func (c *Connection) run() {
	if !c.state.CompareAndSwap(int32(StateAuthenticating), int32(StateReady)) {
		return
	}
	c.gw.metrics.Connections.Inc()
	c.log().Info("connection ready", zap.Strings("groups", c.Groups()))

	go c.writePump()
	c.readPump()
}

func (c *Connection) readPump() {
	c.conn.SetReadLimit(maxFrameSize)

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			switch {
			case errors.As(err, &closeErr):
				c.close(websocket.CloseNormalClosure, "")
			case errors.Is(err, websocket.ErrReadLimit):
				c.close(websocket.CloseMessageTooBig, "frame too large")
			default:
				if c.State() == StateReady {
					c.log().Warn("read failed", zap.Error(err))
				}
				c.close(websocket.CloseAbnormalClosure, "")
			}
			return
		}
		if msgType != websocket.TextMessage {
			c.close(websocket.CloseUnsupportedData, "text frames only")
			return
		}

		c.touch()
		c.handle(data)
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.gw.cfg.HeartbeatInterval())
	defer ticker.Stop()
	idle := time.NewTimer(c.gw.cfg.IdleTimeout())
	defer idle.Stop()

	for {
		select {
		case <-c.done:
			return

		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.close(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-idle.C:
			if left := c.gw.cfg.IdleTimeout() - c.idleFor(); left > 0 {
				idle.Reset(left)
				continue
			}
			c.log().Info("heartbeat timeout")
			c.close(CloseHeartbeatTimeout, "heartbeat timeout")
			return

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.gw.cfg.CommandTimeout)
			if err := c.refreshPresence(ctx); err != nil {
				c.log().Warn("presence refresh failed", zap.Error(err))
			}
			cancel()

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close(websocket.CloseAbnormalClosure, "")
				return
			}
		}
	}
}

// close moves the connection to CLOSING, sends the close frame, releases
// every subscription and presence, then marks it CLOSED. Safe to call from
// any goroutine, any number of times.
func (c *Connection) close(code int, reason string) {
	c.closeOnce.Do(func() {
		wasReady := State(c.state.Swap(int32(StateClosing))) == StateReady
		c.cancel()
		close(c.done)

		if code != websocket.CloseAbnormalClosure {
			msg := websocket.FormatCloseMessage(code, reason)
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		}
		c.conn.Close()

		ctx, cancel := context.WithTimeout(context.Background(), c.gw.cfg.CommandTimeout)
		defer cancel()
		if err := c.leaveAll(ctx); err != nil {
			c.log().Error("leave on close failed", zap.Error(err))
		}
		if c.gw.presence != nil {
			if err := c.gw.presence.Release(ctx, c.user.UserID, c.id); err != nil {
				c.log().Warn("presence release failed", zap.Error(err))
			}
		}

		if wasReady {
			c.gw.metrics.Connections.Dec()
		}
		c.gw.metrics.Closes.WithLabelValues(closeLabel(code)).Inc()
		c.gw.forget(c)
		c.state.Store(int32(StateClosed))
		c.log().Info("connection closed", zap.Int("code", code))
	})
}
