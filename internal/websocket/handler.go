package websocket

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"bsn-realtime/internal/broker"
	"bsn-realtime/internal/domain"
	"bsn-realtime/internal/events"
	"bsn-realtime/internal/identity"
	"bsn-realtime/internal/metrics"
	bsnredis "bsn-realtime/internal/redis"
	"bsn-realtime/internal/topic"
	bsn_errors "bsn-realtime/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// PresenceTracker is the presence registry as seen by a connection.
type PresenceTracker interface {
	MarkOnline(ctx context.Context, userID string, marker bsnredis.Marker) error
	Heartbeat(ctx context.Context, userID string, marker bsnredis.Marker) error
	TrackConnection(ctx context.Context, userID string, marker bsnredis.Marker) error
	Release(ctx context.Context, userID, connectionID string) error
}

// Authoriser decides group membership. Implemented by topic.Policy.
type Authoriser interface {
	Authorise(ctx context.Context, userID, group string) (bool, error)
}

// ChatSender is the chat send path. Implemented by services.ChatService.
type ChatSender interface {
	Send(ctx context.Context, sender events.UserRef, chatID, content string) (domain.PersistResult, error)
	MarkRead(ctx context.Context, readerID, chatID string) (int64, error)
}

type Config struct {
	InstanceID      string
	AuthTimeout     time.Duration
	CommandTimeout  time.Duration
	PresenceTTL     time.Duration
	SendBuffer      int
	MaxContentBytes int
}

func (c Config) withDefaults() Config {
	if c.InstanceID == "" {
		c.InstanceID = uuid.NewString()
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = 5 * time.Second
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 10 * time.Second
	}
	if c.PresenceTTL <= 0 {
		c.PresenceTTL = bsnredis.DefaultPresenceTTL
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.MaxContentBytes <= 0 {
		c.MaxContentBytes = 4096
	}
	return c
}

// HeartbeatInterval is the period of the idle check and presence refresh.
func (c Config) HeartbeatInterval() time.Duration { return c.PresenceTTL / 2 }

func (c Config) IdleTimeout() time.Duration { return 2 * c.PresenceTTL }

// Deps are the collaborators of a Gateway. Presence may be nil.
type Deps struct {
	Verifier   identity.Verifier
	Authoriser Authoriser
	Chats      ChatSender
	Broker     broker.Broker
	Presence   PresenceTracker
	Metrics    *metrics.Metrics
}

// Gateway terminates client websockets and bridges them to the broker.
type Gateway struct {
	cfg        Config
	verifier   identity.Verifier
	authoriser Authoriser
	chats      ChatSender
	broker     broker.Broker
	presence   PresenceTracker
	metrics    *metrics.Metrics
	decoder    *decoder
	log        *zap.Logger
	upgrader   websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*Connection
	wg    sync.WaitGroup
}

func NewGateway(cfg Config, deps Deps) *Gateway {
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	cfg = cfg.withDefaults()
	return &Gateway{
		cfg:        cfg,
		verifier:   deps.Verifier,
		authoriser: deps.Authoriser,
		chats:      deps.Chats,
		broker:     deps.Broker,
		presence:   deps.Presence,
		metrics:    deps.Metrics,
		decoder:    newDecoder(),
		log:        newGatewayLog(cfg.InstanceID),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		conns: make(map[string]*Connection),
	}
}

// Register mounts the websocket routes.
func (g *Gateway) Register(r gin.IRouter) {
	r.GET("/ws/chat/:chat_id/", g.ServeChat)
	r.GET("/ws/feed/", g.ServeFeed)
	r.GET("/ws/notifications/", g.ServeNotifications)
}

func (g *Gateway) ServeChat(c *gin.Context) {
	g.serve(c, c.Param("chat_id"), true)
}

func (g *Gateway) ServeFeed(c *gin.Context) {
	g.serve(c, "", false)
}

func (g *Gateway) ServeNotifications(c *gin.Context) {
	g.serve(c, "", false)
}

// serve upgrades, authenticates within AuthTimeout, joins the initial
// groups and then runs the connection until it closes.
func (g *Gateway) serve(c *gin.Context, chatID string, chatRoute bool) {
	token := extractToken(c)

	ws, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.log.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	connID := uuid.NewString()
	user, err := g.authenticate(c.Request.Context(), token)
	if err != nil {
		reason, _ := identity.ReasonOf(err)
		g.log.Info("authentication failed", zap.String("conn_id", connID), zap.String("reason", string(reason)), zap.Error(err))
		g.reject(ws, CloseAuthFailed, "authentication failed")
		return
	}

	conn := newConnection(g, ws, connID, user)
	defer conn.cancel()
	ctx, cancel := context.WithTimeout(conn.ctx, g.cfg.CommandTimeout)
	defer cancel()

	initial := []string{topic.Feed(user.UserID), topic.Notifications(user.UserID)}
	if chatRoute {
		group, err := conn.chatGroup(ctx, ID(chatID))
		switch {
		case errors.Is(err, bsn_errors.ErrForbidden), errors.Is(err, bsn_errors.ErrInvalidInput):
			conn.log().Info("chat not permitted", zap.String("chat_id", chatID))
			g.reject(ws, CloseNotPermitted, "not permitted")
			return
		case err != nil:
			conn.log().Error("chat authorisation failed", zap.Error(err), zap.String("chat_id", chatID))
			g.reject(ws, websocket.CloseInternalServerErr, "internal error")
			return
		}
		initial = append(initial, group)
	}
	for _, group := range initial {
		if err := conn.join(ctx, group); err != nil {
			conn.log().Error("initial join failed", zap.Error(err), zap.String("group", group))
			if lerr := conn.leaveAll(context.Background()); lerr != nil {
				conn.log().Warn("leave after failed join", zap.Error(lerr))
			}
			g.reject(ws, websocket.CloseInternalServerErr, "internal error")
			return
		}
	}

	if g.presence != nil {
		m := conn.marker()
		if err := g.presence.TrackConnection(ctx, user.UserID, m); err != nil {
			conn.log().Warn("presence track failed", zap.Error(err))
		}
		if err := g.presence.MarkOnline(ctx, user.UserID, m); err != nil {
			conn.log().Warn("presence mark failed", zap.Error(err))
		}
	}

	if !g.track(conn) {
		conn.close(websocket.CloseGoingAway, "shutting down")
		return
	}
	defer g.wg.Done()
	conn.run()
}

// authenticate runs the verifier under AuthTimeout. The deadline holds even
// when the verifier ignores its context.
func (g *Gateway) authenticate(parent context.Context, token string) (identity.Identity, error) {
	ctx, cancel := context.WithTimeout(parent, g.cfg.AuthTimeout)
	defer cancel()

	type outcome struct {
		user identity.Identity
		err  error
	}
	result := make(chan outcome, 1)
	go func() {
		user, err := g.verifier.Verify(ctx, token)
		result <- outcome{user, err}
	}()

	select {
	case r := <-result:
		if r.err == nil && ctx.Err() != nil {
			return identity.Identity{}, ctx.Err()
		}
		return r.user, r.err
	case <-ctx.Done():
		return identity.Identity{}, ctx.Err()
	}
}

// reject closes a socket that never reached READY.
func (g *Gateway) reject(ws *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	ws.Close()
	g.metrics.Closes.WithLabelValues(closeLabel(code)).Inc()
}

func (g *Gateway) track(c *Connection) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conns == nil {
		return false
	}
	g.conns[c.id] = c
	g.wg.Add(1)
	return true
}

func (g *Gateway) forget(c *Connection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.conns, c.id)
}

// Connections returns the number of tracked connections.
func (g *Gateway) Connections() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

// Shutdown closes every connection with 1001 and waits for their cleanup.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	conns := make([]*Connection, 0, len(g.conns))
	for _, c := range g.conns {
		conns = append(conns, c)
	}
	g.conns = nil
	g.mu.Unlock()

	for _, c := range conns {
		c.close(websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func extractToken(c *gin.Context) string {
	// Check query parameter
	token := c.Query("token")
	if token != "" {
		return token
	}

	// Check Authorization header
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}

	return ""
}

func closeLabel(code int) string {
	return strconv.Itoa(code)
}
