package server

import (
	"net/http"

	"mdhub/config"
	"mdhub/internal/snapshot"
	"mdhub/internal/subscription"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server owns the client-facing websocket endpoint: session lifecycle,
// command handling, and the wiring between sessions, the subscription
// registry and the admission manager.
type Server struct {
	cfg      config.ServerConfig
	logger   *zap.Logger
	registry *subscription.Registry
	manager  *subscription.Manager
	sessions *Sessions
	health   *snapshot.Health

	broadcaster *Broadcaster
}

func New(cfg config.ServerConfig, registry *subscription.Registry, manager *subscription.Manager,
	health *snapshot.Health, logger *zap.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		manager:  manager,
		sessions: NewSessions(),
		health:   health,
	}
	s.broadcaster = NewBroadcaster(s.sessions, registry, logger)
	return s
}

// Broadcaster exposes the fan-out half of the server to the pipeline.
func (s *Server) Broadcaster() *Broadcaster {
	return s.broadcaster
}

// Routes builds the gin engine with the websocket and introspection
// endpoints.
func (s *Server) Routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/ws", s.handleWebSocket)
	r.GET("/stats", s.handleStats)
	r.GET("/healthz", s.handleHealthz)
	return r
}

// Run serves until the listener fails.
func (s *Server) Run() error {
	s.logger.Info("websocket server listening", zap.String("addr", s.cfg.Addr))
	return s.Routes().Run(s.cfg.Addr)
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sessionID := uuid.NewString()
	userID := c.Query("user")
	if userID == "" {
		userID = sessionID
	}

	sendBuffer := s.cfg.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = 256
	}

	client := &Client{
		ID:     sessionID,
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		srv:    s,
	}
	client.setState(StateConnecting)

	limit := subscription.ConnectionLimit(s.manager.UserTypeOf(userID))
	if !s.sessions.AddWithinLimit(client, limit) {
		s.logger.Warn("connection limit reached",
			zap.String("user", userID), zap.Int("limit", limit))
		conn.WriteMessage(websocket.TextMessage, errorMsg("connection limit reached"))
		conn.Close()
		return
	}

	go client.writePump()

	client.Send(connectedMsg(sessionID))
	client.setState(StateConnected)
	s.logger.Info("websocket connected",
		zap.String("session", sessionID),
		zap.String("user", userID),
		zap.Int("total", s.sessions.Count()))

	go client.readPump()
}

// closeClient tears a session down: registry cleanup, capacity release,
// session removal, terminal state. The transport can signal disconnect
// more than once, so the whole sequence runs at most once.
func (s *Server) closeClient(c *Client) {
	c.teardown.Do(func() {
		c.setState(StateClosed)

		removed := s.registry.RemoveClient(c.ID)
		total := 0
		for category, keys := range removed {
			s.manager.Unsubscribe(c.UserID, category, keys)
			total += len(keys)
		}

		s.sessions.Remove(c.ID)
		close(c.done)
		c.conn.Close()

		s.logger.Info("websocket disconnected",
			zap.String("session", c.ID),
			zap.String("user", c.UserID),
			zap.Int("released", total),
			zap.Int("remaining", s.sessions.Count()))
	})
}

// sweepIfClosed re-runs session cleanup after the two-store subscribe
// commit and reports whether it did. Teardown can fire from the write
// side between the admission commit and the registry commit; closeClient
// removes only what the registry held at that moment, so a commit
// landing afterwards would leave a dead session holding capacity and
// listed as a watcher.
func (s *Server) sweepIfClosed(c *Client) bool {
	if c.State() != StateClosed {
		return false
	}
	for category, keys := range s.registry.RemoveClient(c.ID) {
		s.manager.Unsubscribe(c.UserID, category, keys)
	}
	return true
}

func (s *Server) handleStats(c *gin.Context) {
	total, byCategory := s.manager.Stats()
	categories := make(map[string]int64, len(byCategory))
	for category, n := range byCategory {
		categories[string(category)] = n
	}

	c.JSON(http.StatusOK, gin.H{
		"broadcast":                  s.broadcaster.Stats(),
		"subscriptions_total":        total,
		"subscriptions_by_category":  categories,
		"subscribed_instruments":     s.registry.InstrumentCount(),
		"sessions_with_subscription": s.registry.SessionCount(),
	})
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"hot_up":  s.health.HotUp(),
		"warm_up": s.health.WarmUp(),
	})
}

func zapSession(c *Client) []zap.Field {
	return []zap.Field{
		zap.String("session", c.ID),
		zap.String("user", c.UserID),
	}
}

func zapSessionErr(c *Client, err error) []zap.Field {
	return append(zapSession(c), zap.Error(err))
}
