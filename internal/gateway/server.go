package gateway

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"packetSync/internal/model"
)

const (
	msgSubscribe   = "subscribe:packet"
	msgUnsubscribe = "unsubscribe:packet"
)

type clientMessage struct {
	Type     string `json:"type"`
	PacketID string `json:"packet_id"`
}

type serverMessage struct {
	Type     string `json:"type"`
	PacketID string `json:"packet_id,omitempty"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Config holds runtime settings for the live gateway.
type Config struct {
	AuthSecret   string
	PingInterval time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
}

// Server terminates live client connections, verifies their credential at
// handshake, and routes bus broadcasts to the connections subscribed to
// each packet topic.
type Server struct {
	verifier     *TokenVerifier
	registry     *Registry
	upgrader     websocket.Upgrader
	logger       *zap.Logger
	pingInterval time.Duration
	writeTimeout time.Duration
	sendBuffer   int

	mu    sync.RWMutex
	conns map[string]*liveConn
}

func NewServer(cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 32
	}
	return &Server{
		verifier:     NewTokenVerifier(cfg.AuthSecret),
		registry:     NewRegistry(),
		upgrader:     websocket.Upgrader{},
		logger:       logger,
		pingInterval: cfg.PingInterval,
		writeTimeout: cfg.WriteTimeout,
		sendBuffer:   cfg.SendBuffer,
		conns:        make(map[string]*liveConn),
	}
}

// Registry exposes the subscription registry, mainly for tests.
func (s *Server) Registry() *Registry { return s.registry }

// Handler upgrades websocket connections. A missing or invalid credential
// fails the connection with AUTH_REQUIRED before any registration.
func (s *Server) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		address, err := s.verifier.Verify(bearerToken(r), time.Now())
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(serverMessage{Type: "error", Code: "AUTH_REQUIRED"})
			return
		}

		ws, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn("ws upgrade failed", zap.Error(err))
			return
		}

		c := &liveConn{
			id:      uuid.NewString(),
			address: address,
			ws:      ws,
			send:    make(chan []byte, s.sendBuffer),
		}
		s.addConn(c)
		s.logger.Info("client connected",
			zap.String("conn_id", c.id),
			zap.String("address", address),
		)

		go s.writeLoop(c)
		s.readLoop(c)
		s.dropConn(c)
	}
}

// HandleBroadcast routes a bus payload to every local connection
// subscribed to the payload's packet. Slow consumers are skipped; they
// reconcile by refetching packet state.
func (s *Server) HandleBroadcast(_ string, payload []byte) {
	var b model.Broadcast
	if err := json.Unmarshal(payload, &b); err != nil || b.PacketID == "" {
		s.logger.Warn("unroutable broadcast", zap.Error(err))
		return
	}

	for _, id := range s.registry.Connections(b.PacketID) {
		s.mu.RLock()
		c := s.conns[id]
		s.mu.RUnlock()
		if c == nil {
			continue
		}
		if !c.enqueue(payload) {
			s.logger.Warn("dropping broadcast for slow consumer",
				zap.String("conn_id", id),
				zap.String("packet_id", b.PacketID),
			)
		}
	}
}

func (s *Server) readLoop(c *liveConn) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.enqueueMsg(serverMessage{Type: "error", Code: "BAD_MESSAGE", Message: "invalid json"})
			continue
		}
		switch msg.Type {
		case msgSubscribe:
			if msg.PacketID == "" {
				c.enqueueMsg(serverMessage{Type: "error", Code: "BAD_MESSAGE", Message: "packet_id required"})
				continue
			}
			s.registry.Subscribe(c.id, msg.PacketID)
			c.enqueueMsg(serverMessage{Type: "subscribed", PacketID: msg.PacketID})
		case msgUnsubscribe:
			s.registry.Unsubscribe(c.id, msg.PacketID)
			c.enqueueMsg(serverMessage{Type: "unsubscribed", PacketID: msg.PacketID})
		default:
			c.enqueueMsg(serverMessage{Type: "error", Code: "BAD_MESSAGE", Message: "unknown type: " + msg.Type})
		}
	}
}

func (s *Server) writeLoop(c *liveConn) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	defer c.ws.Close()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				c.ws.SetWriteDeadline(time.Now().Add(s.writeTimeout))
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.ws.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		}
	}
}

func (s *Server) addConn(c *liveConn) {
	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()
}

func (s *Server) dropConn(c *liveConn) {
	s.registry.Drop(c.id)
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
	c.shutdown()
	s.logger.Info("client disconnected", zap.String("conn_id", c.id))
}

type liveConn struct {
	id      string
	address string
	ws      *websocket.Conn
	send    chan []byte

	mu     sync.Mutex
	closed bool
}

func (c *liveConn) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *liveConn) enqueueMsg(msg serverMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.enqueue(payload)
}

func (c *liveConn) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
