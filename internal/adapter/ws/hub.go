// Package ws pushes per-user realtime updates over websockets. Messages come
// from the user's Redis update channel, so any replica can publish them.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/interview-coach/internal/adapter/observability"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

// TokenVerifier resolves a bearer token into a user id.
type TokenVerifier interface {
	UserID(token string) (string, error)
}

// Subscriber opens a pub/sub subscription for one user.
type Subscriber interface {
	Subscribe(ctx context.Context, userID string) *redis.PubSub
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub tracks live connections per user and fans out their update channel.
type Hub struct {
	verifier TokenVerifier
	sub      Subscriber
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]map[*client]struct{}
	cancels map[string]context.CancelFunc
	closed  bool
}

// NewHub builds a Hub. allowedOrigins is a comma separated list; "*" or an
// empty list accepts every origin.
func NewHub(verifier TokenVerifier, sub Subscriber, allowedOrigins string) *Hub {
	h := &Hub{
		verifier: verifier,
		sub:      sub,
		clients:  map[string]map[*client]struct{}{},
		cancels:  map[string]context.CancelFunc{},
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed string) func(r *http.Request) bool {
	list := []string{}
	for _, o := range strings.Split(allowed, ",") {
		if o = strings.TrimSpace(o); o != "" {
			list = append(list, o)
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(list) == 0 {
			return true
		}
		for _, o := range list {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// ServeHTTP authenticates via the token query parameter and upgrades.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := h.verifier.UserID(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.register(userID, c) {
		_ = conn.Close()
		return
	}
	go h.writePump(c)
	go h.readPump(userID, c)
}

func (h *Hub) register(userID string, c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.clients[userID]
	if !ok {
		set = map[*client]struct{}{}
		h.clients[userID] = set
	}
	set[c] = struct{}{}
	if len(set) == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancels[userID] = cancel
		go h.subscribe(ctx, userID)
	}
	observability.WebsocketConnections.Inc()
	slog.Debug("websocket connected", slog.String("user_id", userID), slog.Int("connections", len(set)))
	return true
}

func (h *Hub) unregister(userID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	c.close()
	observability.WebsocketConnections.Dec()
	if len(set) == 0 {
		delete(h.clients, userID)
		if cancel, ok := h.cancels[userID]; ok {
			cancel()
			delete(h.cancels, userID)
		}
	}
	slog.Debug("websocket disconnected", slog.String("user_id", userID))
}

func (h *Hub) subscribe(ctx context.Context, userID string) {
	ps := h.sub.Subscribe(ctx, userID)
	defer func() { _ = ps.Close() }()
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(userID, []byte(msg.Payload))
		}
	}
}

// broadcast queues data for every connection of userID. Connections whose
// buffer is full are dropped.
func (h *Hub) broadcast(userID string, data []byte) {
	h.mu.Lock()
	var slow []*client
	for c := range h.clients[userID] {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()
	for _, c := range slow {
		slog.Warn("dropping slow websocket client", slog.String("user_id", userID))
		h.unregister(userID, c)
	}
}

func (h *Hub) readPump(userID string, c *client) {
	defer h.unregister(userID, c)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Connections reports the live connection count of userID.
func (h *Hub) Connections(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[userID])
}

// Close disconnects everyone and refuses new connections.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	all := map[string][]*client{}
	for u, set := range h.clients {
		for c := range set {
			all[u] = append(all[u], c)
		}
	}
	h.mu.Unlock()
	for u, cs := range all {
		for _, c := range cs {
			h.unregister(u, c)
		}
	}
}
