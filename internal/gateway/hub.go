package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/shinyyama/collab-messaging/internal/identity"
	"github.com/sirupsen/logrus"
)

var ErrGatewayClosed = errors.New("gateway closed")

// Emitter pushes an event to every connection subscribed to any of rooms. A connection
// that is in several of the rooms receives the event once. Emit never blocks on the
// network.
type Emitter interface {
	Emit(event string, payload any, rooms ...string) error
}

// InboundHandler processes client → server frames. It runs on the connection's read
// goroutine, so frames from one connection are handled in order.
type InboundHandler interface {
	HandleInbound(ctx context.Context, c *Client, f Frame)
}

type Options struct {
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	CheckOrigin    func(r *http.Request) bool
}

func (o *Options) defaults() {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 << 10
	}
}

type Hub struct {
	identity identity.Provider
	log      *logrus.Logger
	opts     Options
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	clients map[*Client]struct{}
	closed  bool
}

func New(provider identity.Provider, logger *logrus.Logger, opts Options) *Hub {
	opts.defaults()
	return &Hub{
		identity: provider,
		log:      logger,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     opts.CheckOrigin,
		},
		rooms:   make(map[string]map[*Client]struct{}),
		clients: make(map[*Client]struct{}),
	}
}

// Handler authenticates the handshake, upgrades the connection and serves it until the
// peer goes away. The bearer token comes from the Authorization header or, for browser
// clients that cannot set headers on an upgrade, the token query parameter.
func (h *Hub) Handler(in InboundHandler) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.isClosed() {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "gateway_closed"})
		}
		token := bearerToken(c.Request())
		if token == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		actor, err := h.identity.Verify(c.Request().Context(), token)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		}
		conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			h.log.WithError(err).Warn("websocket upgrade failed")
			return nil
		}

		client := newClient(h, conn, actor, h.opts.SendBuffer)
		if !h.register(client) {
			conn.Close()
			return nil
		}
		client.Join(UserRoom(actor.UID))
		_ = client.Emit(EventConnected, map[string]string{"uid": actor.UID})
		h.log.WithField("uid", actor.UID).Debug("websocket connected")

		ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request().Context()))
		defer cancel()
		go client.writePump()
		client.readPump(ctx, in)
		return nil
	}
}

func bearerToken(r *http.Request) string {
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func (h *Hub) Emit(event string, payload any, rooms ...string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrGatewayClosed
	}
	seen := make(map[*Client]struct{})
	for _, room := range rooms {
		for c := range h.rooms[room] {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			if !c.enqueue(frame) {
				h.log.WithFields(logrus.Fields{
					"uid":   c.actor.UID,
					"event": event,
					"room":  room,
				}).Warn("websocket send buffer full; dropping event")
			}
		}
	}
	return nil
}

// Run blocks until ctx is done and then closes the hub.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	_ = h.Close()
}

// Close disconnects every client. Later emits return ErrGatewayClosed.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	return nil
}

// RoomSize reports how many connections are subscribed to room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) isClosed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	for room := range c.rooms {
		h.removeLocked(room, c)
	}
	c.rooms = map[string]struct{}{}
}

func (h *Hub) join(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leave(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(room, c)
	delete(c.rooms, room)
}

func (h *Hub) removeLocked(room string, c *Client) {
	members := h.rooms[room]
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}
