package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shinyyama/collab-messaging/internal/identity"
)

// Client is one authenticated websocket connection.
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	actor *identity.Actor
	send  chan []byte
	done  chan struct{}
	once  sync.Once

	// rooms is guarded by hub.mu.
	rooms map[string]struct{}
}

func newClient(h *Hub, conn *websocket.Conn, actor *identity.Actor, buffer int) *Client {
	return &Client{
		hub:   h,
		conn:  conn,
		actor: actor,
		send:  make(chan []byte, buffer),
		done:  make(chan struct{}),
		rooms: make(map[string]struct{}),
	}
}

func (c *Client) Actor() *identity.Actor {
	return c.actor
}

func (c *Client) Join(room string) {
	c.hub.join(room, c)
}

func (c *Client) Leave(room string) {
	c.hub.leave(room, c)
}

func (c *Client) InRoom(room string) bool {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	_, ok := c.rooms[room]
	return ok
}

// Emit sends an event to this connection only.
func (c *Client) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		return err
	}
	if !c.enqueue(frame) {
		return ErrGatewayClosed
	}
	return nil
}

func (c *Client) EmitError(message string) {
	_ = c.Emit(EventError, ErrorPayload{Message: message})
}

func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Client) readPump(ctx context.Context, in InboundHandler) {
	defer func() {
		c.hub.unregister(c)
		c.close()
	}()
	opts := c.hub.opts
	c.conn.SetReadLimit(opts.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.WithError(err).WithField("uid", c.actor.UID).Debug("websocket read error")
			}
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil || f.Event == "" {
			c.EmitError("malformed frame")
			continue
		}
		if in != nil {
			in.HandleInbound(ctx, c, f)
		}
	}
}

func (c *Client) writePump() {
	opts := c.hub.opts
	ticker := time.NewTicker(opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
		c.conn.Close()
	}()
	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(opts.WriteWait))
			return
		}
	}
}
