package realtime

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Nidios1/zyea-chat-app-sub001/internal/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to the frontend origins once they are fixed
		return true
	},
}

// Client is one user's socket session. rooms is owned by the hub and guarded
// by the hub mutex.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID uuid.UUID
	rooms  map[uuid.UUID]struct{}

	once   sync.Once
	closed chan struct{}
}

// ServeWs upgrades the request and registers the session with the hub.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed for %s: %v", userID, err)
		return
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: userID,
		rooms:  make(map[uuid.UUID]struct{}),
		closed: make(chan struct{}),
	}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// enqueue offers a payload without blocking. A full buffer or a closed
// session reports false; the hub decides what to do about it.
func (c *Client) enqueue(payload []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.once.Do(func() { close(c.closed) })
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.closed:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Error writing to client %s: %v", c.userID, err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.hub.presence.MarkOnline(c.userID)
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Error reading from client %s: %v", c.userID, err)
			}
			return
		}

		var ev events.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			log.Printf("Invalid frame from %s: %v", c.userID, err)
			continue
		}
		c.hub.handleInbound(c, ev)
	}
}

// handleInbound relays client-originated signals. Typing and viewing are
// room-scoped; the reaction fast path fans out to all connected participants
// so other clients render the change before it is persisted.
func (h *Hub) handleInbound(c *Client, ev events.Event) {
	switch ev.Type {
	case events.TypeTypingStarted, events.TypeTypingStopped:
		if !h.allowed(c.userID, ev.ConversationID) {
			return
		}
		payload := events.TypingPayload{UserID: c.userID}
		if ev.Type == events.TypeTypingStarted {
			var in events.TypingPayload
			if err := ev.Decode(&in); err == nil {
				payload.DisplayName = in.DisplayName
			}
		}
		out, err := events.New(ev.Type, ev.ConversationID, payload)
		if err != nil {
			return
		}
		h.broadcastToRoom(ev.ConversationID, out, c.userID)

	case events.TypeViewing:
		if !h.allowed(c.userID, ev.ConversationID) {
			return
		}
		h.joinRoom(ev.ConversationID, c)
		h.presence.SetViewing(ev.ConversationID, c.userID)
		out, err := events.New(events.TypeViewing, ev.ConversationID, events.ViewingPayload{UserID: c.userID})
		if err != nil {
			return
		}
		h.broadcastToRoom(ev.ConversationID, out, c.userID)

	case events.TypeLeft:
		h.leaveRoom(ev.ConversationID, c)
		h.presence.ClearViewing(ev.ConversationID, c.userID)
		out, err := events.New(events.TypeLeft, ev.ConversationID, events.ViewingPayload{UserID: c.userID})
		if err != nil {
			return
		}
		h.broadcastToRoom(ev.ConversationID, out, c.userID)

	case events.TypeReactionChanged:
		if !h.allowed(c.userID, ev.ConversationID) {
			return
		}
		h.BroadcastToConversation(ev.ConversationID, ev, c.userID)

	default:
		log.Printf("Unhandled frame type %q from %s", ev.Type, c.userID)
	}
}

func (h *Hub) allowed(userID, conversationID uuid.UUID) bool {
	if conversationID == uuid.Nil {
		return false
	}
	ok, err := h.directory.IsParticipant(userID, conversationID)
	if err != nil {
		log.Printf("Error checking participant %s in %s: %v", userID, conversationID, err)
		return false
	}
	return ok
}
