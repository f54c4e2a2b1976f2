package client

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Nidios1/zyea-chat-app-sub001/internal/events"
)

const (
	reconnectBase = time.Second
	reconnectMax  = 30 * time.Second
	writeTimeout  = 10 * time.Second
)

var errDisconnected = errors.New("channel disconnected")

// WSChannel is the gorilla-backed EventChannel. It dials with the access
// token, dispatches inbound events to the handler, and reconnects with
// exponential backoff after a drop. Events missed while disconnected are
// gone; the reconnect callback is the hook to resynchronize.
type WSChannel struct {
	url         string
	onEvent     func(events.Event)
	onReconnect func()

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool
	done      chan struct{}
}

// NewWSChannel builds a channel for wsURL (ws://host/ws?token=...).
// onEvent receives every decoded frame; onReconnect fires after every
// re-established connection, not the first one.
func NewWSChannel(wsURL string, onEvent func(events.Event), onReconnect func()) *WSChannel {
	return &WSChannel{
		url:         wsURL,
		onEvent:     onEvent,
		onReconnect: onReconnect,
		done:        make(chan struct{}),
	}
}

// Open dials and starts the read loop. It returns once the first
// connection is up so the caller can announce itself before loading
// history.
func (c *WSChannel) Open() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return Transient(err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

func (c *WSChannel) readLoop(conn *websocket.Conn) {
	for {
		var ev events.Event
		if err := conn.ReadJSON(&ev); err != nil {
			break
		}
		if c.onEvent != nil {
			c.onEvent(ev)
		}
	}

	c.mu.Lock()
	c.connected = false
	closed := c.closed
	c.mu.Unlock()
	conn.Close()

	if !closed {
		go c.redial()
	}
}

func (c *WSChannel) redial() {
	delay := reconnectBase
	for {
		select {
		case <-c.done:
			return
		case <-time.After(delay):
		}

		conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
		if err != nil {
			log.Printf("channel: redial: %v", err)
			delay *= 2
			if delay > reconnectMax {
				delay = reconnectMax
			}
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		c.connected = true
		c.mu.Unlock()

		go c.readLoop(conn)
		if c.onReconnect != nil {
			c.onReconnect()
		}
		return
	}
}

// Send writes one event frame. Failures surface to the caller but also
// trip the read loop, which handles the reconnect.
func (c *WSChannel) Send(ev events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrSessionClosed
	}
	if !c.connected || c.conn == nil {
		return Transient(errDisconnected)
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(ev); err != nil {
		return Transient(err)
	}
	return nil
}

func (c *WSChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Close stops the read loop and any pending redial.
func (c *WSChannel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	close(c.done)
	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout))
		conn.Close()
	}
}
