package client

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Nidios1/zyea-chat-app-sub001/internal/events"
)

type channelServer struct {
	server *httptest.Server

	mu       sync.Mutex
	conns    []*websocket.Conn
	received []events.Event
}

func newChannelServer(t *testing.T) *channelServer {
	t.Helper()
	cs := &channelServer{}
	upgrader := websocket.Upgrader{}
	cs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		cs.mu.Lock()
		cs.conns = append(cs.conns, conn)
		cs.mu.Unlock()
		for {
			var ev events.Event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			cs.mu.Lock()
			cs.received = append(cs.received, ev)
			cs.mu.Unlock()
		}
	}))
	t.Cleanup(cs.server.Close)
	return cs
}

func (cs *channelServer) url() string {
	return "ws" + strings.TrimPrefix(cs.server.URL, "http")
}

func (cs *channelServer) connCount() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.conns)
}

func (cs *channelServer) receivedCount() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.received)
}

func (cs *channelServer) closeConn(i int) {
	cs.mu.Lock()
	conn := cs.conns[i]
	cs.mu.Unlock()
	conn.Close()
}

func (cs *channelServer) send(t *testing.T, i int, ev events.Event) {
	t.Helper()
	cs.mu.Lock()
	conn := cs.conns[i]
	cs.mu.Unlock()
	if err := conn.WriteJSON(ev); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

func TestWSChannelSendAndReceive(t *testing.T) {
	cs := newChannelServer(t)

	var mu sync.Mutex
	var got []events.Event
	ch := NewWSChannel(cs.url(), func(ev events.Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	}, nil)
	if err := ch.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer ch.Close()

	if !ch.Connected() {
		t.Fatal("channel not connected after open")
	}

	conversationID := uuid.New()
	out, _ := events.New(events.TypeTypingStarted, conversationID, events.TypingPayload{DisplayName: "Alex"})
	if err := ch.Send(out); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitFor(t, func() bool { return cs.receivedCount() == 1 }, "server never received the frame")

	in, _ := events.New(events.TypeMessageDeleted, conversationID, events.MessageDeletedPayload{MessageID: uuid.New()})
	cs.send(t, 0, in)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, "handler never saw the inbound event")

	mu.Lock()
	if got[0].Type != events.TypeMessageDeleted || got[0].ConversationID != conversationID {
		t.Fatalf("inbound event = %+v", got[0])
	}
	mu.Unlock()
}

func TestWSChannelDialFailureIsTransient(t *testing.T) {
	ch := NewWSChannel("ws://127.0.0.1:1/ws", nil, nil)
	err := ch.Open()
	if err == nil {
		t.Fatal("expected dial failure")
	}
	if !IsTransient(err) {
		t.Fatalf("dial failure not transient: %v", err)
	}
}

func TestWSChannelClose(t *testing.T) {
	cs := newChannelServer(t)
	ch := NewWSChannel(cs.url(), nil, nil)
	if err := ch.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}

	ch.Close()
	if ch.Connected() {
		t.Fatal("channel still connected after close")
	}
	ev, _ := events.New(events.TypeTypingStopped, uuid.New(), events.TypingPayload{})
	if err := ch.Send(ev); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("send after close returned %v, want ErrSessionClosed", err)
	}
}

func TestWSChannelRedialsAfterDrop(t *testing.T) {
	if testing.Short() {
		t.Skip("redial backoff makes this test slow")
	}
	cs := newChannelServer(t)

	reconnected := make(chan struct{}, 1)
	ch := NewWSChannel(cs.url(), nil, func() {
		select {
		case reconnected <- struct{}{}:
		default:
		}
	})
	if err := ch.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer ch.Close()

	waitFor(t, func() bool { return cs.connCount() == 1 }, "first connection never arrived")
	cs.closeConn(0)

	select {
	case <-reconnected:
	case <-time.After(5 * time.Second):
		t.Fatal("channel never redialed after the drop")
	}
	if !ch.Connected() {
		t.Fatal("channel not connected after redial")
	}
	if cs.connCount() != 2 {
		t.Fatalf("server saw %d connections, want 2", cs.connCount())
	}
}
