package realtime

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/Nidios1/zyea-chat-app-sub001/internal/domain"
	"github.com/Nidios1/zyea-chat-app-sub001/internal/events"
	"github.com/Nidios1/zyea-chat-app-sub001/internal/presence"
)

// ConversationDirectory answers membership questions for fan-out decisions.
type ConversationDirectory interface {
	IsParticipant(userID, conversationID uuid.UUID) (bool, error)
	GetParticipants(conversationID uuid.UUID) ([]domain.ConversationParticipant, error)
	SharesConversation(userID, otherID uuid.UUID) (bool, error)
}

// Hub routes delivery events to connected clients. One active session per
// user: registering a new socket replaces and closes the previous one.
// Delivery is fire-and-forget and at-most-once; a slow client is dropped and
// resynchronizes through the query interface on reconnect.
type Hub struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Client               // userID -> active client
	rooms    map[uuid.UUID]map[uuid.UUID]*Client // conversationID -> userID -> client

	register   chan *Client
	unregister chan *Client

	directory ConversationDirectory
	presence  *presence.Tracker
}

func NewHub(directory ConversationDirectory, tracker *presence.Tracker) *Hub {
	hub := &Hub{
		sessions:   make(map[uuid.UUID]*Client),
		rooms:      make(map[uuid.UUID]map[uuid.UUID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		directory:  directory,
		presence:   tracker,
	}
	go hub.run()
	return hub
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			var previous *Client
			h.mu.Lock()
			if existing, ok := h.sessions[client.userID]; ok {
				previous = existing
				h.removeLocked(existing)
			}
			h.sessions[client.userID] = client
			h.mu.Unlock()

			if previous != nil {
				previous.closeSend()
			}
			h.presence.MarkOnline(client.userID)
			h.broadcastPresence(client.userID, presence.StatusOnline)
			log.Printf("Client %s connected", client.userID)

		case client := <-h.unregister:
			h.mu.Lock()
			current, ok := h.sessions[client.userID]
			if ok && current == client {
				h.removeLocked(client)
			}
			h.mu.Unlock()
			if ok && current == client {
				client.closeSend()
				h.presence.MarkOffline(client.userID)
				h.broadcastPresence(client.userID, presence.StatusOffline)
				log.Printf("Client %s disconnected", client.userID)
			}
		}
	}
}

// removeLocked drops the client from the session map and every room.
// Caller holds h.mu.
func (h *Hub) removeLocked(client *Client) {
	delete(h.sessions, client.userID)
	for conversationID := range client.rooms {
		if room, ok := h.rooms[conversationID]; ok {
			delete(room, client.userID)
			if len(room) == 0 {
				delete(h.rooms, conversationID)
			}
		}
	}
}

func (h *Hub) joinRoom(conversationID uuid.UUID, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[conversationID]
	if room == nil {
		room = make(map[uuid.UUID]*Client)
		h.rooms[conversationID] = room
	}
	room[client.userID] = client
	client.rooms[conversationID] = struct{}{}
}

func (h *Hub) leaveRoom(conversationID uuid.UUID, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[conversationID]; ok {
		delete(room, client.userID)
		if len(room) == 0 {
			delete(h.rooms, conversationID)
		}
	}
	delete(client.rooms, conversationID)
}

// BroadcastToConversation delivers the event to every connected participant
// of the conversation except excludeUserID. The acting user never receives
// their own event back (single session per user).
func (h *Hub) BroadcastToConversation(conversationID uuid.UUID, ev events.Event, excludeUserID uuid.UUID) int {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("Error marshaling %s event: %v", ev.Type, err)
		return 0
	}

	participants, err := h.directory.GetParticipants(conversationID)
	if err != nil {
		log.Printf("Error loading participants of %s: %v", conversationID, err)
		return 0
	}

	delivered := 0
	for _, p := range participants {
		if p.UserID == excludeUserID {
			continue
		}
		h.mu.RLock()
		client := h.sessions[p.UserID]
		h.mu.RUnlock()
		if client == nil {
			continue
		}
		if client.enqueue(payload) {
			delivered++
		} else {
			h.drop(client)
		}
	}
	return delivered
}

// broadcastToRoom relays an event only to clients currently viewing the
// conversation. Used for typing and viewing signals, which are meaningless
// off-screen.
func (h *Hub) broadcastToRoom(conversationID uuid.UUID, ev events.Event, excludeUserID uuid.UUID) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("Error marshaling %s event: %v", ev.Type, err)
		return
	}

	h.mu.RLock()
	room := h.rooms[conversationID]
	members := make([]*Client, 0, len(room))
	for userID, client := range room {
		if userID == excludeUserID {
			continue
		}
		members = append(members, client)
	}
	h.mu.RUnlock()

	for _, client := range members {
		if !client.enqueue(payload) {
			h.drop(client)
		}
	}
}

// NotifyUser delivers an event to one user's active session, if any.
func (h *Hub) NotifyUser(userID uuid.UUID, ev events.Event) bool {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("Error marshaling %s event: %v", ev.Type, err)
		return false
	}
	h.mu.RLock()
	client := h.sessions[userID]
	h.mu.RUnlock()
	if client == nil {
		return false
	}
	if !client.enqueue(payload) {
		h.drop(client)
		return false
	}
	return true
}

// broadcastPresence tells the user's conversation partners about a status
// change. Sessions with no shared conversation never learn the user exists.
func (h *Hub) broadcastPresence(userID uuid.UUID, status string) {
	payload := events.PresencePayload{UserID: userID, Status: status}
	if ts, ok := h.presence.LastActiveAt(userID); ok {
		payload.LastActiveAt = &ts
	}
	ev, err := events.New(events.TypePresenceChanged, uuid.Nil, payload)
	if err != nil {
		log.Printf("Error building presence event: %v", err)
		return
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}

	h.mu.RLock()
	others := make([]*Client, 0, len(h.sessions))
	for id, client := range h.sessions {
		if id == userID {
			continue
		}
		others = append(others, client)
	}
	h.mu.RUnlock()

	for _, client := range others {
		shared, err := h.directory.SharesConversation(client.userID, userID)
		if err != nil {
			log.Printf("Error checking shared conversations of %s and %s: %v", client.userID, userID, err)
			continue
		}
		if !shared {
			continue
		}
		if !client.enqueue(raw) {
			h.drop(client)
		}
	}
}

// drop disconnects a client whose send buffer is full. It will be fully
// unregistered by its own pump teardown.
func (h *Hub) drop(client *Client) {
	log.Printf("Client %s send buffer full, dropping connection", client.userID)
	client.closeSend()
}
