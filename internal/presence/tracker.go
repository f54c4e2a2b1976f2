// Package presence tracks ephemeral per-user state: online status with TTL
// expiry and which conversation a user is actively viewing. Nothing here is
// persisted; state evaporates on disconnect or TTL.
package presence

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Nidios1/zyea-chat-app-sub001/internal/infrastructure/cache/port"
)

const (
	onlineTTL = 60 * time.Second
	opTimeout = 2 * time.Second

	StatusOnline  = "online"
	StatusOffline = "offline"
)

type Tracker struct {
	cache port.Cache

	mu      sync.RWMutex
	viewing map[uuid.UUID]map[uuid.UUID]struct{} // conversationID -> set of userIDs
}

func NewTracker(cache port.Cache) *Tracker {
	return &Tracker{
		cache:   cache,
		viewing: make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}
}

func onlineKey(userID uuid.UUID) string {
	return "presence:online:" + userID.String()
}

// MarkOnline records the user as online, refreshing the TTL. Called on
// socket registration and on heartbeat.
func (t *Tracker) MarkOnline(userID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	value := time.Now().UTC().Format(time.RFC3339)
	if err := t.cache.Set(ctx, onlineKey(userID), value, onlineTTL); err != nil {
		log.Printf("presence: mark online %s: %v", userID, err)
	}
}

// MarkOffline drops the online key and any viewing state for the user.
func (t *Tracker) MarkOffline(userID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if _, err := t.cache.Del(ctx, onlineKey(userID)); err != nil {
		log.Printf("presence: mark offline %s: %v", userID, err)
	}
	t.ClearUser(userID)
}

func (t *Tracker) IsOnline(userID uuid.UUID) bool {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	_, err := t.cache.Get(ctx, onlineKey(userID))
	return err == nil
}

// LastActiveAt returns the last recorded activity time, if the user is still
// within the online TTL.
func (t *Tracker) LastActiveAt(userID uuid.UUID) (time.Time, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	value, err := t.cache.Get(ctx, onlineKey(userID))
	if err != nil {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// SetViewing records that the user has the conversation open on screen.
func (t *Tracker) SetViewing(conversationID, userID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	viewers := t.viewing[conversationID]
	if viewers == nil {
		viewers = make(map[uuid.UUID]struct{})
		t.viewing[conversationID] = viewers
	}
	viewers[userID] = struct{}{}
}

// ClearViewing removes the user from one conversation's viewer set.
func (t *Tracker) ClearViewing(conversationID, userID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if viewers, ok := t.viewing[conversationID]; ok {
		delete(viewers, userID)
		if len(viewers) == 0 {
			delete(t.viewing, conversationID)
		}
	}
}

// ClearUser removes the user from every viewer set (disconnect path).
func (t *Tracker) ClearUser(userID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for conversationID, viewers := range t.viewing {
		delete(viewers, userID)
		if len(viewers) == 0 {
			delete(t.viewing, conversationID)
		}
	}
}

func (t *Tracker) IsViewing(conversationID, userID uuid.UUID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	viewers, ok := t.viewing[conversationID]
	if !ok {
		return false
	}
	_, ok = viewers[userID]
	return ok
}
