package client

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Nidios1/zyea-chat-app-sub001/internal/events"
)

const (
	defaultPageSize      = 50
	defaultResyncDelay   = 300 * time.Millisecond
	defaultTypingIdle    = 2 * time.Second
	defaultRetryAttempts = 3
	defaultRetryBase     = 250 * time.Millisecond
)

// Config wires a Session to its collaborators. Zero durations and counts
// fall back to the defaults above; tests shrink them.
type Config struct {
	ConversationID uuid.UUID
	ViewerID       uuid.UUID
	DisplayName    string
	API            QueryAPI
	Channel        EventChannel
	Directory      Directory

	PageSize      int
	ResyncDelay   time.Duration
	TypingIdle    time.Duration
	RetryAttempts int
	RetryBase     time.Duration
	Now           func() time.Time
}

// Session owns one open conversation on the client: the reconciled message
// list, the compose draft, typing state and every scheduled side effect.
// All mutation is serialized through the session mutex, which is the Go
// counterpart of the single UI event loop the merge rules assume.
type Session struct {
	cfg Config

	mu          sync.Mutex
	rec         *Reconciler
	draft       string
	typing      bool
	typingStop  *scheduledTask
	resyncTask  *scheduledTask
	typingUsers map[uuid.UUID]string
	viewers     map[uuid.UUID]struct{}
	closed      bool
}

type scheduledTask struct {
	cancelled bool
	timer     *time.Timer
}

// cancel is called with the session mutex held.
func (t *scheduledTask) cancel() {
	if t == nil {
		return
	}
	t.cancelled = true
	if t.timer != nil {
		t.timer.Stop()
	}
}

func NewSession(cfg Config) *Session {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.ResyncDelay <= 0 {
		cfg.ResyncDelay = defaultResyncDelay
	}
	if cfg.TypingIdle <= 0 {
		cfg.TypingIdle = defaultTypingIdle
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = defaultRetryAttempts
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaultRetryBase
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Session{
		cfg:         cfg,
		rec:         NewReconciler(cfg.ConversationID, cfg.ViewerID),
		typingUsers: make(map[uuid.UUID]string),
		viewers:     make(map[uuid.UUID]struct{}),
	}
	s.rec.now = cfg.Now
	return s
}

// Open announces the viewer and loads the first history page. Read fetches
// retry on transient failures; a session closed mid-flight discards the
// result.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.mu.Unlock()

	s.sendEvent(events.TypeViewing, events.ViewingPayload{UserID: s.cfg.ViewerID})

	entries, err := s.fetchWithRetry(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.rec.ApplyHistory(entries)
	return nil
}

// Resync re-issues the first-page fetch and merges it. It is the recovery
// path for missed events: the channel never replays.
func (s *Session) Resync(ctx context.Context) error {
	entries, err := s.fetchWithRetry(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.rec.ApplyHistory(entries)
	return nil
}

func (s *Session) fetchWithRetry(ctx context.Context) ([]Entry, error) {
	var lastErr error
	for attempt := 0; attempt < s.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := s.cfg.RetryBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		entries, err := s.cfg.API.ListMessages(ctx, s.cfg.ConversationID, 1, s.cfg.PageSize)
		if err == nil {
			return entries, nil
		}
		if !IsTransient(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// SetDraft records compose input and drives the typing signal: the first
// keystroke after idle starts typing, and the stop timer re-arms on every
// keystroke.
func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.draft = text
	startTyping := false
	if text != "" && !s.typing {
		s.typing = true
		startTyping = true
	}
	if s.typing {
		s.armTypingStopLocked()
	}
	s.mu.Unlock()

	if startTyping {
		s.sendEvent(events.TypeTypingStarted, events.TypingPayload{
			UserID:      s.cfg.ViewerID,
			DisplayName: s.cfg.DisplayName,
		})
	}
}

func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

func (s *Session) armTypingStopLocked() {
	s.typingStop.cancel()
	task := &scheduledTask{}
	task.timer = time.AfterFunc(s.cfg.TypingIdle, func() {
		s.mu.Lock()
		if task.cancelled || s.closed || !s.typing {
			s.mu.Unlock()
			return
		}
		s.typing = false
		s.typingStop = nil
		s.mu.Unlock()
		s.sendEvent(events.TypeTypingStopped, events.TypingPayload{UserID: s.cfg.ViewerID})
	})
	s.typingStop = task
}

// Send performs the optimistic send: insert a pending entry, clear the
// draft, then issue the request. Success upgrades the entry to delivered
// and schedules a deferred resync for the durable identity and final media
// URL. Failure removes the entry and restores the draft; sends are never
// retried.
func (s *Session) Send(ctx context.Context, messageType, mediaURL string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	content := strings.TrimSpace(s.draft)
	if content == "" && mediaURL == "" {
		s.mu.Unlock()
		return ErrEmptyMessage
	}
	pending := s.rec.AddPending(content, messageType, mediaURL)
	s.draft = ""
	wasTyping := s.typing
	s.typing = false
	s.typingStop.cancel()
	s.typingStop = nil
	s.mu.Unlock()

	if wasTyping {
		s.sendEvent(events.TypeTypingStopped, events.TypingPayload{UserID: s.cfg.ViewerID})
	}

	if _, err := s.cfg.API.SendMessage(ctx, s.cfg.ConversationID, content, messageType, mediaURL); err != nil {
		s.mu.Lock()
		if removed, ok := s.rec.RemovePending(pending.ID); ok && s.draft == "" {
			s.draft = removed.Content
		}
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	if !s.closed {
		s.rec.MarkDelivered(pending.ID)
		s.scheduleResyncLocked()
	}
	s.mu.Unlock()
	return nil
}

func (s *Session) scheduleResyncLocked() {
	s.resyncTask.cancel()
	task := &scheduledTask{}
	task.timer = time.AfterFunc(s.cfg.ResyncDelay, func() {
		s.mu.Lock()
		if task.cancelled || s.closed {
			s.mu.Unlock()
			return
		}
		s.resyncTask = nil
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Resync(ctx); err != nil {
			log.Printf("session: deferred resync: %v", err)
		}
	})
	s.resyncTask = task
}

// ToggleReaction flips one emoji token (add if absent, remove the first
// match), applies locally, broadcasts over the channel for near-instant
// cross-client effect, then persists. A failed persist rolls back and
// re-broadcasts the prior value.
func (s *Session) ToggleReaction(ctx context.Context, messageID uuid.UUID, emoji string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	entry, ok := s.rec.Get(messageID)
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	prior := append([]string(nil), entry.Reactions...)
	next := toggleReaction(prior, emoji)
	s.rec.ApplyReactions(messageID, next)
	s.mu.Unlock()

	s.sendEvent(events.TypeReactionChanged, events.ReactionChangedPayload{
		MessageID: messageID,
		Reactions: next,
	})

	if err := s.cfg.API.UpdateReactions(ctx, messageID, next); err != nil {
		s.mu.Lock()
		s.rec.ApplyReactions(messageID, prior)
		s.mu.Unlock()
		s.sendEvent(events.TypeReactionChanged, events.ReactionChangedPayload{
			MessageID: messageID,
			Reactions: prior,
		})
		return err
	}
	return nil
}

// toggleReaction removes only the first matching token, preserving the
// flat-list duplicate semantics of the reaction model.
func toggleReaction(reactions []string, emoji string) []string {
	for i, r := range reactions {
		if r == emoji {
			return append(append([]string(nil), reactions[:i]...), reactions[i+1:]...)
		}
	}
	return append(append([]string(nil), reactions...), emoji)
}

// Edit applies the new content locally, persists, and rolls back on
// failure.
func (s *Session) Edit(ctx context.Context, messageID uuid.UUID, content string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	prior, ok := s.rec.Get(messageID)
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	s.rec.ApplyEdited(messageID, content)
	s.mu.Unlock()

	if err := s.cfg.API.EditMessage(ctx, messageID, content); err != nil {
		s.mu.Lock()
		s.rec.setEdited(messageID, prior.Content, prior.Edited)
		s.mu.Unlock()
		return err
	}
	return nil
}

// Delete removes the entry locally, persists, and reinserts on failure.
func (s *Session) Delete(ctx context.Context, messageID uuid.UUID, forEveryone bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	prior, ok := s.rec.Get(messageID)
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	s.rec.ApplyDeleted(messageID)
	s.mu.Unlock()

	if err := s.cfg.API.DeleteMessage(ctx, messageID, forEveryone); err != nil {
		s.mu.Lock()
		s.rec.reinsert(prior)
		s.mu.Unlock()
		return err
	}
	return nil
}

// MarkAllRead acknowledges everything in the conversation.
func (s *Session) MarkAllRead(ctx context.Context) error {
	return s.cfg.API.MarkAllRead(ctx, s.cfg.ConversationID)
}

// HandleEvent merges one inbound channel event. It is safe to call from
// the channel's read goroutine.
func (s *Session) HandleEvent(ev events.Event) {
	if ev.Type != events.TypePresenceChanged && ev.ConversationID != s.cfg.ConversationID {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	switch ev.Type {
	case events.TypeMessageCreated:
		var p events.MessagePayload
		if err := ev.Decode(&p); err != nil {
			log.Printf("session: %v", err)
			return
		}
		entry := Entry{
			ID:             ConfirmedID(p.ID),
			ConversationID: p.ConversationID,
			SenderID:       p.SenderID,
			SenderName:     p.SenderName,
			SenderAvatar:   p.SenderAvatar,
			Content:        p.Content,
			MessageType:    p.MessageType,
			MediaURL:       p.MediaURL,
			CreatedAt:      p.CreatedAt,
		}
		if p.SenderID == s.cfg.ViewerID {
			entry.Status = StatusDelivered
		}
		if entry.SenderName == "" && s.cfg.Directory != nil {
			if info, ok := s.cfg.Directory.Lookup(p.SenderID); ok {
				entry.SenderName = info.DisplayName
				entry.SenderAvatar = info.AvatarURL
			}
		}
		if res := s.rec.ApplyCreated(entry); res.PromotedPending {
			s.scheduleResyncLocked()
		}

	case events.TypeMessageEdited:
		var p events.MessageEditedPayload
		if err := ev.Decode(&p); err != nil {
			return
		}
		s.rec.ApplyEdited(p.MessageID, p.Content)

	case events.TypeMessageDeleted:
		var p events.MessageDeletedPayload
		if err := ev.Decode(&p); err != nil {
			return
		}
		s.rec.ApplyDeleted(p.MessageID)

	case events.TypeReactionChanged:
		var p events.ReactionChangedPayload
		if err := ev.Decode(&p); err != nil {
			return
		}
		s.rec.ApplyReactions(p.MessageID, p.Reactions)

	case events.TypeReadReceipt:
		var p events.ReadReceiptPayload
		if err := ev.Decode(&p); err != nil {
			return
		}
		if p.ReaderID != s.cfg.ViewerID {
			s.rec.ApplyReadReceipts(p.MessageIDs)
		}

	case events.TypeTypingStarted:
		var p events.TypingPayload
		if err := ev.Decode(&p); err != nil {
			return
		}
		name := p.DisplayName
		if name == "" && s.cfg.Directory != nil {
			if info, ok := s.cfg.Directory.Lookup(p.UserID); ok {
				name = info.DisplayName
			}
		}
		s.typingUsers[p.UserID] = name

	case events.TypeTypingStopped:
		var p events.TypingPayload
		if err := ev.Decode(&p); err != nil {
			return
		}
		delete(s.typingUsers, p.UserID)

	case events.TypeViewing:
		var p events.ViewingPayload
		if err := ev.Decode(&p); err != nil {
			return
		}
		if p.UserID != s.cfg.ViewerID {
			s.viewers[p.UserID] = struct{}{}
			s.rec.UpgradeOwnStatuses(StatusRead)
		}

	case events.TypeLeft:
		var p events.ViewingPayload
		if err := ev.Decode(&p); err != nil {
			return
		}
		delete(s.viewers, p.UserID)
		delete(s.typingUsers, p.UserID)

	case events.TypePresenceChanged:
		var p events.PresencePayload
		if err := ev.Decode(&p); err != nil {
			return
		}
		if p.Status != "online" {
			delete(s.viewers, p.UserID)
			delete(s.typingUsers, p.UserID)
		}
	}
}

// HandleReconnect is invoked by the event channel after it re-established
// the socket. Missed events are unrecoverable; re-announce, reset typing
// state and resync through the query interface.
func (s *Session) HandleReconnect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.typingUsers = make(map[uuid.UUID]string)
	s.viewers = make(map[uuid.UUID]struct{})
	s.mu.Unlock()

	s.sendEvent(events.TypeViewing, events.ViewingPayload{UserID: s.cfg.ViewerID})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Resync(ctx); err != nil {
		log.Printf("session: resync after reconnect: %v", err)
	}
}

// Entries returns the reconciled list, newest first, with render-time
// status derivation applied: entries never regress once upgraded.
func (s *Session) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.viewers) > 0 {
		s.rec.UpgradeOwnStatuses(StatusRead)
	} else if s.cfg.Channel != nil && s.cfg.Channel.Connected() {
		s.rec.UpgradeOwnStatuses(StatusDelivered)
	}
	return s.rec.Entries()
}

// Initialized reports whether the first history fetch completed.
func (s *Session) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.Initialized()
}

// TypingUsers lists the display names of everyone currently typing.
func (s *Session) TypingUsers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.typingUsers))
	for _, name := range s.typingUsers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close tears the session down: scheduled tasks are cancelled, a final
// typing-stop is emitted if needed, and the viewer leaves the
// conversation. In-flight fetches resolve but their results are discarded.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	wasTyping := s.typing
	s.typing = false
	s.typingStop.cancel()
	s.typingStop = nil
	s.resyncTask.cancel()
	s.resyncTask = nil
	s.mu.Unlock()

	if wasTyping {
		s.sendEvent(events.TypeTypingStopped, events.TypingPayload{UserID: s.cfg.ViewerID})
	}
	s.sendEvent(events.TypeLeft, events.ViewingPayload{UserID: s.cfg.ViewerID})
}

func (s *Session) sendEvent(t events.Type, payload any) {
	if s.cfg.Channel == nil {
		return
	}
	ev, err := events.New(t, s.cfg.ConversationID, payload)
	if err != nil {
		log.Printf("session: build %s event: %v", t, err)
		return
	}
	if err := s.cfg.Channel.Send(ev); err != nil {
		log.Printf("session: send %s event: %v", t, err)
	}
}
