package client

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// dedupWindow bounds how far apart in time two entries with identical
// content and sender may be and still count as the same message. It also
// bounds how long an unconfirmed optimistic entry survives a history
// rebuild.
const dedupWindow = 5 * time.Second

// Reconciler merges three unordered sources of truth into one newest-first
// message list: paginated history fetches, locally-originated optimistic
// entries, and push events. Every merge rule is idempotent and tolerant of
// arrival order, because a fetch resolving and an event arriving are never
// sequenced relative to each other.
//
// A Reconciler is not safe for concurrent use; the owning Session
// serializes access.
type Reconciler struct {
	conversationID uuid.UUID
	viewerID       uuid.UUID
	entries        []Entry // newest first
	initialized    bool
	now            func() time.Time
}

func NewReconciler(conversationID, viewerID uuid.UUID) *Reconciler {
	return &Reconciler{
		conversationID: conversationID,
		viewerID:       viewerID,
		now:            time.Now,
	}
}

// Entries returns a copy of the list, newest first.
func (r *Reconciler) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Reconciler) Len() int { return len(r.entries) }

// Initialized reports whether at least one history fetch has completed,
// successfully distinguishing "still loading" from "genuinely empty".
func (r *Reconciler) Initialized() bool { return r.initialized }

func (r *Reconciler) confirmedCount() int {
	n := 0
	for i := range r.entries {
		if !r.entries[i].ID.IsPending() {
			n++
		}
	}
	return n
}

func (r *Reconciler) indexOfConfirmed(id uuid.UUID) int {
	for i := range r.entries {
		if confirmed, ok := r.entries[i].ID.Confirmed(); ok && confirmed == id {
			return i
		}
	}
	return -1
}

func (r *Reconciler) indexOf(id MessageID) int {
	for i := range r.entries {
		if r.entries[i].ID == id {
			return i
		}
	}
	return -1
}

// ApplyHistory merges a fetched page, given oldest to newest as the query
// interface returns it. The return value reports whether the visible list
// changed, so callers can skip re-renders on no-op resyncs.
func (r *Reconciler) ApplyHistory(fetched []Entry) bool {
	defer func() { r.initialized = true }()

	known := r.confirmedCount()
	if known > 0 {
		// Resync path: only accept the fetch when it actually knows
		// more than we do, otherwise an in-flight stale page would
		// make the list flicker.
		if len(fetched) <= known {
			return false
		}
		r.rebuild(fetched)
		return true
	}

	// First sync, or a list holding only optimistic entries. An empty
	// page still completes initialization but must not clear optimistic
	// sends that are racing their confirmation.
	if len(fetched) == 0 {
		return false
	}
	r.rebuild(fetched)
	return true
}

// rebuild replaces the confirmed portion of the list with the fetched page
// and re-attaches optimistic entries created within the dedup window that
// have no confirmed counterpart yet. That protects the race where the send
// response has not produced a broadcast or a visible row at fetch time.
func (r *Reconciler) rebuild(fetched []Entry) {
	cutoff := r.now().Add(-dedupWindow)
	var keep []Entry
	for i := range r.entries {
		e := r.entries[i]
		if !e.ID.IsPending() {
			continue
		}
		if e.CreatedAt.Before(cutoff) {
			continue
		}
		if indexOfMatch(fetched, e.Content, e.SenderID, e.CreatedAt) >= 0 {
			continue
		}
		keep = append(keep, e)
	}

	rebuilt := make([]Entry, 0, len(keep)+len(fetched))
	rebuilt = append(rebuilt, keep...)
	for i := len(fetched) - 1; i >= 0; i-- {
		e := fetched[i]
		// The fetch reports status from ephemeral presence, which may
		// have moved backwards since the entry was last seen. Carry the
		// session's high-water mark forward.
		e.upgradeStatus(r.priorStatus(e))
		rebuilt = append(rebuilt, e)
	}
	r.entries = rebuilt
}

// priorStatus returns the status the current list already holds for a
// fetched entry, located by confirmed identity or, failing that, by the
// content+sender match that also collapses optimistic entries.
func (r *Reconciler) priorStatus(e Entry) Status {
	if id, ok := e.ID.Confirmed(); ok {
		if i := r.indexOfConfirmed(id); i >= 0 {
			return r.entries[i].Status
		}
	}
	if i := indexOfMatch(r.entries, e.Content, e.SenderID, e.CreatedAt); i >= 0 {
		return r.entries[i].Status
	}
	return StatusSent
}

// indexOfMatch finds an entry with identical content and sender created
// within the dedup window of at.
func indexOfMatch(entries []Entry, content string, senderID uuid.UUID, at time.Time) int {
	for i := range entries {
		e := &entries[i]
		if e.Content != content || e.SenderID != senderID {
			continue
		}
		delta := at.Sub(e.CreatedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta <= dedupWindow {
			return i
		}
	}
	return -1
}

// CreatedResult reports what ApplyCreated did with an inbound message
// event.
type CreatedResult struct {
	// Changed is true when the visible list mutated.
	Changed bool
	// PromotedPending is true when the event was the echo of the
	// viewer's own optimistic send; the caller should schedule a
	// deferred resync to pick up the authoritative server state.
	PromotedPending bool
}

// ApplyCreated merges an inbound message_created event. The entry must
// carry a confirmed identity. Applying the same event twice is a no-op.
func (r *Reconciler) ApplyCreated(msg Entry) CreatedResult {
	id, ok := msg.ID.Confirmed()
	if !ok {
		return CreatedResult{}
	}
	if r.indexOfConfirmed(id) >= 0 {
		return CreatedResult{}
	}

	if msg.SenderID == r.viewerID {
		if i := r.indexOfPendingMatch(msg.Content, msg.SenderID); i >= 0 {
			// The echo of our own send: promote the optimistic
			// entry in place so exactly one entry survives.
			prior := r.entries[i].Status
			r.entries[i] = msg
			r.entries[i].upgradeStatus(prior)
			return CreatedResult{Changed: true, PromotedPending: true}
		}
	}

	if indexOfMatch(r.entries, msg.Content, msg.SenderID, msg.CreatedAt) >= 0 {
		return CreatedResult{}
	}

	r.entries = append([]Entry{msg}, r.entries...)
	return CreatedResult{Changed: true}
}

func (r *Reconciler) indexOfPendingMatch(content string, senderID uuid.UUID) int {
	for i := range r.entries {
		e := &r.entries[i]
		if e.ID.IsPending() && e.Content == content && e.SenderID == senderID {
			return i
		}
	}
	return -1
}

// ApplyEdited replaces content in place and marks the entry edited.
func (r *Reconciler) ApplyEdited(messageID uuid.UUID, content string) bool {
	i := r.indexOfConfirmed(messageID)
	if i < 0 {
		return false
	}
	r.entries[i].Content = content
	r.entries[i].Edited = true
	return true
}

// ApplyDeleted removes the entry, if present.
func (r *Reconciler) ApplyDeleted(messageID uuid.UUID) bool {
	i := r.indexOfConfirmed(messageID)
	if i < 0 {
		return false
	}
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	return true
}

// ApplyReactions replaces the reaction list only when it differs under an
// order-independent comparison, so repeated or reordered events do not
// trigger re-render churn.
func (r *Reconciler) ApplyReactions(messageID uuid.UUID, reactions []string) bool {
	i := r.indexOfConfirmed(messageID)
	if i < 0 {
		return false
	}
	if canonicalReactions(r.entries[i].Reactions) == canonicalReactions(reactions) {
		return false
	}
	r.entries[i].Reactions = append([]string(nil), reactions...)
	return true
}

func canonicalReactions(reactions []string) string {
	if len(reactions) == 0 {
		return ""
	}
	sorted := append([]string(nil), reactions...)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x00")
}

// ApplyReadReceipts upgrades the viewer's own messages to read. An empty id
// list means every message in the conversation was acknowledged.
func (r *Reconciler) ApplyReadReceipts(messageIDs []uuid.UUID) int {
	ids := make(map[uuid.UUID]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		ids[id] = struct{}{}
	}

	upgraded := 0
	for i := range r.entries {
		e := &r.entries[i]
		if e.SenderID != r.viewerID {
			continue
		}
		if len(ids) > 0 {
			confirmed, ok := e.ID.Confirmed()
			if !ok {
				continue
			}
			if _, listed := ids[confirmed]; !listed {
				continue
			}
		}
		if e.upgradeStatus(StatusRead) {
			upgraded++
		}
	}
	return upgraded
}

// AddPending inserts an optimistic entry for a local send and returns it.
func (r *Reconciler) AddPending(content, messageType, mediaURL string) Entry {
	entry := Entry{
		ID:             NewPendingID(),
		ConversationID: r.conversationID,
		SenderID:       r.viewerID,
		Content:        content,
		MessageType:    messageType,
		MediaURL:       mediaURL,
		Status:         StatusSent,
		CreatedAt:      r.now(),
	}
	r.entries = append([]Entry{entry}, r.entries...)
	return entry
}

// MarkDelivered upgrades one entry to delivered after the send request
// succeeded.
func (r *Reconciler) MarkDelivered(id MessageID) bool {
	i := r.indexOf(id)
	if i < 0 {
		return false
	}
	return r.entries[i].upgradeStatus(StatusDelivered)
}

// RemovePending drops a failed optimistic entry and returns it so the
// caller can restore the draft.
func (r *Reconciler) RemovePending(id MessageID) (Entry, bool) {
	i := r.indexOf(id)
	if i < 0 || !id.IsPending() {
		return Entry{}, false
	}
	removed := r.entries[i]
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	return removed, true
}

// Get returns the entry with the given confirmed identity.
func (r *Reconciler) Get(messageID uuid.UUID) (Entry, bool) {
	i := r.indexOfConfirmed(messageID)
	if i < 0 {
		return Entry{}, false
	}
	return r.entries[i], true
}

// setEdited restores content and edited flag; used to roll back a failed
// optimistic edit.
func (r *Reconciler) setEdited(messageID uuid.UUID, content string, edited bool) bool {
	i := r.indexOfConfirmed(messageID)
	if i < 0 {
		return false
	}
	r.entries[i].Content = content
	r.entries[i].Edited = edited
	return true
}

// reinsert puts a previously removed entry back in timestamp order; used to
// roll back a failed optimistic delete.
func (r *Reconciler) reinsert(e Entry) {
	for i := range r.entries {
		if !r.entries[i].CreatedAt.After(e.CreatedAt) {
			r.entries = append(r.entries[:i], append([]Entry{e}, r.entries[i:]...)...)
			return
		}
	}
	r.entries = append(r.entries, e)
}

// UpgradeOwnStatuses lifts every viewer-authored entry to at least the
// given status. Used when the counterpart is known to be viewing (read) or
// when the channel is connected (delivered).
func (r *Reconciler) UpgradeOwnStatuses(s Status) int {
	upgraded := 0
	for i := range r.entries {
		if r.entries[i].SenderID != r.viewerID {
			continue
		}
		if r.entries[i].upgradeStatus(s) {
			upgraded++
		}
	}
	return upgraded
}
