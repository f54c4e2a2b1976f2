package client

import (
	"time"

	"github.com/google/uuid"
)

// Status is the derived display status of a message. Within a session it
// only ever moves forward.
type Status int

const (
	StatusSent Status = iota
	StatusDelivered
	StatusRead
)

func (s Status) String() string {
	switch s {
	case StatusDelivered:
		return "delivered"
	case StatusRead:
		return "read"
	default:
		return "sent"
	}
}

// MessageID is a tagged identity: either server-confirmed (durable) or
// pending (a client-generated token for an optimistic entry). The two kinds
// are distinguished structurally, not by inspecting string prefixes.
type MessageID struct {
	confirmed uuid.UUID
	local     string
}

// ConfirmedID wraps a durable server-assigned identity.
func ConfirmedID(id uuid.UUID) MessageID {
	return MessageID{confirmed: id}
}

// NewPendingID mints a fresh local identity for an optimistic entry.
func NewPendingID() MessageID {
	return MessageID{local: uuid.NewString()}
}

func (id MessageID) IsPending() bool {
	return id.local != ""
}

// Confirmed returns the durable identity, if the entry has one.
func (id MessageID) Confirmed() (uuid.UUID, bool) {
	if id.local != "" {
		return uuid.Nil, false
	}
	return id.confirmed, true
}

func (id MessageID) String() string {
	if id.local != "" {
		return "pending:" + id.local
	}
	return id.confirmed.String()
}

// Entry is one message in the reconciled list.
type Entry struct {
	ID             MessageID
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	SenderName     string
	SenderAvatar   string
	Content        string
	MessageType    string
	MediaURL       string
	Reactions      []string
	Edited         bool
	Status         Status
	CreatedAt      time.Time
}

// upgradeStatus enforces status monotonicity: no regression within a
// session.
func (e *Entry) upgradeStatus(s Status) bool {
	if s > e.Status {
		e.Status = s
		return true
	}
	return false
}
