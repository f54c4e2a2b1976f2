package client

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Nidios1/zyea-chat-app-sub001/internal/events"
)

// QueryAPI is the request/response side of the sync engine: paginated
// history plus the write operations. Implementations return errors wrapped
// with Transient for retryable network failures.
type QueryAPI interface {
	ListMessages(ctx context.Context, conversationID uuid.UUID, page, pageSize int) ([]Entry, error)
	SendMessage(ctx context.Context, conversationID uuid.UUID, content, messageType, mediaURL string) (SendReceipt, error)
	EditMessage(ctx context.Context, messageID uuid.UUID, content string) error
	DeleteMessage(ctx context.Context, messageID uuid.UUID, forEveryone bool) error
	MarkAllRead(ctx context.Context, conversationID uuid.UUID) error
	UpdateReactions(ctx context.Context, messageID uuid.UUID, reactions []string) error
}

// SendReceipt is what the server answers a send with: the durable identity
// and the final media location.
type SendReceipt struct {
	MessageID uuid.UUID
	MediaURL  string
	CreatedAt time.Time
}

// EventChannel is the outbound half of the realtime connection, used for
// typing signals, viewing announcements and the reaction fast path.
// Delivery is fire-and-forget.
type EventChannel interface {
	Send(ev events.Event) error
	Connected() bool
}

// UserInfo is cached participant display metadata, used to fill in sender
// fields an event payload omitted.
type UserInfo struct {
	DisplayName string
	AvatarURL   string
}

// Directory resolves participant metadata for the open conversation.
type Directory interface {
	Lookup(userID uuid.UUID) (UserInfo, bool)
}

// StaticDirectory is a map-backed Directory seeded from the conversation
// summary.
type StaticDirectory map[uuid.UUID]UserInfo

func (d StaticDirectory) Lookup(userID uuid.UUID) (UserInfo, bool) {
	info, ok := d[userID]
	return info, ok
}
