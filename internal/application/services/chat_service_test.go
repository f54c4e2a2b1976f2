package services

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Nidios1/zyea-chat-app-sub001/internal/domain"
	"github.com/Nidios1/zyea-chat-app-sub001/internal/infrastructure/database"
)

type stubPresence struct {
	online  map[uuid.UUID]bool
	viewing map[uuid.UUID]bool
}

func newStubPresence() *stubPresence {
	return &stubPresence{
		online:  make(map[uuid.UUID]bool),
		viewing: make(map[uuid.UUID]bool),
	}
}

func (p *stubPresence) IsOnline(userID uuid.UUID) bool { return p.online[userID] }

func (p *stubPresence) IsViewing(conversationID, userID uuid.UUID) bool {
	return p.viewing[userID]
}

func newTestService(t *testing.T) (ChatService, *stubPresence, *gorm.DB) {
	t.Helper()
	db, err := database.NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	presence := newStubPresence()
	return NewChatService(db, presence), presence, db
}

func createUser(t *testing.T, db *gorm.DB, name string) uuid.UUID {
	t.Helper()
	user := domain.User{
		ID:             uuid.New(),
		Email:          fmt.Sprintf("%s-%s@example.com", name, uuid.NewString()[:8]),
		Username:       fmt.Sprintf("%s-%s", name, uuid.NewString()[:8]),
		HashedPassword: "x",
		DisplayName:    name,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return user.ID
}

func setupConversation(t *testing.T) (ChatService, *stubPresence, *gorm.DB, uuid.UUID, uuid.UUID, uuid.UUID) {
	t.Helper()
	svc, presence, db := newTestService(t)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	conv, err := svc.FindOrCreatePrivateConversation(alice, bob)
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	return svc, presence, db, conv.ID, alice, bob
}

func TestFindOrCreatePrivateConversation(t *testing.T) {
	svc, _, db := newTestService(t)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	first, err := svc.FindOrCreatePrivateConversation(alice, bob)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Either side asking again gets the same conversation.
	second, err := svc.FindOrCreatePrivateConversation(bob, alice)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("duplicate conversation created: %s vs %s", first.ID, second.ID)
	}

	ok, err := svc.IsParticipant(bob, first.ID)
	if err != nil || !ok {
		t.Fatalf("bob not a participant: ok=%v err=%v", ok, err)
	}

	shared, err := svc.SharesConversation(alice, bob)
	if err != nil || !shared {
		t.Fatalf("alice and bob share no conversation: shared=%v err=%v", shared, err)
	}
	stranger := createUser(t, db, "mallory")
	shared, err = svc.SharesConversation(alice, stranger)
	if err != nil || shared {
		t.Fatalf("stranger shares a conversation: shared=%v err=%v", shared, err)
	}

	if _, err := svc.FindOrCreatePrivateConversation(alice, alice); !errors.Is(err, ErrValidation) {
		t.Fatalf("self-conversation returned %v, want ErrValidation", err)
	}
}

func TestSendMessageValidation(t *testing.T) {
	svc, _, _, convID, alice, _ := setupConversation(t)

	if _, err := svc.SendMessage(alice, convID, "   ", domain.MessageTypeText, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("blank content returned %v, want ErrValidation", err)
	}
	if _, err := svc.SendMessage(alice, convID, "hi", "gif", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad type returned %v, want ErrValidation", err)
	}
	// Media alone is a valid message.
	if _, err := svc.SendMessage(alice, convID, "", domain.MessageTypeImage, "https://cdn/img.png"); err != nil {
		t.Fatalf("media-only send failed: %v", err)
	}
}

func TestSendMessageAccessDenied(t *testing.T) {
	svc, _, db, convID, _, _ := setupConversation(t)
	outsider := createUser(t, db, "eve")

	if _, err := svc.SendMessage(outsider, convID, "let me in", domain.MessageTypeText, ""); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("outsider send returned %v, want ErrAccessDenied", err)
	}
	if _, err := svc.ListMessages(outsider, convID, 1, 50); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("outsider list returned %v, want ErrAccessDenied", err)
	}
}

func TestListMessagesPagination(t *testing.T) {
	svc, _, _, convID, alice, bob := setupConversation(t)

	for i := 0; i < 5; i++ {
		sender := alice
		if i%2 == 1 {
			sender = bob
		}
		if _, err := svc.SendMessage(sender, convID, fmt.Sprintf("msg %d", i), domain.MessageTypeText, ""); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	page1, err := svc.ListMessages(alice, convID, 1, 2)
	if err != nil {
		t.Fatalf("list page 1: %v", err)
	}
	if len(page1) != 2 {
		t.Fatalf("page 1 holds %d messages, want 2", len(page1))
	}
	// Page 1 is the newest slice, returned oldest first within the page.
	if page1[0].Content != "msg 3" || page1[1].Content != "msg 4" {
		t.Fatalf("page 1 = %q, %q", page1[0].Content, page1[1].Content)
	}

	page3, err := svc.ListMessages(alice, convID, 3, 2)
	if err != nil {
		t.Fatalf("list page 3: %v", err)
	}
	if len(page3) != 1 || page3[0].Content != "msg 0" {
		t.Fatalf("page 3 = %+v, want the single oldest message", page3)
	}
}

func TestStatusDerivation(t *testing.T) {
	svc, presence, _, convID, alice, bob := setupConversation(t)

	if _, err := svc.SendMessage(alice, convID, "are you there", domain.MessageTypeText, ""); err != nil {
		t.Fatalf("send: %v", err)
	}

	status := func() MessageStatus {
		t.Helper()
		views, err := svc.ListMessages(alice, convID, 1, 50)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		return views[0].Status
	}

	if got := status(); got != MessageStatusSent {
		t.Fatalf("offline counterpart: status %s, want sent", got)
	}

	presence.online[bob] = true
	if got := status(); got != MessageStatusDelivered {
		t.Fatalf("online counterpart: status %s, want delivered", got)
	}

	presence.viewing[bob] = true
	if got := status(); got != MessageStatusRead {
		t.Fatalf("viewing counterpart: status %s, want read", got)
	}

	// A persisted receipt outranks presence entirely.
	presence.online[bob] = false
	presence.viewing[bob] = false
	if _, err := svc.MarkAllRead(bob, convID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if got := status(); got != MessageStatusRead {
		t.Fatalf("receipted message: status %s, want read", got)
	}
}

func TestMarkAllReadIdempotent(t *testing.T) {
	svc, _, _, convID, alice, bob := setupConversation(t)

	svc.SendMessage(alice, convID, "one", domain.MessageTypeText, "")
	svc.SendMessage(alice, convID, "two", domain.MessageTypeText, "")
	svc.SendMessage(bob, convID, "three", domain.MessageTypeText, "")

	// Only the other side's messages need receipts.
	count, err := svc.MarkAllRead(bob, convID)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if count != 2 {
		t.Fatalf("marked %d messages, want 2", count)
	}

	count, err = svc.MarkAllRead(bob, convID)
	if err != nil {
		t.Fatalf("repeat mark read: %v", err)
	}
	if count != 0 {
		t.Fatalf("repeat marked %d messages, want 0", count)
	}
}

func TestMarkAllReadCountMatchesInsertedRows(t *testing.T) {
	svc, _, db, convID, alice, bob := setupConversation(t)

	first, _ := svc.SendMessage(alice, convID, "one", domain.MessageTypeText, "")
	svc.SendMessage(alice, convID, "two", domain.MessageTypeText, "")

	// A receipt that arrived through another path must not inflate the
	// reported count.
	pre := domain.MessageRead{MessageID: first.ID, ReaderID: bob, ReadAt: time.Now()}
	if err := db.Create(&pre).Error; err != nil {
		t.Fatalf("seed receipt: %v", err)
	}

	count, err := svc.MarkAllRead(bob, convID)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if count != 1 {
		t.Fatalf("reported %d new receipts, want 1", count)
	}

	var total int64
	if err := db.Model(&domain.MessageRead{}).Where("reader_id = ?", bob).Count(&total).Error; err != nil {
		t.Fatalf("count receipts: %v", err)
	}
	if total != 2 {
		t.Fatalf("%d receipt rows for reader, want 2", total)
	}
}

func TestEditMessageOwnership(t *testing.T) {
	svc, _, _, convID, alice, bob := setupConversation(t)
	msg, err := svc.SendMessage(alice, convID, "typo here", domain.MessageTypeText, "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if _, err := svc.EditMessage(bob, msg.ID, "hijacked"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("foreign edit returned %v, want ErrNotOwner", err)
	}
	if _, err := svc.EditMessage(alice, msg.ID, "  "); !errors.Is(err, ErrValidation) {
		t.Fatalf("blank edit returned %v, want ErrValidation", err)
	}
	if _, err := svc.EditMessage(alice, uuid.New(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing edit returned %v, want ErrNotFound", err)
	}

	edited, err := svc.EditMessage(alice, msg.ID, "typo fixed")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if edited.Content != "typo fixed" || !edited.IsEdited() {
		t.Fatalf("edit not applied: %+v", edited)
	}

	views, _ := svc.ListMessages(bob, convID, 1, 50)
	if !views[0].Edited || views[0].Content != "typo fixed" {
		t.Fatalf("edit not visible to the other side: %+v", views[0])
	}
}

func TestDeleteMessageScopes(t *testing.T) {
	svc, _, _, convID, alice, bob := setupConversation(t)
	msg, _ := svc.SendMessage(alice, convID, "regret this", domain.MessageTypeText, "")
	other, _ := svc.SendMessage(bob, convID, "keep this", domain.MessageTypeText, "")

	if _, err := svc.DeleteMessage(bob, msg.ID, true); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("foreign global delete returned %v, want ErrNotOwner", err)
	}

	// Delete for everyone removes the message from both views.
	if _, err := svc.DeleteMessage(alice, msg.ID, true); err != nil {
		t.Fatalf("global delete: %v", err)
	}
	for _, viewer := range []uuid.UUID{alice, bob} {
		views, err := svc.ListMessages(viewer, convID, 1, 50)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(views) != 1 || views[0].ID != other.ID {
			t.Fatalf("globally deleted message still visible to %s: %+v", viewer, views)
		}
	}

	// A viewer-scoped delete hides the message only from the caller.
	if _, err := svc.DeleteMessage(alice, other.ID, false); err != nil {
		t.Fatalf("scoped delete: %v", err)
	}
	aliceViews, _ := svc.ListMessages(alice, convID, 1, 50)
	if len(aliceViews) != 0 {
		t.Fatalf("scoped delete did not hide the message: %+v", aliceViews)
	}
	bobViews, _ := svc.ListMessages(bob, convID, 1, 50)
	if len(bobViews) != 1 {
		t.Fatalf("scoped delete leaked to the other viewer: %+v", bobViews)
	}
}

func TestUpdateReactionsLastWriterWins(t *testing.T) {
	svc, _, _, convID, alice, bob := setupConversation(t)
	msg, _ := svc.SendMessage(alice, convID, "react", domain.MessageTypeText, "")

	if _, err := svc.UpdateReactions(bob, msg.ID, []string{"👍", "👍", "❤️"}); err != nil {
		t.Fatalf("update reactions: %v", err)
	}
	// The whole array is replaced, duplicates and all.
	updated, err := svc.UpdateReactions(alice, msg.ID, []string{"🔥"})
	if err != nil {
		t.Fatalf("replace reactions: %v", err)
	}
	got := updated.ReactionList()
	if len(got) != 1 || got[0] != "🔥" {
		t.Fatalf("reactions = %v, want [🔥]", got)
	}
}

func TestHiddenConversationUnhidesOnSend(t *testing.T) {
	svc, _, _, convID, alice, bob := setupConversation(t)
	svc.SendMessage(alice, convID, "hello", domain.MessageTypeText, "")

	hidden := true
	if _, err := svc.UpdateSetting(bob, convID, SettingPatch{Hidden: &hidden}); err != nil {
		t.Fatalf("hide: %v", err)
	}
	summaries, err := svc.ListConversations(bob)
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(summaries) != 0 {
		t.Fatalf("hidden conversation still listed: %+v", summaries)
	}

	// New activity surfaces the conversation again.
	if _, err := svc.SendMessage(alice, convID, "knock knock", domain.MessageTypeText, ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	summaries, err = svc.ListConversations(bob)
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("conversation not un-hidden by new message: %+v", summaries)
	}
	if summaries[0].LastMessage != "knock knock" {
		t.Fatalf("preview = %q, want the latest message", summaries[0].LastMessage)
	}
	if summaries[0].UnreadCount != 2 {
		t.Fatalf("unread count = %d, want 2", summaries[0].UnreadCount)
	}
}

func TestListConversationsPinnedFirst(t *testing.T) {
	svc, _, db, convID, alice, bob := setupConversation(t)
	carol := createUser(t, db, "carol")
	conv2, err := svc.FindOrCreatePrivateConversation(alice, carol)
	if err != nil {
		t.Fatalf("second conversation: %v", err)
	}

	svc.SendMessage(bob, convID, "older pinned", domain.MessageTypeText, "")
	svc.SendMessage(carol, conv2.ID, "newer unpinned", domain.MessageTypeText, "")

	pinned := true
	if _, err := svc.UpdateSetting(alice, convID, SettingPatch{Pinned: &pinned}); err != nil {
		t.Fatalf("pin: %v", err)
	}

	summaries, err := svc.ListConversations(alice)
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("listed %d conversations, want 2", len(summaries))
	}
	if summaries[0].ID != convID || !summaries[0].Pinned {
		t.Fatalf("pinned conversation not first: %+v", summaries)
	}
}
