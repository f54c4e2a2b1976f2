package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Nidios1/zyea-chat-app-sub001/internal/domain"
)

// PresenceChecker exposes the ephemeral presence state used by status
// derivation. A nil checker means nobody is online.
type PresenceChecker interface {
	IsOnline(userID uuid.UUID) bool
	IsViewing(conversationID, userID uuid.UUID) bool
}

// SettingPatch carries the per-user display-setting fields to change; nil
// fields are left untouched.
type SettingPatch struct {
	Hidden   *bool
	Pinned   *bool
	Nickname *string
}

type ChatService interface {
	FindOrCreatePrivateConversation(userID, partnerID uuid.UUID) (*domain.Conversation, error)
	ListConversations(userID uuid.UUID) ([]ConversationSummary, error)
	ListMessages(viewerID, conversationID uuid.UUID, page, pageSize int) ([]MessageView, error)
	SendMessage(senderID, conversationID uuid.UUID, content string, messageType domain.MessageType, mediaURL string) (*domain.Message, error)
	EditMessage(editorID, messageID uuid.UUID, content string) (*domain.Message, error)
	DeleteMessage(callerID, messageID uuid.UUID, forEveryone bool) (*domain.Message, error)
	MarkAllRead(readerID, conversationID uuid.UUID) (int64, error)
	UpdateReactions(callerID, messageID uuid.UUID, reactions []string) (*domain.Message, error)
	UpdateSetting(userID, conversationID uuid.UUID, patch SettingPatch) (*domain.ConversationSetting, error)
	IsParticipant(userID, conversationID uuid.UUID) (bool, error)
	GetParticipants(conversationID uuid.UUID) ([]domain.ConversationParticipant, error)
	SharesConversation(userID, otherID uuid.UUID) (bool, error)
}

type chatService struct {
	db       *gorm.DB
	presence PresenceChecker
}

func NewChatService(db *gorm.DB, presence PresenceChecker) ChatService {
	return &chatService{db: db, presence: presence}
}

func (s *chatService) IsParticipant(userID, conversationID uuid.UUID) (bool, error) {
	var count int64
	err := s.db.Model(&domain.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return count > 0, nil
}

func (s *chatService) GetParticipants(conversationID uuid.UUID) ([]domain.ConversationParticipant, error) {
	var participants []domain.ConversationParticipant
	err := s.db.Preload("User").
		Where("conversation_id = ?", conversationID).
		Find(&participants).Error
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	return participants, nil
}

// SharesConversation reports whether the two users are participants of at
// least one common conversation. Presence fan-out uses it to keep status
// changes scoped to conversation partners.
func (s *chatService) SharesConversation(userID, otherID uuid.UUID) (bool, error) {
	var count int64
	err := s.db.Model(&domain.ConversationParticipant{}).
		Joins("JOIN conversation_participants other ON other.conversation_id = conversation_participants.conversation_id").
		Where("conversation_participants.user_id = ? AND other.user_id = ?", userID, otherID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check shared conversation: %w", err)
	}
	return count > 0, nil
}

func (s *chatService) requireParticipant(userID, conversationID uuid.UUID) error {
	ok, err := s.IsParticipant(userID, conversationID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAccessDenied
	}
	return nil
}

// FindOrCreatePrivateConversation returns the existing private conversation
// between the two users, or creates it together with both participant rows in
// one transaction. Conversations come into being on first message-intent.
func (s *chatService) FindOrCreatePrivateConversation(userID, partnerID uuid.UUID) (*domain.Conversation, error) {
	if userID == partnerID {
		return nil, fmt.Errorf("%w: cannot start a conversation with yourself", ErrValidation)
	}

	var existing domain.Conversation
	err := s.db.
		Joins("JOIN conversation_participants cp1 ON conversations.id = cp1.conversation_id").
		Joins("JOIN conversation_participants cp2 ON conversations.id = cp2.conversation_id").
		Where("cp1.user_id = ? AND cp2.user_id = ? AND conversations.type = ?",
			userID, partnerID, domain.ConversationTypePrivate).
		First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find conversation: %w", err)
	}

	now := time.Now()
	conversation := domain.Conversation{
		ID:             uuid.New(),
		CreatorID:      userID,
		Type:           domain.ConversationTypePrivate,
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&conversation).Error; err != nil {
			return fmt.Errorf("create conversation: %w", err)
		}
		for _, id := range []uuid.UUID{userID, partnerID} {
			participant := domain.ConversationParticipant{
				ConversationID: conversation.ID,
				UserID:         id,
				JoinedAt:       now,
				Role:           "member",
			}
			if err := tx.Create(&participant).Error; err != nil {
				return fmt.Errorf("add participant %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Created private conversation %s for %s and %s", conversation.ID, userID, partnerID)
	return &conversation, nil
}

// ListMessages returns one page of the conversation, oldest to newest. Page 1
// holds the most recent messages. Messages the viewer deleted for themselves
// are filtered out; globally deleted messages never show for anyone.
func (s *chatService) ListMessages(viewerID, conversationID uuid.UUID, page, pageSize int) ([]MessageView, error) {
	if err := s.requireParticipant(viewerID, conversationID); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}

	deletedForViewer := s.db.Model(&domain.MessageDeletion{}).
		Select("message_id").
		Where("user_id = ?", viewerID)

	var messages []domain.Message
	err := s.db.Preload("Sender").Preload("MessageReads").
		Where("conversation_id = ?", conversationID).
		Where("id NOT IN (?)", deletedForViewer).
		Order("created_at DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	participants, err := s.GetParticipants(conversationID)
	if err != nil {
		return nil, err
	}

	// Reverse into oldest-first order for the page.
	views := make([]MessageView, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		views = append(views, s.toView(&messages[i], participants))
	}
	return views, nil
}

func (s *chatService) toView(msg *domain.Message, participants []domain.ConversationParticipant) MessageView {
	return MessageView{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		SenderName:     msg.Sender.DisplayName,
		SenderAvatar:   msg.Sender.AvatarURL,
		Content:        msg.Content,
		MessageType:    string(msg.MessageType),
		MediaURL:       msg.MediaURL.String,
		Reactions:      msg.ReactionList(),
		Edited:         msg.IsEdited(),
		Status:         s.deriveStatus(msg, participants),
		CreatedAt:      msg.CreatedAt,
	}
}

// deriveStatus computes display status from receipt rows and presence. It is
// never persisted, so it cannot drift from the receipt data.
func (s *chatService) deriveStatus(msg *domain.Message, participants []domain.ConversationParticipant) MessageStatus {
	for _, r := range msg.MessageReads {
		if r.ReaderID != msg.SenderID {
			return MessageStatusRead
		}
	}
	if s.presence != nil {
		for _, p := range participants {
			if p.UserID == msg.SenderID {
				continue
			}
			if s.presence.IsViewing(msg.ConversationID, p.UserID) {
				return MessageStatusRead
			}
		}
		for _, p := range participants {
			if p.UserID == msg.SenderID {
				continue
			}
			if s.presence.IsOnline(p.UserID) {
				return MessageStatusDelivered
			}
		}
	}
	return MessageStatusSent
}

// SendMessage persists the message, bumps conversation activity and un-hides
// the conversation for any participant who had hidden it.
func (s *chatService) SendMessage(senderID, conversationID uuid.UUID, content string, messageType domain.MessageType, mediaURL string) (*domain.Message, error) {
	if strings.TrimSpace(content) == "" && mediaURL == "" {
		return nil, fmt.Errorf("%w: message needs content or media", ErrValidation)
	}
	if !messageType.IsValid() {
		return nil, fmt.Errorf("%w: invalid message type %q", ErrValidation, messageType)
	}
	if err := s.requireParticipant(senderID, conversationID); err != nil {
		return nil, err
	}

	now := time.Now()
	message := domain.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		MessageType:    messageType,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if mediaURL != "" {
		message.MediaURL = sql.NullString{String: mediaURL, Valid: true}
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&message).Error; err != nil {
			return fmt.Errorf("save message: %w", err)
		}
		updates := map[string]interface{}{
			"last_message_id":  message.ID.String(),
			"last_activity_at": now,
		}
		if err := tx.Model(&domain.Conversation{}).
			Where("id = ?", conversationID).
			Updates(updates).Error; err != nil {
			return fmt.Errorf("touch conversation: %w", err)
		}
		if err := tx.Model(&domain.ConversationSetting{}).
			Where("conversation_id = ? AND hidden = ?", conversationID, true).
			Update("hidden", false).Error; err != nil {
			return fmt.Errorf("unhide conversation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.db.First(&message.Sender, "id = ?", senderID).Error; err != nil {
		log.Printf("Warning: sender %s not loaded for message %s: %v", senderID, message.ID, err)
	}
	return &message, nil
}

// EditMessage replaces content and stamps EditedAt. Only the original sender
// may edit.
func (s *chatService) EditMessage(editorID, messageID uuid.UUID, content string) (*domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: edited content cannot be empty", ErrValidation)
	}

	var message domain.Message
	if err := s.db.First(&message, "id = ?", messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load message: %w", err)
	}
	if message.SenderID != editorID {
		return nil, ErrNotOwner
	}

	now := time.Now()
	updates := map[string]interface{}{
		"content":   content,
		"edited_at": now,
	}
	if err := s.db.Model(&message).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("edit message: %w", err)
	}
	message.Content = content
	message.EditedAt = sql.NullTime{Time: now, Valid: true}
	return &message, nil
}

// DeleteMessage soft-deletes. forEveryone requires ownership and removes the
// message for all participants; otherwise the delete is scoped to the caller
// through a MessageDeletion row.
func (s *chatService) DeleteMessage(callerID, messageID uuid.UUID, forEveryone bool) (*domain.Message, error) {
	var message domain.Message
	if err := s.db.First(&message, "id = ?", messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load message: %w", err)
	}

	if forEveryone {
		if message.SenderID != callerID {
			return nil, ErrNotOwner
		}
		if err := s.db.Delete(&message).Error; err != nil {
			return nil, fmt.Errorf("delete message: %w", err)
		}
		return &message, nil
	}

	if err := s.requireParticipant(callerID, message.ConversationID); err != nil {
		return nil, err
	}
	deletion := domain.MessageDeletion{
		MessageID: messageID,
		UserID:    callerID,
		DeletedAt: time.Now(),
	}
	err := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&deletion).Error
	if err != nil {
		return nil, fmt.Errorf("delete message for viewer: %w", err)
	}
	return &message, nil
}

// MarkAllRead inserts receipt rows for every other-sender message the reader
// has not acknowledged yet. Safe to call repeatedly.
func (s *chatService) MarkAllRead(readerID, conversationID uuid.UUID) (int64, error) {
	if err := s.requireParticipant(readerID, conversationID); err != nil {
		return 0, err
	}

	alreadyRead := s.db.Model(&domain.MessageRead{}).
		Select("message_id").
		Where("reader_id = ?", readerID)

	var unread []domain.Message
	err := s.db.Select("id").
		Where("conversation_id = ? AND sender_id <> ?", conversationID, readerID).
		Where("id NOT IN (?)", alreadyRead).
		Find(&unread).Error
	if err != nil {
		return 0, fmt.Errorf("find unread messages: %w", err)
	}
	if len(unread) == 0 {
		return 0, nil
	}

	now := time.Now()
	receipts := make([]domain.MessageRead, 0, len(unread))
	for _, m := range unread {
		receipts = append(receipts, domain.MessageRead{
			MessageID: m.ID,
			ReaderID:  readerID,
			ReadAt:    now,
		})
	}
	// A concurrent reader may have inserted some of these rows already;
	// the conflict clause skips them, so report what actually landed.
	res := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&receipts)
	if res.Error != nil {
		return 0, fmt.Errorf("mark all read: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// UpdateReactions replaces the whole reaction array. Last writer wins; the
// list is a flat set of emoji tokens with no per-user attribution.
func (s *chatService) UpdateReactions(callerID, messageID uuid.UUID, reactions []string) (*domain.Message, error) {
	var message domain.Message
	if err := s.db.First(&message, "id = ?", messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load message: %w", err)
	}
	if err := s.requireParticipant(callerID, message.ConversationID); err != nil {
		return nil, err
	}

	if reactions == nil {
		reactions = []string{}
	}
	raw, err := json.Marshal(reactions)
	if err != nil {
		return nil, fmt.Errorf("marshal reactions: %w", err)
	}
	if err := s.db.Model(&message).Update("reactions", json.RawMessage(raw)).Error; err != nil {
		return nil, fmt.Errorf("update reactions: %w", err)
	}
	message.Reactions = raw
	return &message, nil
}

// UpdateSetting lazily upserts the caller's display settings for the
// conversation; other participants are unaffected.
func (s *chatService) UpdateSetting(userID, conversationID uuid.UUID, patch SettingPatch) (*domain.ConversationSetting, error) {
	if err := s.requireParticipant(userID, conversationID); err != nil {
		return nil, err
	}

	var setting domain.ConversationSetting
	err := s.db.Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		setting = domain.ConversationSetting{
			ConversationID: conversationID,
			UserID:         userID,
		}
	} else if err != nil {
		return nil, fmt.Errorf("load setting: %w", err)
	}

	if patch.Hidden != nil {
		setting.Hidden = *patch.Hidden
	}
	if patch.Pinned != nil {
		setting.Pinned = *patch.Pinned
	}
	if patch.Nickname != nil {
		setting.Nickname = sql.NullString{String: *patch.Nickname, Valid: *patch.Nickname != ""}
	}
	setting.UpdatedAt = time.Now()

	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "user_id"}},
		UpdateAll: true,
	}).Create(&setting).Error
	if err != nil {
		return nil, fmt.Errorf("save setting: %w", err)
	}
	return &setting, nil
}

// ListConversations returns the caller's visible conversations with previews
// and unread counts, pinned first, then most recently active.
func (s *chatService) ListConversations(userID uuid.UUID) ([]ConversationSummary, error) {
	var memberships []domain.ConversationParticipant
	err := s.db.Where("user_id = ?", userID).Find(&memberships).Error
	if err != nil {
		return nil, fmt.Errorf("load memberships: %w", err)
	}

	summaries := make([]ConversationSummary, 0, len(memberships))
	for _, membership := range memberships {
		var conversation domain.Conversation
		err := s.db.Preload("Participants.User").
			First(&conversation, "id = ?", membership.ConversationID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, fmt.Errorf("load conversation %s: %w", membership.ConversationID, err)
		}

		var setting domain.ConversationSetting
		err = s.db.Where("conversation_id = ? AND user_id = ?", conversation.ID, userID).
			First(&setting).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("load setting: %w", err)
		}
		if setting.Hidden {
			continue
		}

		summary := ConversationSummary{
			ID:             conversation.ID,
			Type:           string(conversation.Type),
			Name:           conversation.Name.String,
			Nickname:       setting.Nickname.String,
			Pinned:         setting.Pinned,
			LastActivityAt: conversation.LastActivityAt,
		}
		for _, p := range conversation.Participants {
			summary.Participants = append(summary.Participants, UserView{
				ID:          p.User.ID,
				Username:    p.User.Username,
				DisplayName: p.User.DisplayName,
				AvatarURL:   p.User.AvatarURL,
			})
		}

		var last domain.Message
		err = s.db.Where("conversation_id = ?", conversation.ID).
			Order("created_at DESC").
			First(&last).Error
		if err == nil {
			summary.LastMessage = last.Content
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("load last message: %w", err)
		}

		alreadyRead := s.db.Model(&domain.MessageRead{}).
			Select("message_id").
			Where("reader_id = ?", userID)
		err = s.db.Model(&domain.Message{}).
			Where("conversation_id = ? AND sender_id <> ?", conversation.ID, userID).
			Where("id NOT IN (?)", alreadyRead).
			Count(&summary.UnreadCount).Error
		if err != nil {
			return nil, fmt.Errorf("count unread: %w", err)
		}

		summaries = append(summaries, summary)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].Pinned != summaries[j].Pinned {
			return summaries[i].Pinned
		}
		return summaries[i].LastActivityAt.After(summaries[j].LastActivityAt)
	})
	return summaries, nil
}
