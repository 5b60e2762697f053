package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tutorlink/tutorlink-backend/internal/models"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// MessageService is the durable message log. Messages are written first and
// stay durable even when the conversation-side cache update fails.
type MessageService struct {
	db            *gorm.DB
	conversations *ConversationService
}

func NewMessageService(db *gorm.DB, conversations *ConversationService) *MessageService {
	return &MessageService{db: db, conversations: conversations}
}

type AppendInput struct {
	ConversationID uuid.UUID
	Sender         ParticipantRef
	Content        string
	Type           models.MessageType
	Attachment     *models.Attachment
}

// Append persists one message and applies the conversation cache update.
// A cache failure is logged and surfaced as ErrCacheUpdate alongside the
// written message; the message itself is never rolled back.
func (s *MessageService) Append(ctx context.Context, in AppendInput) (*models.Message, error) {
	if in.Type == "" {
		in.Type = models.MessageText
	}
	switch in.Type {
	case models.MessageText, models.MessageImage, models.MessageFile, models.MessageSystem:
	default:
		return nil, fmt.Errorf("%w: unknown message type %q", ErrValidation, in.Type)
	}
	if in.Content == "" && in.Attachment == nil {
		return nil, fmt.Errorf("%w: content or attachment is required", ErrValidation)
	}

	conv, err := s.conversations.GetByID(ctx, in.ConversationID, in.Sender)
	if err != nil {
		return nil, err
	}

	recipient := ParticipantRef{ID: conv.TeacherProfileID, Kind: models.KindTeacherProfile}
	if in.Sender.Kind == models.KindTeacherProfile {
		recipient = ParticipantRef{ID: conv.StudentID, Kind: models.KindStudent}
	}

	msg := models.Message{
		ConversationID: conv.ID,
		SenderID:       in.Sender.ID,
		SenderRole:     in.Sender.Role(),
		RecipientID:    recipient.ID,
		RecipientRole:  recipient.Role(),
		Content:        in.Content,
		Type:           in.Type,
	}
	if in.Attachment != nil {
		raw, err := json.Marshal(in.Attachment)
		if err != nil {
			return nil, fmt.Errorf("%w: bad attachment", ErrValidation)
		}
		msg.Attachment = raw
	}

	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, err
	}

	if err := s.conversations.ApplyAppend(ctx, conv.ID, &msg); err != nil {
		log.Printf("chat: conversation %s cache update failed after message %s: %v", conv.ID, msg.ID, err)
		return &msg, fmt.Errorf("%w: %v", ErrCacheUpdate, err)
	}

	return &msg, nil
}

// Page returns one page of the conversation's live messages in chronological
// order. The page window is taken from the newest end, so page 1 holds the
// most recent messages.
func (s *MessageService) Page(ctx context.Context, conversationID uuid.UUID, ref ParticipantRef, page, pageSize int) ([]models.Message, int64, error) {
	if _, err := s.conversations.GetByID(ctx, conversationID, ref); err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	base := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND is_delete = false", conversationID)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var messages []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND is_delete = false", conversationID).
		Order("created_at DESC, seq DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&messages).Error
	if err != nil {
		return nil, 0, err
	}

	// Flip newest-first storage order into reading order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, total, nil
}

// MarkSeen flips is_seen on every unseen message addressed to the reader.
// Bulk and idempotent; returns the number of rows affected.
func (s *MessageService) MarkSeen(ctx context.Context, conversationID uuid.UUID, ref ParticipantRef) (int64, error) {
	if _, err := s.conversations.GetByID(ctx, conversationID, ref); err != nil {
		return 0, err
	}

	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND recipient_id = ? AND is_seen = false AND is_delete = false", conversationID, ref.ID).
		Update("is_seen", true)
	return res.RowsAffected, res.Error
}

// SoftDeleteOne hides a single message. The conversation's cached last message
// is left as-is even when this was it; the cache is a display hint only.
func (s *MessageService) SoftDeleteOne(ctx context.Context, messageID uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND is_delete = false", messageID).
		Update("is_delete", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}
