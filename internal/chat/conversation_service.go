package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tutorlink/tutorlink-backend/internal/models"
)

// ConversationService owns the conversation aggregate and the inbox directory.
// All mutations of the cached last-message/unread fields go through targeted
// column updates, never load-mutate-save.
type ConversationService struct {
	db *gorm.DB
}

func NewConversationService(db *gorm.DB) *ConversationService {
	return &ConversationService{db: db}
}

// Resolve maps an authenticated user onto their participant reference.
// Teachers participate through their profile id, not their account id.
func (s *ConversationService) Resolve(ctx context.Context, userID uuid.UUID, role string) (ParticipantRef, error) {
	if role == string(models.RoleTeacher) {
		var profile models.TeacherProfile
		if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ParticipantRef{}, ErrNotFound
			}
			return ParticipantRef{}, err
		}
		return ParticipantRef{ID: profile.ID, Kind: models.KindTeacherProfile}, nil
	}
	return ParticipantRef{ID: userID, Kind: models.KindStudent}, nil
}

// OwnerUserID maps a participant reference back to the account that owns it,
// which is what presence and notifications are keyed on.
func (s *ConversationService) OwnerUserID(ctx context.Context, ref ParticipantRef) (uuid.UUID, error) {
	if ref.Kind != models.KindTeacherProfile {
		return ref.ID, nil
	}
	var profile models.TeacherProfile
	if err := s.db.WithContext(ctx).First(&profile, "id = ?", ref.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, err
	}
	return profile.UserID, nil
}

type InitiateInput struct {
	TeacherProfileID uuid.UUID
	ContextType      models.ContextType
	ContextID        string
	Title            string
}

// InitiateOrGet returns the single live conversation for a student/teacher
// pair, creating it on first contact. The partial unique index over live pairs
// makes creation race-safe: the loser of a concurrent create refetches the
// winner's row. A soft-deleted conversation does not block re-initiation; the
// pair simply starts a fresh one.
// While the current context is still pre-purchase, a re-initiation overwrites
// the snapshot; every supplied context is also appended to the history list.
func (s *ConversationService) InitiateOrGet(ctx context.Context, studentID uuid.UUID, in InitiateInput) (*models.Conversation, bool, error) {
	if in.TeacherProfileID == uuid.Nil {
		return nil, false, fmt.Errorf("%w: teacher_profile_id is required", ErrValidation)
	}
	if in.ContextType == "" {
		in.ContextType = models.ContextConsultancy
	}

	var profile models.TeacherProfile
	if err := s.db.WithContext(ctx).First(&profile, "id = ?", in.TeacherProfileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrNotFound
		}
		return nil, false, err
	}
	if profile.UserID == studentID {
		return nil, false, fmt.Errorf("%w: cannot start a conversation with yourself", ErrValidation)
	}

	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Where("student_id = ? AND teacher_profile_id = ? AND is_delete = false", studentID, in.TeacherProfileID).
		First(&conv).Error

	if err == nil {
		if in.Title != "" || in.ContextID != "" {
			if err := s.refreshContext(ctx, &conv, in); err != nil {
				return nil, false, err
			}
		}
		return &conv, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	snapshot := newContextSnapshot(in)
	contexts, _ := json.Marshal([]models.ConversationContext{snapshot})
	current, _ := json.Marshal(snapshot)

	conv = models.Conversation{
		StudentID:        studentID,
		TeacherProfileID: in.TeacherProfileID,
		ChatType:         in.ContextType,
		Contexts:         contexts,
		Status:           models.ConversationActive,
	}
	if in.ContextType == models.ContextCollaboration {
		conv.CollaborationContext = current
	} else {
		conv.ConsultancyContext = current
	}

	if err := s.db.WithContext(ctx).Create(&conv).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost the initiation race; hand back the winner's conversation.
			var winner models.Conversation
			if ferr := s.db.WithContext(ctx).
				Where("student_id = ? AND teacher_profile_id = ? AND is_delete = false", studentID, in.TeacherProfileID).
				First(&winner).Error; ferr != nil {
				return nil, false, ferr
			}
			return &winner, false, nil
		}
		return nil, false, err
	}

	return &conv, true, nil
}

// refreshContext applies a new context to an existing conversation. The
// snapshot is overwritten only while still pre-purchase; once purchased the
// new context replaces it as "current" and the old one stays in the history.
func (s *ConversationService) refreshContext(ctx context.Context, conv *models.Conversation, in InitiateInput) error {
	snapshot := newContextSnapshot(in)

	history, err := appendContext(conv.Contexts, snapshot)
	if err != nil {
		return err
	}
	current, _ := json.Marshal(snapshot)

	updates := map[string]interface{}{
		"contexts":   history,
		"chat_type":  in.ContextType,
		"updated_at": time.Now(),
	}
	if in.ContextType == models.ContextCollaboration {
		updates["collaboration_context"] = current
	} else {
		updates["consultancy_context"] = current
	}

	if err := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", conv.ID).
		UpdateColumns(updates).Error; err != nil {
		return err
	}

	conv.Contexts = history
	conv.ChatType = in.ContextType
	if in.ContextType == models.ContextCollaboration {
		conv.CollaborationContext = current
	} else {
		conv.ConsultancyContext = current
	}
	return nil
}

func newContextSnapshot(in InitiateInput) models.ConversationContext {
	return models.ConversationContext{
		Type:      in.ContextType,
		ContextID: in.ContextID,
		Title:     in.Title,
		Status:    models.ContextPrePurchase,
		AddedAt:   time.Now(),
	}
}

func appendContext(raw datatypes.JSON, c models.ConversationContext) (datatypes.JSON, error) {
	var history []models.ConversationContext
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &history); err != nil {
			return nil, fmt.Errorf("decode context history: %w", err)
		}
	}
	history = append(history, c)
	return json.Marshal(history)
}

// GetByID returns the conversation only when the requester is a participant
// and it is not soft-deleted. Missing and forbidden are the same error.
func (s *ConversationService) GetByID(ctx context.Context, conversationID uuid.UUID, ref ParticipantRef) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Where("id = ? AND is_delete = false", conversationID).
		First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !memberOf(&conv, ref) {
		return nil, ErrNotFound
	}
	return &conv, nil
}

// ConversationView is one inbox entry: the conversation plus the other
// participant's public profile.
type ConversationView struct {
	models.Conversation
	Other ParticipantProfile `json:"other_participant"`
}

// ListForUser builds the inbox: all live conversations for the requester,
// enriched with the other side's profile, most recent activity first.
func (s *ConversationService) ListForUser(ctx context.Context, ref ParticipantRef) ([]ConversationView, error) {
	q := s.db.WithContext(ctx).Where("is_delete = false")
	if ref.Kind == models.KindTeacherProfile {
		q = q.Where("teacher_profile_id = ?", ref.ID)
	} else {
		q = q.Where("student_id = ?", ref.ID)
	}

	var convs []models.Conversation
	if err := q.Order("COALESCE(last_message_at, updated_at) DESC").Find(&convs).Error; err != nil {
		return nil, err
	}

	others, err := s.fetchOtherProfiles(ctx, ref, convs)
	if err != nil {
		return nil, err
	}

	views := make([]ConversationView, 0, len(convs))
	for _, conv := range convs {
		otherID := conv.TeacherProfileID
		if ref.Kind == models.KindTeacherProfile {
			otherID = conv.StudentID
		}
		views = append(views, ConversationView{Conversation: conv, Other: others[otherID]})
	}
	return views, nil
}

// fetchOtherProfiles batch-loads the opposite participants by kind.
func (s *ConversationService) fetchOtherProfiles(ctx context.Context, ref ParticipantRef, convs []models.Conversation) (map[uuid.UUID]ParticipantProfile, error) {
	out := make(map[uuid.UUID]ParticipantProfile, len(convs))
	if len(convs) == 0 {
		return out, nil
	}

	ids := make([]uuid.UUID, 0, len(convs))
	for _, conv := range convs {
		if ref.Kind == models.KindTeacherProfile {
			ids = append(ids, conv.StudentID)
		} else {
			ids = append(ids, conv.TeacherProfileID)
		}
	}

	if ref.Kind == models.KindTeacherProfile {
		var users []models.User
		if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
			return nil, err
		}
		for _, u := range users {
			out[u.ID] = ParticipantProfile{
				ID:       u.ID,
				Kind:     models.KindStudent,
				Name:     u.Name,
				PhotoURL: u.PhotoURL,
			}
		}
		return out, nil
	}

	var profiles []models.TeacherProfile
	if err := s.db.WithContext(ctx).Preload("User").Where("id IN ?", ids).Find(&profiles).Error; err != nil {
		return nil, err
	}
	for _, p := range profiles {
		name := p.DisplayName
		if name == "" && p.User != nil {
			name = p.User.Name
		}
		out[p.ID] = ParticipantProfile{
			ID:       p.ID,
			Kind:     models.KindTeacherProfile,
			Name:     name,
			PhotoURL: p.PhotoURL,
			Headline: p.Headline,
		}
	}
	return out, nil
}

// UpdateStatus moves the conversation between active/archived/blocked.
func (s *ConversationService) UpdateStatus(ctx context.Context, conversationID uuid.UUID, ref ParticipantRef, status models.ConversationStatus) (*models.Conversation, error) {
	switch status {
	case models.ConversationActive, models.ConversationArchived, models.ConversationBlocked:
	default:
		return nil, fmt.Errorf("%w: invalid status %q", ErrValidation, status)
	}

	conv, err := s.GetByID(ctx, conversationID, ref)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", conv.ID).
		Update("status", status).Error; err != nil {
		return nil, err
	}
	conv.Status = status
	return conv, nil
}

// MarkRead zeroes the requester's unread counter. Idempotent.
func (s *ConversationService) MarkRead(ctx context.Context, conversationID uuid.UUID, ref ParticipantRef) error {
	conv, err := s.GetByID(ctx, conversationID, ref)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", conv.ID).
		UpdateColumn(unreadColumn(ref.Role()), 0).Error
}

// SoftDelete hides the conversation; messages are untouched.
func (s *ConversationService) SoftDelete(ctx context.Context, conversationID uuid.UUID, ref ParticipantRef) (*models.Conversation, error) {
	conv, err := s.GetByID(ctx, conversationID, ref)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", conv.ID).
		Update("is_delete", true).Error; err != nil {
		return nil, err
	}
	conv.IsDelete = true
	return conv, nil
}

// MarkContextPurchased locks the current consultancy context once the booking
// is confirmed. From then on re-initiations append a fresh context instead of
// overwriting. Invoked by the consultancy module, not exposed over HTTP.
func (s *ConversationService) MarkContextPurchased(ctx context.Context, conversationID uuid.UUID, contextID string) error {
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Where("id = ? AND is_delete = false", conversationID).
		First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	updates := map[string]interface{}{"updated_at": time.Now()}

	if len(conv.ConsultancyContext) > 0 {
		var current models.ConversationContext
		if err := json.Unmarshal(conv.ConsultancyContext, &current); err == nil && current.ContextID == contextID {
			current.Status = models.ContextPurchased
			raw, _ := json.Marshal(current)
			updates["consultancy_context"] = datatypes.JSON(raw)
		}
	}

	if len(conv.Contexts) > 0 {
		var history []models.ConversationContext
		if err := json.Unmarshal(conv.Contexts, &history); err == nil {
			for i := range history {
				if history[i].ContextID == contextID {
					history[i].Status = models.ContextPurchased
				}
			}
			raw, _ := json.Marshal(history)
			updates["contexts"] = datatypes.JSON(raw)
		}
	}

	return s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", conv.ID).
		UpdateColumns(updates).Error
}

// ApplyAppend is the message store's hook into the aggregate: refresh the
// last-message cache and bump the recipient's unread counter in one statement.
// The increment runs in SQL so concurrent appends never lose updates.
func (s *ConversationService) ApplyAppend(ctx context.Context, conversationID uuid.UUID, m *models.Message) error {
	col := unreadColumn(m.RecipientRole)
	return s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		UpdateColumns(map[string]interface{}{
			"last_message_content":     m.Content,
			"last_message_sender_id":   m.SenderID,
			"last_message_sender_role": m.SenderRole,
			"last_message_at":          m.CreatedAt,
			col:                        gorm.Expr(col + " + 1"),
			"updated_at":               time.Now(),
		}).Error
}

func unreadColumn(role models.ParticipantRole) string {
	if role == models.ParticipantTeacher {
		return "unread_teacher"
	}
	return "unread_student"
}
