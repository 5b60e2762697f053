package chat

import (
	"github.com/google/uuid"

	"github.com/tutorlink/tutorlink-backend/internal/models"
)

// ParticipantRef is a role-tagged reference to one side of a conversation.
// Students resolve against users, teachers against teacher_profiles.
type ParticipantRef struct {
	ID   uuid.UUID
	Kind models.ParticipantKind
}

func (r ParticipantRef) Role() models.ParticipantRole {
	if r.Kind == models.KindTeacherProfile {
		return models.ParticipantTeacher
	}
	return models.ParticipantStudent
}

// ParticipantProfile is the public shape of the "other side" of a
// conversation, merged into inbox views by ListForUser.
type ParticipantProfile struct {
	ID       uuid.UUID              `json:"id"`
	Kind     models.ParticipantKind `json:"kind"`
	Name     string                 `json:"name"`
	PhotoURL string                 `json:"photo_url,omitempty"`
	Headline string                 `json:"headline,omitempty"`
}

func memberOf(conv *models.Conversation, ref ParticipantRef) bool {
	switch ref.Kind {
	case models.KindStudent:
		return conv.StudentID == ref.ID
	case models.KindTeacherProfile:
		return conv.TeacherProfileID == ref.ID
	}
	return false
}
