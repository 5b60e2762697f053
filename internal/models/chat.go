package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ParticipantRole is the side a participant occupies inside a conversation.
type ParticipantRole string

const (
	ParticipantStudent ParticipantRole = "student"
	ParticipantTeacher ParticipantRole = "teacher"
)

// ParticipantKind tags which table a participant id resolves against.
type ParticipantKind string

const (
	KindStudent        ParticipantKind = "Student"
	KindTeacherProfile ParticipantKind = "TeacherProfile"
)

type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "active"
	ConversationArchived ConversationStatus = "archived"
	ConversationBlocked  ConversationStatus = "blocked"
)

type ContextType string

const (
	ContextConsultancy   ContextType = "consultancy"
	ContextCollaboration ContextType = "collaboration"
)

type ContextStatus string

const (
	// ContextPrePurchase means no booking has been confirmed yet; the current
	// context snapshot may still be overwritten by a re-initiation.
	ContextPrePurchase ContextStatus = "pre_purchase"
	ContextPurchased   ContextStatus = "purchased"
)

// ConversationContext is one booking/collaboration topic that prompted contact.
// Stored as JSON, both in the append-only history and as the current snapshot.
type ConversationContext struct {
	Type      ContextType   `json:"type"`
	ContextID string        `json:"context_id"`
	Title     string        `json:"title"`
	Status    ContextStatus `json:"status"`
	AddedAt   time.Time     `json:"added_at"`
}

// Conversation models exactly one student<->teacher pair. The pair is fixed at
// creation; the partial unique index over (student_id, teacher_profile_id)
// guarantees at most one live conversation per pair even under concurrent
// initiation. Soft-deleted rows fall out of the index so the pair can start
// over with a fresh conversation.
type Conversation struct {
	ID uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`

	StudentID        uuid.UUID `gorm:"type:uuid;not null;index:idx_conversation_pair,unique,where:is_delete = false" json:"student_id"`
	TeacherProfileID uuid.UUID `gorm:"type:uuid;not null;index:idx_conversation_pair,unique,where:is_delete = false" json:"teacher_profile_id"`

	// ChatType mirrors the type of the most recently added context.
	ChatType ContextType `gorm:"type:varchar(20);default:'consultancy'" json:"chat_type"`

	// Contexts is the append-only history of every context ever attached.
	Contexts datatypes.JSON `json:"contexts"`

	// Current context snapshots, overwritten (not appended) while pre-purchase.
	ConsultancyContext   datatypes.JSON `json:"consultancy_context,omitempty"`
	CollaborationContext datatypes.JSON `json:"collaboration_context,omitempty"`

	Status ConversationStatus `gorm:"type:varchar(20);default:'active'" json:"status"`

	UnreadStudent int `gorm:"not null;default:0" json:"unread_student"`
	UnreadTeacher int `gorm:"not null;default:0" json:"unread_teacher"`

	// Write-through cache of the most recent message; display hint only,
	// the messages table stays the source of truth.
	LastMessageContent    string          `gorm:"type:text" json:"last_message_content"`
	LastMessageSenderID   *uuid.UUID      `gorm:"type:uuid" json:"last_message_sender_id,omitempty"`
	LastMessageSenderRole ParticipantRole `gorm:"type:varchar(20)" json:"last_message_sender_role,omitempty"`
	LastMessageAt         *time.Time      `json:"last_message_at,omitempty"`

	IsDelete bool `gorm:"default:false;index" json:"is_delete"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Student        *User           `gorm:"foreignKey:StudentID" json:"student,omitempty"`
	TeacherProfile *TeacherProfile `gorm:"foreignKey:TeacherProfileID" json:"teacher_profile,omitempty"`
	Messages       []Message       `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
}

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageFile   MessageType = "file"
	MessageSystem MessageType = "system"
)

// Attachment metadata for image/file messages, stored as a JSON column.
type Attachment struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	FileType string `json:"file_type"`
	FileSize int64  `json:"file_size"`
}

// Message is immutable once written except for the is_seen and is_delete flags.
// Seq is a monotonic insertion counter that breaks created_at ties.
type Message struct {
	ID  uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Seq int64     `gorm:"autoIncrement;uniqueIndex" json:"seq"`

	ConversationID uuid.UUID `gorm:"type:uuid;index;not null" json:"conversation_id"`

	SenderID      uuid.UUID       `gorm:"type:uuid;not null" json:"sender_id"`
	SenderRole    ParticipantRole `gorm:"type:varchar(20);not null" json:"sender_role"`
	RecipientID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"recipient_id"`
	RecipientRole ParticipantRole `gorm:"type:varchar(20);not null" json:"recipient_role"`

	Content    string         `gorm:"type:text" json:"content"`
	Type       MessageType    `gorm:"type:varchar(20);default:'text'" json:"type"`
	Attachment datatypes.JSON `json:"attachment,omitempty"`

	IsSeen   bool `gorm:"default:false" json:"is_seen"`
	IsDelete bool `gorm:"default:false" json:"is_delete"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
