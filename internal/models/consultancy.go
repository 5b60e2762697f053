package models

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
)

type ConsultancyStatus string

const (
	ConsultancyPending   ConsultancyStatus = "pending"
	ConsultancyConfirmed ConsultancyStatus = "confirmed"
	ConsultancyCompleted ConsultancyStatus = "completed"
	ConsultancyCancelled ConsultancyStatus = "cancelled"
)

// Consultancy is a paid session booking between a student and a teacher.
// Confirmation is the event that locks the conversation's current context.
type Consultancy struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	BookingCode string    `gorm:"unique;size:10" json:"booking_code"`

	StudentID        uuid.UUID  `gorm:"type:uuid;index;not null" json:"student_id"`
	TeacherProfileID uuid.UUID  `gorm:"type:uuid;index;not null" json:"teacher_profile_id"`
	ConversationID   *uuid.UUID `gorm:"type:uuid;index" json:"conversation_id,omitempty"`

	Subject     string `gorm:"type:varchar(120)" json:"subject"`
	Title       string `gorm:"type:varchar(200);not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`

	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes int       `gorm:"not null;default:60" json:"duration_minutes"`

	Price       int64 `json:"price"`
	PlatformFee int64 `json:"platform_fee"`
	NetAmount   int64 `json:"net_amount"`

	Status ConsultancyStatus `gorm:"type:varchar(20);default:'pending'" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Student        *User           `gorm:"foreignKey:StudentID" json:"student,omitempty"`
	TeacherProfile *TeacherProfile `gorm:"foreignKey:TeacherProfileID" json:"teacher_profile,omitempty"`
}

// GenerateBookingCode returns a random alphanumeric booking reference.
func GenerateBookingCode() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 8)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}
