package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type TeacherProfile struct {
	ID     uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`

	DisplayName string `gorm:"type:varchar(120)" json:"display_name"`
	Headline    string `gorm:"type:varchar(200)" json:"headline"`
	About       string `gorm:"type:text" json:"about"`
	PhotoURL    string `gorm:"type:text" json:"photo_url"`

	// JSON array of subject names, e.g. ["algebra","physics"].
	Subjects datatypes.JSON `json:"subjects"`

	HourlyRate int64 `gorm:"not null;default:0" json:"hourly_rate"`

	// Accumulated earnings available for settlement, in minor currency units.
	Balance int64 `gorm:"not null;default:0" json:"balance"`

	IsVerified bool `gorm:"default:false" json:"is_verified"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
