package models

import (
	"time"

	"github.com/google/uuid"
)

type EarningType string

const (
	EarningCredit     EarningType = "credit"
	EarningSettlement EarningType = "settlement"
)

// Earning is one ledger row on a teacher's balance. Credits come from
// confirmed consultancies; settlements are payouts debited from the balance.
type Earning struct {
	ID               uuid.UUID   `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TeacherProfileID uuid.UUID   `gorm:"type:uuid;index;not null" json:"teacher_profile_id"`
	Amount           int64       `gorm:"not null" json:"amount"`
	Type             EarningType `gorm:"type:varchar(20);not null" json:"type"`
	Description      string      `gorm:"type:text" json:"description"`
	ReferenceID      *uuid.UUID  `gorm:"type:uuid;index" json:"reference_id,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`

	TeacherProfile *TeacherProfile `gorm:"foreignKey:TeacherProfileID" json:"-"`
}
