package wallet

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tutorlink/tutorlink-backend/internal/models"
)

// WalletService keeps teacher balances consistent with the earnings ledger.
// Balance updates are targeted SQL expressions, never read-modify-write.
type WalletService struct {
	DB *gorm.DB
}

func NewWalletService(db *gorm.DB) *WalletService {
	return &WalletService{DB: db}
}

// CreditTeacher adds earnings to the teacher's balance and writes the ledger
// row. Call inside a DB transaction together with whatever triggered it.
func (s *WalletService) CreditTeacher(tx *gorm.DB, teacherProfileID uuid.UUID, amount int64, referenceID uuid.UUID, description string) error {
	if amount <= 0 {
		return errors.New("amount to credit must be greater than zero")
	}

	result := tx.Model(&models.TeacherProfile{}).
		Where("id = ?", teacherProfileID).
		Update("balance", gorm.Expr("balance + ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("teacher profile %s not found", teacherProfileID)
	}

	ledger := models.Earning{
		TeacherProfileID: teacherProfileID,
		Amount:           amount,
		Type:             models.EarningCredit,
		Description:      description,
		ReferenceID:      &referenceID,
	}
	return tx.Create(&ledger).Error
}

// Settle debits the teacher's balance for a payout and records the ledger row.
// The guarded UPDATE keeps the balance from going negative under concurrent
// settlement requests.
func (s *WalletService) Settle(tx *gorm.DB, teacherProfileID uuid.UUID, amount int64, description string) (*models.Earning, error) {
	if amount <= 0 {
		return nil, errors.New("amount to settle must be greater than zero")
	}

	result := tx.Model(&models.TeacherProfile{}).
		Where("id = ? AND balance >= ?", teacherProfileID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, errors.New("insufficient balance")
	}

	ledger := models.Earning{
		TeacherProfileID: teacherProfileID,
		Amount:           amount,
		Type:             models.EarningSettlement,
		Description:      description,
	}
	if err := tx.Create(&ledger).Error; err != nil {
		return nil, err
	}
	return &ledger, nil
}

// Summary aggregates a teacher's ledger into the earnings report shape.
type Summary struct {
	Balance      int64 `json:"balance"`
	TotalEarned  int64 `json:"total_earned"`
	TotalSettled int64 `json:"total_settled"`
}

func (s *WalletService) Summary(teacherProfileID uuid.UUID) (*Summary, error) {
	var profile models.TeacherProfile
	if err := s.DB.First(&profile, "id = ?", teacherProfileID).Error; err != nil {
		return nil, err
	}

	var out Summary
	out.Balance = profile.Balance

	row := s.DB.Model(&models.Earning{}).
		Select("COALESCE(SUM(CASE WHEN type = ? THEN amount ELSE 0 END), 0) AS total_earned, COALESCE(SUM(CASE WHEN type = ? THEN amount ELSE 0 END), 0) AS total_settled",
			models.EarningCredit, models.EarningSettlement).
		Where("teacher_profile_id = ?", teacherProfileID).
		Row()
	if err := row.Scan(&out.TotalEarned, &out.TotalSettled); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns the teacher's ledger rows, optionally bounded to a period.
func (s *WalletService) List(teacherProfileID uuid.UUID, from, to *time.Time) ([]models.Earning, error) {
	q := s.DB.Where("teacher_profile_id = ?", teacherProfileID)
	if from != nil {
		q = q.Where("created_at >= ?", *from)
	}
	if to != nil {
		q = q.Where("created_at < ?", *to)
	}

	var rows []models.Earning
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
