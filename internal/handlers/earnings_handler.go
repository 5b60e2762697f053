package handlers

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/tutorlink/tutorlink-backend/internal/models"
	"github.com/tutorlink/tutorlink-backend/internal/wallet"
)

// EarningsHandler exposes a teacher's ledger and settlement requests.
// All routes are gated to the teacher role.
type EarningsHandler struct {
	DB     *gorm.DB
	Wallet *wallet.WalletService
}

func NewEarningsHandler(db *gorm.DB, walletSvc *wallet.WalletService) *EarningsHandler {
	return &EarningsHandler{DB: db, Wallet: walletSvc}
}

func (h *EarningsHandler) profileFor(c *fiber.Ctx) (*models.TeacherProfile, bool) {
	uid, err := getUserUUID(c)
	if err != nil {
		_ = c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Unauthorized",
		})
		return nil, false
	}

	var profile models.TeacherProfile
	if err := h.DB.Where("user_id = ?", uid).First(&profile).Error; err != nil {
		_ = c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Profile not found",
		})
		return nil, false
	}
	return &profile, true
}

func (h *EarningsHandler) Summary(c *fiber.Ctx) error {
	profile, ok := h.profileFor(c)
	if !ok {
		return nil
	}

	summary, err := h.Wallet.Summary(profile.ID)
	if err != nil {
		log.Println("Error building earnings summary:", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to build summary",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"summary": summary},
	})
}

// List returns ledger rows, optionally bounded by ?from and ?to (RFC 3339).
func (h *EarningsHandler) List(c *fiber.Ctx) error {
	profile, ok := h.profileFor(c)
	if !ok {
		return nil
	}

	var from, to *time.Time
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "Invalid from timestamp",
			})
		}
		from = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "Invalid to timestamp",
			})
		}
		to = &t
	}

	rows, err := h.Wallet.List(profile.ID, from, to)
	if err != nil {
		log.Println("Error listing earnings:", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch earnings",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"earnings": rows,
			"count":    len(rows),
		},
	})
}

type SettleReq struct {
	Amount int64 `json:"amount"`
}

// Settle debits the balance for a payout request.
func (h *EarningsHandler) Settle(c *fiber.Ctx) error {
	profile, ok := h.profileFor(c)
	if !ok {
		return nil
	}

	var req SettleReq
	if err := c.BodyParser(&req); err != nil || req.Amount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Amount must be greater than zero",
		})
	}

	var ledger *models.Earning
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		ledger, err = h.Wallet.Settle(tx, profile.ID, req.Amount, "Settlement payout")
		return err
	})
	if err != nil {
		if err.Error() == "insufficient balance" {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false,
				"message": "Insufficient balance",
			})
		}
		log.Println("Error settling earnings:", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to settle",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"settlement": ledger},
	})
}
