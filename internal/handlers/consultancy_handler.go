package handlers

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tutorlink/tutorlink-backend/internal/chat"
	"github.com/tutorlink/tutorlink-backend/internal/models"
	"github.com/tutorlink/tutorlink-backend/internal/realtime"
	"github.com/tutorlink/tutorlink-backend/internal/wallet"
)

const platformFeePercent = 10

// ConsultancyHandler is the booking collaborator: creating a booking opens the
// conversation, confirming it locks the chat context and credits earnings.
type ConsultancyHandler struct {
	DB            *gorm.DB
	Conversations *chat.ConversationService
	Wallet        *wallet.WalletService
	Hub           *realtime.Hub
}

func NewConsultancyHandler(db *gorm.DB, conversations *chat.ConversationService, walletSvc *wallet.WalletService, hub *realtime.Hub) *ConsultancyHandler {
	return &ConsultancyHandler{DB: db, Conversations: conversations, Wallet: walletSvc, Hub: hub}
}

type CreateConsultancyReq struct {
	TeacherProfileID string    `json:"teacher_profile_id"`
	Subject          string    `json:"subject"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	ScheduledAt      time.Time `json:"scheduled_at"`
	DurationMinutes  int       `json:"duration_minutes"`
}

// Create books a consultancy (student role) and initiates the conversation
// with the booking as its context.
func (h *ConsultancyHandler) Create(c *fiber.Ctx) error {
	studentID, err := getUserUUID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}

	var req CreateConsultancyReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request",
		})
	}

	errs := FieldErrors{}
	teacherProfileID, err := uuid.Parse(req.TeacherProfileID)
	if err != nil {
		errs.Add("teacher_profile_id", "Valid teacher_profile_id is required")
	}
	if req.Title == "" {
		errs.Add("title", "Title is required")
	}
	if req.ScheduledAt.IsZero() || req.ScheduledAt.Before(time.Now()) {
		errs.Add("scheduled_at", "Scheduled time must be in the future")
	}
	if req.DurationMinutes <= 0 {
		req.DurationMinutes = 60
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	var profile models.TeacherProfile
	if err := h.DB.First(&profile, "id = ?", teacherProfileID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Teacher not found",
		})
	}

	price := profile.HourlyRate * int64(req.DurationMinutes) / 60
	fee := price * platformFeePercent / 100

	consultancy := models.Consultancy{
		BookingCode:      models.GenerateBookingCode(),
		StudentID:        studentID,
		TeacherProfileID: profile.ID,
		Subject:          req.Subject,
		Title:            req.Title,
		Description:      req.Description,
		ScheduledAt:      req.ScheduledAt,
		DurationMinutes:  req.DurationMinutes,
		Price:            price,
		PlatformFee:      fee,
		NetAmount:        price - fee,
		Status:           models.ConsultancyPending,
	}

	if err := h.DB.Create(&consultancy).Error; err != nil {
		log.Println("Error creating consultancy:", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to create booking",
		})
	}

	conv, _, err := h.Conversations.InitiateOrGet(c.Context(), studentID, chat.InitiateInput{
		TeacherProfileID: profile.ID,
		ContextType:      models.ContextConsultancy,
		ContextID:        consultancy.ID.String(),
		Title:            consultancy.Title,
	})
	if err != nil {
		// Booking is already durable; conversation can still be opened later.
		log.Println("Error initiating conversation for booking:", err)
	} else {
		if err := h.DB.Model(&consultancy).Update("conversation_id", conv.ID).Error; err != nil {
			log.Println("Error linking booking to conversation:", err)
		} else {
			consultancy.ConversationID = &conv.ID
		}
	}

	h.Hub.SendToUser(profile.UserID, realtime.Envelope{
		Type: realtime.EventNotification,
		Data: fiber.Map{
			"kind":           "consultancy_booked",
			"consultancy_id": consultancy.ID.String(),
			"title":          consultancy.Title,
		},
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"consultancy": consultancy},
	})
}

// List returns the requester's bookings, newest first.
func (h *ConsultancyHandler) List(c *fiber.Ctx) error {
	uid, err := getUserUUID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}

	q := h.DB.Order("created_at DESC")
	if getRole(c) == string(models.RoleTeacher) {
		var profile models.TeacherProfile
		if err := h.DB.Where("user_id = ?", uid).First(&profile).Error; err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"message": "Profile not found",
			})
		}
		q = q.Where("teacher_profile_id = ?", profile.ID)
	} else {
		q = q.Where("student_id = ?", uid)
	}

	var bookings []models.Consultancy
	if err := q.Find(&bookings).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch bookings",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"consultancies": bookings,
			"count":         len(bookings),
		},
	})
}

func (h *ConsultancyHandler) Get(c *fiber.Ctx) error {
	consultancy, ok := h.loadForRequester(c)
	if !ok {
		return nil
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"consultancy": consultancy},
	})
}

// Confirm marks the booking paid/accepted: credits the teacher's earnings and
// locks the conversation's current context so later re-initiations append a
// new context instead of overwriting.
func (h *ConsultancyHandler) Confirm(c *fiber.Ctx) error {
	consultancy, ok := h.loadForRequester(c)
	if !ok {
		return nil
	}
	if getRole(c) != string(models.RoleTeacher) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"message": "Only the teacher can confirm a booking",
		})
	}
	if consultancy.Status != models.ConsultancyPending {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "Booking is not pending",
		})
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Consultancy{}).
			Where("id = ? AND status = ?", consultancy.ID, models.ConsultancyPending).
			Update("status", models.ConsultancyConfirmed)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return h.Wallet.CreditTeacher(tx, consultancy.TeacherProfileID, consultancy.NetAmount,
			consultancy.ID, "Consultancy "+consultancy.BookingCode)
	})
	if err != nil {
		log.Println("Error confirming consultancy:", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to confirm booking",
		})
	}
	consultancy.Status = models.ConsultancyConfirmed

	if consultancy.ConversationID != nil {
		if err := h.Conversations.MarkContextPurchased(c.Context(), *consultancy.ConversationID, consultancy.ID.String()); err != nil {
			log.Println("Error locking conversation context:", err)
		}
	}

	h.Hub.SendToUser(consultancy.StudentID, realtime.Envelope{
		Type: realtime.EventNotification,
		Data: fiber.Map{
			"kind":           "consultancy_confirmed",
			"consultancy_id": consultancy.ID.String(),
		},
	})

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"consultancy": consultancy},
	})
}

// Cancel voids a pending booking. Either participant may cancel.
func (h *ConsultancyHandler) Cancel(c *fiber.Ctx) error {
	consultancy, ok := h.loadForRequester(c)
	if !ok {
		return nil
	}
	if consultancy.Status != models.ConsultancyPending {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "Only pending bookings can be cancelled",
		})
	}

	if err := h.DB.Model(consultancy).Update("status", models.ConsultancyCancelled).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to cancel booking",
		})
	}
	consultancy.Status = models.ConsultancyCancelled

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"consultancy": consultancy},
	})
}

// Complete closes out a confirmed booking after the session happened.
func (h *ConsultancyHandler) Complete(c *fiber.Ctx) error {
	consultancy, ok := h.loadForRequester(c)
	if !ok {
		return nil
	}
	if getRole(c) != string(models.RoleTeacher) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"message": "Only the teacher can complete a booking",
		})
	}
	if consultancy.Status != models.ConsultancyConfirmed {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "Only confirmed bookings can be completed",
		})
	}

	if err := h.DB.Model(consultancy).Update("status", models.ConsultancyCompleted).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to complete booking",
		})
	}
	consultancy.Status = models.ConsultancyCompleted

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"consultancy": consultancy},
	})
}

// loadForRequester fetches the booking and enforces participant access.
// On failure it writes the error response itself and reports ok=false.
func (h *ConsultancyHandler) loadForRequester(c *fiber.Ctx) (*models.Consultancy, bool) {
	uid, err := getUserUUID(c)
	if err != nil {
		_ = c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Unauthorized",
		})
		return nil, false
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid booking ID",
		})
		return nil, false
	}

	var consultancy models.Consultancy
	if err := h.DB.Preload("TeacherProfile").First(&consultancy, "id = ?", id).Error; err != nil {
		_ = c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Booking not found",
		})
		return nil, false
	}

	isStudent := consultancy.StudentID == uid
	isTeacher := consultancy.TeacherProfile != nil && consultancy.TeacherProfile.UserID == uid
	if !isStudent && !isTeacher {
		// Same shape as not-found so outsiders cannot probe bookings.
		_ = c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Booking not found",
		})
		return nil, false
	}

	return &consultancy, true
}
