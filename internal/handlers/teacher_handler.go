package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tutorlink/tutorlink-backend/internal/models"
)

type TeacherHandler struct {
	DB *gorm.DB
}

func NewTeacherHandler(db *gorm.DB) *TeacherHandler {
	return &TeacherHandler{DB: db}
}

// GetPublic returns a teacher's public profile by profile id.
func (h *TeacherHandler) GetPublic(c *fiber.Ctx) error {
	profileID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid teacher ID",
		})
	}

	var profile models.TeacherProfile
	if err := h.DB.Preload("User").First(&profile, "id = ?", profileID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Teacher not found",
		})
	}

	name := profile.DisplayName
	if name == "" && profile.User != nil {
		name = profile.User.Name
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"id":          profile.ID,
			"name":        name,
			"headline":    profile.Headline,
			"about":       profile.About,
			"photo_url":   profile.PhotoURL,
			"subjects":    profile.Subjects,
			"hourly_rate": profile.HourlyRate,
			"is_verified": profile.IsVerified,
		},
	})
}

// GetMine returns the authenticated teacher's own profile.
func (h *TeacherHandler) GetMine(c *fiber.Ctx) error {
	uid, err := getUserUUID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}

	var profile models.TeacherProfile
	if err := h.DB.Where("user_id = ?", uid).First(&profile).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Profile not found",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"profile": profile},
	})
}

type UpdateProfileReq struct {
	DisplayName *string   `json:"display_name"`
	Headline    *string   `json:"headline"`
	About       *string   `json:"about"`
	PhotoURL    *string   `json:"photo_url"`
	Subjects    *[]string `json:"subjects"`
	HourlyRate  *int64    `json:"hourly_rate"`
}

// UpdateMine patches the authenticated teacher's profile fields.
func (h *TeacherHandler) UpdateMine(c *fiber.Ctx) error {
	uid, err := getUserUUID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}

	var req UpdateProfileReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request",
		})
	}

	updates := map[string]interface{}{}
	if req.DisplayName != nil {
		updates["display_name"] = *req.DisplayName
	}
	if req.Headline != nil {
		updates["headline"] = *req.Headline
	}
	if req.About != nil {
		updates["about"] = *req.About
	}
	if req.PhotoURL != nil {
		updates["photo_url"] = *req.PhotoURL
	}
	if req.Subjects != nil {
		raw, _ := json.Marshal(*req.Subjects)
		updates["subjects"] = datatypes.JSON(raw)
	}
	if req.HourlyRate != nil {
		if *req.HourlyRate < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "hourly_rate must not be negative",
			})
		}
		updates["hourly_rate"] = *req.HourlyRate
	}
	if len(updates) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Nothing to update",
		})
	}

	res := h.DB.Model(&models.TeacherProfile{}).Where("user_id = ?", uid).Updates(updates)
	if res.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to update profile",
		})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Profile not found",
		})
	}

	var profile models.TeacherProfile
	if err := h.DB.Where("user_id = ?", uid).First(&profile).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to load profile",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"profile": profile},
	})
}
