package handlers

import (
	"context"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/tutorlink/tutorlink-backend/internal/chat"
	"github.com/tutorlink/tutorlink-backend/internal/models"
)

// ConversationAPI is the slice of the conversation service the HTTP and
// realtime layers consume.
type ConversationAPI interface {
	Resolve(ctx context.Context, userID uuid.UUID, role string) (chat.ParticipantRef, error)
	InitiateOrGet(ctx context.Context, studentID uuid.UUID, in chat.InitiateInput) (*models.Conversation, bool, error)
	GetByID(ctx context.Context, conversationID uuid.UUID, ref chat.ParticipantRef) (*models.Conversation, error)
	ListForUser(ctx context.Context, ref chat.ParticipantRef) ([]chat.ConversationView, error)
	UpdateStatus(ctx context.Context, conversationID uuid.UUID, ref chat.ParticipantRef, status models.ConversationStatus) (*models.Conversation, error)
	MarkRead(ctx context.Context, conversationID uuid.UUID, ref chat.ParticipantRef) error
	SoftDelete(ctx context.Context, conversationID uuid.UUID, ref chat.ParticipantRef) (*models.Conversation, error)
}

// MessageAPI is the message store surface.
type MessageAPI interface {
	Append(ctx context.Context, in chat.AppendInput) (*models.Message, error)
	Page(ctx context.Context, conversationID uuid.UUID, ref chat.ParticipantRef, page, pageSize int) ([]models.Message, int64, error)
	MarkSeen(ctx context.Context, conversationID uuid.UUID, ref chat.ParticipantRef) (int64, error)
	SoftDeleteOne(ctx context.Context, messageID uuid.UUID) error
}

type ChatHandler struct {
	Conversations ConversationAPI
	Messages      MessageAPI
}

func NewChatHandler(conversations ConversationAPI, messages MessageAPI) *ChatHandler {
	return &ChatHandler{Conversations: conversations, Messages: messages}
}

func (h *ChatHandler) resolveRef(c *fiber.Ctx) (chat.ParticipantRef, error) {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return chat.ParticipantRef{}, fiber.ErrUnauthorized
	}
	return h.Conversations.Resolve(c.Context(), userUUID, getRole(c))
}

func chatError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, chat.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": err.Error(),
		})
	case errors.Is(err, chat.ErrNotFound), errors.Is(err, chat.ErrMessageNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Conversation not found",
		})
	default:
		log.Println("chat handler error:", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Internal server error",
		})
	}
}

type InitiateReq struct {
	TeacherProfileID string `json:"teacher_profile_id"`
	ConsultancyID    string `json:"consultancy_id"`
	ConsultancyTitle string `json:"consultancy_title"`
}

// Initiate creates or reuses the conversation for this student/teacher pair.
// Student role only; the route is gated by RequireRoles("student").
func (h *ChatHandler) Initiate(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}

	var req InitiateReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request",
		})
	}

	teacherProfileID, err := uuid.Parse(req.TeacherProfileID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid teacher_profile_id",
		})
	}

	conv, isNew, err := h.Conversations.InitiateOrGet(c.Context(), userUUID, chat.InitiateInput{
		TeacherProfileID: teacherProfileID,
		ContextType:      models.ContextConsultancy,
		ContextID:        req.ConsultancyID,
		Title:            req.ConsultancyTitle,
	})
	if err != nil {
		return chatError(c, err)
	}

	message := "Conversation retrieved"
	if isNew {
		message = "Conversation created"
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": message,
		"data": fiber.Map{
			"conversation": conv,
			"is_new":       isNew,
		},
	})
}

// List returns the requester's inbox.
func (h *ChatHandler) List(c *fiber.Ctx) error {
	ref, err := h.resolveRef(c)
	if err != nil {
		return chatError(c, err)
	}

	views, err := h.Conversations.ListForUser(c.Context(), ref)
	if err != nil {
		return chatError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"conversations": views,
			"count":         len(views),
		},
	})
}

func (h *ChatHandler) Get(c *fiber.Ctx) error {
	ref, err := h.resolveRef(c)
	if err != nil {
		return chatError(c, err)
	}

	convUUID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid conversation ID",
		})
	}

	conv, err := h.Conversations.GetByID(c.Context(), convUUID, ref)
	if err != nil {
		return chatError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"conversation": conv},
	})
}

// GetMessages returns one page of messages in chronological order.
func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	ref, err := h.resolveRef(c)
	if err != nil {
		return chatError(c, err)
	}

	convUUID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid conversation ID",
		})
	}

	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 50)

	messages, total, err := h.Messages.Page(c.Context(), convUUID, ref, page, limit)
	if err != nil {
		return chatError(c, err)
	}

	if limit < 1 {
		limit = 50
	}
	totalPages := (total + int64(limit) - 1) / int64(limit)

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"messages":     messages,
			"total_count":  total,
			"current_page": page,
			"total_pages":  totalPages,
		},
	})
}

type SendMessageReq struct {
	Content     string             `json:"content"`
	MessageType string             `json:"message_type"`
	Attachment  *models.Attachment `json:"attachment"`
}

// SendMessage appends a message over HTTP. A cache-lag failure still returns
// the persisted message, flagged with a warning.
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	ref, err := h.resolveRef(c)
	if err != nil {
		return chatError(c, err)
	}

	convUUID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid conversation ID",
		})
	}

	var req SendMessageReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request",
		})
	}

	msg, err := h.Messages.Append(c.Context(), chat.AppendInput{
		ConversationID: convUUID,
		Sender:         ref,
		Content:        req.Content,
		Type:           models.MessageType(req.MessageType),
		Attachment:     req.Attachment,
	})
	if err != nil {
		if errors.Is(err, chat.ErrCacheUpdate) {
			return c.JSON(fiber.Map{
				"success": true,
				"message": "Message sent; conversation preview may lag briefly",
				"data":    fiber.Map{"message": msg},
			})
		}
		return chatError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"message": msg},
	})
}

// MarkSeen bulk-flips is_seen on messages addressed to the requester.
func (h *ChatHandler) MarkSeen(c *fiber.Ctx) error {
	ref, err := h.resolveRef(c)
	if err != nil {
		return chatError(c, err)
	}

	convUUID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid conversation ID",
		})
	}

	count, err := h.Messages.MarkSeen(c.Context(), convUUID, ref)
	if err != nil {
		return chatError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"modified_count": count},
	})
}

type UpdateStatusReq struct {
	Status string `json:"status"`
}

func (h *ChatHandler) UpdateStatus(c *fiber.Ctx) error {
	ref, err := h.resolveRef(c)
	if err != nil {
		return chatError(c, err)
	}

	convUUID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid conversation ID",
		})
	}

	var req UpdateStatusReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request",
		})
	}

	status := models.ConversationStatus(req.Status)
	if req.Status == "closed" {
		status = models.ConversationBlocked
	}

	conv, err := h.Conversations.UpdateStatus(c.Context(), convUUID, ref, status)
	if err != nil {
		return chatError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"conversation": conv},
	})
}

// MarkRead zeroes the requester's unread counter.
func (h *ChatHandler) MarkRead(c *fiber.Ctx) error {
	ref, err := h.resolveRef(c)
	if err != nil {
		return chatError(c, err)
	}

	convUUID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid conversation ID",
		})
	}

	if err := h.Conversations.MarkRead(c.Context(), convUUID, ref); err != nil {
		return chatError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Conversation marked as read",
	})
}

func (h *ChatHandler) Archive(c *fiber.Ctx) error {
	ref, err := h.resolveRef(c)
	if err != nil {
		return chatError(c, err)
	}

	convUUID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid conversation ID",
		})
	}

	conv, err := h.Conversations.UpdateStatus(c.Context(), convUUID, ref, models.ConversationArchived)
	if err != nil {
		return chatError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"conversation": conv},
	})
}

func (h *ChatHandler) Delete(c *fiber.Ctx) error {
	ref, err := h.resolveRef(c)
	if err != nil {
		return chatError(c, err)
	}

	convUUID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid conversation ID",
		})
	}

	conv, err := h.Conversations.SoftDelete(c.Context(), convUUID, ref)
	if err != nil {
		return chatError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"conversation": conv},
	})
}
