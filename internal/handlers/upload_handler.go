package handlers

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/tutorlink/tutorlink-backend/internal/storage"
)

const maxUploadBytes = 10 << 20

var allowedUploadExt = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".pdf": true, ".doc": true, ".docx": true, ".txt": true, ".zip": true,
}

// UploadHandler proxies media uploads to the blob store and returns the
// attachment metadata the chat layer embeds in messages.
type UploadHandler struct {
	Storage storage.Service
}

func NewUploadHandler(svc storage.Service) *UploadHandler {
	return &UploadHandler{Storage: svc}
}

func (h *UploadHandler) Upload(c *fiber.Ctx) error {
	uid, err := getUserUUID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "file is required",
		})
	}
	if fileHeader.Size > maxUploadBytes {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"success": false,
			"message": "File exceeds the 10MB limit",
		})
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !allowedUploadExt[ext] {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Unsupported file type",
		})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to read upload",
		})
	}
	defer file.Close()

	folder := "chat/" + uid.String()
	filename := fmt.Sprintf("%s%s", uuid.New().String(), ext)

	url, err := h.Storage.UploadFile(c.Context(), file, filename, folder)
	if err != nil {
		log.Println("Error uploading file:", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"message": "Failed to store file",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"url":       url,
			"filename":  fileHeader.Filename,
			"file_type": strings.TrimPrefix(ext, "."),
			"file_size": fileHeader.Size,
		},
	})
}
