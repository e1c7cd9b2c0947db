package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/dto"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/service"
	"go.uber.org/zap"
)

type DocumentHandler struct {
	identity   *service.IdentityResolver
	docService *service.DocumentService
	logger     *zap.Logger
}

func NewDocumentHandler(identity *service.IdentityResolver, docService *service.DocumentService, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{
		identity:   identity,
		docService: docService,
		logger:     logger,
	}
}

// UploadDocument godoc
// @Summary Upload an identity or address proof
// @Description Stores the document for the user behind the session and verifies it
// @Tags documents
// @Accept multipart/form-data
// @Produce json
// @Param document formData file true "Document (png, jpeg, gif, webp or pdf)"
// @Param session_id formData string true "Session ID"
// @Param cookie_id formData string false "Cookie ID"
// @Param device_id formData string false "Device ID"
// @Success 200 {object} dto.UploadDocumentResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /upload-document [post]
func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	sessionID := c.FormValue("session_id")
	in := dto.Inbound{
		CookieID: c.FormValue("cookie_id"),
		DeviceID: c.FormValue("device_id"),
	}
	u, err := h.identity.Lookup(c.UserContext(), service.Identifiers(sessionID, in))
	if err != nil {
		return lookupFailed(c, h.logger, err)
	}

	file, err := c.FormFile("document")
	if err != nil {
		file, err = c.FormFile("file")
	}
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "Document file is required",
		})
	}

	src, err := file.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "Failed to open file",
		})
	}
	defer src.Close()

	result, err := h.docService.Submit(c.UserContext(), u.ID, file.Filename, src)
	switch {
	case errors.Is(err, service.ErrUnsupportedDocument):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "Unsupported file format. Please upload an image (PNG, JPEG, GIF, WEBP) or a PDF document.",
		})
	case errors.Is(err, service.ErrEmptyDocument):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "The uploaded file is empty.",
		})
	case err != nil:
		h.logger.Error("Failed to process document", zap.String("user_id", u.ID.String()), zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{
			Error: service.ErrorReplyText,
		})
	}

	return c.JSON(dto.UploadDocumentResponse{
		Success:    true,
		IsValid:    result.IsValid,
		DocumentID: result.DocumentID,
		Analysis:   result.Analysis,
		Superseded: result.Superseded,
	})
}

// lookupFailed answers a request whose identifiers match no user.
func lookupFailed(c *fiber.Ctx, logger *zap.Logger, err error) error {
	if errors.Is(err, service.ErrUnknownSession) {
		logger.Warn("Request for unknown session", zap.String("path", c.Path()))
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: service.UnknownSessionReplyText,
		})
	}
	logger.Error("Failed to look up user", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
		Error: service.ErrorReplyText,
	})
}
