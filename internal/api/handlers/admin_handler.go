package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/dto"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/repository"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/service"
	"go.uber.org/zap"
)

type AdminHandler struct {
	adminService *service.AdminService
	logger       *zap.Logger
}

func NewAdminHandler(adminService *service.AdminService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
		logger:       logger,
	}
}

// ListUsers godoc
// @Summary List users
// @Tags admin
// @Produce json
// @Security Bearer
// @Param limit query int false "Page size (default 50)"
// @Param offset query int false "Offset"
// @Success 200 {object} dto.UserListResponse
// @Router /admin/users [get]
func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	users, err := h.adminService.ListUsers(c.UserContext(), limit, offset)
	if err != nil {
		h.logger.Error("Failed to list users", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: "Failed to list users",
		})
	}

	return c.JSON(dto.UserListResponse{Users: users, Limit: limit, Offset: offset})
}

// GetUser godoc
// @Summary Get user with conversation
// @Tags admin
// @Produce json
// @Security Bearer
// @Param id path string true "User ID"
// @Success 200 {object} models.User
// @Failure 404 {object} dto.ErrorResponse
// @Router /admin/users/{id} [get]
func (h *AdminHandler) GetUser(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "Invalid user ID",
		})
	}

	u, err := h.adminService.GetUser(c.UserContext(), id)
	if err != nil {
		return h.userError(c, err)
	}
	return c.JSON(u)
}

// DeleteUser godoc
// @Summary Purge a user
// @Description Hard-deletes the user, its identifiers and conversation
// @Tags admin
// @Security Bearer
// @Param id path string true "User ID"
// @Success 204
// @Failure 404 {object} dto.ErrorResponse
// @Router /admin/users/{id} [delete]
func (h *AdminHandler) DeleteUser(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "Invalid user ID",
		})
	}

	operator, _ := c.Locals("username").(string)
	if err := h.adminService.DeleteUser(c.UserContext(), id, operator); err != nil {
		return h.userError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RecordOutcome godoc
// @Summary Record case outcome
// @Tags admin
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path string true "User ID"
// @Param request body dto.OutcomeRequest true "Outcome"
// @Success 200 {object} models.User
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /admin/users/{id}/outcome [post]
func (h *AdminHandler) RecordOutcome(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "Invalid user ID",
		})
	}

	var req dto.OutcomeRequest
	if err := c.BodyParser(&req); err != nil || req.IsWin == nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "is_win is required",
		})
	}

	u, err := h.adminService.RecordOutcome(c.UserContext(), id, *req.IsWin, req.Reason)
	if err != nil {
		return h.userError(c, err)
	}
	return c.JSON(u)
}

func (h *AdminHandler) userError(c *fiber.Ctx, err error) error {
	if errors.Is(err, repository.ErrUserNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: "User not found",
		})
	}
	h.logger.Error("Admin operation failed", zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
		Error: "Internal error",
	})
}
