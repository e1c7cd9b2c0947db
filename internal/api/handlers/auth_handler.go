package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/dto"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/service"
	"go.uber.org/zap"
)

type AuthHandler struct {
	adminService *service.AdminService
	logger       *zap.Logger
}

func NewAuthHandler(adminService *service.AdminService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		adminService: adminService,
		logger:       logger,
	}
}

// Login godoc
// @Summary Operator login
// @Description Exchanges the operator credentials for a bearer token
// @Tags admin
// @Accept json
// @Produce json
// @Param request body dto.LoginRequest true "Login request"
// @Success 200 {object} dto.LoginResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /admin/login [post]
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "Invalid request body",
		})
	}

	token, ttl, err := h.adminService.Login(c.UserContext(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: "Invalid credentials",
			})
		}
		h.logger.Error("Login failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: "Login failed",
		})
	}

	return c.JSON(dto.LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(ttl.Seconds()),
	})
}
