package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/dto"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/service"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	identity *service.IdentityResolver
	payments *service.PaymentService
	chat     *service.ChatService
	logger   *zap.Logger
}

func NewPaymentHandler(identity *service.IdentityResolver, payments *service.PaymentService, chat *service.ChatService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		identity: identity,
		payments: payments,
		chat:     chat,
		logger:   logger,
	}
}

func queryIdentifiers(c *fiber.Ctx) (string, dto.Inbound) {
	return c.Query("session_id"), dto.Inbound{
		CookieID: c.Query("cookie_id"),
		DeviceID: c.Query("device_id"),
	}
}

// CheckPayment godoc
// @Summary Check payment status
// @Description Refreshes the payment from the gateway and confirms completed payments to the user
// @Tags payments
// @Produce json
// @Param payment_id path string true "Payment ID"
// @Param session_id query string true "Session ID"
// @Param cookie_id query string false "Cookie ID"
// @Param device_id query string false "Device ID"
// @Success 200 {object} dto.CheckPaymentResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /check-payment/{payment_id} [get]
func (h *PaymentHandler) CheckPayment(c *fiber.Ctx) error {
	u, err := h.identity.Lookup(c.UserContext(), service.Identifiers(queryIdentifiers(c)))
	if err != nil {
		return lookupFailed(c, h.logger, err)
	}

	rec, justCompleted, err := h.payments.Refresh(c.UserContext(), u.ID, c.Params("payment_id"))
	switch {
	case errors.Is(err, service.ErrPaymentNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: "Payment not found",
		})
	case err != nil:
		h.logger.Warn("Payment status check failed", zap.String("user_id", u.ID.String()), zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{
			Error: service.ErrorReplyText,
		})
	}

	if justCompleted {
		h.chat.NotifyPaymentConfirmed(c.UserContext(), u)
	}

	return c.JSON(dto.CheckPaymentResponse{
		Success:          true,
		Status:           string(rec.Status),
		PaymentCompleted: rec.Completed(),
		Amount:           rec.Amount,
		Currency:         rec.Currency,
	})
}

// PaymentDetails godoc
// @Summary Payment details
// @Description Returns the stored payment record without contacting the gateway
// @Tags payments
// @Produce json
// @Param payment_id path string true "Payment ID"
// @Param session_id query string true "Session ID"
// @Success 200 {object} dto.PaymentDetailsResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /payment-details/{payment_id} [get]
func (h *PaymentHandler) PaymentDetails(c *fiber.Ctx) error {
	u, err := h.identity.Lookup(c.UserContext(), service.Identifiers(queryIdentifiers(c)))
	if err != nil {
		return lookupFailed(c, h.logger, err)
	}

	rec, err := h.payments.Details(c.UserContext(), u.ID, c.Params("payment_id"))
	if err != nil {
		if errors.Is(err, service.ErrPaymentNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: "Payment not found",
			})
		}
		h.logger.Error("Failed to load payment", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: service.ErrorReplyText,
		})
	}

	return c.JSON(dto.PaymentDetailsResponse{
		Amount:      rec.Amount,
		Currency:    rec.Currency,
		Description: rec.Description,
		Status:      string(rec.Status),
	})
}

// Health godoc
// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} dto.HealthResponse
// @Router /health [get]
func Health(c *fiber.Ctx) error {
	return c.JSON(dto.HealthResponse{Status: "healthy", Version: "1.0.0"})
}
