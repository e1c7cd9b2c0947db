package handlers

import (
	"context"
	"encoding/json"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/dto"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/service"
	"go.uber.org/zap"
)

type ChatHandler struct {
	chat     *service.ChatService
	registry *service.Registry
	logger   *zap.Logger
}

func NewChatHandler(chat *service.ChatService, registry *service.Registry, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chat:     chat,
		registry: registry,
		logger:   logger,
	}
}

// RequireUpgrade lets only websocket handshakes through to the chat endpoint.
func (h *ChatHandler) RequireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Chat is the real-time endpoint. Query parameters cookie_id and device_id are optional.
func (h *ChatHandler) Chat() fiber.Handler {
	return websocket.New(h.serve)
}

func (h *ChatHandler) serve(conn *websocket.Conn) {
	sessionID := uuid.NewString()
	cookieID := conn.Query("cookie_id")
	deviceID := conn.Query("device_id")
	log := h.logger.With(zap.String("session_id", sessionID))

	h.registry.Bind(sessionID, conn)
	defer h.registry.Release(sessionID, conn)
	log.Info("Client connected", zap.Bool("has_cookie", cookieID != ""), zap.Bool("has_device", deviceID != ""))

	h.registry.Send(sessionID, dto.SessionInfo(sessionID, cookieID == "", deviceID == ""))
	if cookieID == "" {
		cookieID = uuid.NewString()
		h.registry.Send(sessionID, dto.SetCookie(cookieID))
	}

	ctx := context.Background()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Info("Client disconnected", zap.Error(err))
			return
		}

		var in dto.Inbound
		if err := json.Unmarshal(raw, &in); err != nil {
			log.Warn("Malformed client message, closing connection", zap.Error(err))
			return
		}
		if in.CookieID == "" {
			in.CookieID = cookieID
		}
		if in.DeviceID == "" {
			in.DeviceID = deviceID
		}
		// A client that reconnected keeps sending the id it was first given.
		if in.SessionID != "" && in.SessionID != sessionID && in.PreviousSessionID == "" {
			in.PreviousSessionID = in.SessionID
		}

		switch in.Type {
		case dto.TypeMessage, "":
			if err := h.chat.HandleMessage(ctx, sessionID, in); err != nil {
				log.Warn("Message handling failed", zap.Error(err))
			}
		case dto.TypeInactive:
			if err := h.chat.HandleInactive(ctx, sessionID, in); err != nil {
				log.Warn("Follow-up failed", zap.Error(err))
			}
		default:
			log.Debug("Ignoring client message", zap.String("type", in.Type))
		}
	}
}
