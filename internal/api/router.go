package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/prashant-hada-dev/sales-agent-proto/docs"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/api/handlers"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/dto"
	"github.com/prashant-hada-dev/sales-agent-proto/pkg/auth"
	"github.com/prashant-hada-dev/sales-agent-proto/pkg/config"
	"github.com/prashant-hada-dev/sales-agent-proto/pkg/middleware"
	"go.uber.org/zap"
)

type Handlers struct {
	Chat     *handlers.ChatHandler
	Document *handlers.DocumentHandler
	Payment  *handlers.PaymentHandler
	Auth     *handlers.AuthHandler
	Admin    *handlers.AdminHandler
}

func SetupRouter(
	h Handlers,
	jwtManager *auth.JWTManager,
	cfg *config.ServerConfig,
	uploadLimit int,
	appLogger *zap.Logger,
) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		BodyLimit:    uploadLimit,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			if code == fiber.StatusInternalServerError {
				appLogger.Error("Unhandled request error", zap.String("path", c.Path()), zap.Error(err))
				return c.Status(code).JSON(dto.ErrorResponse{Error: "Internal error"})
			}
			return c.Status(code).JSON(dto.ErrorResponse{Error: err.Error()})
		},
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
	}))

	_ = docs.SwaggerInfo // registers the swagger document
	app.Get("/swagger/*", swagger.HandlerDefault)

	app.Get("/health", handlers.Health)

	// Real-time channel
	app.Use("/ws", h.Chat.RequireUpgrade)
	app.Get("/ws", h.Chat.Chat())

	// Collaborator-facing HTTP surface
	public := app.Group("", limiter.New(limiter.Config{
		Max:        rateMax(cfg.RateLimit),
		Expiration: rateWindow(cfg.RateWindow),
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.ErrorResponse{
				Error: "Too many requests, please slow down.",
			})
		},
	}))
	public.Post("/upload-document", h.Document.UploadDocument)
	public.Get("/check-payment/:payment_id", h.Payment.CheckPayment)
	public.Get("/payment-details/:payment_id", h.Payment.PaymentDetails)

	// Admin routes
	admin := app.Group("/admin")
	admin.Post("/login", h.Auth.Login)

	protected := admin.Group("/users", middleware.AdminOnly(jwtManager, appLogger))
	protected.Get("", h.Admin.ListUsers)
	protected.Get("/:id", h.Admin.GetUser)
	protected.Delete("/:id", h.Admin.DeleteUser)
	protected.Post("/:id/outcome", h.Admin.RecordOutcome)

	return app
}

func rateMax(n int) int {
	if n <= 0 {
		return 60
	}
	return n
}

func rateWindow(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Minute
	}
	return d
}
