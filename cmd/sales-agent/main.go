package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prashant-hada-dev/sales-agent-proto/internal/api"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/api/handlers"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/repository"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/service"
	"github.com/prashant-hada-dev/sales-agent-proto/pkg/auth"
	"github.com/prashant-hada-dev/sales-agent-proto/pkg/config"
	"github.com/prashant-hada-dev/sales-agent-proto/pkg/logger"
	"github.com/prashant-hada-dev/sales-agent-proto/pkg/postgres"

	"go.uber.org/zap"
)

// @title Sales Agent API
// @version 1.0.0
// @description Conversational sales funnel for company registration: chat, document verification and payment.

// @host localhost:8000
// @BasePath /

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logger.Level, cfg.Logger.Format); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting sales agent service", zap.String("store", cfg.Store.Backend))

	ctx := context.Background()
	store, closeStore, err := openStore(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to open store", zap.Error(err))
	}
	defer closeStore()

	// Collaborators: GigaChat when configured, offline stand-ins otherwise.
	var (
		agent      service.AgentDispatcher  = service.OfflineAgent{}
		summarizer service.Summarizer       = service.ExtractiveSummarizer{}
		analyzer   service.DocumentAnalyzer = service.RuleBasedAnalyzer{}
	)
	if cfg.GigaChat.Enabled() {
		llmService, err := service.NewLLMService(&cfg.GigaChat, appLogger)
		if err != nil {
			appLogger.Fatal("Failed to initialize LLM service", zap.Error(err))
		}
		defer llmService.Close()

		agent = llmService
		summarizer = llmService
		analyzer = service.NewGigaChatAnalyzer(service.NewOCRService(llmService, appLogger), llmService, appLogger)
	} else {
		logger.Warn("GigaChat is not configured, using offline agent")
	}

	var gateway service.PaymentGateway = service.NewSimulatedGateway()
	if cfg.Razorpay.Enabled() {
		gateway = service.NewRazorpayGateway(&cfg.Razorpay, appLogger)
	} else {
		logger.Warn("Razorpay is not configured, using simulated payment links")
	}

	var objects service.ObjectStorage
	if cfg.Minio.Enabled() {
		minioStorage, err := service.NewMinioStorage(&cfg.Minio, appLogger)
		if err != nil {
			appLogger.Fatal("Failed to initialize object storage", zap.Error(err))
		}
		if err := minioStorage.EnsureBucket(ctx); err != nil {
			appLogger.Fatal("Failed to prepare bucket", zap.Error(err))
		}
		objects = minioStorage
	} else {
		logger.Debug("Object storage is not configured, documents stay on local disk")
	}

	files, err := service.NewLocalFiles(cfg.Upload.Dir)
	if err != nil {
		appLogger.Fatal("Failed to prepare upload directory", zap.Error(err))
	}

	jwtManager := auth.NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Expiration)

	// Services
	registry := service.NewRegistry(appLogger)
	identity := service.NewIdentityResolver(store, appLogger)
	conversations := service.NewConversationService(store, summarizer, cfg.Agent.SummaryInterval, cfg.Agent.AgentTimeout, appLogger)
	funnel := service.NewFunnel(store, cfg.Agent.RecentMessages)
	payments := service.NewPaymentService(store, gateway, cfg.Agent.PaymentTimeout, cfg.Agent.PaymentLinkTTL, appLogger)
	triggers := service.NewTriggers(store, payments, appLogger)
	chat := service.NewChatService(identity, store, conversations, funnel, agent, triggers, registry, cfg.Agent.AgentTimeout, appLogger)
	documents := service.NewDocumentService(store, conversations, payments, analyzer, files, objects, registry,
		cfg.Agent.AnalysisTimeout, cfg.Agent.PaymentLinkTTL, appLogger)
	adminService := service.NewAdminService(store, conversations, jwtManager, cfg.Admin, appLogger)

	app := api.SetupRouter(api.Handlers{
		Chat:     handlers.NewChatHandler(chat, registry, appLogger),
		Document: handlers.NewDocumentHandler(identity, documents, appLogger),
		Payment:  handlers.NewPaymentHandler(identity, payments, chat, appLogger),
		Auth:     handlers.NewAuthHandler(adminService, appLogger),
		Admin:    handlers.NewAdminHandler(adminService, appLogger),
	}, jwtManager, &cfg.Server, cfg.Upload.MaxSize, appLogger)

	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}
	conversations.Wait()
}

func openStore(ctx context.Context, cfg *config.Config, appLogger *zap.Logger) (repository.Store, func(), error) {
	if cfg.Store.Backend != config.StorePostgres {
		appLogger.Warn("Using in-memory store, data is lost on restart")
		return repository.NewMemoryStore(appLogger), func() {}, nil
	}

	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.Migrate(ctx, db, appLogger); err != nil {
		db.Close()
		return nil, nil, err
	}
	return repository.NewPostgresStore(db, appLogger), db.Close, nil
}
