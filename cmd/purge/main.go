package main

import (
	"context"
	"flag"
	"log"

	"github.com/google/uuid"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/repository"
	"github.com/prashant-hada-dev/sales-agent-proto/pkg/config"
	"github.com/prashant-hada-dev/sales-agent-proto/pkg/logger"
	"github.com/prashant-hada-dev/sales-agent-proto/pkg/postgres"

	"go.uber.org/zap"
)

// purge hard-deletes users from the durable store: one by id, or all of them.
func main() {
	userID := flag.String("user", "", "ID of the user to delete")
	all := flag.Bool("all", false, "delete every user")
	flag.Parse()

	if (*userID == "") == !*all {
		log.Fatal("exactly one of -user or -all is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Logger.Level, cfg.Logger.Format); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.Store.Backend != config.StorePostgres {
		logger.Fatal("Purge needs the postgres store; the in-memory store lives inside the server process")
	}

	ctx := context.Background()
	db, err := postgres.NewPool(ctx, &cfg.Database, logger.Get())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	store := repository.NewPostgresStore(db, logger.Get())

	if *all {
		n, err := store.DeleteAll(ctx)
		if err != nil {
			logger.Fatal("Failed to delete users", zap.Error(err))
		}
		logger.Info("All users deleted", zap.Int("count", n))
		return
	}

	id, err := uuid.Parse(*userID)
	if err != nil {
		logger.Fatal("Invalid user ID", zap.String("user_id", *userID), zap.Error(err))
	}
	if err := store.Delete(ctx, id); err != nil {
		logger.Fatal("Failed to delete user", zap.String("user_id", id.String()), zap.Error(err))
	}
	logger.Info("User deleted", zap.String("user_id", id.String()))
}
