package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/models"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/repository"
	"github.com/prashant-hada-dev/sales-agent-proto/pkg/auth"
	"github.com/prashant-hada-dev/sales-agent-proto/pkg/config"
	"go.uber.org/zap"
)

const RoleAdmin = "admin"

// AdminService backs the operator surface: login, user inspection, purge and case outcomes.
type AdminService struct {
	store         repository.UserStore
	conversations *ConversationService
	jwtManager    *auth.JWTManager
	account       config.AdminConfig
	logger        *zap.Logger
}

func NewAdminService(store repository.UserStore, conversations *ConversationService, jwtManager *auth.JWTManager, account config.AdminConfig, logger *zap.Logger) *AdminService {
	return &AdminService{
		store:         store,
		conversations: conversations,
		jwtManager:    jwtManager,
		account:       account,
		logger:        logger,
	}
}

// Login checks the operator credentials and returns a bearer token with its lifetime.
func (s *AdminService) Login(_ context.Context, username, password string) (string, time.Duration, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.account.Username)) == 1
	passOK := auth.CheckPasswordHash(password, s.account.PasswordHash)
	if s.account.Username == "" || !userOK || !passOK {
		s.logger.Warn("Admin login rejected", zap.String("username", username))
		return "", 0, ErrInvalidCredentials
	}

	token, err := s.jwtManager.GenerateToken(username, RoleAdmin)
	if err != nil {
		return "", 0, fmt.Errorf("failed to generate token: %w", err)
	}
	return token, s.jwtManager.GetTokenDuration(), nil
}

func (s *AdminService) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.List(ctx, limit, offset)
}

// GetUser returns the user with the full conversation attached.
func (s *AdminService) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	history, err := s.conversations.History(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Conversation = history
	return u, nil
}

// DeleteUser is the administrative purge. It is the only way a user is hard-deleted.
func (s *AdminService) DeleteUser(ctx context.Context, id uuid.UUID, operator string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("User purged", zap.String("user_id", id.String()), zap.String("operator", operator))
	return nil
}

func (s *AdminService) RecordOutcome(ctx context.Context, id uuid.UUID, isWin bool, reason string) (*models.User, error) {
	return s.store.Update(ctx, id, func(u *models.User) error {
		u.Outcome = &models.CaseOutcome{IsWin: isWin, Reason: reason, At: time.Now()}
		return nil
	})
}
