package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/models"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/repository"
	"go.uber.org/zap"
)

// Summarizer condenses recent conversation into the rolling context summary.
type Summarizer interface {
	Summarize(ctx context.Context, messages []models.Message) (summary, short string, err error)
}

// ConversationService appends messages and refreshes the rolling summary every interval messages.
// Summaries run in the background; their failure is logged and never reaches the caller.
type ConversationService struct {
	store      repository.ConversationStore
	summarizer Summarizer
	interval   int
	window     int
	timeout    time.Duration
	wg         sync.WaitGroup
	logger     *zap.Logger
}

func NewConversationService(store repository.ConversationStore, summarizer Summarizer, interval int, timeout time.Duration, logger *zap.Logger) *ConversationService {
	return &ConversationService{
		store:      store,
		summarizer: summarizer,
		interval:   interval,
		window:     4 * interval,
		timeout:    timeout,
		logger:     logger,
	}
}

func (s *ConversationService) Append(ctx context.Context, userID uuid.UUID, msg models.Message) error {
	count, err := s.store.Append(ctx, userID, msg)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	if s.summarizer != nil && s.interval > 0 && count%s.interval == 0 {
		s.wg.Add(1)
		go s.summarize(userID)
	}
	return nil
}

func (s *ConversationService) Recent(ctx context.Context, userID uuid.UUID, n int) ([]models.Message, error) {
	return s.store.Recent(ctx, userID, n)
}

func (s *ConversationService) History(ctx context.Context, userID uuid.UUID) ([]models.Message, error) {
	return s.store.Recent(ctx, userID, 0)
}

func (s *ConversationService) UpdateSummary(ctx context.Context, userID uuid.UUID, summary, short string) error {
	return s.store.UpdateSummary(ctx, userID, summary, short)
}

// Wait blocks until in-flight summaries have finished.
func (s *ConversationService) Wait() {
	s.wg.Wait()
}

func (s *ConversationService) summarize(userID uuid.UUID) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	msgs, err := s.store.Recent(ctx, userID, s.window)
	if err != nil {
		s.logger.Warn("Failed to load messages for summary", zap.String("user_id", userID.String()), zap.Error(err))
		return
	}
	summary, short, err := s.summarizer.Summarize(ctx, msgs)
	if err != nil {
		s.logger.Warn("Failed to summarize conversation", zap.String("user_id", userID.String()), zap.Error(err))
		return
	}
	if err := s.store.UpdateSummary(ctx, userID, summary, short); err != nil {
		s.logger.Warn("Failed to store summary", zap.String("user_id", userID.String()), zap.Error(err))
		return
	}
	s.logger.Debug("Conversation summary updated", zap.String("user_id", userID.String()))
}

// ExtractiveSummarizer builds the summary from the messages themselves. It is used when no LLM is configured.
type ExtractiveSummarizer struct{}

func (ExtractiveSummarizer) Summarize(_ context.Context, messages []models.Message) (string, string, error) {
	var b strings.Builder
	var lastUser string
	for _, m := range messages {
		if m.IsFollowUp() {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, strings.TrimSpace(m.Content))
		if m.Role == models.RoleUser {
			lastUser = strings.TrimSpace(m.Content)
		}
	}
	short := "No user messages yet."
	if lastUser != "" {
		short = "Latest user request: " + lastUser
	}
	return strings.TrimSpace(b.String()), short, nil
}
