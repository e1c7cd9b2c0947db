package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/models"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/repository"
	"go.uber.org/zap"
)

// ToolCall is one structured tool invocation reported by the agent.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// AgentReply is what agent dispatch produced for one turn. ToolCallsReported is false when the
// dispatcher could not tell whether tools were used; only then is the reply text scanned for keywords.
type AgentReply struct {
	Text              string
	ToolCalls         []ToolCall
	ToolCallsReported bool
}

type SideEffectKind string

const (
	EffectShowDocumentUpload SideEffectKind = "show_document_upload"
	EffectPaymentLink        SideEffectKind = "payment_link"
	EffectPaymentConfirmed   SideEffectKind = "payment_confirmed"
)

// SideEffect is an instruction for the client that accompanies a reply.
type SideEffect struct {
	Kind      SideEffectKind
	Link      string
	PaymentID string
}

var documentKeywords = []string{
	"upload your document",
	"send your document",
	"need your document",
	"upload your id",
	"upload id",
	"upload proof",
	"address proof",
	"identity proof",
	"upload your address",
	"document verification",
}

// paymentLinkURL must accompany a "payment link" mention before the fallback creates a link.
var paymentLinkURL = regexp.MustCompile(`https?://\S+|rzp\.io/\S+`)

// Triggers turns agent tool calls into funnel state mutations. Every trigger is idempotent:
// replaying a call leaves the user as the first call left it.
type Triggers struct {
	store    repository.UserStore
	payments *PaymentService
	now      func() time.Time
	logger   *zap.Logger
}

func NewTriggers(store repository.UserStore, payments *PaymentService, logger *zap.Logger) *Triggers {
	return &Triggers{
		store:    store,
		payments: payments,
		now:      time.Now,
		logger:   logger,
	}
}

// OnAgentReply applies the triggers found in reply and returns the side effects for the client.
// A failed trigger leaves no partial mutation behind and stops further processing.
func (t *Triggers) OnAgentReply(ctx context.Context, userID uuid.UUID, reply AgentReply) ([]SideEffect, error) {
	calls := reply.ToolCalls
	if !reply.ToolCallsReported {
		calls = FallbackToolCalls(reply.Text)
		if len(calls) > 0 {
			t.logger.Debug("Tool calls inferred from reply text",
				zap.String("user_id", userID.String()),
				zap.Int("count", len(calls)),
			)
		}
	}

	var effects []SideEffect
	seen := make(map[string]bool, len(calls))
	for _, call := range calls {
		// One reply asking twice for the same tool is one request.
		if seen[call.Name] {
			continue
		}
		seen[call.Name] = true

		effect, err := t.apply(ctx, userID, call)
		if err != nil {
			return effects, err
		}
		if effect != nil {
			effects = append(effects, *effect)
		}
	}
	return effects, nil
}

func (t *Triggers) apply(ctx context.Context, userID uuid.UUID, call ToolCall) (*SideEffect, error) {
	switch call.Name {
	case ToolUploadDocument:
		return t.requestDocument(ctx, userID)
	case ToolCreatePaymentLink:
		return t.createPaymentLink(ctx, userID, stringArg(call.Arguments, "company_type"))
	case ToolVerifyPaymentStatus:
		return t.verifyPayment(ctx, userID, stringArg(call.Arguments, "payment_id"))
	default:
		t.logger.Warn("Unknown tool call ignored", zap.String("user_id", userID.String()), zap.String("tool", call.Name))
		return nil, nil
	}
}

var errTriggerSkipped = errors.New("trigger skipped")

func (t *Triggers) requestDocument(ctx context.Context, userID uuid.UUID) (*SideEffect, error) {
	_, err := t.store.Update(ctx, userID, func(u *models.User) error {
		if u.PaymentCompleted() || (u.Document != nil && u.Document.Verified && !u.Document.Pending) {
			return errTriggerSkipped
		}
		if u.DocumentPending() {
			return nil
		}
		u.Document = &models.DocumentRecord{
			ID:          uuid.NewString(),
			Pending:     true,
			RequestedAt: t.now(),
		}
		return nil
	})
	if errors.Is(err, errTriggerSkipped) {
		t.logger.Debug("Document request ignored", zap.String("user_id", userID.String()))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to request document: %w", err)
	}
	return &SideEffect{Kind: EffectShowDocumentUpload}, nil
}

func (t *Triggers) createPaymentLink(ctx context.Context, userID uuid.UUID, companyType string) (*SideEffect, error) {
	rec, _, err := t.payments.EnsureLink(ctx, userID, companyType)
	if errors.Is(err, ErrPaymentCompleted) {
		t.logger.Debug("Payment link not offered to paid user", zap.String("user_id", userID.String()))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &SideEffect{Kind: EffectPaymentLink, Link: rec.Link, PaymentID: rec.ID}, nil
}

func (t *Triggers) verifyPayment(ctx context.Context, userID uuid.UUID, paymentID string) (*SideEffect, error) {
	rec, justCompleted, err := t.payments.Refresh(ctx, userID, paymentID)
	if errors.Is(err, ErrPaymentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if justCompleted {
		return &SideEffect{Kind: EffectPaymentConfirmed, PaymentID: rec.ID}, nil
	}
	return nil, nil
}

// FallbackToolCalls recovers tool calls from free text when the dispatcher did not report them.
func FallbackToolCalls(text string) []ToolCall {
	lower := strings.ToLower(text)

	var calls []ToolCall
	for _, kw := range documentKeywords {
		if strings.Contains(lower, kw) {
			calls = append(calls, ToolCall{Name: ToolUploadDocument})
			break
		}
	}
	if strings.Contains(lower, "payment link") && paymentLinkURL.MatchString(lower) {
		calls = append(calls, ToolCall{Name: ToolCreatePaymentLink})
	}
	return calls
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
