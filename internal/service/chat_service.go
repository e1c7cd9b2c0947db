package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/dto"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/models"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/repository"
	"go.uber.org/zap"
)

const (
	ErrorReplyText          = "I'm having trouble processing your request. Please try again."
	UnknownSessionReplyText = "Unknown session ID. Please refresh the page and try again."
)

// Inactivity follow-ups by stage.
const (
	followUpSales          = "Just checking in - are you still there? I'm here to help with your company registration."
	followUpDocument       = "I noticed you haven't uploaded your document yet. This is an important step to secure your company registration. Can I help with any questions about the document requirements?"
	followUpPayment        = "I noticed you haven't completed the payment yet. Would you like me to guide you through the payment process? It's very simple and secure."
	followUpPaymentUrgent  = "Your payment is pending and your registration slot is at risk! Is there any payment issue I can help you resolve right now?"
	followUpPostPayment    = "Your registration is in progress. Let me know if you have any questions in the meantime."
	inactiveContextPayment = "payment_pending"
)

// ChatService runs the per-message flow: identify, store, build context, dispatch,
// apply triggers and deliver. Messages of one session are processed one at a time.
type ChatService struct {
	identity      *IdentityResolver
	store         repository.UserStore
	conversations *ConversationService
	funnel        *Funnel
	agent         AgentDispatcher
	triggers      *Triggers
	registry      *Registry
	sessions      *keyedMutex
	timeout       time.Duration
	now           func() time.Time
	logger        *zap.Logger
}

func NewChatService(
	identity *IdentityResolver,
	store repository.UserStore,
	conversations *ConversationService,
	funnel *Funnel,
	agent AgentDispatcher,
	triggers *Triggers,
	registry *Registry,
	timeout time.Duration,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		identity:      identity,
		store:         store,
		conversations: conversations,
		funnel:        funnel,
		agent:         agent,
		triggers:      triggers,
		registry:      registry,
		sessions:      newKeyedMutex(),
		timeout:       timeout,
		now:           time.Now,
		logger:        logger,
	}
}

// Identifiers collects every identifier carried by an envelope received on sessionID.
// Client-supplied phone and email count as verified.
func Identifiers(sessionID string, in dto.Inbound) models.IdentifierSet {
	ids := []models.Identifier{
		{Kind: models.IdentifierSession, Value: sessionID},
		{Kind: models.IdentifierSession, Value: in.PreviousSessionID},
		{Kind: models.IdentifierCookie, Value: in.CookieID},
		{Kind: models.IdentifierDevice, Value: in.DeviceID},
	}
	if ci := in.ClientInfo; ci != nil {
		ids = append(ids,
			models.Identifier{Kind: models.IdentifierDevice, Value: ci.Device},
			models.Identifier{Kind: models.IdentifierPhone, Value: ci.Phone},
			models.Identifier{Kind: models.IdentifierEmail, Value: ci.Email},
		)
	}
	return models.NewIdentifierSet(ids...)
}

// Identify resolves the user behind an envelope and records any client-supplied name.
func (s *ChatService) Identify(ctx context.Context, sessionID string, in dto.Inbound) (*models.User, error) {
	u, err := s.identity.Resolve(ctx, Identifiers(sessionID, in))
	if err != nil {
		return nil, err
	}

	if ci := in.ClientInfo; ci != nil && strings.TrimSpace(ci.Name) != "" {
		name := models.ContactField{Value: strings.TrimSpace(ci.Name), Verified: true}
		if u.Contact.Name != name {
			u, err = s.store.Update(ctx, u.ID, func(u *models.User) error {
				u.Contact.Name = name
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
	}
	return u, nil
}

// HandleMessage processes one user message. Collaborator failures end in the polite
// retry reply; the returned error is for logging only.
func (s *ChatService) HandleMessage(ctx context.Context, sessionID string, in dto.Inbound) error {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil
	}
	if sessionID == "" {
		// No identifiers at all: the user lives for this session only.
		sessionID = uuid.NewString()
	}

	unlock := s.sessions.Lock(sessionID)
	defer unlock()

	log := s.logger.With(zap.String("session_id", sessionID))

	u, err := s.Identify(ctx, sessionID, in)
	if err != nil {
		log.Error("Failed to resolve user", zap.Error(err))
		s.registry.Send(sessionID, dto.Message(ErrorReplyText))
		return err
	}
	log = log.With(zap.String("user_id", u.ID.String()))

	if err := s.storeUserMessage(ctx, u.ID, text); err != nil {
		log.Error("Failed to store user message", zap.Error(err))
		s.registry.Send(sessionID, dto.Message(ErrorReplyText))
		return err
	}

	if extracted := ExtractContact(text); extracted != (models.ContactInfo{}) {
		updated, err := s.store.Update(ctx, u.ID, func(u *models.User) error {
			MergeContact(&u.Contact, extracted)
			return nil
		})
		if err != nil {
			log.Warn("Failed to store extracted contact", zap.Error(err))
		} else {
			u = updated
		}
	}

	blob, err := s.funnel.BuildContext(ctx, u, text)
	if err != nil {
		log.Error("Failed to build agent context", zap.Error(err))
		s.registry.Send(sessionID, dto.Message(ErrorReplyText))
		return err
	}
	log = log.With(zap.String("stage", string(blob.Stage)))

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	reply, err := s.agent.Run(runCtx, blob.Persona, blob.Text())
	cancel()
	if err == nil && strings.TrimSpace(reply.Text) == "" {
		err = ErrMalformedResponse
	}
	if err != nil {
		log.Error("Agent dispatch failed", zap.Error(err))
		s.registry.Send(sessionID, dto.Message(ErrorReplyText))
		return transient("run agent", err)
	}

	if err := s.conversations.Append(ctx, u.ID, models.Message{Role: models.RoleAssistant, Content: reply.Text, Timestamp: s.now()}); err != nil {
		log.Warn("Failed to store agent reply", zap.Error(err))
	}
	s.registry.Send(sessionID, dto.Message(reply.Text))

	effects, err := s.triggers.OnAgentReply(ctx, u.ID, reply)
	s.deliver(ctx, sessionID, u.ID, effects)
	if err != nil {
		log.Error("Failed to apply agent triggers", zap.Error(err))
		if IsTransient(err) {
			s.registry.Send(sessionID, dto.Message(ErrorReplyText))
		}
		return err
	}
	return nil
}

// storeUserMessage appends text unless it repeats a user message that never got a reply,
// which is what a client retry after a failed turn looks like.
func (s *ChatService) storeUserMessage(ctx context.Context, userID uuid.UUID, text string) error {
	last, err := s.conversations.Recent(ctx, userID, 1)
	if err != nil {
		return err
	}
	if len(last) == 1 && last[0].Role == models.RoleUser && last[0].Content == text {
		return nil
	}
	return s.conversations.Append(ctx, userID, models.Message{Role: models.RoleUser, Content: text, Timestamp: s.now()})
}

func (s *ChatService) deliver(ctx context.Context, sessionID string, userID uuid.UUID, effects []SideEffect) {
	for _, e := range effects {
		switch e.Kind {
		case EffectShowDocumentUpload:
			s.registry.Send(sessionID, dto.ShowDocumentUpload())
		case EffectPaymentLink:
			s.registry.Send(sessionID, dto.PaymentLink(e.Link))
		case EffectPaymentConfirmed:
			msg := models.Message{Role: models.RoleAssistant, Content: PaymentConfirmedText, Timestamp: s.now()}
			if err := s.conversations.Append(ctx, userID, msg); err != nil {
				s.logger.Warn("Failed to store payment confirmation", zap.String("user_id", userID.String()), zap.Error(err))
			}
			s.registry.Send(sessionID, dto.Message(PaymentConfirmedText))
		}
	}
}

// HandleInactive sends the follow-up matching the user's stage. A user who has paid is never
// nudged towards payment, whatever context the client reports.
func (s *ChatService) HandleInactive(ctx context.Context, sessionID string, in dto.Inbound) error {
	unlock := s.sessions.Lock(sessionID)
	defer unlock()

	u, err := s.identity.Lookup(ctx, Identifiers(sessionID, in))
	if errors.Is(err, ErrUnknownSession) {
		// Nothing was said yet; there is nothing to follow up on.
		return nil
	}
	if err != nil {
		return err
	}

	text := FollowUpText(u, in.Context)
	msg := models.Message{
		Role:      models.RoleAssistant,
		Content:   text,
		Timestamp: s.now(),
		Metadata:  map[string]any{models.MetadataFollowUp: true},
	}
	if err := s.conversations.Append(ctx, u.ID, msg); err != nil {
		return err
	}
	s.registry.Send(sessionID, dto.FollowUp(text))
	return nil
}

// FollowUpText picks the inactivity follow-up for u.
func FollowUpText(u *models.User, inactiveContext string) string {
	switch CurrentStage(u) {
	case models.StagePostPayment:
		return followUpPostPayment
	case models.StageDocumentVerification:
		return followUpDocument
	case models.StagePayment:
		if inactiveContext == inactiveContextPayment {
			return followUpPaymentUrgent
		}
		return followUpPayment
	}
	if inactiveContext == inactiveContextPayment && !u.PaymentCompleted() {
		return followUpPaymentUrgent
	}
	return followUpSales
}

// NotifyPaymentConfirmed records the confirmation in the conversation and pushes it to every live session of u.
func (s *ChatService) NotifyPaymentConfirmed(ctx context.Context, u *models.User) {
	msg := models.Message{Role: models.RoleAssistant, Content: PaymentConfirmedText, Timestamp: s.now()}
	if err := s.conversations.Append(ctx, u.ID, msg); err != nil {
		s.logger.Warn("Failed to store payment confirmation", zap.String("user_id", u.ID.String()), zap.Error(err))
	}
	s.registry.SendToUser(u, dto.Message(PaymentConfirmedText))
}
