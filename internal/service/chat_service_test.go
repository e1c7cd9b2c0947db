package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prashant-hada-dev/sales-agent-proto/internal/dto"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userMessage(text string) dto.Inbound {
	return dto.Inbound{Type: dto.TypeMessage, Text: text}
}

func TestHandleMessage_salesTurnRequestsDocument(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	conn := env.connect("s")
	env.agent.fn = replyWith("Great! Please upload your PAN card.", ToolCall{Name: ToolUploadDocument})

	require.NoError(t, env.chat.HandleMessage(ctx, "s", userMessage("I want to register a private limited company")))

	out := conn.messages()
	require.Len(t, out, 2)
	assert.Equal(t, dto.Message("Great! Please upload your PAN card."), out[0])
	assert.Equal(t, dto.ShowDocumentUpload(), out[1])
	assert.Equal(t, []string{"sales_agent"}, env.agent.personas)

	u, err := env.identity.Lookup(ctx, models.NewIdentifierSet(sessionID("s")))
	require.NoError(t, err)
	assert.Equal(t, models.StageDocumentVerification, CurrentStage(u))

	history, err := env.conversations.History(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.RoleUser, history[0].Role)
	assert.Equal(t, models.RoleAssistant, history[1].Role)

	// the next turn goes to the document persona
	env.agent.fn = replyWith("Waiting for your document.")
	require.NoError(t, env.chat.HandleMessage(ctx, "s", userMessage("ok")))
	assert.Equal(t, []string{"sales_agent", "document_agent"}, env.agent.personas)
}

func TestHandleMessage_paidUserIsNeverOfferedALink(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.user(t, sessionID("s"), deviceID("dev"))
	_, err := env.store.Update(ctx, u.ID, func(u *models.User) error {
		u.RecordPayment(models.PaymentRecord{ID: "pay_old", Status: models.PaymentCaptured})
		return nil
	})
	require.NoError(t, err)

	var seen string
	env.agent.fn = func(_ Persona, contextText string) (AgentReply, error) {
		seen = contextText
		return AgentReply{
			Text:              "Here is your payment link: https://rzp.io/l/x",
			ToolCalls:         []ToolCall{{Name: ToolCreatePaymentLink}},
			ToolCallsReported: true,
		}, nil
	}

	// a new tab on the same device
	conn := env.connect("s2")
	require.NoError(t, env.chat.HandleMessage(ctx, "s2", dto.Inbound{Type: dto.TypeMessage, Text: "hello again", DeviceID: "dev"}))

	assert.Contains(t, seen, "Payment status: COMPLETED")
	assert.Empty(t, conn.ofType(dto.TypePaymentLink))
	assert.Zero(t, env.gateway.createCount())
	assert.ElementsMatch(t, []string{"s", "s2"}, env.reload(t, u).Sessions)
}

func TestHandleMessage_agentFailureRepliesPolitely(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	conn := env.connect("s")
	env.agent.fn = func(Persona, string) (AgentReply, error) {
		return AgentReply{}, errors.New("upstream 502")
	}

	err := env.chat.HandleMessage(ctx, "s", userMessage("hi"))
	require.Error(t, err)
	assert.True(t, IsTransient(err))

	out := conn.messages()
	require.Len(t, out, 1)
	assert.Equal(t, ErrorReplyText, out[0].Text)

	u, err := env.identity.Lookup(ctx, models.NewIdentifierSet(sessionID("s")))
	require.NoError(t, err)
	assert.Equal(t, models.StageSales, CurrentStage(u))
	history, err := env.conversations.History(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.RoleUser, history[0].Role)
}

func TestHandleMessage_retryAfterFailureStoresMessageOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.connect("s")
	env.agent.fn = func(Persona, string) (AgentReply, error) {
		return AgentReply{}, errors.New("upstream 502")
	}
	require.Error(t, env.chat.HandleMessage(ctx, "s", userMessage("I want an LLP")))

	env.agent.fn = replyWith("LLP registration is Rs 6,000.")
	require.NoError(t, env.chat.HandleMessage(ctx, "s", userMessage("I want an LLP")))

	u, err := env.identity.Lookup(ctx, models.NewIdentifierSet(sessionID("s")))
	require.NoError(t, err)
	history, err := env.conversations.History(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.RoleUser, history[0].Role)
	assert.Equal(t, "I want an LLP", history[0].Content)
	assert.Equal(t, models.RoleAssistant, history[1].Role)

	// once answered, the same words again are a new message
	require.NoError(t, env.chat.HandleMessage(ctx, "s", userMessage("I want an LLP")))
	history, err = env.conversations.History(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestHandleMessage_emptyReplyIsAFailure(t *testing.T) {
	env := newTestEnv(t)
	conn := env.connect("s")
	env.agent.fn = replyWith("   ")

	err := env.chat.HandleMessage(context.Background(), "s", userMessage("hi"))
	assert.ErrorIs(t, err, ErrMalformedResponse)
	require.Len(t, conn.messages(), 1)
	assert.Equal(t, ErrorReplyText, conn.messages()[0].Text)
}

func TestHandleMessage_blankTextIgnored(t *testing.T) {
	env := newTestEnv(t)
	conn := env.connect("s")

	require.NoError(t, env.chat.HandleMessage(context.Background(), "s", userMessage("  ")))
	assert.Empty(t, conn.messages())
	assert.Empty(t, env.agent.personas)
}

func TestHandleMessage_storesContactDetails(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.connect("s")

	in := dto.Inbound{
		Type:       dto.TypeMessage,
		Text:       "My name is Rahul Sharma, reach me at Rahul@Example.com or 9876543210",
		ClientInfo: &dto.ClientInfo{Name: "Rahul S."},
	}
	require.NoError(t, env.chat.HandleMessage(ctx, "s", in))

	u, err := env.identity.Lookup(ctx, models.NewIdentifierSet(sessionID("s")))
	require.NoError(t, err)
	assert.Equal(t, models.ContactField{Value: "Rahul S.", Verified: true}, u.Contact.Name)
	assert.Equal(t, models.ContactField{Value: "rahul@example.com"}, u.Contact.Email)
	assert.Equal(t, models.ContactField{Value: "9876543210"}, u.Contact.Phone)
}

func TestHandleMessage_previousSessionKeepsUser(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	old := env.user(t, sessionID("old"))
	env.connect("new")

	require.NoError(t, env.chat.HandleMessage(ctx, "new", dto.Inbound{Type: dto.TypeMessage, Text: "back", PreviousSessionID: "old"}))

	got := env.reload(t, old)
	assert.ElementsMatch(t, []string{"old", "new"}, got.Sessions)
}

func TestHandleInactive(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	conn := env.connect("s")

	// unknown session: nothing to follow up on
	require.NoError(t, env.chat.HandleInactive(ctx, "s", dto.Inbound{Type: dto.TypeInactive}))
	assert.Empty(t, conn.messages())

	u := env.user(t, sessionID("s"))
	_, _, err := env.payments.EnsureLink(ctx, u.ID, "")
	require.NoError(t, err)

	require.NoError(t, env.chat.HandleInactive(ctx, "s", dto.Inbound{Type: dto.TypeInactive, Context: "payment_pending"}))
	followUps := conn.ofType(dto.TypeFollowUp)
	require.Len(t, followUps, 1)
	assert.Equal(t, followUpPaymentUrgent, followUps[0].Text)

	history, err := env.conversations.History(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].IsFollowUp())
}

func TestFollowUpText(t *testing.T) {
	fresh := &models.User{}
	docPending := &models.User{Document: &models.DocumentRecord{Pending: true}}
	payPending := &models.User{Payment: &models.PaymentRecord{Pending: true, Status: models.PaymentCreated}}
	paid := &models.User{PaymentHistory: []models.PaymentRecord{{Status: models.PaymentCompleted}}}

	tests := []struct {
		name    string
		user    *models.User
		context string
		want    string
	}{
		{"sales", fresh, "", followUpSales},
		{"sales with payment context", fresh, "payment_pending", followUpPaymentUrgent},
		{"document", docPending, "", followUpDocument},
		{"payment", payPending, "", followUpPayment},
		{"payment escalated", payPending, "payment_pending", followUpPaymentUrgent},
		{"paid ignores payment context", paid, "payment_pending", followUpPostPayment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FollowUpText(tt.user, tt.context))
		})
	}
}

func TestNotifyPaymentConfirmed_reachesEverySession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.user(t, deviceID("dev"), sessionID("a"))
	u := env.user(t, deviceID("dev"), sessionID("b"))
	a, b := env.connect("a"), env.connect("b")

	env.chat.NotifyPaymentConfirmed(ctx, u)

	for _, conn := range []*recordingConn{a, b} {
		require.Len(t, conn.messages(), 1)
		assert.Equal(t, PaymentConfirmedText, conn.messages()[0].Text)
	}
}

func TestFunnelContextText(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.user(t, sessionID("s"))
	u.Contact.Email = models.ContactField{Value: "a@b.co"}
	u.Summary = "Wants an LLP in Pune"

	blob, err := NewFunnel(env.store, 5).BuildContext(ctx, u, "namaste, kitna lagega?")
	require.NoError(t, err)
	assert.Equal(t, models.StageSales, blob.Stage)
	assert.Equal(t, LanguageHindi, blob.Language)

	text := blob.Text()
	assert.Contains(t, text, "Funnel stage: sales")
	assert.Contains(t, text, "Wants an LLP in Pune")
	assert.Contains(t, text, "- Email: a@b.co")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(text), "Current message: namaste, kitna lagega?"))
}
