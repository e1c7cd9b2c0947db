package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prashant-hada-dev/sales-agent-proto/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestParseAgentReply(t *testing.T) {
	t.Run("trailing tool call line", func(t *testing.T) {
		reply := ParseAgentReply("Please upload your PAN card.\n{\"tool_calls\":[{\"name\":\"upload_document\",\"arguments\":{}}]}")
		assert.Equal(t, "Please upload your PAN card.", reply.Text)
		assert.True(t, reply.ToolCallsReported)
		require.Len(t, reply.ToolCalls, 1)
		assert.Equal(t, ToolUploadDocument, reply.ToolCalls[0].Name)
	})

	t.Run("fenced json with arguments", func(t *testing.T) {
		reply := ParseAgentReply("Here you go.\n```json\n{\"tool_calls\":[{\"name\":\"create_payment_link\",\"arguments\":{\"company_type\":\"llp\"}}]}\n```")
		assert.Equal(t, "Here you go.", reply.Text)
		require.Len(t, reply.ToolCalls, 1)
		assert.Equal(t, "llp", stringArg(reply.ToolCalls[0].Arguments, "company_type"))
	})

	t.Run("empty tool list is still reported", func(t *testing.T) {
		reply := ParseAgentReply("Hello!\n{\"tool_calls\":[]}")
		assert.Equal(t, "Hello!", reply.Text)
		assert.True(t, reply.ToolCallsReported)
		assert.Empty(t, reply.ToolCalls)
	})

	t.Run("plain text", func(t *testing.T) {
		reply := ParseAgentReply("  Registration takes 15-20 days. ")
		assert.Equal(t, "Registration takes 15-20 days.", reply.Text)
		assert.False(t, reply.ToolCallsReported)
	})

	t.Run("broken json stays text", func(t *testing.T) {
		content := "Sure {\"tool_calls\":[{\"name\":}"
		reply := ParseAgentReply(content)
		assert.Equal(t, content, reply.Text)
		assert.False(t, reply.ToolCallsReported)
	})
}

func TestDecodeJSONObject(t *testing.T) {
	var out struct {
		IsValid bool `json:"is_valid"`
	}
	require.NoError(t, decodeJSONObject("Result:\n{\"is_valid\": true}\nDone", &out))
	assert.True(t, out.IsValid)

	err := decodeJSONObject("no json here", &out)
	assert.ErrorIs(t, err, ErrMalformedResponse)

	err = decodeJSONObject("Sorry, I cannot help with that {}", &out)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestOfflineAgent(t *testing.T) {
	ctx := context.Background()
	agent := OfflineAgent{}

	reply, err := agent.Run(ctx, PersonaFor(models.StageSales), "Current message: I want to register a company")
	require.NoError(t, err)
	assert.False(t, reply.ToolCallsReported)
	// the canned reply drives the funnel through the keyword fallback
	assert.Equal(t, []ToolCall{{Name: ToolUploadDocument}}, FallbackToolCalls(reply.Text))

	reply, err = agent.Run(ctx, PersonaFor(models.StagePayment), "Current message: how do I pay?")
	require.NoError(t, err)
	assert.True(t, reply.ToolCallsReported)
	assert.Equal(t, []ToolCall{{Name: ToolCreatePaymentLink}}, reply.ToolCalls)
	assert.Empty(t, FallbackToolCalls(reply.Text))

	reply, err = agent.Run(ctx, PersonaFor(models.StagePostPayment), "Payment status: COMPLETED. Do not request payment.\nCurrent message: payment link please")
	require.NoError(t, err)
	assert.Empty(t, reply.ToolCalls)
	assert.Empty(t, FallbackToolCalls(reply.Text))
}

func TestExtractiveSummarizer(t *testing.T) {
	now := time.Now()
	summary, short, err := ExtractiveSummarizer{}.Summarize(context.Background(), []models.Message{
		{Role: models.RoleUser, Content: "Need an OPC", Timestamp: now},
		{Role: models.RoleAssistant, Content: "Are you still there?", Timestamp: now, Metadata: map[string]any{models.MetadataFollowUp: true}},
		{Role: models.RoleAssistant, Content: "Sure, OPC is Rs 4,500", Timestamp: now},
	})
	require.NoError(t, err)
	assert.Equal(t, "user: Need an OPC\nassistant: Sure, OPC is Rs 4,500", summary)
	assert.Equal(t, "Latest user request: Need an OPC", short)
}

type failingSummarizer struct{}

func (failingSummarizer) Summarize(context.Context, []models.Message) (string, string, error) {
	return "", "", errors.New("model unavailable")
}

func TestConversationService_summaryEveryInterval(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.user(t, sessionID("s"))

	for i := 0; i < 4; i++ {
		require.NoError(t, env.conversations.Append(ctx, u.ID, models.Message{Role: models.RoleUser, Content: "Need an LLP", Timestamp: time.Now()}))
	}
	env.conversations.Wait()
	assert.Empty(t, env.reload(t, u).Summary)

	require.NoError(t, env.conversations.Append(ctx, u.ID, models.Message{Role: models.RoleAssistant, Content: "LLP is Rs 6,000", Timestamp: time.Now()}))
	env.conversations.Wait()
	got := env.reload(t, u)
	assert.Contains(t, got.Summary, "LLP is Rs 6,000")
	assert.Equal(t, "Latest user request: Need an LLP", got.ShortSummary)
}

func TestConversationService_summaryFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.user(t, sessionID("s"))
	conversations := NewConversationService(env.store, failingSummarizer{}, 1, time.Second, zaptest.NewLogger(t))

	require.NoError(t, conversations.Append(ctx, u.ID, models.Message{Role: models.RoleUser, Content: "hi", Timestamp: time.Now()}))
	conversations.Wait()
	assert.Empty(t, env.reload(t, u).Summary)
}
