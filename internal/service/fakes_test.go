package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prashant-hada-dev/sales-agent-proto/internal/dto"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/models"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// recordingConn captures everything written to a session.
type recordingConn struct {
	mu     sync.Mutex
	out    []dto.Outbound
	failed bool
}

func (c *recordingConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed {
		return errors.New("broken pipe")
	}
	if o, ok := v.(dto.Outbound); ok {
		c.out = append(c.out, o)
	}
	return nil
}

func (c *recordingConn) Close() error { return nil }

func (c *recordingConn) messages() []dto.Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]dto.Outbound(nil), c.out...)
}

func (c *recordingConn) ofType(kind string) []dto.Outbound {
	var out []dto.Outbound
	for _, m := range c.messages() {
		if m.Type == kind {
			out = append(out, m)
		}
	}
	return out
}

// stubGateway issues predictable links. With block set, calls wait for ctx to end.
type stubGateway struct {
	mu       sync.Mutex
	creates  int
	checks   int
	status   GatewayStatus
	block    bool
	statuses map[string]bool
}

func newStubGateway() *stubGateway {
	return &stubGateway{
		status:   GatewayStatus{Status: models.PaymentCreated},
		statuses: make(map[string]bool),
	}
}

func (g *stubGateway) CreateLink(ctx context.Context, req LinkRequest) (*GatewayLink, error) {
	if g.blocking() {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.creates++
	id := fmt.Sprintf("pay_%d", g.creates)
	g.statuses[id] = true
	return &GatewayLink{
		PaymentID: id,
		Link:      "https://rzp.io/l/RegisterKaro-" + id,
		Amount:    req.Amount,
		Currency:  req.Currency,
	}, nil
}

func (g *stubGateway) GetStatus(ctx context.Context, paymentID string) (*GatewayStatus, error) {
	if g.blocking() {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checks++
	if !g.statuses[paymentID] {
		return nil, ErrPaymentNotFound
	}
	st := g.status
	return &st, nil
}

func (g *stubGateway) blocking() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.block
}

func (g *stubGateway) setBlock(b bool) {
	g.mu.Lock()
	g.block = b
	g.mu.Unlock()
}

func (g *stubGateway) setStatus(st GatewayStatus) {
	g.mu.Lock()
	g.status = st
	g.mu.Unlock()
}

func (g *stubGateway) createCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.creates
}

// scriptedAgent replies through fn and records the personas it was asked to play.
type scriptedAgent struct {
	mu       sync.Mutex
	fn       func(persona Persona, contextText string) (AgentReply, error)
	personas []string
}

func (a *scriptedAgent) Run(ctx context.Context, persona Persona, contextText string) (AgentReply, error) {
	a.mu.Lock()
	a.personas = append(a.personas, persona.Name)
	fn := a.fn
	a.mu.Unlock()
	return fn(persona, contextText)
}

func replyWith(text string, calls ...ToolCall) func(Persona, string) (AgentReply, error) {
	return func(Persona, string) (AgentReply, error) {
		return AgentReply{Text: text, ToolCalls: calls, ToolCallsReported: true}, nil
	}
}

// analyzerFunc adapts a function to DocumentAnalyzer.
type analyzerFunc func(ctx context.Context, doc models.DocumentRecord) (DocumentVerdict, error)

func (f analyzerFunc) Analyze(ctx context.Context, doc models.DocumentRecord) (DocumentVerdict, error) {
	return f(ctx, doc)
}

func validAnalyzer() analyzerFunc {
	return func(context.Context, models.DocumentRecord) (DocumentVerdict, error) {
		return DocumentVerdict{IsValid: true, Analysis: "PAN card, valid and clear"}, nil
	}
}

type testEnv struct {
	store         *repository.MemoryStore
	identity      *IdentityResolver
	conversations *ConversationService
	payments      *PaymentService
	triggers      *Triggers
	registry      *Registry
	agent         *scriptedAgent
	chat          *ChatService
	documents     *DocumentService
	gateway       *stubGateway
	analyzer      DocumentAnalyzer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)

	env := &testEnv{
		store:    repository.NewMemoryStore(logger),
		gateway:  newStubGateway(),
		registry: NewRegistry(logger),
		agent:    &scriptedAgent{fn: replyWith("Hello! How can I help?")},
	}
	env.analyzer = validAnalyzer()

	files, err := NewLocalFiles(t.TempDir())
	require.NoError(t, err)

	env.identity = NewIdentityResolver(env.store, logger)
	env.conversations = NewConversationService(env.store, ExtractiveSummarizer{}, 5, time.Second, logger)
	env.payments = NewPaymentService(env.store, env.gateway, 100*time.Millisecond, time.Hour, logger)
	env.triggers = NewTriggers(env.store, env.payments, logger)
	env.chat = NewChatService(env.identity, env.store, env.conversations, NewFunnel(env.store, 5), env.agent, env.triggers, env.registry, time.Second, logger)
	env.documents = NewDocumentService(env.store, env.conversations, env.payments,
		analyzerFunc(func(ctx context.Context, doc models.DocumentRecord) (DocumentVerdict, error) {
			return env.analyzer.Analyze(ctx, doc)
		}),
		files, nil, env.registry, time.Second, time.Hour, logger)

	t.Cleanup(env.conversations.Wait)
	return env
}

// connect binds a recording connection to sessionID.
func (e *testEnv) connect(sessionID string) *recordingConn {
	conn := &recordingConn{}
	e.registry.Bind(sessionID, conn)
	return conn
}

func (e *testEnv) user(t *testing.T, ids ...models.Identifier) *models.User {
	t.Helper()
	u, err := e.identity.Resolve(context.Background(), models.NewIdentifierSet(ids...))
	require.NoError(t, err)
	return u
}

func (e *testEnv) reload(t *testing.T, u *models.User) *models.User {
	t.Helper()
	got, err := e.store.Get(context.Background(), u.ID)
	require.NoError(t, err)
	return got
}

func sessionID(v string) models.Identifier {
	return models.Identifier{Kind: models.IdentifierSession, Value: v}
}

func deviceID(v string) models.Identifier {
	return models.Identifier{Kind: models.IdentifierDevice, Value: v}
}

func cookieID(v string) models.Identifier {
	return models.Identifier{Kind: models.IdentifierCookie, Value: v}
}

func phoneID(v string) models.Identifier {
	return models.Identifier{Kind: models.IdentifierPhone, Value: v}
}
