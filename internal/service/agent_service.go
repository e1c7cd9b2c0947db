package service

import (
	"context"
	"strings"

	"github.com/prashant-hada-dev/sales-agent-proto/internal/models"
)

// AgentDispatcher runs one conversational turn for a persona.
type AgentDispatcher interface {
	Run(ctx context.Context, persona Persona, contextText string) (AgentReply, error)
}

// OfflineAgent answers from canned replies when no LLM is configured. Document requests go
// through the keyword fallback; the payment stage reports create_payment_link explicitly.
type OfflineAgent struct{}

func (OfflineAgent) Run(_ context.Context, persona Persona, contextText string) (AgentReply, error) {
	message := strings.ToLower(currentMessage(contextText))
	paid := strings.Contains(contextText, "Payment status: COMPLETED")

	var text string
	var calls []ToolCall
	switch {
	case paid:
		text = "Thank you, your payment is confirmed and your registration is under way. It usually takes 15-20 days. Is there anything else I can help you with?"
	case persona.Name == PersonaFor(models.StageDocumentVerification).Name:
		text = "Please upload your identity proof (PAN card, Aadhaar card or passport) using the upload button. As soon as it is verified we can move on to payment."
	case persona.Name == PersonaFor(models.StagePayment).Name:
		text = "Your payment link is on its way. Please complete the payment soon, the link expires in 60 minutes."
		calls = []ToolCall{{Name: ToolCreatePaymentLink}}
	case containsAny(message, "price", "cost", "fee", "payment", "kitna"):
		text = "Private Limited Company registration is Rs 5,000, LLP Rs 6,000 and One Person Company Rs 4,500, all government fees included. To get started, please upload your identity proof so we can begin document verification."
	case containsAny(message, "register", "company", "incorporat", "llp", "opc", "document"):
		text = "Great! To proceed with your company registration, I'll need to verify your identity. Could you please upload your identity proof document (PAN card, Aadhaar card, or passport)?"
	default:
		text = "Thank you for your interest in RegisterKaro's company incorporation services! Could you share your name, email, and the type of company you're looking to register?"
	}
	if calls != nil {
		return AgentReply{Text: text, ToolCalls: calls, ToolCallsReported: true}, nil
	}
	return AgentReply{Text: text}, nil
}

// currentMessage pulls the latest user message out of a rendered context blob.
func currentMessage(contextText string) string {
	const marker = "Current message: "
	if idx := strings.LastIndex(contextText, marker); idx != -1 {
		return strings.TrimSpace(contextText[idx+len(marker):])
	}
	return contextText
}
