package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/prashant-hada-dev/sales-agent-proto/internal/models"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/repository"
)

// CurrentStage depends only on the document and payment flags of u.
func CurrentStage(u *models.User) models.FunnelStage {
	return u.StageInputs().Stage()
}

// ContextBlob is everything the agent gets to see for one turn.
type ContextBlob struct {
	Stage            models.FunnelStage     `json:"stage"`
	Persona          Persona                `json:"-"`
	Language         Language               `json:"language"`
	Message          string                 `json:"message"`
	Recent           []models.Message       `json:"recent_messages"`
	Summary          string                 `json:"summary,omitempty"`
	Contact          models.ContactInfo     `json:"contact"`
	Document         *models.DocumentRecord `json:"document,omitempty"`
	Payment          *models.PaymentRecord  `json:"payment,omitempty"`
	PaymentCompleted bool                   `json:"payment_completed"`
}

// Text renders the blob as the prompt handed to the agent.
func (b ContextBlob) Text() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Funnel stage: %s\n", b.Stage)
	fmt.Fprintf(&sb, "Preferred language: %s\n", b.Language)
	if b.PaymentCompleted {
		sb.WriteString("Payment status: COMPLETED. Do not request payment or send payment links.\n")
	}
	if b.Summary != "" {
		fmt.Fprintf(&sb, "\nConversation summary:\n%s\n", b.Summary)
	}

	if contact := contactLines(b.Contact); contact != "" {
		fmt.Fprintf(&sb, "\nKnown contact details:\n%s", contact)
	}
	if b.Document != nil {
		fmt.Fprintf(&sb, "\nDocument state: %s\n", mustJSON(b.Document))
	}
	if b.Payment != nil {
		fmt.Fprintf(&sb, "Payment state: %s\n", mustJSON(b.Payment))
	}

	if len(b.Recent) > 0 {
		sb.WriteString("\nRecent messages:\n")
		for _, m := range b.Recent {
			marker := ""
			if m.IsFollowUp() {
				marker = " (follow-up)"
			}
			fmt.Fprintf(&sb, "%s%s: %s\n", m.Role, marker, m.Content)
		}
	}

	fmt.Fprintf(&sb, "\nCurrent message: %s\n", b.Message)
	return sb.String()
}

// Funnel selects the stage for a user and assembles the agent context.
type Funnel struct {
	conversations repository.ConversationStore
	recent        int
}

func NewFunnel(conversations repository.ConversationStore, recent int) *Funnel {
	if recent <= 0 {
		recent = 5
	}
	return &Funnel{
		conversations: conversations,
		recent:        recent,
	}
}

func (f *Funnel) BuildContext(ctx context.Context, u *models.User, message string) (ContextBlob, error) {
	recent, err := f.conversations.Recent(ctx, u.ID, f.recent)
	if err != nil {
		return ContextBlob{}, fmt.Errorf("failed to load recent messages: %w", err)
	}

	stage := CurrentStage(u)
	blob := ContextBlob{
		Stage:            stage,
		Persona:          PersonaFor(stage),
		Language:         DetectLanguage(message),
		Message:          message,
		Recent:           recent,
		Summary:          u.Summary,
		Contact:          u.Contact,
		PaymentCompleted: u.PaymentCompleted(),
	}
	if u.Document != nil {
		d := *u.Document
		blob.Document = &d
	}
	if u.Payment != nil {
		p := *u.Payment
		blob.Payment = &p
	}
	return blob, nil
}

func contactLines(c models.ContactInfo) string {
	var sb strings.Builder
	for _, f := range []struct {
		label string
		field models.ContactField
	}{
		{"Name", c.Name},
		{"Email", c.Email},
		{"Phone", c.Phone},
	} {
		if f.field.Empty() {
			continue
		}
		fmt.Fprintf(&sb, "- %s: %s\n", f.label, f.field.Value)
	}
	return sb.String()
}

func mustJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
