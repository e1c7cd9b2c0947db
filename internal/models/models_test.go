package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func TestNewIdentifierSet_normalizesAndSorts(t *testing.T) {
	set := NewIdentifierSet(
		Identifier{Kind: IdentifierSession, Value: "s-1"},
		Identifier{Kind: IdentifierEmail, Value: "  Jane@Example.COM "},
		Identifier{Kind: IdentifierPhone, Value: "+91 98765-43210"},
		Identifier{Kind: IdentifierDevice, Value: "dev-1"},
		Identifier{Kind: IdentifierCookie, Value: ""},
		Identifier{Kind: IdentifierPhone, Value: "123"},
		Identifier{Kind: IdentifierSession, Value: "s-1"},
	)

	require.Len(t, set, 4)
	assert.Equal(t, Identifier{Kind: IdentifierDevice, Value: "dev-1"}, set[0])
	assert.Equal(t, Identifier{Kind: IdentifierPhone, Value: "+919876543210"}, set[1])
	assert.Equal(t, Identifier{Kind: IdentifierEmail, Value: "jane@example.com"}, set[2])
	assert.Equal(t, Identifier{Kind: IdentifierSession, Value: "s-1"}, set[3])
	assert.True(t, set.HasAuthoritative())
}

func TestNewUser_provisionalUntilAuthoritative(t *testing.T) {
	u := NewUser(NewIdentifierSet(
		Identifier{Kind: IdentifierSession, Value: "s-1"},
		Identifier{Kind: IdentifierCookie, Value: "c-1"},
	), t0)
	assert.True(t, u.Provisional)
	assert.Equal(t, []string{"s-1"}, u.Sessions)
	assert.Equal(t, "c-1", u.CookieID)

	u.AddIdentifier(Identifier{Kind: IdentifierDevice, Value: "dev-1"})
	assert.False(t, u.Provisional)

	u.AddIdentifier(Identifier{Kind: IdentifierSession, Value: "s-1"})
	u.AddIdentifier(Identifier{Kind: IdentifierSession, Value: "s-2"})
	assert.Equal(t, []string{"s-1", "s-2"}, u.Sessions)
}

func TestUser_IdentifiersSkipUnverifiedContact(t *testing.T) {
	u := NewUser(nil, t0)
	u.Contact.Email = ContactField{Value: "typed@example.com"}
	u.Contact.Phone = ContactField{Value: "+919876543210", Verified: true}

	ids := u.Identifiers()
	_, hasEmail := ids.First(IdentifierEmail)
	assert.False(t, hasEmail)
	assert.True(t, ids.Contains(Identifier{Kind: IdentifierPhone, Value: "+919876543210"}))
}

func TestStage_dependsOnlyOnFlags(t *testing.T) {
	tests := []struct {
		name string
		in   StageInputs
		want FunnelStage
	}{
		{"nothing pending", StageInputs{}, StageSales},
		{"document pending", StageInputs{DocumentPending: true}, StageDocumentVerification},
		{"document pending wins over payment", StageInputs{DocumentPending: true, PaymentPending: true}, StageDocumentVerification},
		{"payment pending", StageInputs{PaymentPending: true}, StagePayment},
		{"paid", StageInputs{PaymentCompleted: true}, StagePostPayment},
		{"stale pending flag after payment", StageInputs{PaymentPending: true, PaymentCompleted: true}, StagePostPayment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Stage())
		})
	}

	a := NewUser(nil, t0)
	b := NewUser(nil, t0.Add(time.Hour))
	a.Payment = &PaymentRecord{ID: "p1", Status: PaymentCreated, Pending: true}
	b.Payment = &PaymentRecord{ID: "p2", Status: PaymentAuthorized, Pending: true, Amount: 9}
	b.Summary = "different"
	assert.Equal(t, a.StageInputs().Stage(), b.StageInputs().Stage())
}

func TestUser_PaymentCompletedFromHistory(t *testing.T) {
	u := NewUser(nil, t0)
	u.RecordPayment(PaymentRecord{ID: "p1", Status: PaymentCaptured})
	u.RecordPayment(PaymentRecord{ID: "p2", Status: PaymentCreated, Pending: true})

	assert.Equal(t, "p2", u.Payment.ID)
	assert.Len(t, u.PaymentHistory, 2)
	assert.True(t, u.PaymentCompleted())
}

func TestUser_UpdatePaymentKeepsCurrent(t *testing.T) {
	u := NewUser(nil, t0)
	u.RecordPayment(PaymentRecord{ID: "p1", Status: PaymentCreated, Pending: true})
	u.RecordPayment(PaymentRecord{ID: "p2", Status: PaymentCreated, Pending: true})

	u.UpdatePayment(PaymentRecord{ID: "p1", Status: PaymentFailed})

	assert.Equal(t, "p2", u.Payment.ID)
	p1, ok := u.FindPayment("p1")
	require.True(t, ok)
	assert.Equal(t, PaymentFailed, p1.Status)
	assert.Len(t, u.PaymentHistory, 2)
}

func TestPaymentRecord_Open(t *testing.T) {
	open := PaymentRecord{Status: PaymentCreated, Pending: true, ExpiresAt: t0.Add(time.Hour)}
	assert.True(t, open.Open(t0))
	assert.False(t, open.Open(t0.Add(2*time.Hour)))

	done := PaymentRecord{Status: PaymentCaptured, Pending: true}
	assert.False(t, done.Open(t0))
}

func TestSetSummary_truncates(t *testing.T) {
	u := NewUser(nil, t0)
	long := make([]rune, MaxSummaryLength+50)
	for i := range long {
		long[i] = 'я'
	}
	u.SetSummary(string(long), string(long))

	assert.Len(t, []rune(u.Summary), MaxSummaryLength)
	assert.Len(t, []rune(u.ShortSummary), MaxShortSummaryLength)
}

func msg(role Role, content string, at time.Time) Message {
	return Message{Role: role, Content: content, Timestamp: at}
}

func TestMergeUsers(t *testing.T) {
	a := NewUser(NewIdentifierSet(Identifier{Kind: IdentifierSession, Value: "s-a"}, Identifier{Kind: IdentifierDevice, Value: "dev"}), t0)
	a.Conversation = []Message{msg(RoleUser, "hi", t0), msg(RoleAssistant, "hello", t0.Add(2*time.Second))}
	a.RecordPayment(PaymentRecord{ID: "p1", Status: PaymentCreated, Pending: true, CreatedAt: t0})

	b := NewUser(NewIdentifierSet(Identifier{Kind: IdentifierSession, Value: "s-b"}, Identifier{Kind: IdentifierCookie, Value: "c"}), t0.Add(time.Minute))
	b.Conversation = []Message{msg(RoleUser, "again", t0.Add(time.Second))}
	b.Contact.Phone = ContactField{Value: "+919876543210", Verified: true}
	b.RecordPayment(PaymentRecord{ID: "p2", Status: PaymentCaptured, CreatedAt: t0.Add(time.Minute)})

	merged := MergeUsers(a, b)

	assert.Equal(t, a.ID, merged.ID)
	assert.Equal(t, []string{"s-a", "s-b"}, merged.Sessions)
	assert.Equal(t, "c", merged.CookieID)
	assert.Equal(t, "+919876543210", merged.Contact.Phone.Value)
	require.Len(t, merged.Conversation, len(a.Conversation)+len(b.Conversation))
	assert.Equal(t, "hi", merged.Conversation[0].Content)
	assert.Equal(t, "again", merged.Conversation[1].Content)
	assert.Equal(t, "hello", merged.Conversation[2].Content)
	assert.Len(t, merged.PaymentHistory, 2)
	assert.Equal(t, "p2", merged.Payment.ID)
	assert.True(t, merged.PaymentCompleted())
	assert.Equal(t, t0, merged.CreatedAt)

	// inputs are untouched
	assert.Len(t, a.Conversation, 2)
	assert.Equal(t, []string{"s-a"}, a.Sessions)
}

func TestMergeUsers_idempotent(t *testing.T) {
	a := NewUser(NewIdentifierSet(Identifier{Kind: IdentifierSession, Value: "s-a"}), t0)
	a.Conversation = []Message{msg(RoleUser, "one", t0)}
	b := NewUser(NewIdentifierSet(Identifier{Kind: IdentifierSession, Value: "s-b"}), t0)
	b.Conversation = []Message{msg(RoleUser, "two", t0.Add(time.Second))}
	b.Documents = []DocumentRef{{DocumentID: "d1", UploadedAt: t0}}

	once := MergeUsers(a, b)
	twice := MergeUsers(once, b)

	assert.Equal(t, once, twice)
	assert.Len(t, twice.Conversation, 2)
	assert.Len(t, twice.Documents, 1)
}

func TestChooseCanonical(t *testing.T) {
	early := &User{ID: uuid.New(), CreatedAt: t0}
	late := &User{ID: uuid.New(), CreatedAt: t0.Add(time.Hour)}

	target, loser := ChooseCanonical(early, 1, late, 5)
	assert.Equal(t, late, target)
	assert.Equal(t, early, loser)

	target, loser = ChooseCanonical(late, 3, early, 3)
	assert.Equal(t, early, target)
	assert.Equal(t, late, loser)
}

func TestMessage_IsFollowUp(t *testing.T) {
	m := Message{Role: RoleAssistant, Metadata: map[string]any{MetadataFollowUp: true}}
	assert.True(t, m.IsFollowUp())
	assert.False(t, Message{}.IsFollowUp())
}
