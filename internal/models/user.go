package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	MaxSummaryLength      = 1200
	MaxShortSummaryLength = 240
)

// ContactField is one independently optional contact attribute. Verified values came from
// the client directly; unverified ones were extracted from free text.
type ContactField struct {
	Value    string `json:"value,omitempty"`
	Verified bool   `json:"verified,omitempty"`
}

func (f ContactField) Empty() bool {
	return f.Value == ""
}

type ContactInfo struct {
	Name  ContactField `json:"name"`
	Email ContactField `json:"email"`
	Phone ContactField `json:"phone"`
}

type CaseOutcome struct {
	IsWin  bool      `json:"is_win"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"timestamp"`
}

// User is the durable identity record of one physical person.
type User struct {
	ID             uuid.UUID       `json:"id"`
	Sessions       []string        `json:"sessions"`
	CookieID       string          `json:"cookie_id,omitempty"`
	DeviceID       string          `json:"device_id,omitempty"`
	Contact        ContactInfo     `json:"contact"`
	Conversation   []Message       `json:"conversation,omitempty"`
	Document       *DocumentRecord `json:"document,omitempty"`
	Documents      []DocumentRef   `json:"documents,omitempty"`
	Payment        *PaymentRecord  `json:"payment,omitempty"`
	PaymentHistory []PaymentRecord `json:"payment_history,omitempty"`
	Summary        string          `json:"summary,omitempty"`
	ShortSummary   string          `json:"short_summary,omitempty"`
	Provisional    bool            `json:"provisional"`
	Outcome        *CaseOutcome    `json:"case_outcome,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	LastActive     time.Time       `json:"last_active"`
}

// NewUser seeds a user with whatever identifiers were supplied.
func NewUser(ids IdentifierSet, now time.Time) *User {
	u := &User{
		ID:         uuid.New(),
		Sessions:   []string{},
		CreatedAt:  now,
		LastActive: now,
	}
	for _, id := range ids {
		u.AddIdentifier(id)
	}
	u.Provisional = !u.Identifiers().HasAuthoritative()
	return u
}

// AddIdentifier records the identifier on the matching field. Session ids are append-only.
func (u *User) AddIdentifier(id Identifier) {
	switch id.Kind {
	case IdentifierSession:
		for _, s := range u.Sessions {
			if s == id.Value {
				return
			}
		}
		u.Sessions = append(u.Sessions, id.Value)
	case IdentifierCookie:
		u.CookieID = id.Value
	case IdentifierDevice:
		u.DeviceID = id.Value
		u.Provisional = false
	case IdentifierPhone:
		u.Contact.Phone = ContactField{Value: id.Value, Verified: true}
		u.Provisional = false
	case IdentifierEmail:
		u.Contact.Email = ContactField{Value: id.Value, Verified: true}
		u.Provisional = false
	}
}

// Identifiers returns every identifier that may be used to re-identify the user.
// Unverified contact values are excluded.
func (u *User) Identifiers() IdentifierSet {
	ids := make([]Identifier, 0, len(u.Sessions)+4)
	if u.DeviceID != "" {
		ids = append(ids, Identifier{Kind: IdentifierDevice, Value: u.DeviceID})
	}
	if u.CookieID != "" {
		ids = append(ids, Identifier{Kind: IdentifierCookie, Value: u.CookieID})
	}
	if u.Contact.Phone.Verified {
		ids = append(ids, Identifier{Kind: IdentifierPhone, Value: u.Contact.Phone.Value})
	}
	if u.Contact.Email.Verified {
		ids = append(ids, Identifier{Kind: IdentifierEmail, Value: u.Contact.Email.Value})
	}
	for _, s := range u.Sessions {
		ids = append(ids, Identifier{Kind: IdentifierSession, Value: s})
	}
	return NewIdentifierSet(ids...)
}

// PaymentCompleted is true when the current record or any history entry is completed.
func (u *User) PaymentCompleted() bool {
	if u.Payment != nil && u.Payment.Completed() {
		return true
	}
	for i := range u.PaymentHistory {
		if u.PaymentHistory[i].Completed() {
			return true
		}
	}
	return false
}

// DocumentPending reports whether a document step is awaiting a satisfactory outcome.
func (u *User) DocumentPending() bool {
	return u.Document != nil && u.Document.Pending
}

// PaymentPending reports whether the current payment record is still awaited.
func (u *User) PaymentPending() bool {
	return u.Payment != nil && u.Payment.Pending
}

// RecordPayment makes p the current payment and upserts it into the history by id.
func (u *User) RecordPayment(p PaymentRecord) {
	current := p
	u.Payment = &current
	for i := range u.PaymentHistory {
		if u.PaymentHistory[i].ID == p.ID {
			u.PaymentHistory[i] = p
			return
		}
	}
	u.PaymentHistory = append(u.PaymentHistory, p)
}

// UpdatePayment refreshes an existing record wherever it appears, without changing which record is current.
func (u *User) UpdatePayment(p PaymentRecord) {
	if u.Payment != nil && u.Payment.ID == p.ID {
		current := p
		u.Payment = &current
	}
	for i := range u.PaymentHistory {
		if u.PaymentHistory[i].ID == p.ID {
			u.PaymentHistory[i] = p
			return
		}
	}
	u.PaymentHistory = append(u.PaymentHistory, p)
}

// FindPayment looks a payment up by id among the current record and the history.
func (u *User) FindPayment(id string) (PaymentRecord, bool) {
	if u.Payment != nil && u.Payment.ID == id {
		return *u.Payment, true
	}
	for _, p := range u.PaymentHistory {
		if p.ID == id {
			return p, true
		}
	}
	return PaymentRecord{}, false
}

// SetSummary overwrites the rolling context fields, truncated to their bounds.
func (u *User) SetSummary(summary, short string) {
	u.Summary = truncateRunes(summary, MaxSummaryLength)
	u.ShortSummary = truncateRunes(short, MaxShortSummaryLength)
}

// Clone returns a deep copy so snapshots can be handed across goroutines.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Sessions = append([]string(nil), u.Sessions...)
	c.Conversation = make([]Message, len(u.Conversation))
	for i, m := range u.Conversation {
		c.Conversation[i] = m.Clone()
	}
	if u.Document != nil {
		d := *u.Document
		c.Document = &d
	}
	c.Documents = append([]DocumentRef(nil), u.Documents...)
	if u.Payment != nil {
		p := *u.Payment
		c.Payment = &p
	}
	c.PaymentHistory = append([]PaymentRecord(nil), u.PaymentHistory...)
	if u.Outcome != nil {
		o := *u.Outcome
		c.Outcome = &o
	}
	return &c
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
