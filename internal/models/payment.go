package models

import "time"

type PaymentStatus string

const (
	PaymentCreated    PaymentStatus = "created"
	PaymentAuthorized PaymentStatus = "authorized"
	PaymentCaptured   PaymentStatus = "captured"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
)

func (s PaymentStatus) Completed() bool {
	return s == PaymentCompleted || s == PaymentCaptured
}

func (s PaymentStatus) Terminal() bool {
	return s.Completed() || s == PaymentFailed
}

// PaymentRecord is one payment attempt backed by a gateway link.
type PaymentRecord struct {
	ID          string        `json:"payment_id"`
	Amount      int64         `json:"amount"`
	Currency    string        `json:"currency"`
	Description string        `json:"description,omitempty"`
	CompanyType string        `json:"company_type,omitempty"`
	Status      PaymentStatus `json:"status"`
	Pending     bool          `json:"pending"`
	Link        string        `json:"link,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	ExpiresAt   time.Time     `json:"expires_at"`
	CheckedAt   *time.Time    `json:"checked_at,omitempty"`
}

func (p PaymentRecord) Completed() bool {
	return p.Status.Completed()
}

// Open reports whether the record can be reused instead of issuing a new link.
func (p PaymentRecord) Open(now time.Time) bool {
	if !p.Pending || p.Status.Terminal() {
		return false
	}
	return p.ExpiresAt.IsZero() || now.Before(p.ExpiresAt)
}
