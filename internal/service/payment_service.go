package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/models"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/repository"
	"go.uber.org/zap"
)

const Currency = "INR"

// Package is one priced incorporation offer.
type Package struct {
	CompanyType string
	Description string
	Amount      int64
}

var (
	packagePrivateLimited = Package{CompanyType: "private_limited", Description: "Private Limited Company Registration", Amount: 5000}
	packageLLP            = Package{CompanyType: "llp", Description: "Limited Liability Partnership (LLP) Registration", Amount: 6000}
	packageOPC            = Package{CompanyType: "opc", Description: "One Person Company (OPC) Registration", Amount: 4500}
)

// PackageFor maps a free-form company type to its package. Unknown types get the base tier.
func PackageFor(companyType string) Package {
	t := strings.ToLower(companyType)
	switch {
	case strings.Contains(t, "llp") || strings.Contains(t, "liability"):
		return packageLLP
	case strings.Contains(t, "opc") || strings.Contains(t, "one person"):
		return packageOPC
	default:
		return packagePrivateLimited
	}
}

// LinkRequest asks the gateway for a hosted payment link.
type LinkRequest struct {
	ReferenceID string
	Customer    models.ContactInfo
	Amount      int64
	Currency    string
	Description string
	ExpireBy    time.Time
}

type GatewayLink struct {
	PaymentID string
	Link      string
	Amount    int64
	Currency  string
}

type GatewayStatus struct {
	Status    models.PaymentStatus
	Completed bool
}

// PaymentGateway is the external payment collaborator.
type PaymentGateway interface {
	CreateLink(ctx context.Context, req LinkRequest) (*GatewayLink, error)
	GetStatus(ctx context.Context, paymentID string) (*GatewayStatus, error)
}

// PaymentService owns the payment records of users. At most one open record exists per user:
// link creation is serialized per user and reuses the open record instead of issuing another.
type PaymentService struct {
	store   repository.UserStore
	gateway PaymentGateway
	locks   *keyedMutex
	timeout time.Duration
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

func NewPaymentService(store repository.UserStore, gateway PaymentGateway, timeout, ttl time.Duration, logger *zap.Logger) *PaymentService {
	return &PaymentService{
		store:   store,
		gateway: gateway,
		locks:   newKeyedMutex(),
		timeout: timeout,
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
	}
}

var errOpenPayment = errors.New("open payment exists")

// EnsureLink returns the user's open payment record, creating one through the gateway when none is open.
// created reports whether a new record was issued. Users who already paid get ErrPaymentCompleted.
func (s *PaymentService) EnsureLink(ctx context.Context, userID uuid.UUID, companyType string) (rec models.PaymentRecord, created bool, err error) {
	unlock := s.locks.Lock(userID.String())
	defer unlock()

	u, err := s.store.Get(ctx, userID)
	if err != nil {
		return models.PaymentRecord{}, false, err
	}
	now := s.now()
	if u.PaymentCompleted() {
		return models.PaymentRecord{}, false, ErrPaymentCompleted
	}
	if u.Payment != nil && u.Payment.Open(now) {
		return *u.Payment, false, nil
	}

	if companyType == "" && u.Payment != nil {
		companyType = u.Payment.CompanyType
	}
	pkg := PackageFor(companyType)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	link, err := s.gateway.CreateLink(callCtx, LinkRequest{
		ReferenceID: userID.String(),
		Customer:    u.Contact,
		Amount:      pkg.Amount,
		Currency:    Currency,
		Description: pkg.Description,
		ExpireBy:    now.Add(s.ttl),
	})
	if err != nil {
		return models.PaymentRecord{}, false, transient("create payment link", err)
	}

	rec = models.PaymentRecord{
		ID:          link.PaymentID,
		Amount:      link.Amount,
		Currency:    link.Currency,
		Description: pkg.Description,
		CompanyType: pkg.CompanyType,
		Status:      models.PaymentCreated,
		Pending:     true,
		Link:        link.Link,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}
	if rec.Amount == 0 {
		rec.Amount = pkg.Amount
	}
	if rec.Currency == "" {
		rec.Currency = Currency
	}

	var existing models.PaymentRecord
	_, err = s.store.Update(ctx, userID, func(u *models.User) error {
		if u.PaymentCompleted() {
			return ErrPaymentCompleted
		}
		// Another process may have issued a link since we looked.
		if u.Payment != nil && u.Payment.Open(now) {
			existing = *u.Payment
			return errOpenPayment
		}
		if u.Payment != nil {
			superseded := *u.Payment
			superseded.Pending = false
			u.UpdatePayment(superseded)
		}
		u.RecordPayment(rec)
		return nil
	})
	switch {
	case errors.Is(err, errOpenPayment):
		return existing, false, nil
	case err != nil:
		return models.PaymentRecord{}, false, err
	}

	s.logger.Info("Payment link created",
		zap.String("user_id", userID.String()),
		zap.String("payment_id", rec.ID),
		zap.Int64("amount", rec.Amount),
	)
	return rec, true, nil
}

// PaymentConfirmedText is sent to the user once a payment completes.
const PaymentConfirmedText = "Fantastic news! Your payment has been successfully received. We've already started processing your company registration. You'll receive a confirmation email shortly with all the details. Thank you for choosing RegisterKaro!"

// Refresh asks the gateway for the status of a payment and stores it. An empty paymentID means
// the current record. A completed payment clears the pending flag and records a won case;
// justCompleted is set only by the refresh that observed the completion.
// On a gateway failure the stored record is left as it was.
func (s *PaymentService) Refresh(ctx context.Context, userID uuid.UUID, paymentID string) (rec models.PaymentRecord, justCompleted bool, err error) {
	u, err := s.store.Get(ctx, userID)
	if err != nil {
		return models.PaymentRecord{}, false, err
	}
	if paymentID == "" {
		if u.Payment == nil {
			return models.PaymentRecord{}, false, ErrPaymentNotFound
		}
		paymentID = u.Payment.ID
	}
	rec, ok := u.FindPayment(paymentID)
	if !ok {
		return models.PaymentRecord{}, false, ErrPaymentNotFound
	}
	if rec.Completed() {
		return rec, false, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	status, err := s.gateway.GetStatus(callCtx, paymentID)
	if errors.Is(err, ErrPaymentNotFound) {
		return models.PaymentRecord{}, false, err
	}
	if err != nil {
		return models.PaymentRecord{}, false, transient("get payment status", err)
	}

	now := s.now()
	var result models.PaymentRecord
	_, err = s.store.Update(ctx, userID, func(u *models.User) error {
		current, ok := u.FindPayment(paymentID)
		if !ok {
			return ErrPaymentNotFound
		}
		if current.Completed() {
			result = current
			justCompleted = false
			return nil
		}
		current.Status = status.Status
		current.CheckedAt = &now
		if status.Completed {
			current.Status = models.PaymentCompleted
			if status.Status.Completed() {
				current.Status = status.Status
			}
			current.Pending = false
			u.Outcome = &models.CaseOutcome{IsWin: true, Reason: "payment completed", At: now}
			justCompleted = true
		} else if status.Status == models.PaymentFailed {
			current.Pending = false
		}
		u.UpdatePayment(current)
		result = current
		return nil
	})
	if err != nil {
		return models.PaymentRecord{}, false, err
	}

	if justCompleted {
		s.logger.Info("Payment completed",
			zap.String("user_id", userID.String()),
			zap.String("payment_id", paymentID),
		)
	}
	return result, justCompleted, nil
}

// Details returns a stored payment record without contacting the gateway.
func (s *PaymentService) Details(ctx context.Context, userID uuid.UUID, paymentID string) (models.PaymentRecord, error) {
	u, err := s.store.Get(ctx, userID)
	if err != nil {
		return models.PaymentRecord{}, err
	}
	rec, ok := u.FindPayment(paymentID)
	if !ok {
		return models.PaymentRecord{}, fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentID)
	}
	return rec, nil
}
