package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/dto"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/models"
	"github.com/prashant-hada-dev/sales-agent-proto/internal/repository"
	"go.uber.org/zap"
)

// Notifier pushes payloads to the live connections of a user.
type Notifier interface {
	SendToUser(u *models.User, payload any) int
}

// DocumentResult is the outcome of one submission as seen by the uploader.
type DocumentResult struct {
	DocumentID string
	IsValid    bool
	Analysis   string
	// Superseded is set when a newer submission replaced this one before its analysis finished.
	Superseded bool
}

const (
	documentAcceptedText = "Thank you! I've verified your document and everything looks good. We can now proceed with the registration process."
	paymentLinkTextFmt   = "Great news! Your document has been verified and approved. To proceed with your company registration, please complete the payment of %s %d through this secure link: %s\n\nThis offer is valid for the next %d minutes, so I recommend completing the payment right away."
	documentRejectedFmt  = "I've reviewed your document, but there seems to be an issue: %s\n\nWe need a valid identity document (like Aadhaar, PAN card, or passport) that clearly shows your name and other details. Could you please upload a proper identity document?"
)

var errSuperseded = errors.New("document superseded")

// DocumentService stores submissions and applies their analysis. Each submission gets its own
// document id; an analysis only lands if its submission is still the user's current document.
type DocumentService struct {
	store         repository.UserStore
	conversations *ConversationService
	payments      *PaymentService
	analyzer      DocumentAnalyzer
	files         *LocalFiles
	objects       ObjectStorage
	notifier      Notifier
	timeout       time.Duration
	linkTTL       time.Duration
	now           func() time.Time
	logger        *zap.Logger
}

func NewDocumentService(
	store repository.UserStore,
	conversations *ConversationService,
	payments *PaymentService,
	analyzer DocumentAnalyzer,
	files *LocalFiles,
	objects ObjectStorage,
	notifier Notifier,
	timeout time.Duration,
	linkTTL time.Duration,
	logger *zap.Logger,
) *DocumentService {
	return &DocumentService{
		store:         store,
		conversations: conversations,
		payments:      payments,
		analyzer:      analyzer,
		files:         files,
		objects:       objects,
		notifier:      notifier,
		timeout:       timeout,
		linkTTL:       linkTTL,
		now:           time.Now,
		logger:        logger,
	}
}

// Submit stores the uploaded file as the user's current document, analyzes it and moves the
// funnel on. Unsupported formats are rejected before anything is stored.
func (s *DocumentService) Submit(ctx context.Context, userID uuid.UUID, fileName string, r io.Reader) (DocumentResult, error) {
	mimeType, ok := SupportedFormat(fileName)
	if !ok {
		return DocumentResult{}, ErrUnsupportedDocument
	}

	docID := uuid.New()
	path, size, err := s.files.Save(docID, fileName, r)
	if err != nil {
		return DocumentResult{}, err
	}
	if size == 0 {
		os.Remove(path)
		return DocumentResult{}, ErrEmptyDocument
	}

	record := models.DocumentRecord{
		ID:       docID.String(),
		FilePath: path,
		FileName: filepath.Base(fileName),
		MimeType: mimeType,
		Pending:  true,
	}
	if s.objects != nil {
		objectName := fmt.Sprintf("documents/%s/%s%s", userID, docID, filepath.Ext(path))
		url, err := s.objects.Store(ctx, objectName, path, mimeType)
		if err != nil {
			s.logger.Warn("Failed to copy document to object storage", zap.String("document_id", record.ID), zap.Error(err))
		} else {
			record.FileURL = url
		}
	}

	now := s.now()
	record.UploadedAt = &now
	var previous *models.DocumentRecord
	_, err = s.store.Update(ctx, userID, func(u *models.User) error {
		previous = nil
		record.RequestedAt = now
		if u.Document != nil {
			prev := *u.Document
			previous = &prev
			if !prev.RequestedAt.IsZero() {
				record.RequestedAt = prev.RequestedAt
			}
		}
		rec := record
		u.Document = &rec
		u.Documents = append(u.Documents, rec.Ref())
		return nil
	})
	if err != nil {
		os.Remove(path)
		return DocumentResult{}, fmt.Errorf("failed to record document: %w", err)
	}
	s.logger.Info("Document received",
		zap.String("user_id", userID.String()),
		zap.String("document_id", record.ID),
		zap.String("mime_type", mimeType),
		zap.Int64("size", size),
	)

	analyzeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	verdict, err := s.analyzer.Analyze(analyzeCtx, record)
	cancel()
	if err != nil {
		s.restore(ctx, userID, record.ID, previous)
		return DocumentResult{DocumentID: record.ID}, transient("analyze document", err)
	}

	return s.applyVerdict(ctx, userID, record.ID, verdict)
}

// restore puts back the document that an unanalyzed submission replaced, so a failed analysis
// leaves the funnel where it was. The submission stays in the document history. A newer
// submission that already took its place is left alone.
func (s *DocumentService) restore(ctx context.Context, userID uuid.UUID, docID string, previous *models.DocumentRecord) {
	_, err := s.store.Update(ctx, userID, func(u *models.User) error {
		if u.Document == nil || u.Document.ID != docID {
			return errSuperseded
		}
		u.Document = previous
		return nil
	})
	switch {
	case errors.Is(err, errSuperseded):
	case err != nil:
		s.logger.Warn("Failed to restore previous document", zap.String("user_id", userID.String()), zap.String("document_id", docID), zap.Error(err))
	default:
		s.logger.Info("Document analysis failed, previous document restored",
			zap.String("user_id", userID.String()),
			zap.String("document_id", docID),
		)
	}
}

func (s *DocumentService) applyVerdict(ctx context.Context, userID uuid.UUID, docID string, verdict DocumentVerdict) (DocumentResult, error) {
	result := DocumentResult{DocumentID: docID, IsValid: verdict.IsValid, Analysis: verdict.Analysis}

	now := s.now()
	u, err := s.store.Update(ctx, userID, func(u *models.User) error {
		if u.Document == nil || u.Document.ID != docID {
			return errSuperseded
		}
		u.Document.Analyzed = true
		u.Document.AnalyzedAt = &now
		u.Document.Analysis = sanitizeText(verdict.Analysis)
		u.Document.Verified = verdict.IsValid
		u.Document.Pending = !verdict.IsValid
		return nil
	})
	if errors.Is(err, errSuperseded) {
		s.logger.Info("Stale document analysis discarded",
			zap.String("user_id", userID.String()),
			zap.String("document_id", docID),
		)
		result.Superseded = true
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("failed to store document verdict: %w", err)
	}

	s.logger.Info("Document analyzed",
		zap.String("user_id", userID.String()),
		zap.String("document_id", docID),
		zap.Bool("is_valid", verdict.IsValid),
	)

	if !verdict.IsValid {
		s.say(ctx, u, fmt.Sprintf(documentRejectedFmt, verdict.Analysis))
		s.notifier.SendToUser(u, dto.ShowDocumentUpload())
		return result, nil
	}

	s.say(ctx, u, documentAcceptedText)
	s.offerPayment(ctx, u)
	return result, nil
}

// offerPayment hands a freshly verified user over to the payment stage.
func (s *DocumentService) offerPayment(ctx context.Context, u *models.User) {
	companyType := ""
	if u.Payment != nil {
		companyType = u.Payment.CompanyType
	}

	rec, _, err := s.payments.EnsureLink(ctx, u.ID, companyType)
	switch {
	case errors.Is(err, ErrPaymentCompleted):
		return
	case err != nil:
		s.logger.Warn("Failed to create payment link after verification", zap.String("user_id", u.ID.String()), zap.Error(err))
		return
	}

	minutes := int(s.linkTTL / time.Minute)
	s.say(ctx, u, fmt.Sprintf(paymentLinkTextFmt, rec.Currency, rec.Amount, rec.Link, minutes))
	s.notifier.SendToUser(u, dto.PaymentLink(rec.Link))
}

// say appends an assistant message to the conversation and pushes it to the user.
func (s *DocumentService) say(ctx context.Context, u *models.User, text string) {
	msg := models.Message{Role: models.RoleAssistant, Content: text, Timestamp: s.now()}
	if err := s.conversations.Append(ctx, u.ID, msg); err != nil {
		s.logger.Warn("Failed to store assistant message", zap.String("user_id", u.ID.String()), zap.Error(err))
	}
	s.notifier.SendToUser(u, dto.Message(text))
}
