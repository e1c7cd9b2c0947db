package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/prashant-hada-dev/sales-agent-proto/internal/models"
	"go.uber.org/zap"
)

// DocumentVerdict is the outcome of analyzing one submission.
type DocumentVerdict struct {
	IsValid  bool
	Analysis string
}

// DocumentAnalyzer is the external document analysis collaborator.
type DocumentAnalyzer interface {
	Analyze(ctx context.Context, doc models.DocumentRecord) (DocumentVerdict, error)
}

// HeuristicVerdict reads a free-text analysis: valid means it calls the document valid and clear, and not blurry.
func HeuristicVerdict(analysis string) DocumentVerdict {
	lower := strings.ToLower(analysis)
	valid := strings.Contains(lower, "valid") &&
		strings.Contains(lower, "clear") &&
		!strings.Contains(lower, "blurry") &&
		!strings.Contains(lower, "invalid")
	return DocumentVerdict{IsValid: valid, Analysis: analysis}
}

// DocumentClassifier judges extracted document text.
type DocumentClassifier interface {
	ClassifyDocument(ctx context.Context, text string) (DocumentVerdict, error)
}

// GigaChatAnalyzer extracts the text of a document and lets the model judge it.
type GigaChatAnalyzer struct {
	ocr        *OCRService
	classifier DocumentClassifier
	logger     *zap.Logger
}

func NewGigaChatAnalyzer(ocr *OCRService, classifier DocumentClassifier, logger *zap.Logger) *GigaChatAnalyzer {
	return &GigaChatAnalyzer{
		ocr:        ocr,
		classifier: classifier,
		logger:     logger,
	}
}

func (a *GigaChatAnalyzer) Analyze(ctx context.Context, doc models.DocumentRecord) (DocumentVerdict, error) {
	text, err := a.ocr.ExtractText(ctx, doc.FilePath)
	switch {
	case errors.Is(err, ErrEmptyDocument):
		return DocumentVerdict{Analysis: "No readable text was found. The document appears blank or too blurry to read."}, nil
	case errors.Is(err, ErrUnsupportedDocument):
		return DocumentVerdict{Analysis: unsupportedFormatAnalysis}, nil
	case err != nil:
		return DocumentVerdict{}, fmt.Errorf("failed to extract document text: %w", err)
	}
	return a.classifier.ClassifyDocument(ctx, text)
}

const unsupportedFormatAnalysis = "The file format is not supported. Please upload a PNG, JPEG, GIF, WEBP image or a PDF document."

// minDocumentSize is the smallest file accepted as a scan or photo of a real document.
const minDocumentSize = 1024

// RuleBasedAnalyzer verifies documents without a model: any readable file of a supported
// format and plausible size passes. It is used when GigaChat is not configured.
type RuleBasedAnalyzer struct{}

func (RuleBasedAnalyzer) Analyze(_ context.Context, doc models.DocumentRecord) (DocumentVerdict, error) {
	if _, ok := SupportedFormat(doc.FileName); !ok {
		return DocumentVerdict{Analysis: unsupportedFormatAnalysis}, nil
	}
	info, err := os.Stat(doc.FilePath)
	if err != nil {
		return DocumentVerdict{}, fmt.Errorf("failed to stat document: %w", err)
	}
	if info.Size() < minDocumentSize {
		return DocumentVerdict{
			Analysis: "The document appears to be unclear or invalid. The file is too small to be a proper identity document.",
		}, nil
	}
	return DocumentVerdict{IsValid: true, Analysis: "Document appears to be valid and clear (automated check)."}, nil
}
