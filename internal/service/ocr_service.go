package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

// Accepted upload formats, by extension.
var supportedFormats = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".pdf":  "application/pdf",
}

// SupportedFormat returns the MIME type of fileName if it may be uploaded.
func SupportedFormat(fileName string) (string, bool) {
	mimeType, ok := supportedFormats[strings.ToLower(filepath.Ext(fileName))]
	return mimeType, ok
}

// ImageReader turns an image into text.
type ImageReader interface {
	ExtractTextFromImage(ctx context.Context, imagePath string) (string, error)
}

// OCRService extracts the text of an uploaded document.
// PDFs are read locally with go-fitz; images go to the vision model.
type OCRService struct {
	images ImageReader
	logger *zap.Logger
}

func NewOCRService(images ImageReader, logger *zap.Logger) *OCRService {
	return &OCRService{
		images: images,
		logger: logger,
	}
}

func (s *OCRService) ExtractText(ctx context.Context, filePath string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	if _, ok := supportedFormats[ext]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedDocument, ext)
	}

	var (
		text   string
		err    error
		method = "go-fitz"
	)
	if ext == ".pdf" {
		text, err = s.extractTextFromPDF(filePath)
	} else {
		method = "GigaChat Vision"
		if s.images == nil {
			return "", fmt.Errorf("no image reader configured")
		}
		text, err = s.images.ExtractTextFromImage(ctx, filePath)
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	s.logger.Info("Document text extracted",
		zap.String("file", filepath.Base(filePath)),
		zap.String("method", method),
		zap.Int("text_length", len(text)),
	)
	if text == "" {
		return "", ErrEmptyDocument
	}
	return text, nil
}

func (s *OCRService) extractTextFromPDF(pdfPath string) (string, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	var textBuilder strings.Builder
	for i := 0; i < doc.NumPage(); i++ {
		pageText, err := doc.Text(i)
		if err != nil {
			s.logger.Warn("Failed to extract text from page",
				zap.Int("page", i+1),
				zap.String("file", filepath.Base(pdfPath)),
				zap.Error(err),
			)
			continue
		}
		if pageText != "" {
			textBuilder.WriteString(pageText)
			textBuilder.WriteString("\n")
		}
	}
	return sanitizeText(textBuilder.String()), nil
}
