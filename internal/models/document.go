package models

import (
	"time"
)

// DocumentRecord is the result of one document submission. The ID doubles as the submission id:
// only the analysis of the current record may change its verdict.
type DocumentRecord struct {
	ID          string     `json:"document_id"`
	FilePath    string     `json:"file_path,omitempty"`
	FileURL     string     `json:"file_url,omitempty"`
	FileName    string     `json:"filename,omitempty"`
	MimeType    string     `json:"mime_type,omitempty"`
	Verified    bool       `json:"verified"`
	Analyzed    bool       `json:"analyzed"`
	Analysis    string     `json:"analysis,omitempty"`
	Pending     bool       `json:"pending"`
	RequestedAt time.Time  `json:"requested_at,omitempty"`
	UploadedAt  *time.Time `json:"uploaded_at,omitempty"`
	AnalyzedAt  *time.Time `json:"analyzed_at,omitempty"`
}

// Submitted reports whether a file was actually uploaded for this record.
func (d *DocumentRecord) Submitted() bool {
	return d != nil && d.UploadedAt != nil
}

// DocumentRef is the historical reference a user keeps for every submission.
type DocumentRef struct {
	DocumentID string    `json:"document_id"`
	FileName   string    `json:"filename"`
	MimeType   string    `json:"mime_type,omitempty"`
	FileURL    string    `json:"file_url,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
}

func (d *DocumentRecord) Ref() DocumentRef {
	ref := DocumentRef{
		DocumentID: d.ID,
		FileName:   d.FileName,
		MimeType:   d.MimeType,
		FileURL:    d.FileURL,
	}
	if d.UploadedAt != nil {
		ref.UploadedAt = *d.UploadedAt
	}
	return ref
}
