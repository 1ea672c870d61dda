package dto

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/document-archive-api/internal/models"
)

// Upload outcomes reported to clients.
const (
	UploadStatusSuccess   = "success"
	UploadStatusDuplicate = "duplicate"
	ProcessStatusQueued   = "queued"
)

// UploadDocumentRequest contains metadata submitted alongside a file upload.
type UploadDocumentRequest struct {
	Title         string  `validate:"omitempty,max=128"`
	Correspondent *int64  `validate:"omitempty,gt=0"`
	DocumentType  *int64  `validate:"omitempty,gt=0"`
	Project       *int64  `validate:"omitempty,gt=0"`
	Tags          []int64 `validate:"omitempty,dive,gt=0"`
	Created       string
}

// UploadDocumentForm is the raw multipart metadata. Fields are bound as strings so an
// empty value (correspondent=) means "not set" rather than zero.
type UploadDocumentForm struct {
	Title         string   `form:"title"`
	Correspondent string   `form:"correspondent"`
	DocumentType  string   `form:"document_type"`
	Project       string   `form:"project"`
	Tags          []string `form:"tags"`
	Created       string   `form:"created"`
}

// Request parses the form into an UploadDocumentRequest. Tags may be repeated or
// comma separated; blank entries are ignored.
func (f UploadDocumentForm) Request() (UploadDocumentRequest, error) {
	req := UploadDocumentRequest{Title: f.Title, Created: strings.TrimSpace(f.Created)}
	refs := []struct {
		name  string
		value string
		dst   **int64
	}{
		{"correspondent", f.Correspondent, &req.Correspondent},
		{"document_type", f.DocumentType, &req.DocumentType},
		{"project", f.Project, &req.Project},
	}
	for _, ref := range refs {
		id, err := optionalID(ref.name, ref.value)
		if err != nil {
			return req, err
		}
		*ref.dst = id
	}
	for _, raw := range f.Tags {
		for _, part := range strings.Split(raw, ",") {
			id, err := optionalID("tags", part)
			if err != nil {
				return req, err
			}
			if id != nil {
				req.Tags = append(req.Tags, *id)
			}
		}
	}
	return req, nil
}

func optionalID(name, raw string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer id", name)
	}
	return &id, nil
}

// UploadResult is returned as soon as the original is persisted; conversion runs later.
type UploadResult struct {
	Status string `json:"status"`
	ID     int64  `json:"id"`
}

// UpdateDocumentRequest is a partial edit. Omitted fields are untouched; a reference set
// to 0 is cleared.
type UpdateDocumentRequest struct {
	Title         *string  `json:"title" validate:"omitempty,min=1,max=128"`
	Created       *string  `json:"created"`
	PageCount     *int     `json:"page_count" validate:"omitempty,min=1"`
	Correspondent *int64   `json:"correspondent" validate:"omitempty,min=0"`
	DocumentType  *int64   `json:"document_type" validate:"omitempty,min=0"`
	Project       *int64   `json:"project" validate:"omitempty,min=0"`
	Tags          *[]int64 `json:"tags" validate:"omitempty,dive,gt=0"`
}

// DocumentDetail is the read model for a single document.
type DocumentDetail struct {
	models.Document
	HasArchiveVersion bool          `json:"has_archive_version"`
	Notes             []models.Note `json:"notes"`
}

// ProcessResult acknowledges a queued conversion.
type ProcessResult struct {
	Status string `json:"status"`
	ID     int64  `json:"id"`
}

// ShareLinkResponse carries a time-limited archive download link.
type ShareLinkResponse struct {
	URL       string    `json:"url"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateNoteRequest adds a note to a document.
type CreateNoteRequest struct {
	Note string `json:"note" validate:"required,max=10000"`
}
