package models

import (
	"fmt"
	"time"
)

// StorageType describes how an original is kept at rest.
type StorageType string

const (
	StorageTypeUnencrypted StorageType = "unencrypted"
	StorageTypeGPG         StorageType = "gpg"
)

// ConversionStatus tracks a document through the archive and thumbnail stages.
type ConversionStatus string

const (
	ConversionPending            ConversionStatus = "pending"
	ConversionArchiveGenerated   ConversionStatus = "archive_generated"
	ConversionThumbnailGenerated ConversionStatus = "thumbnail_generated"
	ConversionArchiveFailed      ConversionStatus = "archive_failed"
	ConversionThumbnailFailed    ConversionStatus = "thumbnail_failed"
)

// ConversionStage names a pipeline stage.
type ConversionStage string

const (
	StageArchive   ConversionStage = "archive"
	StageThumbnail ConversionStage = "thumbnail"
)

// MimeTypePDF is stored for originals that are already PDF documents.
const MimeTypePDF = "application/pdf"

// Document is one ingested file and its derived artifacts.
type Document struct {
	ID               int64            `db:"id" json:"id"`
	Title            string           `db:"title" json:"title"`
	Checksum         string           `db:"checksum" json:"checksum"`
	ArchiveChecksum  *string          `db:"archive_checksum" json:"archive_checksum,omitempty"`
	Filename         string           `db:"filename" json:"filename"`
	ArchiveFilename  *string          `db:"archive_filename" json:"archive_filename,omitempty"`
	OriginalFilename string           `db:"original_filename" json:"original_filename"`
	MimeType         string           `db:"mime_type" json:"mime_type"`
	StorageType      StorageType      `db:"storage_type" json:"storage_type"`
	PageCount        *int             `db:"page_count" json:"page_count,omitempty"`
	CorrespondentID  *int64           `db:"correspondent_id" json:"correspondent,omitempty"`
	DocumentTypeID   *int64           `db:"document_type_id" json:"document_type,omitempty"`
	ProjectID        *int64           `db:"project_id" json:"project,omitempty"`
	ConversionStatus ConversionStatus `db:"conversion_status" json:"conversion_status"`
	LastError        *string          `db:"last_error" json:"last_error,omitempty"`
	Created          time.Time        `db:"created" json:"created"`
	Added            time.Time        `db:"added" json:"added"`
	Modified         time.Time        `db:"modified" json:"modified"`
	DeletedAt        *time.Time       `db:"deleted_at" json:"-"`

	TagIDs []int64 `db:"-" json:"tags"`
}

// HasArchiveVersion reports whether the archive stage has completed.
func (d *Document) HasArchiveVersion() bool {
	return d.ArchiveFilename != nil && *d.ArchiveFilename != ""
}

// ArchiveName returns the stored archive file name for a checksum.
func ArchiveName(checksum string) string {
	return checksum + "_archive.pdf"
}

// ThumbnailName is the file name of the rendered thumbnail; encrypted documents keep the
// encrypted suffix on their thumbnail too.
func (d *Document) ThumbnailName() string {
	name := fmt.Sprintf("%07d.webp", d.ID)
	if d.StorageType == StorageTypeGPG {
		name += ".gpg"
	}
	return name
}

// RasterName is the scratch file name for the first-page raster.
func (d *Document) RasterName() string {
	return fmt.Sprintf("%07d_temp.png", d.ID)
}

// ConversionOutcome summarizes one pipeline run for a document.
type ConversionOutcome struct {
	DocumentID int64            `json:"document_id"`
	Status     ConversionStatus `json:"status"`
	Stage      ConversionStage  `json:"stage"`
	Message    string           `json:"message,omitempty"`
}

// Failed reports whether the run ended in a failure state.
func (o ConversionOutcome) Failed() bool {
	return o.Status == ConversionArchiveFailed || o.Status == ConversionThumbnailFailed
}

// RefUpdate carries a partial change to an optional reference. Set with a nil ID clears it.
type RefUpdate struct {
	Set bool
	ID  *int64
}

// DocumentUpdate lists the editable fields of a document. Nil fields are left unchanged.
type DocumentUpdate struct {
	Title           *string
	Created         *time.Time
	PageCount       *int
	CorrespondentID RefUpdate
	DocumentTypeID  RefUpdate
	ProjectID       RefUpdate
	TagIDs          *[]int64
}

// Empty reports whether the update would change nothing.
func (u DocumentUpdate) Empty() bool {
	return u.Title == nil && u.Created == nil && u.PageCount == nil &&
		!u.CorrespondentID.Set && !u.DocumentTypeID.Set && !u.ProjectID.Set && u.TagIDs == nil
}

// Note is a free-text annotation attached to a document.
type Note struct {
	ID         int64      `db:"id" json:"id"`
	DocumentID int64      `db:"document_id" json:"document"`
	Note       string     `db:"note" json:"note"`
	UserID     *int64     `db:"user_id" json:"user,omitempty"`
	Created    time.Time  `db:"created" json:"created"`
	DeletedAt  *time.Time `db:"deleted_at" json:"-"`
}

// ReferenceKind names a lookup table a document can point at.
type ReferenceKind string

const (
	ReferenceCorrespondent ReferenceKind = "correspondents"
	ReferenceDocumentType  ReferenceKind = "document_types"
	ReferenceProject       ReferenceKind = "projects"
	ReferenceTag           ReferenceKind = "tags"
)
