package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/document-archive-api/internal/models"
	"github.com/noah-isme/document-archive-api/pkg/database"
)

// ErrDuplicateChecksum is returned when an active document already owns the checksum or filename.
var ErrDuplicateChecksum = errors.New("document with this checksum already exists")

const documentColumns = `id, title, checksum, archive_checksum, filename, archive_filename, original_filename,
       mime_type, storage_type, page_count, correspondent_id, document_type_id, project_id,
       conversion_status, last_error, created, added, modified, deleted_at`

// DocumentRepository persists document records and their tag membership.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a document and its tags in one transaction and fills in the generated id.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) (err error) {
	now := time.Now().UTC()
	if doc.Added.IsZero() {
		doc.Added = now
	}
	if doc.Created.IsZero() {
		doc.Created = doc.Added
	}
	doc.Modified = doc.Added
	if doc.StorageType == "" {
		doc.StorageType = models.StorageTypeUnencrypted
	}
	if doc.ConversionStatus == "" {
		doc.ConversionStatus = models.ConversionPending
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create document: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO documents
	(title, checksum, filename, original_filename, mime_type, storage_type, page_count,
	 correspondent_id, document_type_id, project_id, conversion_status, created, added, modified)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	RETURNING id`
	err = tx.QueryRowxContext(ctx, query,
		doc.Title, doc.Checksum, doc.Filename, doc.OriginalFilename, doc.MimeType, doc.StorageType, doc.PageCount,
		doc.CorrespondentID, doc.DocumentTypeID, doc.ProjectID, doc.ConversionStatus, doc.Created, doc.Added, doc.Modified,
	).Scan(&doc.ID)
	if err != nil {
		if _, dup := database.UniqueViolation(err); dup {
			return ErrDuplicateChecksum
		}
		return fmt.Errorf("insert document: %w", err)
	}

	if err = insertTags(ctx, tx, doc.ID, doc.TagIDs); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit document: %w", err)
	}
	return nil
}

// GetByID retrieves one active document with its tag ids.
func (r *DocumentRepository) GetByID(ctx context.Context, id int64) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 AND deleted_at IS NULL`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		return nil, err
	}
	if err := r.loadTags(ctx, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetByChecksum finds the active document holding checksum.
func (r *DocumentRepository) GetByChecksum(ctx context.Context, checksum string) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE checksum = $1 AND deleted_at IS NULL`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, checksum); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Update applies a partial edit. Only supplied fields are written.
func (r *DocumentRepository) Update(ctx context.Context, id int64, upd models.DocumentUpdate) (err error) {
	sets := make([]string, 0, 7)
	args := make([]interface{}, 0, 8)
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.Title != nil {
		add("title", *upd.Title)
	}
	if upd.Created != nil {
		add("created", *upd.Created)
	}
	if upd.PageCount != nil {
		add("page_count", *upd.PageCount)
	}
	if upd.CorrespondentID.Set {
		add("correspondent_id", upd.CorrespondentID.ID)
	}
	if upd.DocumentTypeID.Set {
		add("document_type_id", upd.DocumentTypeID.ID)
	}
	if upd.ProjectID.Set {
		add("project_id", upd.ProjectID.ID)
	}
	add("modified", time.Now().UTC())
	args = append(args, id)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update document: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := fmt.Sprintf(`UPDATE documents SET %s WHERE id = $%d AND deleted_at IS NULL`, strings.Join(sets, ", "), len(args))
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if err = expectOneRow(res, "update document"); err != nil {
		return err
	}

	if upd.TagIDs != nil {
		if _, err = tx.ExecContext(ctx, `DELETE FROM document_tags WHERE document_id = $1`, id); err != nil {
			return fmt.Errorf("clear document tags: %w", err)
		}
		if err = insertTags(ctx, tx, id, *upd.TagIDs); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit document update: %w", err)
	}
	return nil
}

// RecordArchive stores the archive identity and the archive_generated status in a single
// statement so no reader sees a filename without its checksum.
func (r *DocumentRepository) RecordArchive(ctx context.Context, id int64, archiveFilename, archiveChecksum string) error {
	const query = `UPDATE documents
	SET archive_filename = $2, archive_checksum = $3, conversion_status = $4, last_error = NULL, modified = $5
	WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, archiveFilename, archiveChecksum, models.ConversionArchiveGenerated, time.Now().UTC())
	if err != nil {
		if _, dup := database.UniqueViolation(err); dup {
			return ErrDuplicateChecksum
		}
		return fmt.Errorf("record archive: %w", err)
	}
	return expectOneRow(res, "record archive")
}

// RecordConversionStatus sets the pipeline status and last error without touching content fields.
func (r *DocumentRepository) RecordConversionStatus(ctx context.Context, id int64, status models.ConversionStatus, lastError *string) error {
	const query = `UPDATE documents SET conversion_status = $2, last_error = $3, modified = $4
	WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, status, lastError, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record conversion status: %w", err)
	}
	return expectOneRow(res, "record conversion status")
}

// SoftDelete tombstones a document, releasing its checksum for future uploads.
func (r *DocumentRepository) SoftDelete(ctx context.Context, id int64, deletedAt time.Time) error {
	const query = `UPDATE documents SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, deletedAt)
	if err != nil {
		return fmt.Errorf("soft delete document: %w", err)
	}
	return expectOneRow(res, "soft delete document")
}

// ListIDsByStatus returns active documents in any of statuses, oldest first.
func (r *DocumentRepository) ListIDsByStatus(ctx context.Context, statuses []models.ConversionStatus, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 500
	}
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	const query = `SELECT id FROM documents
	WHERE deleted_at IS NULL AND conversion_status = ANY($1)
	ORDER BY added ASC LIMIT $2`
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query, pq.Array(values), limit); err != nil {
		return nil, fmt.Errorf("list documents by status: %w", err)
	}
	return ids, nil
}

// MissingReferences returns the ids that do not exist in the lookup table for kind.
func (r *DocumentRepository) MissingReferences(ctx context.Context, kind models.ReferenceKind, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	switch kind {
	case models.ReferenceCorrespondent, models.ReferenceDocumentType, models.ReferenceProject, models.ReferenceTag:
	default:
		return nil, fmt.Errorf("unknown reference kind %q", kind)
	}
	query := fmt.Sprintf(`SELECT id FROM %s WHERE id = ANY($1)`, kind)
	var found []int64
	if err := r.db.SelectContext(ctx, &found, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("check %s: %w", kind, err)
	}
	present := make(map[int64]struct{}, len(found))
	for _, id := range found {
		present[id] = struct{}{}
	}
	var missing []int64
	for _, id := range ids {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (r *DocumentRepository) loadTags(ctx context.Context, doc *models.Document) error {
	const query = `SELECT tag_id FROM document_tags WHERE document_id = $1 ORDER BY tag_id`
	tags := make([]int64, 0)
	if err := r.db.SelectContext(ctx, &tags, query, doc.ID); err != nil {
		return fmt.Errorf("load document tags: %w", err)
	}
	doc.TagIDs = tags
	return nil
}

func insertTags(ctx context.Context, tx *sqlx.Tx, documentID int64, tagIDs []int64) error {
	const query = `INSERT INTO document_tags (document_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	for _, tagID := range tagIDs {
		if _, err := tx.ExecContext(ctx, query, documentID, tagID); err != nil {
			return fmt.Errorf("insert document tag: %w", err)
		}
	}
	return nil
}

func expectOneRow(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
