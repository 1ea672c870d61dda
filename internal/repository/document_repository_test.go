package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/document-archive-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var documentRowColumns = []string{
	"id", "title", "checksum", "archive_checksum", "filename", "archive_filename", "original_filename",
	"mime_type", "storage_type", "page_count", "correspondent_id", "document_type_id", "project_id",
	"conversion_status", "last_error", "created", "added", "modified", "deleted_at",
}

func TestDocumentRepositoryCreateWithTags(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO documents")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO document_tags")).
		WithArgs(int64(7), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO document_tags")).
		WithArgs(int64(7), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	doc := &models.Document{
		Title:            "invoice",
		Checksum:         "5d41402abc4b2a76b9719d911017c592",
		Filename:         "5d41402abc4b2a76b9719d911017c592_invoice.pdf",
		OriginalFilename: "invoice.pdf",
		MimeType:         "application/pdf",
		TagIDs:           []int64{1, 2},
	}
	require.NoError(t, repo.Create(context.Background(), doc))
	assert.Equal(t, int64(7), doc.ID)
	assert.Equal(t, models.ConversionPending, doc.ConversionStatus)
	assert.Equal(t, models.StorageTypeUnencrypted, doc.StorageType)
	assert.Equal(t, doc.Added, doc.Created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO documents")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "documents_checksum_active_key"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Document{Checksum: "abc"})
	require.ErrorIs(t, err, ErrDuplicateChecksum)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, checksum")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(documentRowColumns).AddRow(
			int64(3), "scan", "abc", nil, "abc_scan.png", nil, "scan.png",
			"image/png", "unencrypted", nil, nil, nil, int64(4),
			"pending", nil, now, now, now, nil,
		))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT tag_id FROM document_tags")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"tag_id"}).AddRow(int64(9)))

	doc, err := repo.GetByID(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "scan", doc.Title)
	assert.False(t, doc.HasArchiveVersion())
	require.NotNil(t, doc.ProjectID)
	assert.Equal(t, int64(4), *doc.ProjectID)
	assert.Equal(t, []int64{9}, doc.TagIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryGetByIDNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, checksum")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(documentRowColumns))

	_, err := repo.GetByID(context.Background(), 3)
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestDocumentRepositoryRecordArchiveSingleStatement(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SET archive_filename = $2, archive_checksum = $3, conversion_status = $4, last_error = NULL")).
		WithArgs(int64(5), "abc_archive.pdf", "def", models.ConversionArchiveGenerated, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RecordArchive(context.Background(), 5, "abc_archive.pdf", "def"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryRecordConversionStatusMissingRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	msg := "gs exited with status 1"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET conversion_status = $2, last_error = $3")).
		WithArgs(int64(5), models.ConversionArchiveFailed, &msg, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.RecordConversionStatus(context.Background(), 5, models.ConversionArchiveFailed, &msg)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryUpdatePartialWithTags(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	title := "renamed"
	tags := []int64{3}
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET title = $1, project_id = $2, modified = $3 WHERE id = $4 AND deleted_at IS NULL")).
		WithArgs("renamed", nil, sqlmock.AnyArg(), int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM document_tags WHERE document_id = $1")).
		WithArgs(int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO document_tags")).
		WithArgs(int64(8), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Update(context.Background(), 8, models.DocumentUpdate{
		Title:     &title,
		ProjectID: models.RefUpdate{Set: true},
		TagIDs:    &tags,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositorySoftDelete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET deleted_at = $2")).
		WithArgs(int64(2), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SoftDelete(context.Background(), 2, time.Now()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryMissingReferences(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM tags WHERE id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	missing, err := repo.MissingReferences(context.Background(), models.ReferenceTag, []int64{1, 5})
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, missing)

	_, err = repo.MissingReferences(context.Background(), models.ReferenceKind("users; DROP"), []int64{1})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryListIDsByStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM documents")).
		WithArgs(sqlmock.AnyArg(), 100).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(4)))

	ids, err := repo.ListIDsByStatus(context.Background(), []models.ConversionStatus{models.ConversionPending}, 100)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 4}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}
