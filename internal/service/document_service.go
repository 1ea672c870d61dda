package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/document-archive-api/internal/dto"
	"github.com/noah-isme/document-archive-api/internal/models"
	"github.com/noah-isme/document-archive-api/internal/repository"
	appErrors "github.com/noah-isme/document-archive-api/pkg/errors"
	"github.com/noah-isme/document-archive-api/pkg/jobs"
	"github.com/noah-isme/document-archive-api/pkg/sniff"
	"github.com/noah-isme/document-archive-api/pkg/storage"
)

const (
	maxTitleLength = 128
	raceRetryDelay = 50 * time.Millisecond
)

type documentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id int64) (*models.Document, error)
	Update(ctx context.Context, id int64, upd models.DocumentUpdate) error
	SoftDelete(ctx context.Context, id int64, deletedAt time.Time) error
	MissingReferences(ctx context.Context, kind models.ReferenceKind, ids []int64) ([]int64, error)
}

type noteLister interface {
	ListByDocument(ctx context.Context, documentID int64) ([]models.Note, error)
}

type duplicateChecker interface {
	CheckDuplicate(ctx context.Context, checksum string) (*models.Document, error)
}

type originalStore interface {
	Store(data []byte, declaredName string) (string, error)
	Open(key, storageType string) (*os.File, error)
}

type fileOpener interface {
	Open(name string) (*os.File, error)
}

type jobEnqueuer interface {
	Enqueue(ctx context.Context, job jobs.Job) error
}

type shareSigner interface {
	Generate(subject, name string) (string, time.Time, error)
	Parse(token string) (storage.SharedObject, error)
}

type ingestionMetrics interface {
	RecordIngestion(result string, size int64)
	RecordEnqueueFailure()
}

// DocumentUpload carries the uploaded file as received by the transport.
type DocumentUpload struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// FileDownload bundles an open file with the metadata needed to stream it.
type FileDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	SizeBytes   int64
}

// DocumentFiles groups the storage roots the service reads from.
type DocumentFiles struct {
	Originals  originalStore
	Archives   fileOpener
	Thumbnails fileOpener
}

// DocumentServiceConfig holds validation parameters.
type DocumentServiceConfig struct {
	MaxFileSize  int64
	AllowedMIMEs []string
	APIPrefix    string
	Detector     sniff.Detector
}

// DocumentService coordinates ingestion and read access for documents.
type DocumentService struct {
	repo      documentStore
	notes     noteLister
	gate      duplicateChecker
	files     DocumentFiles
	queue     jobEnqueuer
	signer    shareSigner
	validator *validator.Validate
	metrics   ingestionMetrics
	logger    *zap.Logger
	cfg       DocumentServiceConfig
	allowed   *sniff.AllowList
}

// NewDocumentService constructs the service with defaults.
func NewDocumentService(repo documentStore, notes noteLister, gate duplicateChecker, files DocumentFiles, queue jobEnqueuer, signer shareSigner, validate *validator.Validate, metrics ingestionMetrics, logger *zap.Logger, cfg DocumentServiceConfig) *DocumentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 50 * 1024 * 1024
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = []string{models.MimeTypePDF}
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	if cfg.Detector == nil {
		cfg.Detector = sniff.NewDetector()
	}
	return &DocumentService{
		repo:      repo,
		notes:     notes,
		gate:      gate,
		files:     files,
		queue:     queue,
		signer:    signer,
		validator: validate,
		metrics:   metrics,
		logger:    logger.With(zap.String("component", "document_service")),
		cfg:       cfg,
		allowed:   sniff.NewAllowList(cfg.AllowedMIMEs),
	}
}

// Upload stores a new original, records it as pending and queues its conversion. Content
// already held by an active document is reported as a duplicate without writing anything.
func (s *DocumentService) Upload(ctx context.Context, meta dto.UploadDocumentRequest, upload DocumentUpload) (*dto.UploadResult, error) {
	if upload.Content == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "document file is required")
	}
	if upload.Size > s.cfg.MaxFileSize {
		return nil, s.reject(appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes limit", s.cfg.MaxFileSize)))
	}
	data, err := io.ReadAll(io.LimitReader(upload.Content, s.cfg.MaxFileSize+1))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to read upload")
	}
	if int64(len(data)) > s.cfg.MaxFileSize {
		return nil, s.reject(appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes limit", s.cfg.MaxFileSize)))
	}
	if len(data) == 0 {
		return nil, s.reject(appErrors.Clone(appErrors.ErrValidation, "empty file"))
	}

	mimeType := s.cfg.Detector.Detect(data)
	if !s.allowed.Allows(mimeType) {
		return nil, s.reject(appErrors.Clone(appErrors.ErrUnsupportedMedia, fmt.Sprintf("unsupported document type %s", mimeType)))
	}

	created, err := s.validateUploadMeta(ctx, meta)
	if err != nil {
		return nil, s.reject(err)
	}

	checksum := storage.Checksum(data)
	existing, err := s.gate.CheckDuplicate(ctx, checksum)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check for duplicates")
	}
	if existing != nil {
		return s.duplicate(existing), nil
	}

	key, err := s.files.Originals.Store(data, upload.Filename)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to persist original")
	}

	originalName := storage.SanitizeBaseName(upload.Filename)
	doc := &models.Document{
		Title:            s.resolveTitle(meta.Title, originalName),
		Checksum:         checksum,
		Filename:         key,
		OriginalFilename: originalName,
		MimeType:         mimeType,
		StorageType:      models.StorageTypeUnencrypted,
		CorrespondentID:  meta.Correspondent,
		DocumentTypeID:   meta.DocumentType,
		ProjectID:        meta.Project,
		ConversionStatus: models.ConversionPending,
		TagIDs:           uniqueIDs(meta.Tags),
	}
	if created != nil {
		doc.Created = *created
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		if errors.Is(err, repository.ErrDuplicateChecksum) {
			// Lost a race with a concurrent upload of the same content.
			if winner := s.raceWinner(ctx, checksum); winner != nil {
				return s.duplicate(winner), nil
			}
			return nil, appErrors.Clone(appErrors.ErrServiceUnavailable, "document with this content is being ingested, retry shortly")
		}
		return nil, appErrors.Internal(err, "failed to create document")
	}

	s.metricsIngestion(dto.UploadStatusSuccess, int64(len(data)))
	s.logger.Info("document ingested",
		zap.Int64("document_id", doc.ID),
		zap.String("checksum", checksum),
		zap.String("mime_type", mimeType),
	)
	s.enqueue(ctx, doc.ID)

	return &dto.UploadResult{Status: dto.UploadStatusSuccess, ID: doc.ID}, nil
}

// Get returns a document with its notes.
func (s *DocumentService) Get(ctx context.Context, id int64) (*dto.DocumentDetail, error) {
	doc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	notes := make([]models.Note, 0)
	if s.notes != nil {
		notes, err = s.notes.ListByDocument(ctx, id)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load notes")
		}
	}
	return &dto.DocumentDetail{Document: *doc, HasArchiveVersion: doc.HasArchiveVersion(), Notes: notes}, nil
}

// Update applies a partial metadata edit. Content and conversion state are never touched.
func (s *DocumentService) Update(ctx context.Context, id int64, req dto.UpdateDocumentRequest) (*dto.DocumentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid document payload")
	}
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}

	upd := models.DocumentUpdate{PageCount: req.PageCount}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "title must not be blank")
		}
		upd.Title = &title
	}
	if req.Created != nil {
		created, err := parseCreated(*req.Created)
		if err != nil {
			return nil, err
		}
		upd.Created = created
	}
	upd.CorrespondentID = refUpdate(req.Correspondent)
	upd.DocumentTypeID = refUpdate(req.DocumentType)
	upd.ProjectID = refUpdate(req.Project)
	if req.Tags != nil {
		tags := uniqueIDs(*req.Tags)
		upd.TagIDs = &tags
	}

	if err := s.checkReferences(ctx, upd.CorrespondentID.ID, upd.DocumentTypeID.ID, upd.ProjectID.ID, derefIDs(upd.TagIDs)); err != nil {
		return nil, err
	}
	if !upd.Empty() {
		if err := s.repo.Update(ctx, id, upd); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.ErrNotFound
			}
			return nil, appErrors.Internal(err, "failed to update document")
		}
	}
	return s.Get(ctx, id)
}

// Delete soft-deletes a document; its files stay on disk.
func (s *DocumentService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.SoftDelete(ctx, id, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Internal(err, "failed to delete document")
	}
	s.logger.Info("document deleted", zap.Int64("document_id", id))
	return nil
}

// OpenOriginal opens the stored original for download.
func (s *DocumentService) OpenOriginal(ctx context.Context, id int64) (*FileDownload, error) {
	doc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	file, err := s.files.Originals.Open(doc.Filename, string(doc.StorageType))
	if err != nil {
		return nil, s.openError(err, appErrors.ErrNotFound, "original file missing")
	}
	name, contentType := doc.OriginalFilename, doc.MimeType
	if doc.StorageType == models.StorageTypeGPG {
		name, contentType = name+storage.EncryptedSuffix, "application/pgp-encrypted"
	}
	return download(file, name, contentType)
}

// OpenArchive opens the PDF/A archive, failing with ARCHIVE_NOT_AVAILABLE until stage one succeeds.
func (s *DocumentService) OpenArchive(ctx context.Context, id int64) (*FileDownload, error) {
	doc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.openArchive(doc)
}

// OpenThumbnail opens the WebP thumbnail.
func (s *DocumentService) OpenThumbnail(ctx context.Context, id int64) (*FileDownload, error) {
	doc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.ConversionStatus != models.ConversionThumbnailGenerated {
		return nil, appErrors.Clone(appErrors.ErrThumbnailMissing, statusMessage(doc))
	}
	file, err := s.files.Thumbnails.Open(doc.ThumbnailName())
	if err != nil {
		return nil, s.openError(err, appErrors.ErrThumbnailMissing, "")
	}
	return download(file, doc.ThumbnailName(), "image/webp")
}

// Reprocess queues a document for another conversion run.
func (s *DocumentService) Reprocess(ctx context.Context, id int64) (*dto.ProcessResult, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrServiceUnavailable, "conversion queue not configured")
	}
	if err := s.queue.Enqueue(ctx, jobs.NewJob(jobs.TypeProcessDocument, strconv.FormatInt(id, 10))); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "failed to queue document")
	}
	s.logger.Info("document queued for reprocessing", zap.Int64("document_id", id))
	return &dto.ProcessResult{Status: dto.ProcessStatusQueued, ID: id}, nil
}

// ShareLink signs a time-limited public link to the archive.
func (s *DocumentService) ShareLink(ctx context.Context, id int64) (*dto.ShareLinkResponse, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrServiceUnavailable, "share links not configured")
	}
	doc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !doc.HasArchiveVersion() {
		return nil, appErrors.Clone(appErrors.ErrArchiveNotAvailable, statusMessage(doc))
	}
	token, expiresAt, err := s.signer.Generate(strconv.FormatInt(doc.ID, 10), *doc.ArchiveFilename)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign share link")
	}
	base := strings.TrimRight(s.cfg.APIPrefix, "/")
	return &dto.ShareLinkResponse{
		URL:       fmt.Sprintf("%s/shared/%s", base, token),
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// OpenShared resolves a share token to the archive it was issued for.
func (s *DocumentService) OpenShared(ctx context.Context, token string) (*FileDownload, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrServiceUnavailable, "share links not configured")
	}
	obj, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired share link")
	}
	id, err := strconv.ParseInt(obj.Subject, 10, 64)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid share link")
	}
	doc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !doc.HasArchiveVersion() || *doc.ArchiveFilename != obj.Name {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "share link no longer valid")
	}
	return s.openArchive(doc)
}

func (s *DocumentService) openArchive(doc *models.Document) (*FileDownload, error) {
	if !doc.HasArchiveVersion() {
		return nil, appErrors.Clone(appErrors.ErrArchiveNotAvailable, statusMessage(doc))
	}
	file, err := s.files.Archives.Open(*doc.ArchiveFilename)
	if err != nil {
		return nil, s.openError(err, appErrors.ErrArchiveNotAvailable, "archive file missing")
	}
	stem := strings.TrimSuffix(doc.OriginalFilename, filepath.Ext(doc.OriginalFilename))
	return download(file, stem+".pdf", models.MimeTypePDF)
}

func (s *DocumentService) load(ctx context.Context, id int64) (*models.Document, error) {
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Internal(err, "failed to load document")
	}
	return doc, nil
}

func (s *DocumentService) validateUploadMeta(ctx context.Context, meta dto.UploadDocumentRequest) (*time.Time, error) {
	if err := s.validator.Struct(meta); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid document metadata")
	}
	var created *time.Time
	if strings.TrimSpace(meta.Created) != "" {
		parsed, err := parseCreated(meta.Created)
		if err != nil {
			return nil, err
		}
		created = parsed
	}
	if err := s.checkReferences(ctx, meta.Correspondent, meta.DocumentType, meta.Project, meta.Tags); err != nil {
		return nil, err
	}
	return created, nil
}

func (s *DocumentService) checkReferences(ctx context.Context, correspondent, documentType, project *int64, tags []int64) error {
	checks := []struct {
		kind models.ReferenceKind
		ids  []int64
	}{
		{models.ReferenceCorrespondent, optionalID(correspondent)},
		{models.ReferenceDocumentType, optionalID(documentType)},
		{models.ReferenceProject, optionalID(project)},
		{models.ReferenceTag, uniqueIDs(tags)},
	}
	for _, check := range checks {
		if len(check.ids) == 0 {
			continue
		}
		missing, err := s.repo.MissingReferences(ctx, check.kind, check.ids)
		if err != nil {
			return appErrors.Internal(err, "failed to validate references")
		}
		if len(missing) > 0 {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown %s: %v", check.kind, missing))
		}
	}
	return nil
}

func (s *DocumentService) enqueue(ctx context.Context, id int64) {
	if s.queue == nil {
		return
	}
	job := jobs.NewJob(jobs.TypeProcessDocument, strconv.FormatInt(id, 10))
	if err := s.queue.Enqueue(ctx, job); err != nil {
		// The document stays pending and is picked up by start-up recovery or a reprocess request.
		s.logger.Warn("failed to queue document for conversion", zap.Int64("document_id", id), zap.Error(err))
		if s.metrics != nil {
			s.metrics.RecordEnqueueFailure()
		}
	}
}

// raceWinner looks up the document that won a concurrent insert of checksum, retrying
// once after raceRetryDelay.
func (s *DocumentService) raceWinner(ctx context.Context, checksum string) *models.Document {
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(raceRetryDelay):
			}
		}
		winner, err := s.gate.CheckDuplicate(ctx, checksum)
		if err != nil {
			s.logger.Warn("duplicate lookup after race failed", zap.String("checksum", checksum), zap.Error(err))
			continue
		}
		if winner != nil {
			return winner
		}
	}
	return nil
}

func (s *DocumentService) duplicate(existing *models.Document) *dto.UploadResult {
	s.metricsIngestion(dto.UploadStatusDuplicate, 0)
	s.logger.Info("duplicate upload", zap.Int64("document_id", existing.ID), zap.String("checksum", existing.Checksum))
	return &dto.UploadResult{Status: dto.UploadStatusDuplicate, ID: existing.ID}
}

func (s *DocumentService) reject(err error) error {
	s.metricsIngestion("rejected", 0)
	return err
}

func (s *DocumentService) metricsIngestion(result string, size int64) {
	if s.metrics != nil {
		s.metrics.RecordIngestion(result, size)
	}
}

func (s *DocumentService) openError(err error, missing *appErrors.Error, message string) error {
	if errors.Is(err, storage.ErrNotExist) || errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("stored file missing", zap.Error(err))
		return appErrors.Clone(missing, message)
	}
	return appErrors.Internal(err, "failed to open file")
}

func (s *DocumentService) resolveTitle(title, originalName string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		title = strings.TrimSuffix(originalName, filepath.Ext(originalName))
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		title = string([]rune(title)[:maxTitleLength])
	}
	return title
}

func download(file *os.File, name, contentType string) (*FileDownload, error) {
	info, err := file.Stat()
	if err != nil {
		file.Close() //nolint:errcheck
		return nil, appErrors.Internal(err, "failed to read file metadata")
	}
	return &FileDownload{File: file, Filename: name, ContentType: contentType, SizeBytes: info.Size()}, nil
}

func statusMessage(doc *models.Document) string {
	switch doc.ConversionStatus {
	case models.ConversionArchiveFailed, models.ConversionThumbnailFailed:
		if doc.LastError != nil && *doc.LastError != "" {
			return fmt.Sprintf("conversion failed (%s): %s", doc.ConversionStatus, *doc.LastError)
		}
		return fmt.Sprintf("conversion failed (%s)", doc.ConversionStatus)
	case models.ConversionPending:
		return "document is queued for conversion"
	case models.ConversionArchiveGenerated:
		return "thumbnail is being generated"
	default:
		return "not available"
	}
}

func parseCreated(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrValidation, "created must be YYYY-MM-DD or RFC3339")
}

func refUpdate(value *int64) models.RefUpdate {
	if value == nil {
		return models.RefUpdate{}
	}
	if *value == 0 {
		return models.RefUpdate{Set: true}
	}
	id := *value
	return models.RefUpdate{Set: true, ID: &id}
}

func optionalID(value *int64) []int64 {
	if value == nil || *value <= 0 {
		return nil
	}
	return []int64{*value}
}

func derefIDs(ids *[]int64) []int64 {
	if ids == nil {
		return nil
	}
	return *ids
}

// uniqueIDs drops repeated ids keeping first-seen order.
func uniqueIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := mapset.NewThreadUnsafeSet[int64]()
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen.Add(id) {
			out = append(out, id)
		}
	}
	return out
}
