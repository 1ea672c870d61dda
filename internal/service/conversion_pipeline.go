package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/document-archive-api/internal/models"
	"github.com/noah-isme/document-archive-api/pkg/logger"
	"github.com/noah-isme/document-archive-api/pkg/storage"
)

// ErrDocumentGone is returned when the document to convert no longer exists.
var ErrDocumentGone = errors.New("document not found")

// PDFConverter produces a PDF from an original of the given content type inside outDir.
type PDFConverter interface {
	ConvertToPDF(ctx context.Context, src, contentType, outDir string) (string, error)
}

// PDFANormalizer rewrites a PDF as PDF/A.
type PDFANormalizer interface {
	NormalizeToPDFA(ctx context.Context, in, out string) error
}

// PageRasterizer renders the first page of a PDF to a PNG file.
type PageRasterizer interface {
	RasterizeFirstPage(ctx context.Context, in, out string) error
}

// ThumbnailEncoder turns a raster file into thumbnail bytes.
type ThumbnailEncoder interface {
	Render(rasterPath string) ([]byte, error)
}

type pipelineStore interface {
	GetByID(ctx context.Context, id int64) (*models.Document, error)
	RecordArchive(ctx context.Context, id int64, archiveFilename, archiveChecksum string) error
	RecordConversionStatus(ctx context.Context, id int64, status models.ConversionStatus, lastError *string) error
}

type originalLocator interface {
	Resolve(key, storageType string) string
}

type artifactStore interface {
	WriteAtomic(name string, data []byte) error
	Promote(src, name string) error
	Path(name string) string
}

type scratchSpace interface {
	MkdirTemp(prefix string) (string, error)
	Remove(name string) error
}

type stageMetrics interface {
	ObserveConversionStage(stage, status string, duration time.Duration)
}

// PipelineTools groups the conversion capabilities.
type PipelineTools struct {
	Converter  PDFConverter
	Normalizer PDFANormalizer
	Rasterizer PageRasterizer
	Thumbnails ThumbnailEncoder
}

// PipelineStorage groups the filesystem roots the pipeline reads and writes.
type PipelineStorage struct {
	Originals  originalLocator
	Archives   artifactStore
	Thumbnails artifactStore
	Scratch    scratchSpace
}

// ConversionPipeline turns a pending document into an archive PDF/A and a thumbnail.
type ConversionPipeline struct {
	store   pipelineStore
	tools   PipelineTools
	files   PipelineStorage
	metrics stageMetrics
	logger  *zap.Logger
}

// NewConversionPipeline constructs the pipeline.
func NewConversionPipeline(store pipelineStore, tools PipelineTools, files PipelineStorage, metrics stageMetrics, log *zap.Logger) *ConversionPipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &ConversionPipeline{
		store:   store,
		tools:   tools,
		files:   files,
		metrics: metrics,
		logger:  log.With(zap.String("component", "conversion_pipeline")),
	}
}

// Process runs the archive stage and, when it succeeds, the thumbnail stage. Stage failures
// are recorded on the document and reported through the outcome; the returned error is
// reserved for conditions that make recording impossible.
func (p *ConversionPipeline) Process(ctx context.Context, id int64) (*models.ConversionOutcome, error) {
	doc, err := p.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrDocumentGone, id)
		}
		return nil, fmt.Errorf("load document %d: %w", id, err)
	}

	outcome, err := p.GenerateArchive(ctx, doc)
	if err != nil || outcome.Failed() {
		return outcome, err
	}
	return p.GenerateThumbnail(ctx, doc)
}

// GenerateArchive converts the original into a normalized PDF/A stored as
// <checksum>_archive.pdf and records it on the document.
func (p *ConversionPipeline) GenerateArchive(ctx context.Context, doc *models.Document) (*models.ConversionOutcome, error) {
	start := time.Now()
	log := logger.ForDocument(p.logger, doc.ID).With(zap.String("stage", string(models.StageArchive)))

	if doc.StorageType == models.StorageTypeGPG {
		return p.fail(ctx, log, doc, models.StageArchive, start, errors.New("encrypted originals cannot be converted"))
	}
	src := p.files.Originals.Resolve(doc.Filename, string(doc.StorageType))
	if _, err := os.Stat(src); err != nil {
		return p.fail(ctx, log, doc, models.StageArchive, start, fmt.Errorf("original unavailable: %w", err))
	}

	dir, err := p.files.Scratch.MkdirTemp(fmt.Sprintf("doc-%d-", doc.ID))
	if err != nil {
		return p.fatal(ctx, log, doc, models.StageArchive, start, err)
	}
	defer p.cleanup(log, dir)

	pdfPath := src
	if doc.MimeType != models.MimeTypePDF {
		pdfPath, err = p.tools.Converter.ConvertToPDF(ctx, src, doc.MimeType, dir)
		if err != nil {
			return p.fail(ctx, log, doc, models.StageArchive, start, fmt.Errorf("convert to pdf: %w", err))
		}
	}

	normalized := filepath.Join(dir, "normalized.pdf")
	if err := p.tools.Normalizer.NormalizeToPDFA(ctx, pdfPath, normalized); err != nil {
		return p.fail(ctx, log, doc, models.StageArchive, start, fmt.Errorf("normalize to pdf/a: %w", err))
	}
	if pdfPath != src {
		_ = os.Remove(pdfPath)
	}

	checksum, err := storage.ChecksumFile(normalized)
	if err != nil {
		return p.fail(ctx, log, doc, models.StageArchive, start, err)
	}

	name := models.ArchiveName(doc.Checksum)
	if err := p.files.Archives.Promote(normalized, name); err != nil {
		return p.fatal(ctx, log, doc, models.StageArchive, start, fmt.Errorf("store archive: %w", err))
	}

	if err := p.store.RecordArchive(ctx, doc.ID, name, checksum); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrDocumentGone, doc.ID)
		}
		return nil, fmt.Errorf("record archive for document %d: %w", doc.ID, err)
	}

	doc.ArchiveFilename = &name
	doc.ArchiveChecksum = &checksum
	doc.ConversionStatus = models.ConversionArchiveGenerated
	doc.LastError = nil
	p.observe(models.StageArchive, models.ConversionArchiveGenerated, start)
	log.Info("archive generated", zap.String("archive_filename", name), zap.Duration("took", time.Since(start)))

	return &models.ConversionOutcome{DocumentID: doc.ID, Status: models.ConversionArchiveGenerated, Stage: models.StageArchive}, nil
}

// GenerateThumbnail renders the first archive page into a WebP thumbnail. Archive fields
// are never modified by this stage.
func (p *ConversionPipeline) GenerateThumbnail(ctx context.Context, doc *models.Document) (*models.ConversionOutcome, error) {
	start := time.Now()
	log := logger.ForDocument(p.logger, doc.ID).With(zap.String("stage", string(models.StageThumbnail)))

	if !doc.HasArchiveVersion() {
		return p.fail(ctx, log, doc, models.StageThumbnail, start, errors.New("archive version not available"))
	}

	dir, err := p.files.Scratch.MkdirTemp(fmt.Sprintf("doc-%d-", doc.ID))
	if err != nil {
		return p.fatal(ctx, log, doc, models.StageThumbnail, start, err)
	}
	defer p.cleanup(log, dir)

	raster := filepath.Join(dir, doc.RasterName())
	defer os.Remove(raster) //nolint:errcheck

	archivePath := p.files.Archives.Path(*doc.ArchiveFilename)
	if err := p.tools.Rasterizer.RasterizeFirstPage(ctx, archivePath, raster); err != nil {
		return p.fail(ctx, log, doc, models.StageThumbnail, start, fmt.Errorf("rasterize first page: %w", err))
	}

	data, err := p.tools.Thumbnails.Render(raster)
	if err != nil {
		return p.fail(ctx, log, doc, models.StageThumbnail, start, err)
	}
	if err := p.files.Thumbnails.WriteAtomic(doc.ThumbnailName(), data); err != nil {
		return p.fail(ctx, log, doc, models.StageThumbnail, start, fmt.Errorf("store thumbnail: %w", err))
	}

	if err := p.store.RecordConversionStatus(ctx, doc.ID, models.ConversionThumbnailGenerated, nil); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrDocumentGone, doc.ID)
		}
		return nil, fmt.Errorf("record thumbnail for document %d: %w", doc.ID, err)
	}

	doc.ConversionStatus = models.ConversionThumbnailGenerated
	doc.LastError = nil
	p.observe(models.StageThumbnail, models.ConversionThumbnailGenerated, start)
	log.Info("thumbnail generated", zap.String("thumbnail", doc.ThumbnailName()), zap.Duration("took", time.Since(start)))

	return &models.ConversionOutcome{DocumentID: doc.ID, Status: models.ConversionThumbnailGenerated, Stage: models.StageThumbnail}, nil
}

// fail records a stage failure on the document and reports it as an outcome.
func (p *ConversionPipeline) fail(ctx context.Context, log *zap.Logger, doc *models.Document, stage models.ConversionStage, start time.Time, cause error) (*models.ConversionOutcome, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		// Cancelled runs stay in their current state and are picked up again.
		log.Warn("conversion interrupted", zap.Error(cause))
		return nil, ctxErr
	}

	status := models.ConversionArchiveFailed
	if stage == models.StageThumbnail {
		status = models.ConversionThumbnailFailed
	}
	msg := cause.Error()
	log.Error("conversion stage failed", zap.String("status", string(status)), zap.Error(cause))

	if err := p.store.RecordConversionStatus(ctx, doc.ID, status, &msg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrDocumentGone, doc.ID)
		}
		return nil, fmt.Errorf("record %s failure for document %d: %w", stage, doc.ID, err)
	}
	doc.ConversionStatus = status
	doc.LastError = &msg
	p.observe(stage, status, start)

	return &models.ConversionOutcome{DocumentID: doc.ID, Status: status, Stage: stage, Message: msg}, nil
}

// fatal records the failure like fail but also returns cause, for storage that cannot be written.
func (p *ConversionPipeline) fatal(ctx context.Context, log *zap.Logger, doc *models.Document, stage models.ConversionStage, start time.Time, cause error) (*models.ConversionOutcome, error) {
	outcome, err := p.fail(ctx, log, doc, stage, start, cause)
	if err != nil {
		return outcome, err
	}
	return outcome, cause
}

func (p *ConversionPipeline) cleanup(log *zap.Logger, dir string) {
	if err := p.files.Scratch.Remove(dir); err != nil {
		log.Warn("failed to remove scratch directory", zap.String("dir", dir), zap.Error(err))
	}
}

func (p *ConversionPipeline) observe(stage models.ConversionStage, status models.ConversionStatus, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.ObserveConversionStage(string(stage), string(status), time.Since(start))
}
