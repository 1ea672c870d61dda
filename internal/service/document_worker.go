package service

import (
	"context"
	"errors"
	"strconv"

	"go.uber.org/zap"

	"github.com/noah-isme/document-archive-api/internal/models"
	"github.com/noah-isme/document-archive-api/pkg/jobs"
)

type documentProcessor interface {
	Process(ctx context.Context, id int64) (*models.ConversionOutcome, error)
}

// DocumentWorker adapts queue jobs to pipeline runs.
type DocumentWorker struct {
	pipeline documentProcessor
	logger   *zap.Logger
}

// NewDocumentWorker constructs the worker.
func NewDocumentWorker(pipeline documentProcessor, logger *zap.Logger) *DocumentWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentWorker{pipeline: pipeline, logger: logger}
}

// Handle implements jobs.Handler. Malformed jobs and vanished documents are dropped.
func (w *DocumentWorker) Handle(ctx context.Context, job jobs.Job) error {
	if job.Type != jobs.TypeProcessDocument {
		w.logger.Warn("unexpected job type", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}
	id, err := strconv.ParseInt(job.Ref, 10, 64)
	if err != nil || id <= 0 {
		w.logger.Warn("invalid document reference", zap.String("job_id", job.ID), zap.String("ref", job.Ref))
		return nil
	}

	outcome, err := w.pipeline.Process(ctx, id)
	if err != nil {
		if errors.Is(err, ErrDocumentGone) {
			w.logger.Warn("document vanished before conversion", zap.Int64("document_id", id))
			return nil
		}
		return err
	}

	w.logger.Info("document processed",
		zap.String("job_id", job.ID),
		zap.Int64("document_id", id),
		zap.String("status", string(outcome.Status)),
		zap.String("stage", string(outcome.Stage)),
		zap.Int("attempt", job.Attempt),
	)
	return nil
}
