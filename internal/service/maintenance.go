package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron"
	"go.uber.org/zap"

	"github.com/noah-isme/document-archive-api/internal/models"
	"github.com/noah-isme/document-archive-api/pkg/jobs"
)

const recoveryBatchSize = 500

type scratchCleaner interface {
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ScratchJanitor periodically removes abandoned conversion working directories.
type ScratchJanitor struct {
	cron     *cron.Cron
	scratch  scratchCleaner
	ttl      time.Duration
	schedule string
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
}

// NewScratchJanitor builds a janitor running on a cron schedule such as "@every 30m".
func NewScratchJanitor(scratch scratchCleaner, schedule string, ttl time.Duration, logger *zap.Logger) *ScratchJanitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if schedule == "" {
		schedule = "@every 30m"
	}
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &ScratchJanitor{
		cron:     cron.New(),
		scratch:  scratch,
		ttl:      ttl,
		schedule: schedule,
		logger:   logger.With(zap.String("component", "scratch_janitor")),
	}
}

// Start registers the sweep and starts the scheduler.
func (j *ScratchJanitor) Start() error {
	if err := j.cron.AddFunc(j.schedule, j.Sweep); err != nil {
		return err
	}
	j.cron.Start()
	j.logger.Info("scratch janitor started", zap.String("schedule", j.schedule), zap.Duration("ttl", j.ttl))
	return nil
}

// Stop halts the scheduler.
func (j *ScratchJanitor) Stop() {
	j.cron.Stop()
}

// Sweep deletes scratch entries older than the TTL. Overlapping runs are skipped.
func (j *ScratchJanitor) Sweep() {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		j.logger.Warn("previous sweep still running")
		return
	}
	j.running = true
	j.mu.Unlock()
	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()

	removed, err := j.scratch.CleanupOlderThan(j.ttl)
	if err != nil {
		j.logger.Warn("scratch cleanup incomplete", zap.Error(err))
	}
	if len(removed) > 0 {
		j.logger.Info("scratch entries removed", zap.Int("count", len(removed)))
	}
}

type pendingLister interface {
	ListIDsByStatus(ctx context.Context, statuses []models.ConversionStatus, limit int) ([]int64, error)
}

// RecoverPending re-queues documents that were persisted but never finished conversion,
// typically after a restart of the in-memory queue. It returns the number queued.
func RecoverPending(ctx context.Context, repo pendingLister, queue jobEnqueuer, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ids, err := repo.ListIDsByStatus(ctx, []models.ConversionStatus{models.ConversionPending, models.ConversionArchiveGenerated}, recoveryBatchSize)
	if err != nil {
		return 0, err
	}
	queued := 0
	for i, id := range ids {
		if err := queue.Enqueue(ctx, jobs.NewJob(jobs.TypeProcessDocument, strconv.FormatInt(id, 10))); err != nil {
			if errors.Is(err, jobs.ErrQueueFull) {
				logger.Warn("conversion queue full, leaving documents pending", zap.Int("remaining", len(ids)-i))
				break
			}
			logger.Warn("failed to recover document", zap.Int64("document_id", id), zap.Error(err))
			continue
		}
		queued++
	}
	if queued > 0 {
		logger.Info("recovered unfinished documents", zap.Int("count", queued))
	}
	return queued, nil
}
