package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/document-archive-api/internal/models"
	"github.com/noah-isme/document-archive-api/pkg/jobs"
)

const failedBatchSize = 1000

func newReprocessCmd() *cobra.Command {
	var (
		inline bool
		failed bool
	)
	command := &cobra.Command{
		Use:   "reprocess [document-id...]",
		Short: "Run archive and thumbnail generation again",
		Long: `Re-runs the conversion pipeline for the given documents. Without --inline the
documents are pushed onto the Redis queue for the running workers.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !failed {
				return fmt.Errorf("pass document ids or --failed")
			}
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			if failed {
				more, err := a.docs.ListIDsByStatus(cmd.Context(), []models.ConversionStatus{models.ConversionArchiveFailed, models.ConversionThumbnailFailed}, failedBatchSize)
				if err != nil {
					return fmt.Errorf("list failed documents: %w", err)
				}
				ids = append(ids, more...)
			}

			if inline {
				return reprocessInline(cmd.Context(), a, ids)
			}
			if a.redis == nil {
				return fmt.Errorf("queueing requires QUEUE_BACKEND=redis; use --inline with the memory backend")
			}
			queue := a.dispatcher(nil)
			for _, id := range ids {
				if err := queue.Enqueue(cmd.Context(), jobs.NewJob(jobs.TypeProcessDocument, strconv.FormatInt(id, 10))); err != nil {
					return fmt.Errorf("enqueue document %d: %w", id, err)
				}
			}
			a.log.Info("documents queued", zap.Int("count", len(ids)))
			return nil
		},
	}
	command.Flags().BoolVar(&inline, "inline", false, "convert in this process instead of queueing")
	command.Flags().BoolVar(&failed, "failed", false, "include every document whose last conversion failed")
	return command
}

func reprocessInline(ctx context.Context, a *app, ids []int64) error {
	pipeline := a.pipeline()
	failures := 0
	for _, id := range ids {
		outcome, err := pipeline.Process(ctx, id)
		if err != nil {
			a.log.Error("reprocess failed", zap.Int64("document_id", id), zap.Error(err))
			failures++
			continue
		}
		a.log.Info("reprocessed", zap.Int64("document_id", id), zap.String("status", string(outcome.Status)), zap.String("message", outcome.Message))
		if outcome.Failed() {
			failures++
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d documents did not convert", failures, len(ids))
	}
	return nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid document id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
