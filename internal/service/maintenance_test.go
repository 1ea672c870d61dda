package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/document-archive-api/internal/models"
	"github.com/noah-isme/document-archive-api/pkg/jobs"
	"github.com/noah-isme/document-archive-api/pkg/storage"
)

type pendingListerStub struct {
	ids      []int64
	statuses []models.ConversionStatus
}

func (s *pendingListerStub) ListIDsByStatus(ctx context.Context, statuses []models.ConversionStatus, limit int) ([]int64, error) {
	s.statuses = statuses
	return s.ids, nil
}

func TestRecoverPendingQueuesUnfinishedDocuments(t *testing.T) {
	repo := &pendingListerStub{ids: []int64{3, 8}}
	queue := &queueStub{}

	n, err := RecoverPending(context.Background(), repo, queue, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []models.ConversionStatus{models.ConversionPending, models.ConversionArchiveGenerated}, repo.statuses)
	require.Len(t, queue.jobs, 2)
	assert.Equal(t, "3", queue.jobs[0].Ref)
	assert.Equal(t, "8", queue.jobs[1].Ref)
}

func TestRecoverPendingSkipsEnqueueFailures(t *testing.T) {
	n, err := RecoverPending(context.Background(), &pendingListerStub{ids: []int64{1}}, &queueStub{err: errors.New("closed")}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestScratchJanitorSweep(t *testing.T) {
	scratch, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	stale, err := scratch.MkdirTemp("doc-1-")
	require.NoError(t, err)
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))
	fresh, err := scratch.MkdirTemp("doc-2-")
	require.NoError(t, err)

	NewScratchJanitor(scratch, "@every 1h", time.Hour, nil).Sweep()

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Clean(fresh))
	assert.NoError(t, err)
}

func TestScratchJanitorRejectsBadSchedule(t *testing.T) {
	scratch, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	j := NewScratchJanitor(scratch, "not a schedule", time.Hour, nil)
	assert.Error(t, j.Start())
}

type fullQueueStub struct {
	capacity int
	jobs     []jobs.Job
	attempts int
}

func (q *fullQueueStub) Enqueue(_ context.Context, job jobs.Job) error {
	q.attempts++
	if len(q.jobs) >= q.capacity {
		return fmt.Errorf("queue documents: %w", jobs.ErrQueueFull)
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func TestRecoverPendingStopsWhenQueueIsFull(t *testing.T) {
	queue := &fullQueueStub{capacity: 2}
	n, err := RecoverPending(context.Background(), &pendingListerStub{ids: []int64{1, 2, 3, 4, 5}}, queue, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 3, queue.attempts)
}

func TestRecoverPendingDoesNotWaitOnBusyWorkers(t *testing.T) {
	release := make(chan struct{})
	q := jobs.NewQueue("documents", func(ctx context.Context, _ jobs.Job) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}, jobs.QueueConfig{Workers: 2, BufferSize: 4})
	require.NoError(t, q.Start(context.Background()))
	defer q.Stop()
	defer close(release)

	ids := make([]int64, 50)
	for i := range ids {
		ids[i] = int64(i + 1)
	}

	done := make(chan int, 1)
	go func() {
		n, _ := RecoverPending(context.Background(), &pendingListerStub{ids: ids}, q, nil)
		done <- n
	}()
	select {
	case n := <-done:
		assert.LessOrEqual(t, n, 6)
	case <-time.After(2 * time.Second):
		t.Fatal("recovery blocked on a busy queue")
	}
}
