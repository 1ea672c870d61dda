package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisQueueDeliversAndAcks(t *testing.T) {
	mr, client := newTestRedis(t)
	received := make(chan Job, 1)
	q := NewRedisQueue(client, "documents:process", func(_ context.Context, job Job) error {
		received <- job
		return nil
	}, QueueConfig{Workers: 1})

	require.NoError(t, q.Start(context.Background()))
	defer q.Stop()

	require.NoError(t, q.Enqueue(context.Background(), NewJob(TypeProcessDocument, "7")))

	select {
	case job := <-received:
		require.Equal(t, "7", job.Ref)
	case <-time.After(3 * time.Second):
		t.Fatal("job not delivered")
	}

	require.Eventually(t, func() bool {
		items, _ := mr.List("documents:process:processing")
		return len(items) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRedisQueueReplaysInterruptedJobs(t *testing.T) {
	mr, client := newTestRedis(t)
	raw, err := json.Marshal(Job{ID: "job-1", Type: TypeProcessDocument, Ref: "9"})
	require.NoError(t, err)
	_, err = mr.Lpush("documents:process:processing", string(raw))
	require.NoError(t, err)

	received := make(chan Job, 1)
	q := NewRedisQueue(client, "documents:process", func(_ context.Context, job Job) error {
		received <- job
		return nil
	}, QueueConfig{Workers: 1})

	require.NoError(t, q.Start(context.Background()))
	defer q.Stop()

	select {
	case job := <-received:
		require.Equal(t, "job-1", job.ID)
		require.Equal(t, "9", job.Ref)
	case <-time.After(3 * time.Second):
		t.Fatal("interrupted job not replayed")
	}
}

func TestRedisQueueDropsFailedJobWithoutRetries(t *testing.T) {
	mr, client := newTestRedis(t)
	done := make(chan struct{}, 1)
	q := NewRedisQueue(client, "documents:process", func(context.Context, Job) error {
		done <- struct{}{}
		return errors.New("boom")
	}, QueueConfig{Workers: 1})

	require.NoError(t, q.Start(context.Background()))
	defer q.Stop()

	require.NoError(t, q.Enqueue(context.Background(), NewJob(TypeProcessDocument, "3")))
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("job not delivered")
	}

	require.Eventually(t, func() bool {
		processing, _ := mr.List("documents:process:processing")
		pending, _ := mr.List("documents:process")
		return len(processing) == 0 && len(pending) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
