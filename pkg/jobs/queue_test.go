package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueDeliversJobs(t *testing.T) {
	received := make(chan Job, 1)
	q := NewQueue("test", func(_ context.Context, job Job) error {
		received <- job
		return nil
	}, QueueConfig{Workers: 2})

	require.NoError(t, q.Start(context.Background()))
	defer q.Stop()

	require.NoError(t, q.Enqueue(context.Background(), NewJob(TypeProcessDocument, "42")))

	select {
	case job := <-received:
		require.Equal(t, TypeProcessDocument, job.Type)
		require.Equal(t, "42", job.Ref)
		require.NotEmpty(t, job.ID)
		require.False(t, job.Enqueued.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("job not delivered")
	}
}

func TestQueueDoesNotRetryByDefault(t *testing.T) {
	var calls int32
	q := NewQueue("test", func(context.Context, Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("boom")
	}, QueueConfig{RetryDelay: 10 * time.Millisecond})

	require.NoError(t, q.Start(context.Background()))
	defer q.Stop()

	require.NoError(t, q.Enqueue(context.Background(), NewJob(TypeProcessDocument, "1")))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestQueueRetriesWhenConfigured(t *testing.T) {
	var calls int32
	q := NewQueue("test", func(context.Context, Job) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, QueueConfig{MaxRetries: 2, RetryDelay: 5 * time.Millisecond})

	require.NoError(t, q.Start(context.Background()))
	defer q.Stop()

	require.NoError(t, q.Enqueue(context.Background(), NewJob(TypeProcessDocument, "1")))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 3 }, time.Second, 5*time.Millisecond)
}

func TestQueueEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Job) error { return nil }, QueueConfig{})
	require.Error(t, q.Enqueue(context.Background(), NewJob(TypeProcessDocument, "1")))
}

func TestQueueEnqueueFailsFastWhenFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	q := NewQueue("busy", func(ctx context.Context, _ Job) error {
		started <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 2})

	require.NoError(t, q.Start(context.Background()))
	defer q.Stop()
	defer close(release)

	require.NoError(t, q.Enqueue(context.Background(), NewJob(TypeProcessDocument, "1")))
	<-started
	require.NoError(t, q.Enqueue(context.Background(), NewJob(TypeProcessDocument, "2")))
	require.NoError(t, q.Enqueue(context.Background(), NewJob(TypeProcessDocument, "3")))

	done := make(chan error, 1)
	go func() { done <- q.Enqueue(context.Background(), NewJob(TypeProcessDocument, "4")) }()
	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrQueueFull)
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full buffer")
	}
}
