package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisPollTimeout = time.Second

// RedisQueue is a durable dispatcher built on Redis lists. Jobs move atomically from the
// pending list to a processing list while a worker holds them, so jobs interrupted by a
// crash are replayed on the next Start.
type RedisQueue struct {
	client     redis.UniversalClient
	handler    Handler
	key        string
	processing string

	workers    int
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewRedisQueue builds a Redis backed queue that stores pending jobs under key.
func NewRedisQueue(client redis.UniversalClient, key string, handler Handler, cfg QueueConfig) *RedisQueue {
	cfg = cfg.normalize()
	if key == "" {
		key = "jobs"
	}
	return &RedisQueue{
		client:     client,
		handler:    handler,
		key:        key,
		processing: key + ":processing",
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger.With(zap.String("queue", key)),
	}
}

// Start replays jobs left in the processing list and launches the workers.
func (q *RedisQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return nil
	}

	replayed, err := q.replay(ctx)
	if err != nil {
		return err
	}
	if replayed > 0 {
		q.logger.Warn("replayed interrupted jobs", zap.Int("count", replayed))
	}

	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.started = true
	q.logger.Info("queue started", zap.Int("workers", q.workers))
	return nil
}

// Stop cancels the workers and waits for in-flight jobs to return.
func (q *RedisQueue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.Info("queue stopped")
}

// Enqueue appends a job to the pending list. The queue does not need to be started,
// which lets CLI tools feed a running server.
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, raw).Err(); err != nil {
		return fmt.Errorf("push job to %s: %w", q.key, err)
	}
	return nil
}

func (q *RedisQueue) replay(ctx context.Context) (int, error) {
	count := 0
	for {
		err := q.client.RPopLPush(ctx, q.processing, q.key).Err()
		if errors.Is(err, redis.Nil) {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("replay %s: %w", q.processing, err)
		}
		count++
	}
}

func (q *RedisQueue) worker() {
	defer q.wg.Done()
	for {
		if q.ctx.Err() != nil {
			return
		}
		raw, err := q.client.BRPopLPush(q.ctx, q.key, q.processing, redisPollTimeout).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || q.ctx.Err() != nil {
				continue
			}
			q.logger.Error("pop job", zap.Error(err))
			q.sleep(q.retryDelay)
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			q.logger.Error("discarding malformed job", zap.String("payload", raw), zap.Error(err))
			q.ack(raw)
			continue
		}

		handleErr := q.handler(q.ctx, job)
		if handleErr != nil && q.ctx.Err() != nil {
			// Leave the job in the processing list; it is replayed on the next start.
			return
		}
		q.ack(raw)
		if handleErr != nil {
			q.handleFailure(job, handleErr)
		}
	}
}

func (q *RedisQueue) ack(raw string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.client.LRem(ctx, q.processing, 1, raw).Err(); err != nil {
		q.logger.Error("ack job", zap.Error(err))
	}
}

func (q *RedisQueue) handleFailure(job Job, err error) {
	job.Attempt++
	fields := []zap.Field{zap.String("job_id", job.ID), zap.String("type", job.Type), zap.String("ref", job.Ref), zap.Error(err)}
	if job.Attempt > q.maxRetries {
		q.logger.Error("job failed", append(fields, zap.Int("attempts", job.Attempt))...)
		return
	}
	q.logger.Warn("job failed, retrying", append(fields, zap.Int("attempt", job.Attempt))...)
	if !q.sleep(q.retryDelay) {
		return
	}
	if err := q.Enqueue(q.ctx, job); err != nil {
		q.logger.Error("failed to requeue job", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (q *RedisQueue) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-q.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
