package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/ConsultLedger/internal/pkg/cache"
)

const (
	// Redis keys, namespaced so the queue can share a database with the cache
	JobKeyPrefix     = "ledger:job:"
	JobQueueKey      = "ledger:jobs:pending"
	JobProcessingKey = "ledger:jobs:processing"
	JobStatsKey      = "ledger:jobs:stats"

	DefaultMaxRetries   = 3
	DefaultRetryBackoff = time.Minute
	JobTTL              = 24 * time.Hour

	stuckAfter    = 10 * time.Minute
	sweepInterval = time.Minute
)

// Handlers carries the collaborators the job processors call into.
// A nil handler makes jobs of that type fail and retry.
type Handlers struct {
	ERP     *ERPClient
	Archive *LedgerArchiver
}

// Queue runs ERP sync and ledger archive jobs from a Redis list. A job moves
// from the pending list to the processing list while a worker owns it.
type Queue struct {
	client       *redis.Client
	workers      int
	retryBackoff time.Duration
	stopCh       chan struct{}
	wg           sync.WaitGroup
	mu           sync.Mutex
	running      bool
	handlers     Handlers
}

// NewQueue creates a job queue on the shared cache client
func NewQueue(workers int) *Queue {
	return NewQueueWithClient(cache.GetClient(), workers)
}

// NewQueueWithClient creates a job queue on the given Redis client
func NewQueueWithClient(client *redis.Client, workers int) *Queue {
	if workers <= 0 {
		workers = 3
	}
	return &Queue{
		client:       client,
		workers:      workers,
		retryBackoff: DefaultRetryBackoff,
		stopCh:       make(chan struct{}),
	}
}

// SetHandlers replaces the processors' collaborators.
func (q *Queue) SetHandlers(h Handlers) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = h
}

func (q *Queue) currentHandlers() Handlers {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.handlers
}

// SetRetryBackoff changes the delay unit between attempts. The n-th retry
// waits n units.
func (q *Queue) SetRetryBackoff(d time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if d > 0 {
		q.retryBackoff = d
	}
}

func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}

	q.stopCh = make(chan struct{})
	q.running = true
	log.Infof("[JobQueue] Starting %d workers", q.workers)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i, q.stopCh)
	}

	q.wg.Add(1)
	go q.sweeper(q.stopCh)
}

func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	log.Info("[JobQueue] Stopping workers...")
	close(q.stopCh)
	q.running = false
	q.mu.Unlock()

	q.wg.Wait()
	log.Info("[JobQueue] All workers stopped")
}

func (q *Queue) sweeper(stop <-chan struct{}) {
	defer q.wg.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if n, err := q.recoverStuck(context.Background(), now, stuckAfter); err != nil {
				log.Errorf("[JobQueue] Sweep failed: %v", err)
			} else if n > 0 {
				log.Warnf("[JobQueue] Requeued %d stuck jobs", n)
			}
		}
	}
}

// recoverStuck moves jobs that have been processing for longer than maxAge
// back to the pending list, e.g. after a worker crashed mid-job. Entries
// whose job data expired or that are no longer processing are dropped; any
// other read error aborts the sweep and leaves the list untouched.
func (q *Queue) recoverStuck(ctx context.Context, now time.Time, maxAge time.Duration) (int, error) {
	ids, err := q.client.LRange(ctx, JobProcessingKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if errors.Is(err, redis.Nil) {
			q.removeFromProcessing(ctx, id)
			continue
		}
		if err != nil {
			return recovered, fmt.Errorf("job %s: %w", id, err)
		}
		if job.Status != JobStatusProcessing {
			q.removeFromProcessing(ctx, id)
			continue
		}

		started := job.UpdatedAt
		if job.ProcessedAt != nil {
			started = *job.ProcessedAt
		}
		if now.Sub(started) <= maxAge {
			continue
		}

		log.Warnf("[JobQueue] Recovering %s job %s after %s", job.Type, job.ID, now.Sub(started))
		job.Status = JobStatusPending
		job.ErrorMsg = "recovered by sweeper"
		job.UpdatedAt = now
		q.updateJob(ctx, job)

		if err := q.requeue(ctx, id); err != nil {
			return recovered, err
		}
		recovered++
	}
	return recovered, nil
}

func (q *Queue) worker(id int, stop <-chan struct{}) {
	defer q.wg.Done()
	log.Debugf("[JobQueue] Worker %d started", id)

	ctx := context.Background()
	for {
		select {
		case <-stop:
			log.Debugf("[JobQueue] Worker %d stopping", id)
			return
		default:
		}

		// dequeueJob blocks for up to a second, so the stop channel is
		// checked at least that often.
		job, err := q.dequeueJob(ctx)
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			log.Errorf("[JobQueue] Worker %d: dequeue failed: %v", id, err)
			time.Sleep(time.Second)
			continue
		}
		q.processJob(ctx, job)
	}
}

// EnqueueJob stores a pending job and pushes it onto the queue
func (q *Queue) EnqueueJob(ctx context.Context, jobType JobType, payload map[string]interface{}) (*Job, error) {
	now := time.Now()
	job := &Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Status:     JobStatusPending,
		Payload:    payload,
		CreatedAt:  now,
		UpdatedAt:  now,
		MaxRetries: DefaultMaxRetries,
	}

	jobData, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, JobKeyPrefix+job.ID, jobData, JobTTL)
	pipe.LPush(ctx, JobQueueKey, job.ID)
	pipe.HIncrBy(ctx, JobStatsKey, string(JobStatusPending), 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	log.Infof("[JobQueue] Enqueued %s job %s", job.Type, job.ID)
	return job, nil
}

// dequeueJob atomically moves the oldest pending job to the processing list.
// It returns redis.Nil when nothing arrived within a second.
func (q *Queue) dequeueJob(ctx context.Context) (*Job, error) {
	jobID, err := q.client.BRPopLPush(ctx, JobQueueKey, JobProcessingKey, time.Second).Result()
	if err != nil {
		return nil, err
	}

	job, err := q.GetJob(ctx, jobID)
	if errors.Is(err, redis.Nil) {
		q.removeFromProcessing(ctx, jobID)
		return nil, fmt.Errorf("job %s has no data: %w", jobID, err)
	}
	if err != nil {
		if rerr := q.requeue(ctx, jobID); rerr != nil {
			log.Errorf("[JobQueue] Failed to requeue job %s: %v", jobID, rerr)
		}
		return nil, fmt.Errorf("job %s: %w", jobID, err)
	}
	return job, nil
}

// requeue moves a job id from the processing list back to the pending list.
func (q *Queue) requeue(ctx context.Context, jobID string) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, JobProcessingKey, 1, jobID)
	pipe.RPush(ctx, JobQueueKey, jobID)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *Queue) processJob(ctx context.Context, job *Job) {
	job.MarkAsProcessing()
	q.updateJob(ctx, job)

	var err error
	switch job.Type {
	case JobTypeERPSync:
		err = q.processERPSyncJob(ctx, job)
	case JobTypeLedgerArchive:
		err = q.processLedgerArchiveJob(ctx, job)
	default:
		err = fmt.Errorf("unknown job type: %s", job.Type)
	}

	defer q.removeFromProcessing(ctx, job.ID)

	if err == nil {
		log.Infof("[JobQueue] %s job %s completed", job.Type, job.ID)
		job.MarkAsCompleted()
		q.updateJobStats(ctx, JobStatusCompleted, 1)
		q.removeCompletedJob(ctx, job.ID)
		return
	}

	log.Errorf("[JobQueue] %s job %s failed: %v", job.Type, job.ID, err)
	job.MarkAsFailed(err.Error())
	if !job.IsRetryable() {
		log.Errorf("[JobQueue] Job %s permanently failed after %d attempts", job.ID, job.RetryCount)
		q.updateJob(ctx, job)
		q.updateJobStats(ctx, JobStatusFailed, 1)
		return
	}

	job.MarkAsRetrying()
	q.updateJob(ctx, job)
	q.scheduleRetry(job)
}

// scheduleRetry pushes the job back after RetryCount backoff units.
func (q *Queue) scheduleRetry(job *Job) {
	q.mu.Lock()
	delay := q.retryBackoff * time.Duration(job.RetryCount)
	q.mu.Unlock()

	log.Infof("[JobQueue] Retrying job %s in %s (attempt %d/%d)", job.ID, delay, job.RetryCount, job.MaxRetries)
	time.AfterFunc(delay, func() {
		if err := q.client.LPush(context.Background(), JobQueueKey, job.ID).Err(); err != nil {
			log.Errorf("[JobQueue] Failed to requeue job %s: %v", job.ID, err)
		}
	})
}

func (q *Queue) updateJob(ctx context.Context, job *Job) {
	jobData, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[JobQueue] Failed to marshal job %s: %v", job.ID, err)
		return
	}
	if err := q.client.Set(ctx, JobKeyPrefix+job.ID, jobData, JobTTL).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to update job %s: %v", job.ID, err)
	}
}

func (q *Queue) removeFromProcessing(ctx context.Context, jobID string) {
	if err := q.client.LRem(ctx, JobProcessingKey, 1, jobID).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to remove job %s from processing list: %v", jobID, err)
	}
}

// removeCompletedJob drops the job data; only the stats counter remains.
func (q *Queue) removeCompletedJob(ctx context.Context, jobID string) {
	if err := q.client.Del(ctx, JobKeyPrefix+jobID).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to remove completed job %s: %v", jobID, err)
	}
}

func (q *Queue) updateJobStats(ctx context.Context, status JobStatus, delta int64) {
	if err := q.client.HIncrBy(ctx, JobStatsKey, string(status), delta).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to update job stats: %v", err)
	}
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	jobKey := JobKeyPrefix + jobID
	jobData, err := q.client.Get(ctx, jobKey).Result()
	if err != nil {
		return nil, err
	}

	var job Job
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

// GetJobStats returns statistics about job statuses
func (q *Queue) GetJobStats(ctx context.Context) (map[JobStatus]int64, error) {
	stats, err := q.client.HGetAll(ctx, JobStatsKey).Result()
	if err != nil {
		return nil, err
	}

	result := make(map[JobStatus]int64)
	for status, count := range stats {
		if countInt, err := json.Number(count).Int64(); err == nil {
			result[JobStatus(status)] = countInt
		}
	}

	return result, nil
}

// GetQueueSize returns the number of pending jobs
func (q *Queue) GetQueueSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobQueueKey).Result()
}

// GetProcessingSize returns the number of jobs being processed
func (q *Queue) GetProcessingSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobProcessingKey).Result()
}
