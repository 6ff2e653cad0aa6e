package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/grocery-tracker/internal/jobs"
)

// Options tunes the queue. Zero values fall back to the defaults below.
type Options struct {
	BufferSize   int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	JobTimeout   time.Duration
}

const (
	defaultBufferSize   = 100
	defaultWorkers      = 5
	defaultRetryBackoff = time.Second
)

func (o Options) withDefaults() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = defaultBufferSize
	}
	if o.Workers <= 0 {
		o.Workers = defaultWorkers
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = defaultRetryBackoff
	}
	return o
}

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for job distribution and is safe for concurrent use.
// Jobs do not survive a restart; receipts left in processing are picked up by
// the stale-receipt sweep instead.
type Queue struct {
	opts        Options
	jobChan     chan *jobs.ProcessReceiptJob
	closeChan   chan struct{}
	wg          sync.WaitGroup
	mu          sync.RWMutex
	store       jobs.JobStore
	observer    jobs.Observer
	log         zerolog.Logger
	closed      bool
	retries     map[string]scheduledRetry
	outstanding atomic.Int64
}

type scheduledRetry struct {
	timer *time.Timer
	job   *jobs.ProcessReceiptJob
}

// errStopped marks jobs the queue accepted but gave up on while stopping.
var errStopped = fmt.Errorf("queue stopped before the job ran: %w", jobs.ErrQueueClosed)

// NewQueue creates a new in-memory job queue. store and observer may be nil.
func NewQueue(opts Options, store jobs.JobStore, observer jobs.Observer, log zerolog.Logger) *Queue {
	opts = opts.withDefaults()
	return &Queue{
		opts:      opts,
		jobChan:   make(chan *jobs.ProcessReceiptJob, opts.BufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		observer:  observer,
		log:       log.With().Str("component", "jobs").Logger(),
		retries:   make(map[string]scheduledRetry),
	}
}

// PublishProcessReceipt implements the Publisher interface.
func (q *Queue) PublishProcessReceipt(ctx context.Context, job *jobs.ProcessReceiptJob) error {
	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.ReceiptID == "" {
		job.ReceiptID = job.Request.ReceiptID
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = q.opts.MaxRetries
	}

	q.outstanding.Add(1)
	if err := q.enqueue(ctx, job); err != nil {
		q.outstanding.Add(-1)
		return err
	}
	if q.observer != nil {
		q.observer.JobEnqueued(job)
	}
	q.log.Debug().Str("job_id", job.JobID).Str("receipt_id", job.ReceiptID).Msg("job enqueued")
	return nil
}

func (q *Queue) enqueue(ctx context.Context, job *jobs.ProcessReceiptJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return jobs.ErrQueueClosed
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return jobs.ErrQueueFull
	}
}

// Start implements the Consumer interface.
// It starts the configured number of workers, each handling one job at a time.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return jobs.ErrQueueClosed
	}
	q.mu.RUnlock()

	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	q.log.Info().Int("workers", q.opts.Workers).Int("buffer", q.opts.BufferSize).Msg("job workers started")
	return nil
}

// worker processes jobs from the queue. Once the queue is stopped it keeps
// going until the buffer is empty.
func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			q.drain(ctx, handler)
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}
			q.processJob(ctx, job, handler)
		}
	}
}

func (q *Queue) drain(ctx context.Context, handler jobs.JobHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobChan:
			q.processJob(ctx, job, handler)
		default:
			return
		}
	}
}

// processJob executes a single attempt and schedules a retry when the error allows it.
func (q *Queue) processJob(ctx context.Context, job *jobs.ProcessReceiptJob, handler jobs.JobHandler) {
	job.Status = jobs.JobStatusRunning
	now := time.Now().UTC()
	job.StartedAt = &now
	q.save(ctx, job)

	err := q.run(ctx, job, handler)

	completedAt := time.Now().UTC()
	job.CompletedAt = &completedAt
	log := q.log.With().Str("job_id", job.JobID).Str("receipt_id", job.ReceiptID).Int("attempt", job.RetryCount+1).Logger()

	switch {
	case err == nil:
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
		log.Info().Dur("elapsed", completedAt.Sub(job.CreatedAt)).Msg("job completed")
	case !job.FinalAttempt(err):
		job.Error = err.Error()
		job.RetryCount++
		job.Status = jobs.JobStatusRetrying
		backoff := time.Duration(job.RetryCount) * q.opts.RetryBackoff
		if q.scheduleRetry(ctx, job, backoff) {
			log.Warn().Err(err).Dur("backoff", backoff).Msg("job failed, retrying")
			return
		}
		job.Status = jobs.JobStatusFailed
		job.Error = fmt.Sprintf("%v (%v)", err, errStopped)
		log.Error().Err(err).Msg("job failed, queue stopped before retry")
	default:
		job.Error = err.Error()
		job.Status = jobs.JobStatusFailed
		log.Error().Err(err).Msg("job failed")
	}

	q.finish(ctx, job)
}

// scheduleRetry registers a delayed re-enqueue. It reports false once the
// queue is stopped.
func (q *Queue) scheduleRetry(ctx context.Context, job *jobs.ProcessReceiptJob, backoff time.Duration) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.save(ctx, job)
	q.retries[job.JobID] = scheduledRetry{
		job:   job,
		timer: time.AfterFunc(backoff, func() { q.retry(ctx, job) }),
	}
	return true
}

// finish records a terminal job state.
func (q *Queue) finish(ctx context.Context, job *jobs.ProcessReceiptJob) {
	if job.CompletedAt == nil {
		now := time.Now().UTC()
		job.CompletedAt = &now
	}
	q.save(context.WithoutCancel(ctx), job)
	if q.observer != nil {
		q.observer.JobFinished(job, job.CompletedAt.Sub(job.CreatedAt))
	}
	q.outstanding.Add(-1)
}

// abandon fails a job that will never run.
func (q *Queue) abandon(ctx context.Context, job *jobs.ProcessReceiptJob, cause error) {
	now := time.Now().UTC()
	job.CompletedAt = &now
	job.Status = jobs.JobStatusFailed
	job.Error = cause.Error()
	q.finish(ctx, job)
}

// run calls the handler under the per-job timeout and turns panics into permanent failures.
func (q *Queue) run(ctx context.Context, job *jobs.ProcessReceiptJob, handler jobs.JobHandler) (err error) {
	if q.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.opts.JobTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = jobs.Permanent(fmt.Errorf("job panicked: %v", r))
		}
	}()
	return handler(ctx, job)
}

func (q *Queue) retry(ctx context.Context, job *jobs.ProcessReceiptJob) {
	q.mu.Lock()
	delete(q.retries, job.JobID)
	q.mu.Unlock()

	job.Status = jobs.JobStatusPending
	job.StartedAt = nil
	job.CompletedAt = nil

	err := q.enqueue(ctx, job)
	if err == nil {
		return
	}
	if !errors.Is(err, jobs.ErrQueueClosed) {
		q.log.Error().Err(err).Str("job_id", job.JobID).Msg("could not re-enqueue job")
	}
	q.abandon(ctx, job, fmt.Errorf("re-enqueue: %w", err))
}

func (q *Queue) save(ctx context.Context, job *jobs.ProcessReceiptJob) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		q.log.Warn().Err(err).Str("job_id", job.JobID).Msg("save job state")
	}
}

// Stop implements the Consumer interface.
// It stops accepting jobs and lets the workers run what is already buffered
// until ctx expires. Jobs still buffered or waiting for a retry at that point
// are marked failed, so no accepted job is left pending.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	retries := q.retries
	q.retries = make(map[string]scheduledRetry)
	q.mu.Unlock()

	for _, r := range retries {
		if r.timer.Stop() {
			q.abandon(ctx, r.job, errStopped)
		}
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	abandoned := 0
leftovers:
	for {
		select {
		case job := <-q.jobChan:
			q.abandon(ctx, job, errStopped)
			abandoned++
		default:
			break leftovers
		}
	}
	if abandoned > 0 {
		q.log.Warn().Int("jobs", abandoned).Msg("queue stopped with unprocessed jobs")
	}
	return err
}

// Idle blocks until every accepted job has reached a terminal state or ctx
// is done.
func (q *Queue) Idle(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for q.outstanding.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
