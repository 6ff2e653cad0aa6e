// Package jobs defines the background job model used to run the receipt pipeline.
package jobs

import (
	"context"
	"time"

	"github.com/dvloznov/grocery-tracker/internal/domain"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeProcessReceipt runs OCR and enhancement for one receipt.
	JobTypeProcessReceipt JobType = "process_receipt"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// Terminal reports whether no further transitions will happen.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ProcessReceiptJob represents one run of the receipt pipeline.
type ProcessReceiptJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// ReceiptID is the receipt being processed.
	ReceiptID string `json:"receipt_id"`

	// Request is the pipeline input captured when the job was enqueued.
	Request domain.ProcessingRequest `json:"request"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the latest attempt started.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job reached a terminal state or an attempt failed.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the latest attempt failed.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`
}

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *ProcessReceiptJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *ProcessReceiptJob) GetType() JobType {
	return JobTypeProcessReceipt
}

// GetStatus implements the Job interface.
func (j *ProcessReceiptJob) GetStatus() JobStatus {
	return j.Status
}

// FinalAttempt reports whether a failure with err ends the job: the error is
// not retryable or the retry budget is spent.
func (j *ProcessReceiptJob) FinalAttempt(err error) bool {
	return !Retryable(err) || j.RetryCount >= j.MaxRetries
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishProcessReceipt enqueues a pipeline run. It fails fast with
	// ErrQueueFull instead of blocking when the buffer is exhausted.
	PublishProcessReceipt(ctx context.Context, job *ProcessReceiptJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// Returned errors are retried only when Retryable reports true.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *ProcessReceiptJob) error

	// GetJob retrieves a job by ID. Missing jobs yield domain.ErrNotFound.
	GetJob(ctx context.Context, jobID string) (*ProcessReceiptJob, error)

	// ListJobs retrieves jobs newest first with optional filtering.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ProcessReceiptJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// ReceiptID filters jobs by receipt ID.
	ReceiptID string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}

// Observer receives job lifecycle events, typically for metrics.
type Observer interface {
	JobEnqueued(job Job)
	JobFinished(job Job, elapsed time.Duration)
}
