package jobs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dvloznov/grocery-tracker/internal/domain"
)

func TestRetryable(t *testing.T) {
	network := fmt.Errorf("ocr: %w", domain.ErrNetwork)

	assert.True(t, Retryable(network))
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(fmt.Errorf("enhance: %w", domain.ErrAuth)))
	assert.False(t, Retryable(errors.New("boom")))
	assert.False(t, Retryable(Permanent(network)))

	assert.True(t, IsPermanent(fmt.Errorf("wrapped: %w", Permanent(network))))
	assert.ErrorIs(t, Permanent(network), domain.ErrNetwork)
	assert.NoError(t, Permanent(nil))
}

func TestFinalAttempt(t *testing.T) {
	network := fmt.Errorf("ocr: %w", domain.ErrNetwork)
	job := &ProcessReceiptJob{MaxRetries: 2}

	assert.False(t, job.FinalAttempt(network))
	assert.True(t, job.FinalAttempt(domain.ErrAuth))

	job.RetryCount = 2
	assert.True(t, job.FinalAttempt(network))
}

func TestJobStatusTerminal(t *testing.T) {
	assert.True(t, JobStatusCompleted.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
	assert.False(t, JobStatusRetrying.Terminal())
	assert.False(t, JobStatusPending.Terminal())
}
