package job

import (
	"context"
	"log"
	"log/slog"
	"time"

	"github.com/maheshrc27/crossflow/internal/metrics"
	"github.com/maheshrc27/crossflow/internal/repository"
	"github.com/maheshrc27/crossflow/internal/service"
)

const (
	// stalenessThreshold is how long a job may sit in processing before
	// the sweep assumes its worker died.
	stalenessThreshold = 5 * time.Minute
	staleJobMessage    = "job timed out"

	maxRetries  = 3
	retryWindow = 24 * time.Hour
	retryBatch  = 10
)

// RecoveryJob is the safety net under the executor: it fails jobs stuck
// in processing and resubmits recent jobs that still have retry budget.
type RecoveryJob struct {
	ps        repository.PostStatusRepository
	submitter service.JobSubmitter
	m         *metrics.Metrics
}

func NewRecoveryJob(ps repository.PostStatusRepository, submitter service.JobSubmitter, m *metrics.Metrics) *RecoveryJob {
	return &RecoveryJob{
		ps:        ps,
		submitter: submitter,
		m:         m,
	}
}

// Reap fails every job that has been processing longer than the
// staleness threshold. Returns how many were failed.
func (c *RecoveryJob) Reap(ctx context.Context) (int64, error) {
	olderThan := time.Now().Add(-stalenessThreshold)

	reaped, err := c.ps.ReapStale(ctx, olderThan, staleJobMessage)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	if reaped > 0 {
		log.Printf("Recovery sweep failed %d stale jobs", reaped)
		c.m.JobsReaped.Add(float64(reaped))
	}

	return reaped, nil
}

// RetryPending resubmits pending and failed jobs from the last day that
// have not exhausted their retries, a bounded batch at a time. The
// retry count is bumped before submission so a job that keeps dying
// cannot loop forever.
func (c *RecoveryJob) RetryPending(ctx context.Context) (int, error) {
	since := time.Now().Add(-retryWindow)

	statuses, err := c.ps.ListRetryable(ctx, since, maxRetries, retryBatch)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	retried := 0
	for _, status := range statuses {
		if err := c.ps.ResetForRetry(ctx, status.ID); err != nil {
			log.Printf("Error resetting job %d for retry: %v", status.ID, err)
			continue
		}

		if err := c.submitter.Submit(ctx, status.ID); err != nil {
			log.Printf("Error resubmitting job %d: %v", status.ID, err)
			continue
		}

		retried++
		c.m.JobsRetried.Inc()
	}

	if retried > 0 {
		log.Printf("Recovery sweep resubmitted %d jobs", retried)
	}

	return retried, nil
}

// Run does one full sweep, reap then retry.
func (c *RecoveryJob) Run() {
	ctx := context.Background()

	if _, err := c.Reap(ctx); err != nil {
		slog.Info(err.Error())
	}
	if _, err := c.RetryPending(ctx); err != nil {
		slog.Info(err.Error())
	}
}
