package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/crossflow/internal/models"
)

func (j *Queue) HandleExecuteStatusTask(ctx context.Context, task *asynq.Task) error {
	var payload ExecuteStatusPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	// Failures are persisted on the job row and retried by the recovery
	// sweep, so the task itself always completes.
	if err := j.ExecuteJob(ctx, payload.StatusID); err != nil {
		log.Printf("Error executing job %d: %v", payload.StatusID, err)
	}

	return nil
}

// ExecuteJob drives one crosspost job through its state machine. The
// claim is a compare-and-swap on the pending state, so a duplicate
// delivery of the same job id is a no-op.
func (j *Queue) ExecuteJob(ctx context.Context, statusID int64) error {
	status, err := j.ps.GetByID(ctx, statusID)
	if err != nil {
		return err
	}
	if status == nil {
		log.Printf("Job %d not found, skipping", statusID)
		return nil
	}
	if status.Status != models.StatusPending {
		log.Printf("Job %d is %s, skipping", statusID, status.Status)
		return nil
	}

	claimed, err := j.ps.ClaimPending(ctx, statusID)
	if err != nil {
		return err
	}
	if !claimed {
		log.Printf("Job %d already claimed, skipping", statusID)
		return nil
	}

	j.m.JobsStarted.WithLabelValues(status.Platform).Inc()

	post, err := j.pr.GetByID(ctx, status.PostID)
	if err != nil {
		return j.fail(ctx, status, err.Error())
	}
	if post == nil {
		return j.fail(ctx, status, fmt.Sprintf("post %d not found", status.PostID))
	}

	account, err := j.ac.GetActive(ctx, post.UserID, status.Platform)
	if err != nil {
		return j.fail(ctx, status, err.Error())
	}
	if account == nil {
		return j.fail(ctx, status, fmt.Sprintf("no active %s account", status.Platform))
	}

	publisher, ok := j.publishers[status.Platform]
	if !ok {
		return j.fail(ctx, status, fmt.Sprintf("no publisher for platform %s", status.Platform))
	}

	externalID, err := publisher.PublishPost(ctx, post, account)
	if err != nil {
		log.Printf("Error publishing job %d to %s: %v", statusID, status.Platform, err)
		return j.fail(ctx, status, err.Error())
	}

	if err := j.ps.MarkSuccess(ctx, statusID, externalID); err != nil {
		return err
	}
	j.m.JobsSucceeded.WithLabelValues(status.Platform).Inc()

	return nil
}

func (j *Queue) fail(ctx context.Context, status *models.PostStatus, message string) error {
	j.m.JobsFailed.WithLabelValues(status.Platform).Inc()
	return j.ps.MarkFailed(ctx, status.ID, message)
}
