package queue

import (
	"context"
	"encoding/json"
	"log"

	"github.com/hibiken/asynq"
)

// Client wraps the asynq client behind the job submission interface the
// services depend on.
type Client struct {
	asynqClient *asynq.Client
}

func NewClient(asynqClient *asynq.Client) *Client {
	return &Client{asynqClient: asynqClient}
}

func (c *Client) Submit(ctx context.Context, statusID int64) error {
	return EnqueueStatus(c.asynqClient, ExecuteStatusPayload{StatusID: statusID})
}

func EnqueueStatus(asynqClient *asynq.Client, payload ExecuteStatusPayload) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeExecuteStatus, taskPayload)

	_, err = asynqClient.Enqueue(task)
	if err != nil {
		return err
	}

	log.Printf("Task scheduled: %+v", payload)
	return nil
}
