package service

import (
	"context"

	"github.com/maheshrc27/crossflow/internal/models"
)

// Publisher republishes a post to one destination platform and returns
// the external post id on success. Implementations must not touch job
// state, that is the executor's job.
type Publisher interface {
	PublishPost(ctx context.Context, post *models.Post, account *models.Account) (string, error)
}

// JobSubmitter hands a crosspost job to the background executor.
type JobSubmitter interface {
	Submit(ctx context.Context, statusID int64) error
}
