package job

import (
	"context"
	"log"
	"log/slog"

	"github.com/maheshrc27/crossflow/internal/models"
	"github.com/maheshrc27/crossflow/internal/repository"
	"github.com/maheshrc27/crossflow/internal/service"
)

// PollJob is the fallback ingestion path for media the webhook missed.
type PollJob struct {
	ac repository.AccountRepository
	ig service.InstagramService
}

func NewPollJob(ac repository.AccountRepository, ig service.InstagramService) *PollJob {
	return &PollJob{
		ac: ac,
		ig: ig,
	}
}

// Poll scans recent media for every connected instagram account and
// ingests anything new. Returns the total number of ingested posts.
func (c *PollJob) Poll(ctx context.Context) (int, error) {
	accounts, err := c.ac.ListActiveByPlatform(ctx, models.PlatformInstagram)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	total := 0
	for _, acc := range accounts {
		ingested, err := c.ig.PollAccount(ctx, acc)
		if err != nil {
			log.Printf("Error polling account %d: %v", acc.ID, err)
			continue
		}
		total += ingested
	}

	return total, nil
}

func (c *PollJob) Run() {
	ctx := context.Background()

	total, err := c.Poll(ctx)
	if err != nil {
		return
	}
	if total > 0 {
		log.Printf("Poll ingested %d new posts", total)
	}
}
