package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/crossflow/internal/models"
	"github.com/maheshrc27/crossflow/internal/repository"
	"github.com/maheshrc27/crossflow/internal/service"
)

type TokenRefreshJob struct {
	ac     repository.AccountRepository
	tokens service.TokenService
}

func NewTokenRefreshJob(ac repository.AccountRepository, tokens service.TokenService) *TokenRefreshJob {
	return &TokenRefreshJob{
		ac:     ac,
		tokens: tokens,
	}
}

// RefreshTokens refreshes every active account whose token expires in
// the next half hour, or already has.
func (c *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	currentTime := time.Now()
	timeIn30Minutes := currentTime.Add(30 * time.Minute)

	accounts, err := c.ac.ListExpiring(ctx, currentTime, timeIn30Minutes)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, acc := range accounts {

		wg.Add(1)
		semaphore <- struct{}{}

		go func(acc *models.Account) {
			defer wg.Done()
			defer func() { <-semaphore }()

			var err error
			switch acc.Platform {
			case models.PlatformYoutube:
				err = c.tokens.RefreshGoogleToken(ctx, acc)
				if err != nil {
					slog.Info("Unable to refresh tokens for YouTube")
				}

			case models.PlatformInstagram:
				err = c.tokens.RefreshInstagramToken(ctx, acc)
				if err != nil {
					slog.Info("Unable to refresh tokens for Instagram")
				}

			case models.PlatformTwitter:
				err = c.tokens.RefreshTwitterToken(ctx, acc)
				if err != nil {
					slog.Info("Unable to refresh tokens for Twitter")
				}
			}
		}(acc)
	}

	wg.Wait()
}
