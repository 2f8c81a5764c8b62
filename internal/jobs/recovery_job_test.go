package job

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/maheshrc27/crossflow/internal/metrics"
	"github.com/maheshrc27/crossflow/internal/models"
)

type fakeStatusRepo struct {
	reapCount     int64
	reapOlderThan time.Time
	reapMessage   string

	retryable       []*models.PostStatus
	gotMaxRetries   int
	gotLimit        int
	resetIDs        []int64
	resetErr        error
	incrementedIDs  []int64
	listUpdatedFrom time.Time
}

func (f *fakeStatusRepo) Create(ctx context.Context, tx *sql.Tx, ps *models.PostStatus) (int64, error) {
	return 0, nil
}
func (f *fakeStatusRepo) GetByID(ctx context.Context, id int64) (*models.PostStatus, error) {
	return nil, nil
}
func (f *fakeStatusRepo) ExistsForPost(ctx context.Context, postID int64, platform string) (bool, error) {
	return false, nil
}
func (f *fakeStatusRepo) ClaimPending(ctx context.Context, id int64) (bool, error) {
	return false, nil
}
func (f *fakeStatusRepo) MarkSuccess(ctx context.Context, id int64, externalPostID string) error {
	return nil
}
func (f *fakeStatusRepo) MarkFailed(ctx context.Context, id int64, errorMessage string) error {
	return nil
}
func (f *fakeStatusRepo) ResetForRetry(ctx context.Context, id int64) error {
	if f.resetErr != nil {
		return f.resetErr
	}
	f.resetIDs = append(f.resetIDs, id)
	return nil
}
func (f *fakeStatusRepo) IncrementRetry(ctx context.Context, id int64) error {
	f.incrementedIDs = append(f.incrementedIDs, id)
	return nil
}
func (f *fakeStatusRepo) ReapStale(ctx context.Context, olderThan time.Time, errorMessage string) (int64, error) {
	f.reapOlderThan = olderThan
	f.reapMessage = errorMessage
	return f.reapCount, nil
}
func (f *fakeStatusRepo) ReapStaleForUser(ctx context.Context, userID int64, olderThan time.Time, errorMessage string) (int64, error) {
	return 0, nil
}
func (f *fakeStatusRepo) ListRetryable(ctx context.Context, updatedSince time.Time, maxRetries, limit int) ([]*models.PostStatus, error) {
	f.listUpdatedFrom = updatedSince
	f.gotMaxRetries = maxRetries
	f.gotLimit = limit
	if len(f.retryable) > limit {
		return f.retryable[:limit], nil
	}
	return f.retryable, nil
}
func (f *fakeStatusRepo) ListRecentByUser(ctx context.Context, userID int64, limit int) ([]*models.PostStatusDetail, error) {
	return nil, nil
}
func (f *fakeStatusRepo) GetDetail(ctx context.Context, id int64) (*models.PostStatusDetail, error) {
	return nil, nil
}

type fakeSubmitter struct {
	submitted []int64
	err       error
}

func (f *fakeSubmitter) Submit(ctx context.Context, statusID int64) error {
	if f.err != nil {
		return f.err
	}
	f.submitted = append(f.submitted, statusID)
	return nil
}

func TestReap(t *testing.T) {
	repo := &fakeStatusRepo{reapCount: 3}
	job := NewRecoveryJob(repo, &fakeSubmitter{}, metrics.New())

	reaped, err := job.Reap(context.Background())
	if err != nil {
		t.Fatalf("Reap: %v", err)
	}
	if reaped != 3 {
		t.Errorf("reaped = %d, want 3", reaped)
	}
	if repo.reapMessage != "job timed out" {
		t.Errorf("message = %q", repo.reapMessage)
	}

	// Threshold must be five minutes back, give or take scheduling.
	want := time.Now().Add(-stalenessThreshold)
	if diff := repo.reapOlderThan.Sub(want); diff < -time.Second || diff > time.Second {
		t.Errorf("olderThan = %v, want about %v", repo.reapOlderThan, want)
	}
}

func TestRetryPending(t *testing.T) {
	repo := &fakeStatusRepo{retryable: []*models.PostStatus{
		{ID: 1, Status: models.StatusFailed},
		{ID: 2, Status: models.StatusPending},
	}}
	sub := &fakeSubmitter{}
	job := NewRecoveryJob(repo, sub, metrics.New())

	retried, err := job.RetryPending(context.Background())
	if err != nil {
		t.Fatalf("RetryPending: %v", err)
	}
	if retried != 2 {
		t.Errorf("retried = %d, want 2", retried)
	}
	if repo.gotMaxRetries != maxRetries {
		t.Errorf("maxRetries = %d, want %d", repo.gotMaxRetries, maxRetries)
	}
	if repo.gotLimit != retryBatch {
		t.Errorf("limit = %d, want %d", repo.gotLimit, retryBatch)
	}
	if len(repo.resetIDs) != 2 {
		t.Errorf("reset ids = %v, want both jobs", repo.resetIDs)
	}
	if len(sub.submitted) != 2 {
		t.Errorf("submitted = %v, want both jobs", sub.submitted)
	}
}

func TestRetryPendingBatchCap(t *testing.T) {
	var retryable []*models.PostStatus
	for i := int64(1); i <= 25; i++ {
		retryable = append(retryable, &models.PostStatus{ID: i, Status: models.StatusFailed})
	}
	repo := &fakeStatusRepo{retryable: retryable}
	sub := &fakeSubmitter{}
	job := NewRecoveryJob(repo, sub, metrics.New())

	retried, err := job.RetryPending(context.Background())
	if err != nil {
		t.Fatalf("RetryPending: %v", err)
	}
	if retried != retryBatch {
		t.Errorf("retried = %d, want %d", retried, retryBatch)
	}
}

func TestRetryPendingResetBeforeSubmit(t *testing.T) {
	repo := &fakeStatusRepo{
		retryable: []*models.PostStatus{{ID: 7, Status: models.StatusFailed}},
		resetErr:  errors.New("db down"),
	}
	sub := &fakeSubmitter{}
	job := NewRecoveryJob(repo, sub, metrics.New())

	retried, err := job.RetryPending(context.Background())
	if err != nil {
		t.Fatalf("RetryPending: %v", err)
	}
	if retried != 0 {
		t.Errorf("retried = %d, want 0", retried)
	}
	if len(sub.submitted) != 0 {
		t.Error("submit must not run when the reset fails")
	}
}

func TestRetryPendingSubmitError(t *testing.T) {
	repo := &fakeStatusRepo{retryable: []*models.PostStatus{{ID: 9, Status: models.StatusFailed}}}
	sub := &fakeSubmitter{err: errors.New("redis down")}
	job := NewRecoveryJob(repo, sub, metrics.New())

	retried, err := job.RetryPending(context.Background())
	if err != nil {
		t.Fatalf("RetryPending: %v", err)
	}
	if retried != 0 {
		t.Errorf("retried = %d, want 0", retried)
	}
	// The retry budget is still spent, a broken queue must not grant
	// unlimited attempts.
	if len(repo.resetIDs) != 1 {
		t.Errorf("reset ids = %v, want the attempted job", repo.resetIDs)
	}
}
