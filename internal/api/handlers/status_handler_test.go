package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crossflow/internal/models"
)

type fakeStatusRepo struct {
	details   map[int64]*models.PostStatusDetail
	byUser    map[int64][]*models.PostStatusDetail
	resetIDs  []int64
	reapStale int64
	reapCount int64
	reapUser  int64
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
	f.resetIDs = append(f.resetIDs, id)
	return nil
}
func (f *fakeStatusRepo) IncrementRetry(ctx context.Context, id int64) error { return nil }
func (f *fakeStatusRepo) ReapStale(ctx context.Context, olderThan time.Time, errorMessage string) (int64, error) {
	return f.reapStale, nil
}
func (f *fakeStatusRepo) ReapStaleForUser(ctx context.Context, userID int64, olderThan time.Time, errorMessage string) (int64, error) {
	f.reapUser = userID
	return f.reapCount, nil
}
func (f *fakeStatusRepo) ListRetryable(ctx context.Context, updatedSince time.Time, maxRetries, limit int) ([]*models.PostStatus, error) {
	return nil, nil
}
func (f *fakeStatusRepo) ListRecentByUser(ctx context.Context, userID int64, limit int) ([]*models.PostStatusDetail, error) {
	return f.byUser[userID], nil
}
func (f *fakeStatusRepo) GetDetail(ctx context.Context, id int64) (*models.PostStatusDetail, error) {
	return f.details[id], nil
}

type fakeSubmitter struct {
	submitted chan int64
}

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{submitted: make(chan int64, 10)}
}

func (f *fakeSubmitter) Submit(ctx context.Context, statusID int64) error {
	f.submitted <- statusID
	return nil
}

func newStatusApp(repo *fakeStatusRepo, sub *fakeSubmitter, userID int64) *fiber.App {
	h := NewStatusHandler(repo, sub)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", fmt.Sprintf("%d", userID))
		return c.Next()
	})
	app.Get("/statuses", h.ListStatuses)
	app.Post("/statuses/retry", h.RetryStatus)
	app.Post("/statuses/reset-stuck", h.ResetStuck)
	return app
}

func statusDetail(id, userID int64, state string) *models.PostStatusDetail {
	return &models.PostStatusDetail{
		PostStatus: models.PostStatus{ID: id, PostID: id * 10, Platform: models.PlatformTwitter, Status: state},
		UserID:     userID,
	}
}

func TestListStatuses(t *testing.T) {
	repo := &fakeStatusRepo{byUser: map[int64][]*models.PostStatusDetail{
		5: {statusDetail(1, 5, models.StatusSuccess), statusDetail(2, 5, models.StatusFailed)},
	}}
	app := newStatusApp(repo, newFakeSubmitter(), 5)

	resp, err := app.Test(httptest.NewRequest("GET", "/statuses", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got []models.PostStatusDetail
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("statuses = %d, want 2", len(got))
	}
}

func TestListStatusesScopedToUser(t *testing.T) {
	repo := &fakeStatusRepo{byUser: map[int64][]*models.PostStatusDetail{
		5: {statusDetail(1, 5, models.StatusSuccess)},
	}}
	app := newStatusApp(repo, newFakeSubmitter(), 6)

	resp, err := app.Test(httptest.NewRequest("GET", "/statuses", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}

	body, _ := io.ReadAll(resp.Body)
	var got []models.PostStatusDetail
	json.Unmarshal(body, &got)
	if len(got) != 0 {
		t.Errorf("user 6 sees %d statuses belonging to user 5", len(got))
	}
}

func TestRetryStatus(t *testing.T) {
	repo := &fakeStatusRepo{details: map[int64]*models.PostStatusDetail{
		1: statusDetail(1, 5, models.StatusFailed),
	}}
	sub := newFakeSubmitter()
	app := newStatusApp(repo, sub, 5)

	resp, err := app.Test(httptest.NewRequest("POST", "/statuses/retry?id=1", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if len(repo.resetIDs) != 1 || repo.resetIDs[0] != 1 {
		t.Errorf("reset ids = %v, want [1]", repo.resetIDs)
	}

	select {
	case id := <-sub.submitted:
		if id != 1 {
			t.Errorf("submitted %d, want 1", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job was never submitted")
	}
}

func TestRetryStatusNotOwner(t *testing.T) {
	repo := &fakeStatusRepo{details: map[int64]*models.PostStatusDetail{
		1: statusDetail(1, 5, models.StatusFailed),
	}}
	sub := newFakeSubmitter()
	app := newStatusApp(repo, sub, 6)

	resp, err := app.Test(httptest.NewRequest("POST", "/statuses/retry?id=1", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
	if len(repo.resetIDs) != 0 {
		t.Error("foreign job was mutated")
	}
	select {
	case id := <-sub.submitted:
		t.Errorf("foreign job %d was submitted", id)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRetryStatusNotFailed(t *testing.T) {
	repo := &fakeStatusRepo{details: map[int64]*models.PostStatusDetail{
		1: statusDetail(1, 5, models.StatusSuccess),
	}}
	app := newStatusApp(repo, newFakeSubmitter(), 5)

	resp, err := app.Test(httptest.NewRequest("POST", "/statuses/retry?id=1", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if len(repo.resetIDs) != 0 {
		t.Error("successful job was reset")
	}
}

func TestRetryStatusNotFound(t *testing.T) {
	repo := &fakeStatusRepo{details: map[int64]*models.PostStatusDetail{}}
	app := newStatusApp(repo, newFakeSubmitter(), 5)

	resp, err := app.Test(httptest.NewRequest("POST", "/statuses/retry?id=99", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestResetStuck(t *testing.T) {
	repo := &fakeStatusRepo{reapCount: 2}
	app := newStatusApp(repo, newFakeSubmitter(), 5)

	resp, err := app.Test(httptest.NewRequest("POST", "/statuses/reset-stuck", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if repo.reapUser != 5 {
		t.Errorf("reap user = %d, want 5", repo.reapUser)
	}

	var got map[string]int64
	body, _ := io.ReadAll(resp.Body)
	json.Unmarshal(body, &got)
	if got["reset"] != 2 {
		t.Errorf("reset = %d, want 2", got["reset"])
	}
}
