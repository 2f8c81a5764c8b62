package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	config "github.com/maheshrc27/crossflow/configs"
	"github.com/maheshrc27/crossflow/internal/metrics"
	"github.com/maheshrc27/crossflow/internal/models"
	"github.com/maheshrc27/crossflow/internal/transfer"
)

type fakeAccountRepo struct {
	byPlatformUser map[string]*models.Account
	activeByUser   map[string]*models.Account
	activePlatform []*models.Account
}

func (f *fakeAccountRepo) Create(ctx context.Context, tx *sql.Tx, a *models.Account) (int64, error) {
	return 1, nil
}
func (f *fakeAccountRepo) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	return nil, nil
}
func (f *fakeAccountRepo) GetActive(ctx context.Context, userID int64, platform string) (*models.Account, error) {
	return f.activeByUser[fmt.Sprintf("%d/%s", userID, platform)], nil
}
func (f *fakeAccountRepo) GetByPlatformUserID(ctx context.Context, platformUserID, platform string) (*models.Account, error) {
	return f.byPlatformUser[platformUserID], nil
}
func (f *fakeAccountRepo) ListActiveByPlatform(ctx context.Context, platform string) ([]*models.Account, error) {
	return f.activePlatform, nil
}
func (f *fakeAccountRepo) ListByUserID(ctx context.Context, userID int64) ([]*models.Account, error) {
	return nil, nil
}
func (f *fakeAccountRepo) ListExpiring(ctx context.Context, initialTime, finalTime time.Time) ([]*models.Account, error) {
	return nil, nil
}
func (f *fakeAccountRepo) CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error) {
	return false, nil
}
func (f *fakeAccountRepo) SetToken(ctx context.Context, id int64, a *models.Account) error { return nil }
func (f *fakeAccountRepo) Deactivate(ctx context.Context, id int64) error                  { return nil }
func (f *fakeAccountRepo) DeactivateByUserPlatform(ctx context.Context, userID int64, platform string) error {
	return nil
}

type fakePostRepo struct {
	existing map[string]bool
	conflict bool
	created  []*models.Post
}

func (f *fakePostRepo) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	if f.conflict {
		return 0, nil
	}
	id := int64(len(f.created) + 1)
	f.created = append(f.created, post)
	return id, nil
}
func (f *fakePostRepo) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	return nil, nil
}
func (f *fakePostRepo) GetBySourcePostID(ctx context.Context, sourcePlatform, sourcePostID string) (*models.Post, error) {
	return nil, nil
}
func (f *fakePostRepo) ExistsBySourcePostID(ctx context.Context, sourcePlatform, sourcePostID string) (bool, error) {
	return f.existing[sourcePostID], nil
}

type fakeStatusRepo struct {
	created []*models.PostStatus
}

func (f *fakeStatusRepo) Create(ctx context.Context, tx *sql.Tx, ps *models.PostStatus) (int64, error) {
	id := int64(len(f.created) + 1)
	ps.ID = id
	f.created = append(f.created, ps)
	return id, nil
}
func (f *fakeStatusRepo) GetByID(ctx context.Context, id int64) (*models.PostStatus, error) {
	return nil, nil
}
func (f *fakeStatusRepo) ExistsForPost(ctx context.Context, postID int64, platform string) (bool, error) {
	return false, nil
}
func (f *fakeStatusRepo) ClaimPending(ctx context.Context, id int64) (bool, error) { return false, nil }
func (f *fakeStatusRepo) MarkSuccess(ctx context.Context, id int64, externalPostID string) error {
	return nil
}
func (f *fakeStatusRepo) MarkFailed(ctx context.Context, id int64, errorMessage string) error {
	return nil
}
func (f *fakeStatusRepo) ResetForRetry(ctx context.Context, id int64) error  { return nil }
func (f *fakeStatusRepo) IncrementRetry(ctx context.Context, id int64) error { return nil }
func (f *fakeStatusRepo) ReapStale(ctx context.Context, olderThan time.Time, errorMessage string) (int64, error) {
	return 0, nil
}
func (f *fakeStatusRepo) ReapStaleForUser(ctx context.Context, userID int64, olderThan time.Time, errorMessage string) (int64, error) {
	return 0, nil
}
func (f *fakeStatusRepo) ListRetryable(ctx context.Context, updatedSince time.Time, maxRetries, limit int) ([]*models.PostStatus, error) {
	return nil, nil
}
func (f *fakeStatusRepo) ListRecentByUser(ctx context.Context, userID int64, limit int) ([]*models.PostStatusDetail, error) {
	return nil, nil
}
func (f *fakeStatusRepo) GetDetail(ctx context.Context, id int64) (*models.PostStatusDetail, error) {
	return nil, nil
}

type fakeTokenService struct {
	token string
}

func (f *fakeTokenService) GetValidToken(ctx context.Context, account *models.Account) (string, error) {
	return f.token, nil
}
func (f *fakeTokenService) RefreshInstagramToken(ctx context.Context, account *models.Account) error {
	return nil
}
func (f *fakeTokenService) RefreshTwitterToken(ctx context.Context, account *models.Account) error {
	return nil
}
func (f *fakeTokenService) RefreshGoogleToken(ctx context.Context, account *models.Account) error {
	return nil
}

type fakeSubmitter struct {
	submitted []int64
}

func (f *fakeSubmitter) Submit(ctx context.Context, statusID int64) error {
	f.submitted = append(f.submitted, statusID)
	return nil
}

type igFixture struct {
	svc       *instagramService
	accounts  *fakeAccountRepo
	posts     *fakePostRepo
	statuses  *fakeStatusRepo
	submitter *fakeSubmitter
}

func newIGFixture(t *testing.T, graphHandler http.Handler) *igFixture {
	t.Helper()

	accounts := &fakeAccountRepo{
		byPlatformUser: map[string]*models.Account{
			"ig-1": {ID: 1, UserID: 5, Platform: models.PlatformInstagram, PlatformUserID: "ig-1"},
		},
		activeByUser: map[string]*models.Account{},
	}
	posts := &fakePostRepo{existing: map[string]bool{}}
	statuses := &fakeStatusRepo{}
	submitter := &fakeSubmitter{}

	svc := NewInstagramService(
		config.Config{},
		accounts,
		posts,
		statuses,
		&fakeTokenService{token: "tok"},
		submitter,
		NewArchiveService(config.Config{}),
		metrics.New(),
	).(*instagramService)

	if graphHandler != nil {
		ts := httptest.NewServer(graphHandler)
		t.Cleanup(ts.Close)
		svc.graphURL = ts.URL
	}

	return &igFixture{svc: svc, accounts: accounts, posts: posts, statuses: statuses, submitter: submitter}
}

func mediaHandler(media transfer.InstagramMedia) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(media)
	})
}

func TestIngestMediaVideoFanOut(t *testing.T) {
	f := newIGFixture(t, mediaHandler(transfer.InstagramMedia{
		ID:               "m1",
		MediaURL:         "https://cdn.example/v.mp4",
		Caption:          "hello",
		MediaType:        models.MediaTypeVideo,
		MediaProductType: models.MediaProductTypeReels,
	}))
	f.accounts.activeByUser["5/twitter"] = &models.Account{ID: 2, UserID: 5, Platform: models.PlatformTwitter}
	f.accounts.activeByUser["5/youtube"] = &models.Account{ID: 3, UserID: 5, Platform: models.PlatformYoutube}

	result, err := f.svc.IngestMedia(context.Background(), "ig-1", "m1")
	if err != nil {
		t.Fatalf("IngestMedia: %v", err)
	}

	if result.Post == nil || result.Post.SourcePostID != "m1" {
		t.Fatalf("unexpected post: %+v", result.Post)
	}
	if len(result.Statuses) != 2 {
		t.Fatalf("statuses = %d, want 2", len(result.Statuses))
	}

	platforms := map[string]bool{}
	for _, ps := range result.Statuses {
		platforms[ps.Platform] = true
		if ps.Status != models.StatusPending {
			t.Errorf("status for %s = %s, want pending", ps.Platform, ps.Status)
		}
	}
	if !platforms[models.PlatformTwitter] || !platforms[models.PlatformYoutube] {
		t.Errorf("platforms = %v, want twitter and youtube", platforms)
	}
	if len(f.submitter.submitted) != 2 {
		t.Errorf("submitted = %d jobs, want 2", len(f.submitter.submitted))
	}
}

func TestIngestMediaImageOnlyTwitter(t *testing.T) {
	f := newIGFixture(t, mediaHandler(transfer.InstagramMedia{
		ID:        "m2",
		MediaURL:  "https://cdn.example/i.jpg",
		MediaType: models.MediaTypeImage,
	}))
	f.accounts.activeByUser["5/twitter"] = &models.Account{ID: 2, UserID: 5, Platform: models.PlatformTwitter}
	f.accounts.activeByUser["5/youtube"] = &models.Account{ID: 3, UserID: 5, Platform: models.PlatformYoutube}

	result, err := f.svc.IngestMedia(context.Background(), "ig-1", "m2")
	if err != nil {
		t.Fatalf("IngestMedia: %v", err)
	}

	if len(result.Statuses) != 1 {
		t.Fatalf("statuses = %d, want 1", len(result.Statuses))
	}
	if result.Statuses[0].Platform != models.PlatformTwitter {
		t.Errorf("platform = %s, want twitter", result.Statuses[0].Platform)
	}
}

func TestIngestMediaSkipsInactiveDestinations(t *testing.T) {
	f := newIGFixture(t, mediaHandler(transfer.InstagramMedia{
		ID:        "m3",
		MediaURL:  "https://cdn.example/v.mp4",
		MediaType: models.MediaTypeVideo,
	}))
	f.accounts.activeByUser["5/twitter"] = &models.Account{ID: 2, UserID: 5, Platform: models.PlatformTwitter}

	result, err := f.svc.IngestMedia(context.Background(), "ig-1", "m3")
	if err != nil {
		t.Fatalf("IngestMedia: %v", err)
	}

	if len(result.Statuses) != 1 {
		t.Fatalf("statuses = %d, want 1 (no youtube account)", len(result.Statuses))
	}
	if result.Statuses[0].Platform != models.PlatformTwitter {
		t.Errorf("platform = %s, want twitter", result.Statuses[0].Platform)
	}
}

func TestIngestMediaRestrictedVideo(t *testing.T) {
	f := newIGFixture(t, mediaHandler(transfer.InstagramMedia{
		ID:           "m4",
		MediaType:    models.MediaTypeVideo,
		ThumbnailURL: "https://cdn.example/thumb.jpg",
		Permalink:    "https://instagram.com/p/m4",
	}))
	f.accounts.activeByUser["5/twitter"] = &models.Account{ID: 2, UserID: 5, Platform: models.PlatformTwitter}

	result, err := f.svc.IngestMedia(context.Background(), "ig-1", "m4")
	if err != nil {
		t.Fatalf("IngestMedia: %v", err)
	}

	if !result.Restricted {
		t.Fatal("expected restricted result")
	}
	if result.Post.MediaURL != "https://cdn.example/thumb.jpg" {
		t.Errorf("media url = %q, want thumbnail", result.Post.MediaURL)
	}
	if len(result.Statuses) != 1 {
		t.Fatalf("statuses = %d, want 1", len(result.Statuses))
	}
	ps := result.Statuses[0]
	if ps.Status != models.StatusFailed {
		t.Errorf("status = %s, want failed", ps.Status)
	}
	if !strings.Contains(ps.ErrorMessage, "copyrighted audio") {
		t.Errorf("error message = %q", ps.ErrorMessage)
	}
	if len(f.submitter.submitted) != 0 {
		t.Error("restricted media must not submit jobs")
	}
}

func TestIngestMediaDuplicateShortCircuits(t *testing.T) {
	// The graph server would fail the test if contacted.
	f := newIGFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("graph API should not be called for a known media id")
	}))
	f.posts.existing["m5"] = true

	result, err := f.svc.IngestMedia(context.Background(), "ig-1", "m5")
	if err != nil {
		t.Fatalf("IngestMedia: %v", err)
	}
	if result.Post != nil || len(result.Statuses) != 0 {
		t.Errorf("duplicate ingest mutated state: %+v", result)
	}
}

func TestIngestMediaInsertRace(t *testing.T) {
	f := newIGFixture(t, mediaHandler(transfer.InstagramMedia{
		ID:        "m6",
		MediaURL:  "https://cdn.example/i.jpg",
		MediaType: models.MediaTypeImage,
	}))
	f.posts.conflict = true
	f.accounts.activeByUser["5/twitter"] = &models.Account{ID: 2, UserID: 5, Platform: models.PlatformTwitter}

	result, err := f.svc.IngestMedia(context.Background(), "ig-1", "m6")
	if err != nil {
		t.Fatalf("IngestMedia: %v", err)
	}
	if result.Post != nil || len(result.Statuses) != 0 {
		t.Error("lost insert race must not create statuses")
	}
	if len(f.submitter.submitted) != 0 {
		t.Error("lost insert race must not submit jobs")
	}
}

func TestIngestMediaRestrictedVideoNoTwitterAccount(t *testing.T) {
	f := newIGFixture(t, mediaHandler(transfer.InstagramMedia{
		ID:           "m11",
		MediaType:    models.MediaTypeVideo,
		ThumbnailURL: "https://cdn.example/thumb.jpg",
	}))

	result, err := f.svc.IngestMedia(context.Background(), "ig-1", "m11")
	if err != nil {
		t.Fatalf("IngestMedia: %v", err)
	}

	if !result.Restricted {
		t.Fatal("expected restricted result")
	}
	if result.Post == nil {
		t.Fatal("restricted media must still be persisted")
	}
	if len(result.Statuses) != 0 {
		t.Errorf("statuses = %d, want none without a twitter account", len(result.Statuses))
	}
}

func TestIngestMediaSentinelHintProbesAccounts(t *testing.T) {
	f := newIGFixture(t, mediaHandler(transfer.InstagramMedia{
		ID:        "m8",
		MediaURL:  "https://cdn.example/i.jpg",
		MediaType: models.MediaTypeImage,
	}))
	f.accounts.activePlatform = []*models.Account{f.accounts.byPlatformUser["ig-1"]}
	f.accounts.activeByUser["5/twitter"] = &models.Account{ID: 2, UserID: 5, Platform: models.PlatformTwitter}

	// Instagram's test webhook carries "0" as the sender id.
	result, err := f.svc.IngestMedia(context.Background(), "0", "m8")
	if err != nil {
		t.Fatalf("IngestMedia: %v", err)
	}

	if result.Post == nil || result.Post.UserID != 5 {
		t.Fatalf("post = %+v, want one owned by user 5", result.Post)
	}
	if len(result.Statuses) != 1 {
		t.Errorf("statuses = %d, want 1", len(result.Statuses))
	}
}

func TestIngestMediaNoAccountCanAccess(t *testing.T) {
	f := newIGFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	f.accounts.activePlatform = []*models.Account{f.accounts.byPlatformUser["ig-1"]}

	if _, err := f.svc.IngestMedia(context.Background(), "0", "m9"); err == nil {
		t.Fatal("expected error when no account can read the media")
	}
}

func TestIngestMediaUnknownAccount(t *testing.T) {
	f := newIGFixture(t, nil)

	_, err := f.svc.IngestMedia(context.Background(), "stranger", "m7")
	if err == nil {
		t.Fatal("expected error for unknown instagram user")
	}
}

func TestPollAccountSkipsKnownMedia(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/me/media", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(transfer.InstagramMediaList{Data: []transfer.InstagramMedia{
			{ID: "old"},
			{ID: "new"},
		}})
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(transfer.InstagramMedia{
			ID:        "new",
			MediaURL:  "https://cdn.example/i.jpg",
			MediaType: models.MediaTypeImage,
		})
	})
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		panic("known media must not be fetched")
	})

	f := newIGFixture(t, mux)
	f.posts.existing["old"] = true
	f.accounts.activeByUser["5/twitter"] = &models.Account{ID: 2, UserID: 5, Platform: models.PlatformTwitter}

	account := f.accounts.byPlatformUser["ig-1"]
	ingested, err := f.svc.PollAccount(context.Background(), account)
	if err != nil {
		t.Fatalf("PollAccount: %v", err)
	}
	if ingested != 1 {
		t.Errorf("ingested = %d, want 1", ingested)
	}
	if len(f.posts.created) != 1 || f.posts.created[0].SourcePostID != "new" {
		t.Errorf("created posts = %+v", f.posts.created)
	}
}
