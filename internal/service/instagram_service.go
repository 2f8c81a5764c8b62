package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	config "github.com/maheshrc27/crossflow/configs"
	"github.com/maheshrc27/crossflow/internal/metrics"
	"github.com/maheshrc27/crossflow/internal/models"
	"github.com/maheshrc27/crossflow/internal/repository"
	"github.com/maheshrc27/crossflow/internal/transfer"
	"github.com/maheshrc27/crossflow/pkg/utils"
)

// restrictedVideoMessage is recorded on the pre-failed status when
// Instagram withholds the download URL for a video.
const restrictedVideoMessage = "Video contains copyrighted audio - Instagram API blocks download"

// pollPageSize is how many recent media items one poll pass inspects.
const pollPageSize = 5

type InstagramService interface {
	InstagramCallback(ctx context.Context, code string, userID int64) (err error)
	IngestMedia(ctx context.Context, igUserID, mediaID string) (*transfer.IngestResult, error)
	PollAccount(ctx context.Context, account *models.Account) (int, error)
}

type instagramService struct {
	cfg       config.Config
	a         repository.AccountRepository
	p         repository.PostRepository
	ps        repository.PostStatusRepository
	tokens    TokenService
	submitter JobSubmitter
	archive   *ArchiveService
	m         *metrics.Metrics

	graphURL string
	apiURL   string
}

func NewInstagramService(
	cfg config.Config,
	a repository.AccountRepository,
	p repository.PostRepository,
	ps repository.PostStatusRepository,
	tokens TokenService,
	submitter JobSubmitter,
	archive *ArchiveService,
	m *metrics.Metrics) InstagramService {
	return &instagramService{
		cfg:       cfg,
		a:         a,
		p:         p,
		ps:        ps,
		tokens:    tokens,
		submitter: submitter,
		archive:   archive,
		m:         m,
		graphURL:  "https://graph.instagram.com",
		apiURL:    "https://api.instagram.com",
	}
}

func (s *instagramService) InstagramCallback(ctx context.Context, code string, userID int64) (err error) {

	if code == "" {
		err = errors.New("code or state is empty")
		slog.Info(err.Error())
		return err
	}

	if userID == 0 {
		err = errors.New("User not found")
		slog.Info(err.Error())
		return err
	}

	token, err := s.exchangeCodeForToken(ctx, code)
	if err != nil {
		return err
	}

	userInfo, err := s.getInstagramUserInfo(token.AccessToken)
	if err != nil {
		return err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(token.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	// One active instagram account per user. Reconnecting replaces it.
	err = s.a.DeactivateByUserPlatform(ctx, userID, models.PlatformInstagram)
	if err != nil {
		return err
	}

	accountInfo := &models.Account{
		UserID:         userID,
		Platform:       models.PlatformInstagram,
		PlatformUserID: userInfo.UserID,
		AccountName:    userInfo.Username,
		AccessToken:    encryptedAccessToken,
		RefreshToken:   encryptedAccessToken,
		TokenExpiresAt: GetExpiresAt(token.ExpiresIn),
	}

	_, err = s.a.Create(ctx, nil, accountInfo)
	if err != nil {
		return err
	}

	return nil
}

func (s *instagramService) getShortLivedToken(code string) (*transfer.InstagramToken, error) {
	// Prepare the request body
	data := url.Values{}
	data.Set("client_id", s.cfg.InstagramClientID)
	data.Set("client_secret", s.cfg.InstagramClientSecret)
	data.Set("grant_type", "authorization_code")
	data.Set("redirect_uri", s.cfg.InstagramRedirectURI)
	data.Set("code", code)

	resp, err := http.Post(
		s.apiURL+"/oauth/access_token",
		"application/x-www-form-urlencoded",
		strings.NewReader(data.Encode()),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to get short-lived token: %v", err)
	}
	defer resp.Body.Close()

	var result struct {
		AccessToken string `json:"access_token"`
		UserID      int64  `json:"user_id"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to decode token response: %v", err)
	}

	token := &transfer.InstagramToken{
		AccessToken: result.AccessToken,
		ExpiresIn:   3600,
	}

	return token, nil
}

func (s *instagramService) getLongLivedToken(shortLivedToken string) (*transfer.InstagramToken, error) {
	reqURL := fmt.Sprintf(
		"%s/access_token?grant_type=ig_exchange_token&client_secret=%s&access_token=%s",
		s.graphURL,
		s.cfg.InstagramClientSecret,
		shortLivedToken,
	)

	resp, err := http.Get(reqURL)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to get long-lived token: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("error response from Instagram: %s (status code: %d)", body, resp.StatusCode)
	}

	var result transfer.InstagramToken
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to decode long-lived token response: %v", err)
	}

	return &result, nil
}

func (s *instagramService) exchangeCodeForToken(ctx context.Context, code string) (*transfer.InstagramToken, error) {

	shortLivedToken, err := s.getShortLivedToken(code)
	if err != nil {
		return nil, fmt.Errorf("failed to get short-lived token: %v", err)
	}

	// Exchange for long-lived token
	longLivedToken, err := s.getLongLivedToken(shortLivedToken.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to get long-lived token: %v", err)
	}

	return longLivedToken, nil
}

func (s *instagramService) getInstagramUserInfo(accessToken string) (*transfer.InstagramUserInfo, error) {
	var userInfo transfer.InstagramUserInfo

	reqUrl := fmt.Sprintf(
		"%s/me?fields=id,username,name,account_type,profile_picture_url&access_token=%s",
		s.graphURL,
		accessToken,
	)

	resp, err := http.Get(reqUrl)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return &userInfo, nil
}

const mediaFields = "id,media_url,caption,media_type,media_product_type,permalink,thumbnail_url,timestamp"

func (s *instagramService) getMedia(ctx context.Context, mediaID, accessToken string) (*transfer.InstagramMedia, error) {
	reqURL := fmt.Sprintf("%s/%s?fields=%s&access_token=%s", s.graphURL, mediaID, mediaFields, accessToken)

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("error fetching media %s: %w", mediaID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var igErr transfer.InstagramErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&igErr); err == nil && igErr.Error.Message != "" {
			return nil, fmt.Errorf("instagram error for media %s: %s", mediaID, igErr.Error.Message)
		}
		return nil, fmt.Errorf("unexpected status code from Instagram: %d", resp.StatusCode)
	}

	var media transfer.InstagramMedia
	if err := json.NewDecoder(resp.Body).Decode(&media); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return &media, nil
}

// IngestMedia pulls one media item from the graph API and turns it into
// a Post plus one pending crosspost job per eligible destination. It is
// safe to call repeatedly for the same media id, duplicates short
// circuit on the source post uniqueness.
func (s *instagramService) IngestMedia(ctx context.Context, igUserID, mediaID string) (*transfer.IngestResult, error) {
	if mediaID == "" {
		return nil, errors.New("media id is empty")
	}

	// Fast path, the uniqueness constraint below still catches races.
	exists, err := s.p.ExistsBySourcePostID(ctx, models.PlatformInstagram, mediaID)
	if err != nil {
		return nil, err
	}
	if exists {
		return &transfer.IngestResult{}, nil
	}

	account, err := s.resolveAccount(ctx, igUserID, mediaID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("no instagram account can access media %s", mediaID)
	}

	accessToken, err := s.tokens.GetValidToken(ctx, account)
	if err != nil {
		return nil, err
	}

	media, err := s.getMedia(ctx, mediaID, accessToken)
	if err != nil {
		return nil, err
	}

	restricted := media.MediaType == models.MediaTypeVideo && media.MediaURL == ""

	post := &models.Post{
		UserID:           account.UserID,
		SourcePlatform:   models.PlatformInstagram,
		SourcePostID:     media.ID,
		MediaURL:         media.MediaURL,
		Caption:          media.Caption,
		MediaType:        media.MediaType,
		MediaProductType: media.MediaProductType,
		Timestamp:        parseMediaTimestamp(media.Timestamp),
	}
	if restricted {
		// Keep something displayable even though the video itself is
		// not downloadable.
		post.MediaURL = media.ThumbnailURL
		if post.MediaURL == "" {
			post.MediaURL = media.Permalink
		}
	}

	postID, err := s.p.Create(ctx, nil, post)
	if err != nil {
		return nil, err
	}
	if postID == 0 {
		// Lost the insert race, another ingest already owns this media.
		return &transfer.IngestResult{}, nil
	}
	post.ID = postID
	s.m.PostsIngested.Inc()

	if s.archive.Enabled() && !restricted {
		go s.archiveMedia(media)
	}

	result := &transfer.IngestResult{Post: post, Restricted: restricted}

	if restricted {
		// The pre-failed job only makes sense for a user who has a
		// twitter destination to fail towards.
		dest, err := s.a.GetActive(ctx, account.UserID, models.PlatformTwitter)
		if err != nil {
			return nil, err
		}
		if dest == nil {
			return result, nil
		}

		status := &models.PostStatus{
			PostID:       postID,
			Platform:     models.PlatformTwitter,
			Status:       models.StatusFailed,
			ErrorMessage: restrictedVideoMessage,
		}
		statusID, err := s.ps.Create(ctx, nil, status)
		if err != nil {
			return nil, err
		}
		status.ID = statusID
		result.Statuses = append(result.Statuses, status)
		return result, nil
	}

	for _, platform := range destinationsFor(media.MediaType) {
		dest, err := s.a.GetActive(ctx, account.UserID, platform)
		if err != nil {
			return nil, err
		}
		if dest == nil {
			continue
		}

		status := &models.PostStatus{
			PostID:   postID,
			Platform: platform,
			Status:   models.StatusPending,
		}
		statusID, err := s.ps.Create(ctx, nil, status)
		if err != nil {
			return nil, err
		}
		status.ID = statusID
		result.Statuses = append(result.Statuses, status)

		if err := s.submitter.Submit(ctx, statusID); err != nil {
			slog.Info(err.Error())
		}
	}

	return result, nil
}

// resolveAccount maps the webhook's sender hint onto a connected
// account. The hint can be absent or Instagram's test sentinel "0", and
// mention events carry the author's id rather than the recipient's, so
// when the direct lookup misses, ownership is established by probing
// which active account can read the media.
func (s *instagramService) resolveAccount(ctx context.Context, igUserID, mediaID string) (*models.Account, error) {
	if igUserID != "" && igUserID != "0" {
		account, err := s.a.GetByPlatformUserID(ctx, igUserID, models.PlatformInstagram)
		if err != nil {
			return nil, err
		}
		if account != nil {
			return account, nil
		}
	}

	accounts, err := s.a.ListActiveByPlatform(ctx, models.PlatformInstagram)
	if err != nil {
		return nil, err
	}

	for _, acc := range accounts {
		accessToken, err := s.tokens.GetValidToken(ctx, acc)
		if err != nil {
			slog.Info(err.Error())
			continue
		}
		if s.canAccessMedia(ctx, mediaID, accessToken) {
			return acc, nil
		}
	}

	return nil, nil
}

// canAccessMedia does a minimal fields=id fetch to test whether the
// token can read the media.
func (s *instagramService) canAccessMedia(ctx context.Context, mediaID, accessToken string) bool {
	reqURL := fmt.Sprintf("%s/%s?fields=id&access_token=%s", s.graphURL, mediaID, accessToken)

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return false
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

// destinationsFor maps a source media type onto destination platforms.
// Videos go everywhere, stills only make sense on twitter.
func destinationsFor(mediaType string) []string {
	switch mediaType {
	case models.MediaTypeVideo:
		return []string{models.PlatformTwitter, models.PlatformYoutube}
	case models.MediaTypeImage, models.MediaTypeCarousel:
		return []string{models.PlatformTwitter}
	default:
		return nil
	}
}

func (s *instagramService) archiveMedia(media *transfer.InstagramMedia) {
	data, mime, err := downloadMedia(media.MediaURL)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	id, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return
	}

	key := fmt.Sprintf("instagram/%s-%s", media.ID, id)
	if err := s.archive.UploadToR2(context.Background(), key, data, mime); err != nil {
		log.Printf("failed to archive media %s: %v", media.ID, err)
	}
}

// PollAccount scans the account's recent media and ingests anything not
// seen before. Returns the number of newly ingested posts.
func (s *instagramService) PollAccount(ctx context.Context, account *models.Account) (int, error) {
	accessToken, err := s.tokens.GetValidToken(ctx, account)
	if err != nil {
		return 0, err
	}

	reqURL := fmt.Sprintf("%s/me/media?fields=%s&limit=%d&access_token=%s", s.graphURL, mediaFields, pollPageSize, accessToken)

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return 0, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status code from Instagram: %d", resp.StatusCode)
	}

	var list transfer.InstagramMediaList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	ingested := 0
	for _, media := range list.Data {
		exists, err := s.p.ExistsBySourcePostID(ctx, models.PlatformInstagram, media.ID)
		if err != nil {
			return ingested, err
		}
		if exists {
			continue
		}

		result, err := s.IngestMedia(ctx, account.PlatformUserID, media.ID)
		if err != nil {
			log.Printf("failed to ingest media %s: %v", media.ID, err)
			continue
		}
		if result.Post != nil {
			ingested++
		}
	}

	return ingested, nil
}

func parseMediaTimestamp(ts string) time.Time {
	if ts == "" {
		return time.Now()
	}
	t, err := time.Parse("2006-01-02T15:04:05-0700", ts)
	if err != nil {
		t, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return time.Now()
		}
	}
	return t
}
