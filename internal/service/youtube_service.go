package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	config "github.com/maheshrc27/crossflow/configs"
	"github.com/maheshrc27/crossflow/internal/models"
	"github.com/maheshrc27/crossflow/internal/repository"
	"github.com/maheshrc27/crossflow/pkg/utils"
)

const (
	videoTitleMaxRunes = 100
	youtubeCategoryID  = "22"
)

type YoutubeService interface {
	YoutubeCallback(ctx context.Context, code string, userID int64) (err error)
	Publisher
}

type youtubeService struct {
	cfg       config.Config
	a         repository.AccountRepository
	tokens    TokenService
	converter VideoConverter

	apiURL string
}

func NewYoutubeService(cfg config.Config, a repository.AccountRepository, tokens TokenService, converter VideoConverter) YoutubeService {
	return &youtubeService{
		cfg:       cfg,
		a:         a,
		tokens:    tokens,
		converter: converter,
		apiURL:    "https://www.googleapis.com",
	}
}

func (s *youtubeService) YoutubeCallback(ctx context.Context, code string, userID int64) (err error) {

	if code == "" {
		err = errors.New("code or state is empty")
		slog.Info(err.Error())
		return err
	}

	oauth2Config := &oauth2.Config{
		ClientID:     s.cfg.GoogleClientID,
		ClientSecret: s.cfg.GoogleClientSecret,
		RedirectURL:  s.cfg.GoogleRedirectURI,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
			"https://www.googleapis.com/auth/youtube.upload",
			"https://www.googleapis.com/auth/youtube.readonly",
		},
		Endpoint: google.Endpoint,
	}

	if oauth2Config.ClientID == "" || oauth2Config.ClientSecret == "" || oauth2Config.RedirectURL == "" {
		err = errors.New("OAuth2 configration is incomplete")
		slog.Info(err.Error())
		return err
	}

	token, err := oauth2Config.Exchange(context.Background(), code)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	if token.RefreshToken == "" {
		err = errors.New("refresh token is empty")
		slog.Info(err.Error())
		return err
	}

	client := oauth2Config.Client(context.Background(), token)
	userInfo, err := GetUserInfo(client)
	if err != nil {
		return err
	}

	accountID := userInfo.ID
	accountName := userInfo.Name

	// Prefer the channel identity over the google profile when the
	// account has a channel.
	ytService, err := youtube.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		slog.Info(err.Error())
	} else {
		channels, err := ytService.Channels.List([]string{"id", "snippet"}).Mine(true).Do()
		if err != nil {
			slog.Info(err.Error())
		} else if len(channels.Items) > 0 {
			accountID = channels.Items[0].Id
			accountName = channels.Items[0].Snippet.Title
		}
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(token.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	encryptedRefreshToken, err := utils.Encrypt([]byte(token.RefreshToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	err = s.a.DeactivateByUserPlatform(ctx, userID, models.PlatformYoutube)
	if err != nil {
		return err
	}

	accountInfo := &models.Account{
		UserID:         userID,
		Platform:       models.PlatformYoutube,
		PlatformUserID: accountID,
		AccountName:    accountName,
		AccessToken:    encryptedAccessToken,
		RefreshToken:   encryptedRefreshToken,
		TokenExpiresAt: token.Expiry,
	}

	_, err = s.a.Create(ctx, nil, accountInfo)
	if err != nil {
		return err
	}

	return nil
}

// PublishPost uploads the post to YouTube and returns the video id.
// Images are rendered into a 5 second clip first, since YouTube has no
// image posts.
func (s *youtubeService) PublishPost(ctx context.Context, post *models.Post, account *models.Account) (string, error) {
	accessToken, err := s.tokens.GetValidToken(ctx, account)
	if err != nil {
		return "", err
	}

	if post.MediaURL == "" {
		return "", errors.New("post has no media url")
	}

	data, mime, err := downloadMedia(post.MediaURL)
	if err != nil {
		return "", err
	}

	isShort := post.MediaType == models.MediaTypeVideo && post.MediaProductType == models.MediaProductTypeReels

	if post.MediaType != models.MediaTypeVideo {
		videoPath, err := s.converter.ImageToVideo(ctx, data)
		if err != nil {
			return "", err
		}
		defer os.Remove(videoPath)

		data, err = os.ReadFile(videoPath)
		if err != nil {
			slog.Info(err.Error())
			return "", err
		}
		mime = "video/mp4"
		isShort = true
	}

	title := buildVideoTitle(post.Caption)
	description := post.Caption
	if isShort {
		if !strings.Contains(title, "#Shorts") {
			title = title + " #Shorts"
		}
		if !strings.Contains(description, "#Shorts") {
			description = description + " #Shorts"
		}
	}

	return s.uploadVideo(ctx, accessToken, title, description, data, mime)
}

// buildVideoTitle derives a YouTube title from the caption: first line
// only, emoji and similar symbols stripped, cut at the title limit. A
// caption too thin to make a title falls back to a dated default.
func buildVideoTitle(caption string) string {
	var b strings.Builder
	for _, r := range caption {
		// Everything from U+1000 up goes, which covers emoji in both the
		// basic plane and the astral planes.
		if r >= 0x1000 {
			continue
		}
		b.WriteRune(r)
	}

	title := b.String()
	if idx := strings.IndexAny(title, "\r\n"); idx >= 0 {
		title = title[:idx]
	}
	title = strings.TrimSpace(title)

	runes := []rune(title)
	if len(runes) > videoTitleMaxRunes {
		title = strings.TrimSpace(string(runes[:videoTitleMaxRunes]))
	}

	if len([]rune(title)) < 2 {
		return "New Instagram Video " + time.Now().Format("2006-01-02")
	}

	return title
}

// uploadVideo runs the resumable upload protocol: an init request with
// the video metadata yields a session URL, the bytes go there with PUT.
func (s *youtubeService) uploadVideo(ctx context.Context, accessToken, title, description string, data []byte, mime string) (string, error) {
	metadata := map[string]interface{}{
		"snippet": map[string]interface{}{
			"title":       title,
			"description": description,
			"categoryId":  youtubeCategoryID,
			"tags":        []string{"crossposting"},
		},
		"status": map[string]interface{}{
			"privacyStatus":           "public",
			"selfDeclaredMadeForKids": false,
		},
	}

	body, err := json.Marshal(metadata)
	if err != nil {
		return "", err
	}

	initURL := s.apiURL + "/upload/youtube/v3/videos?uploadType=resumable&part=snippet,status"
	req, err := http.NewRequestWithContext(ctx, "POST", initURL, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Upload-Content-Length", strconv.Itoa(len(data)))
	req.Header.Set("X-Upload-Content-Type", mime)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("upload init request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("error response from YouTube: %s (status code: %d)", respBody, resp.StatusCode)
	}

	sessionURL := resp.Header.Get("Location")
	if sessionURL == "" {
		return "", errors.New("no upload session URL returned from YouTube")
	}

	putReq, err := http.NewRequestWithContext(ctx, "PUT", sessionURL, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	putReq.Header.Set("Content-Type", mime)
	putReq.ContentLength = int64(len(data))

	putResp, err := http.DefaultClient.Do(putReq)
	if err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("upload request error: %w", err)
	}
	defer putResp.Body.Close()

	if putResp.StatusCode < 200 || putResp.StatusCode > 299 {
		respBody, _ := io.ReadAll(putResp.Body)
		return "", fmt.Errorf("error response from YouTube: %s (status code: %d)", respBody, putResp.StatusCode)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(putResp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("error parsing upload response: %w", err)
	}

	if result.ID == "" {
		return "", errors.New("no video ID returned from YouTube")
	}

	return result.ID, nil
}
