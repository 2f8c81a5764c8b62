package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	config "github.com/maheshrc27/crossflow/configs"
	"github.com/maheshrc27/crossflow/internal/models"
	"github.com/maheshrc27/crossflow/internal/repository"
	"github.com/maheshrc27/crossflow/internal/transfer"
	"github.com/maheshrc27/crossflow/pkg/utils"
)

// tweetMaxRunes is the caption limit on twitter. Longer captions are
// cut, not rejected.
const tweetMaxRunes = 280

type TwitterService interface {
	TwitterCallback(ctx context.Context, code, verifier string, userID int64) (err error)
	Publisher
}

type twitterService struct {
	cfg    config.Config
	a      repository.AccountRepository
	tokens TokenService

	apiURL    string
	uploadURL string
}

func NewTwitterService(cfg config.Config, a repository.AccountRepository, tokens TokenService) TwitterService {
	return &twitterService{
		cfg:       cfg,
		a:         a,
		tokens:    tokens,
		apiURL:    "https://api.twitter.com",
		uploadURL: "https://upload.twitter.com",
	}
}

func (s *twitterService) TwitterCallback(ctx context.Context, code, verifier string, userID int64) (err error) {

	if code == "" || verifier == "" {
		err = errors.New("code or verifier is empty")
		slog.Info(err.Error())
		return err
	}

	if userID == 0 {
		err = errors.New("User not found")
		slog.Info(err.Error())
		return err
	}

	token, err := s.exchangeCodeForToken(ctx, code, verifier)
	if err != nil {
		return err
	}

	userInfo, err := s.getTwitterUser(ctx, token.AccessToken)
	if err != nil {
		return err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(token.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	encryptedRefreshToken, err := utils.Encrypt([]byte(token.RefreshToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	err = s.a.DeactivateByUserPlatform(ctx, userID, models.PlatformTwitter)
	if err != nil {
		return err
	}

	accountInfo := &models.Account{
		UserID:         userID,
		Platform:       models.PlatformTwitter,
		PlatformUserID: userInfo.ID,
		AccountName:    userInfo.Username,
		AccessToken:    encryptedAccessToken,
		RefreshToken:   encryptedRefreshToken,
		TokenExpiresAt: GetExpiresAt(token.ExpiresIn),
	}

	_, err = s.a.Create(ctx, nil, accountInfo)
	if err != nil {
		return err
	}

	return nil
}

func (s *twitterService) exchangeCodeForToken(ctx context.Context, code, verifier string) (*transfer.TwitterTokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", s.cfg.TwitterRedirectURI)
	data.Set("code_verifier", verifier)
	data.Set("client_id", s.cfg.TwitterClientID)

	req, err := http.NewRequestWithContext(ctx, "POST", s.apiURL+"/2/oauth2/token", strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	basic := base64.StdEncoding.EncodeToString([]byte(s.cfg.TwitterClientID + ":" + s.cfg.TwitterClientSecret))
	req.Header.Set("Authorization", "Basic "+basic)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to exchange code: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("error response from Twitter: %s (status code: %d)", body, resp.StatusCode)
	}

	var token transfer.TwitterTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to decode token response: %v", err)
	}

	return &token, nil
}

func (s *twitterService) getTwitterUser(ctx context.Context, accessToken string) (*transfer.TwitterUser, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", s.apiURL+"/2/users/me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code from Twitter: %d", resp.StatusCode)
	}

	var user transfer.TwitterUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return &user.Data, nil
}

// PublishPost posts the media and caption as a tweet and returns the
// tweet id.
func (s *twitterService) PublishPost(ctx context.Context, post *models.Post, account *models.Account) (string, error) {
	accessToken, err := s.tokens.GetValidToken(ctx, account)
	if err != nil {
		return "", err
	}

	// Carousels carry only their cover URL, which misrepresents the
	// album, so they go out as text-only tweets.
	var mediaID string
	if post.MediaURL != "" && (post.MediaType == models.MediaTypeImage || post.MediaType == models.MediaTypeVideo) {
		data, mime, err := downloadMedia(post.MediaURL)
		if err != nil {
			return "", err
		}

		mediaID, err = s.uploadMedia(ctx, accessToken, data, mime, post.MediaType)
		if err != nil {
			return "", err
		}
	}

	return s.createTweet(ctx, accessToken, truncateCaption(post.Caption), mediaID)
}

// truncateCaption cuts the caption at the tweet length limit, counting
// runes rather than bytes.
func truncateCaption(caption string) string {
	runes := []rune(caption)
	if len(runes) <= tweetMaxRunes {
		return caption
	}
	return string(runes[:tweetMaxRunes])
}

func mediaCategory(mediaType string) string {
	if mediaType == models.MediaTypeVideo {
		return "tweet_video"
	}
	return "tweet_image"
}

// uploadMedia runs the chunked upload protocol: INIT to reserve a media
// id, APPEND with the bytes, FINALIZE to commit.
func (s *twitterService) uploadMedia(ctx context.Context, accessToken string, data []byte, mime, mediaType string) (string, error) {
	uploadEndpoint := s.uploadURL + "/1.1/media/upload.json"

	initData := url.Values{}
	initData.Set("command", "INIT")
	initData.Set("total_bytes", strconv.Itoa(len(data)))
	initData.Set("media_type", mime)
	initData.Set("media_category", mediaCategory(mediaType))

	req, err := http.NewRequestWithContext(ctx, "POST", uploadEndpoint, strings.NewReader(initData.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("media INIT request error: %w", err)
	}

	var initResp transfer.TwitterMediaInitResponse
	if err := decodeTwitterResponse(resp, &initResp); err != nil {
		return "", fmt.Errorf("media INIT: %w", err)
	}

	mediaID := initResp.MediaIDString
	if mediaID == "" && initResp.MediaID != 0 {
		mediaID = strconv.FormatInt(initResp.MediaID, 10)
	}
	if mediaID == "" {
		return "", errors.New("no media ID returned from Twitter")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("command", "APPEND"); err != nil {
		return "", err
	}
	if err := writer.WriteField("media_id", mediaID); err != nil {
		return "", err
	}
	if err := writer.WriteField("segment_index", "0"); err != nil {
		return "", err
	}
	part, err := writer.CreateFormFile("media", "media")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err = http.NewRequestWithContext(ctx, "POST", uploadEndpoint, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("media APPEND request error: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("media APPEND failed with status %d", resp.StatusCode)
	}

	finalizeData := url.Values{}
	finalizeData.Set("command", "FINALIZE")
	finalizeData.Set("media_id", mediaID)

	req, err = http.NewRequestWithContext(ctx, "POST", uploadEndpoint, strings.NewReader(finalizeData.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("media FINALIZE request error: %w", err)
	}

	var finalizeResp transfer.TwitterMediaFinalizeResponse
	if err := decodeTwitterResponse(resp, &finalizeResp); err != nil {
		return "", fmt.Errorf("media FINALIZE: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("media FINALIZE failed with status %d", resp.StatusCode)
	}

	if finalizeResp.ProcessingInfo != nil {
		log.Printf("media %s processing state: %s", mediaID, finalizeResp.ProcessingInfo.State)
	}

	return mediaID, nil
}

func (s *twitterService) createTweet(ctx context.Context, accessToken, text, mediaID string) (string, error) {
	tweet := transfer.TwitterTweetRequest{Text: text}
	if mediaID != "" {
		tweet.Media = &transfer.TwitterTweetMedia{MediaIDs: []string{mediaID}}
	}

	body, err := json.Marshal(tweet)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.apiURL+"/2/tweets", bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("tweet request error: %w", err)
	}

	var tweetResp transfer.TwitterTweetResponse
	if err := decodeTwitterResponse(resp, &tweetResp); err != nil {
		return "", err
	}

	if tweetResp.Data.ID == "" {
		if len(tweetResp.Errors) > 0 {
			return "", fmt.Errorf("twitter error: %s", tweetResp.Errors[0].Message)
		}
		if tweetResp.Detail != "" {
			return "", fmt.Errorf("twitter error: %s", tweetResp.Detail)
		}
		return "", errors.New("no tweet ID returned from Twitter")
	}

	return tweetResp.Data.ID, nil
}

// decodeTwitterResponse reads the body and unmarshals it into v.
// Twitter sometimes answers with HTML error pages, so a non-JSON body
// becomes an error carrying a short snippet of what came back.
func decodeTwitterResponse(resp *http.Response, v interface{}) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("error reading response body: %w", err)
	}

	if err := json.Unmarshal(body, v); err != nil {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return fmt.Errorf("non-JSON response from Twitter (status %d): %s", resp.StatusCode, snippet)
	}

	return nil
}
