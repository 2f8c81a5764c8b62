package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	config "github.com/maheshrc27/crossflow/configs"
	"github.com/maheshrc27/crossflow/internal/models"
	"github.com/maheshrc27/crossflow/internal/repository"
	"github.com/maheshrc27/crossflow/internal/transfer"
	"github.com/maheshrc27/crossflow/pkg/utils"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// expirySkew keeps a margin before the stored expiry so a token is
// refreshed before it actually dies mid-publish.
const expirySkew = time.Minute

type TokenService interface {
	GetValidToken(ctx context.Context, account *models.Account) (string, error)
	RefreshInstagramToken(ctx context.Context, account *models.Account) error
	RefreshTwitterToken(ctx context.Context, account *models.Account) error
	RefreshGoogleToken(ctx context.Context, account *models.Account) error
}

type tokenService struct {
	cfg config.Config
	a   repository.AccountRepository
}

func NewTokenService(cfg config.Config, a repository.AccountRepository) TokenService {
	return &tokenService{cfg: cfg, a: a}
}

// GetValidToken returns a decrypted access token for the account,
// refreshing it first when it is expired or about to expire.
func (s *tokenService) GetValidToken(ctx context.Context, account *models.Account) (string, error) {
	if time.Now().Add(expirySkew).After(account.TokenExpiresAt) {
		var err error
		switch account.Platform {
		case models.PlatformInstagram:
			err = s.RefreshInstagramToken(ctx, account)
		case models.PlatformTwitter:
			err = s.RefreshTwitterToken(ctx, account)
		case models.PlatformYoutube:
			err = s.RefreshGoogleToken(ctx, account)
		default:
			err = fmt.Errorf("unknown platform: %s", account.Platform)
		}
		if err != nil {
			return "", err
		}

		refreshed, err := s.a.GetByID(ctx, account.ID)
		if err != nil {
			return "", err
		}
		if refreshed == nil {
			return "", errors.New("account not found after token refresh")
		}
		*account = *refreshed
	}

	return utils.Decrypt(account.AccessToken, []byte(s.cfg.SecretKey))
}

func (s *tokenService) RefreshInstagramToken(ctx context.Context, account *models.Account) error {
	decryptedToken, err := utils.Decrypt(account.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	// Refresh long-lived token
	reqURL := fmt.Sprintf(
		"https://graph.instagram.com/refresh_access_token?grant_type=ig_refresh_token&access_token=%s",
		decryptedToken,
	)

	resp, err := http.Get(reqURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return err
	}

	if result.AccessToken == "" {
		return errors.New("instagram returned empty access token")
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(result.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	updated := models.Account{
		AccessToken:    encryptedAccessToken,
		RefreshToken:   encryptedAccessToken,
		TokenExpiresAt: GetExpiresAt(result.ExpiresIn),
	}

	return s.a.SetToken(ctx, account.ID, &updated)
}

func (s *tokenService) RefreshTwitterToken(ctx context.Context, account *models.Account) error {
	decryptedRefreshToken, err := utils.Decrypt(account.RefreshToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", decryptedRefreshToken)
	data.Set("client_id", s.cfg.TwitterClientID)

	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.twitter.com/2/oauth2/token", strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	basic := base64.StdEncoding.EncodeToString([]byte(s.cfg.TwitterClientID + ":" + s.cfg.TwitterClientSecret))
	req.Header.Set("Authorization", "Basic "+basic)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("twitter token refresh failed with status %d", resp.StatusCode)
	}

	var result transfer.TwitterTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(result.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	updated := models.Account{
		AccessToken:    encryptedAccessToken,
		TokenExpiresAt: GetExpiresAt(result.ExpiresIn),
	}

	// Twitter rotates refresh tokens on every refresh.
	if result.RefreshToken != "" {
		encryptedRefreshToken, err := utils.Encrypt([]byte(result.RefreshToken), []byte(s.cfg.SecretKey))
		if err != nil {
			return err
		}
		updated.RefreshToken = encryptedRefreshToken
	}

	return s.a.SetToken(ctx, account.ID, &updated)
}

func (s *tokenService) RefreshGoogleToken(ctx context.Context, account *models.Account) error {
	conf := &oauth2.Config{
		ClientID:     s.cfg.GoogleClientID,
		ClientSecret: s.cfg.GoogleClientSecret,
		Scopes:       []string{"https://www.googleapis.com/auth/youtube.upload"},
		Endpoint:     google.Endpoint,
	}

	decryptedRefreshToken, err := utils.Decrypt(account.RefreshToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	tokenSource := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: decryptedRefreshToken})

	token, err := tokenSource.Token()
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(token.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	updated := models.Account{
		AccessToken:    encryptedAccessToken,
		TokenExpiresAt: token.Expiry,
	}

	return s.a.SetToken(ctx, account.ID, &updated)
}
