package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	config "github.com/maheshrc27/crossflow/configs"
	"github.com/maheshrc27/crossflow/internal/models"
	"github.com/maheshrc27/crossflow/internal/repository"
	"github.com/maheshrc27/crossflow/pkg/utils"
)

const (
	TWITTER_AUTH_URL   = "https://twitter.com/i/oauth2/authorize"
	GOOGLE_AUTH_URL    = "https://accounts.google.com/o/oauth2/v2/auth"
	INSTAGRAM_AUTH_URL = "https://www.instagram.com/oauth/authorize"
)

type PlatformService interface {
	GetAuthURL(ctx context.Context, platform, state, verifier string) string
	List(ctx context.Context, userID int64) ([]*models.Account, error)
	Delete(ctx context.Context, userID, accountID int64) error
}

type platformService struct {
	cfg config.Config
	a   repository.AccountRepository
}

func NewPlatformService(cfg config.Config, a repository.AccountRepository) PlatformService {
	return &platformService{
		cfg: cfg,
		a:   a,
	}
}

func (s *platformService) GetAuthURL(ctx context.Context, platform, state, verifier string) string {
	switch platform {
	case models.PlatformInstagram:
		authURL := INSTAGRAM_AUTH_URL
		params := url.Values{}
		params.Add("client_id", s.cfg.InstagramClientID)
		params.Add("scope", "instagram_business_basic,instagram_business_manage_comments")
		params.Add("response_type", "code")
		params.Add("redirect_uri", s.cfg.InstagramRedirectURI)
		params.Add("state", state)

		fullURL := fmt.Sprintf("%s?%s", authURL, params.Encode())
		return fullURL

	case models.PlatformTwitter:
		authURL := TWITTER_AUTH_URL
		params := url.Values{}
		params.Add("client_id", s.cfg.TwitterClientID)
		params.Add("scope", "tweet.read tweet.write users.read media.write offline.access")
		params.Add("response_type", "code")
		params.Add("redirect_uri", s.cfg.TwitterRedirectURI)
		params.Add("state", state)
		params.Add("code_challenge", verifier)
		params.Add("code_challenge_method", "plain")

		fullURL := fmt.Sprintf("%s?%s", authURL, params.Encode())
		return fullURL

	case models.PlatformYoutube:
		authURL := GOOGLE_AUTH_URL
		params := url.Values{}
		params.Add("client_id", s.cfg.GoogleClientID)
		params.Add("redirect_uri", s.cfg.GoogleRedirectURI)
		params.Add("response_type", "code")
		params.Add("scope", "https://www.googleapis.com/auth/userinfo.profile https://www.googleapis.com/auth/userinfo.email https://www.googleapis.com/auth/youtube.upload https://www.googleapis.com/auth/youtube.readonly")
		params.Add("state", state)
		params.Add("access_type", "offline")
		params.Add("prompt", "consent")

		fullURL := fmt.Sprintf("%s?%s", authURL, params.Encode())
		return fullURL

	default:
		return ""
	}
}

func (s *platformService) List(ctx context.Context, userID int64) ([]*models.Account, error) {
	var err error

	if userID == 0 {
		err = errors.New("UserID is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	accounts, err := s.a.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Error getting connected accounts")
	}

	return accounts, nil
}

// Delete deactivates the account rather than removing the row, so the
// history of posts published through it stays intact.
func (s *platformService) Delete(ctx context.Context, userID, accountID int64) error {
	var err error

	if userID == 0 {
		err = errors.New("UserID is not valid")
		slog.Info(err.Error())
		return err
	}

	if accountID == 0 {
		err = errors.New("AccountID is not valid")
		slog.Info(err.Error())
		return err
	}

	isValid, err := s.a.CheckByUserID(ctx, accountID, userID)
	if err != nil {
		return err
	}

	if !isValid {
		err = errors.New("Account doesn't exist")
		slog.Info(err.Error())
		return err
	}

	accountInfo, err := s.a.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("Unable to get account info")
	}

	if accountInfo.Platform == models.PlatformYoutube {
		decryptedAccessToken, err := utils.Decrypt(accountInfo.AccessToken, []byte(s.cfg.SecretKey))
		if err != nil {
			return err
		}

		err = RevokeGoogleAccess(decryptedAccessToken)
		if err != nil {
			slog.Info(err.Error())
		}
	}

	err = s.a.Deactivate(ctx, accountID)
	if err != nil {
		return fmt.Errorf("Error removing account Info")
	}

	return nil
}
