package handlers

import (
	"fmt"
	"log"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/crossflow/configs"
	"github.com/maheshrc27/crossflow/internal/models"
	"github.com/maheshrc27/crossflow/internal/service"
	"github.com/maheshrc27/crossflow/pkg/utils"
)

const verifierCookieName = "twitter_code_verifier"

type PlatformHandler struct {
	ps  service.PlatformService
	ig  service.InstagramService
	tw  service.TwitterService
	yt  service.YoutubeService
	cfg config.Config
}

func NewPlatformHandler(ps service.PlatformService, ig service.InstagramService, tw service.TwitterService, yt service.YoutubeService, cfg config.Config) *PlatformHandler {
	return &PlatformHandler{
		ps:  ps,
		ig:  ig,
		tw:  tw,
		yt:  yt,
		cfg: cfg,
	}
}

func (h *PlatformHandler) AddSocialAccount(c *fiber.Ctx) error {
	platform := c.Params("platform")

	var verifier string
	if platform == models.PlatformTwitter {
		// The verifier has to survive the round trip to twitter, so it
		// rides in a short-lived cookie.
		var err error
		verifier, err = utils.GenerateRandomKey(32)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "something went wrong",
			})
		}

		c.Cookie(&fiber.Cookie{
			Name:     verifierCookieName,
			Value:    verifier,
			HTTPOnly: true,
			Path:     "/",
			Expires:  time.Now().Add(10 * time.Minute),
		})
	}

	authURL := h.ps.GetAuthURL(c.Context(), platform, c.Query("state"), verifier)
	if authURL == "" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "unknown platform",
		})
	}

	return c.Redirect(authURL)
}

func (h *PlatformHandler) CallbackHandler(c *fiber.Ctx) error {
	code := c.Query("code")
	state := c.Query("state")
	platform := c.Params("platform")

	claims, err := utils.ValidateToken(h.cfg.SecretKey, state)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to validate user",
		})
	}

	userID, err := strconv.ParseInt(claims.UserID, 10, 64)
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to validate user",
		})
	}

	switch platform {
	case models.PlatformInstagram:
		err = h.ig.InstagramCallback(c.Context(), code, userID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "something went wrong",
			})
		}
	case models.PlatformTwitter:
		verifier := c.Cookies(verifierCookieName)
		err = h.tw.TwitterCallback(c.Context(), code, verifier, userID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "something went wrong",
			})
		}

		c.Cookie(&fiber.Cookie{
			Name:   verifierCookieName,
			Value:  "",
			Path:   "/",
			MaxAge: -1,
		})
	case models.PlatformYoutube:
		err = h.yt.YoutubeCallback(c.Context(), code, userID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Something went wrong",
			})
		}
	}

	redirectURL := fmt.Sprintf("%s/dashboard/accounts", h.cfg.FrontendURL)
	return c.Redirect(redirectURL, fiber.StatusTemporaryRedirect)
}

func (h *PlatformHandler) ListSocialAccounts(c *fiber.Ctx) error {
	userID := GetUserID(c)

	accountList, err := h.ps.List(c.Context(), userID)
	if err != nil {
		log.Println(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch connected accounts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(accountList)
}

func (h *PlatformHandler) DeleteSocialAccount(c *fiber.Ctx) error {
	userID := GetUserID(c)
	accountId := c.QueryInt("id", 0)

	err := h.ps.Delete(c.Context(), userID, int64(accountId))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to disconnect account",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}
