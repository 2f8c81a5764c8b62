package handlers

import (
	"context"
	"log"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/crossflow/configs"
	"github.com/maheshrc27/crossflow/internal/service"
	"github.com/maheshrc27/crossflow/internal/transfer"
)

type WebhookHandler struct {
	ig  service.InstagramService
	cfg config.Config
}

func NewWebhookHandler(cfg config.Config, ig service.InstagramService) *WebhookHandler {
	return &WebhookHandler{ig: ig, cfg: cfg}
}

// Verify answers the subscription handshake Instagram performs when the
// webhook is registered.
func (h *WebhookHandler) Verify(c *fiber.Ctx) error {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token == h.cfg.WebhookVerifyToken {
		return c.Status(fiber.StatusOK).SendString(challenge)
	}

	return c.SendStatus(fiber.StatusForbidden)
}

// Receive accepts change notifications. Ingestion runs detached so the
// response goes back inside Instagram's delivery timeout.
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	var event transfer.WebhookEvent

	if err := c.BodyParser(&event); err != nil {
		slog.Info(err.Error())
		return c.SendStatus(fiber.StatusBadRequest)
	}

	if event.Object != "instagram" {
		return c.SendStatus(fiber.StatusNotFound)
	}

	for _, entry := range event.Entry {
		for _, change := range entry.Changes {
			mediaID := change.Value.MediaIDFor(change.Field)
			if mediaID == "" {
				continue
			}

			go func(igUserID, mediaID string) {
				if _, err := h.ig.IngestMedia(context.Background(), igUserID, mediaID); err != nil {
					log.Printf("Error ingesting media %s: %v", mediaID, err)
				}
			}(entry.ID, mediaID)
		}
	}

	return c.Status(fiber.StatusOK).SendString("EVENT_RECEIVED")
}
