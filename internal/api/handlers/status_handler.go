package handlers

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crossflow/internal/models"
	"github.com/maheshrc27/crossflow/internal/repository"
	"github.com/maheshrc27/crossflow/internal/service"
)

// statusListLimit caps how many jobs the listing endpoint returns.
const statusListLimit = 50

type StatusHandler struct {
	ps        repository.PostStatusRepository
	submitter service.JobSubmitter
}

func NewStatusHandler(ps repository.PostStatusRepository, submitter service.JobSubmitter) *StatusHandler {
	return &StatusHandler{ps: ps, submitter: submitter}
}

func (h *StatusHandler) ListStatuses(c *fiber.Ctx) error {
	userID := GetUserID(c)

	statuses, err := h.ps.ListRecentByUser(c.Context(), userID, statusListLimit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch statuses",
		})
	}

	return c.Status(fiber.StatusOK).JSON(statuses)
}

// RetryStatus resets a failed job back to pending and resubmits it.
func (h *StatusHandler) RetryStatus(c *fiber.Ctx) error {
	userID := GetUserID(c)
	statusId := c.QueryInt("id", 0)

	detail, err := h.ps.GetDetail(c.Context(), int64(statusId))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch status",
		})
	}
	if detail == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Status not found",
		})
	}
	if detail.UserID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Status doesn't belong to user",
		})
	}
	if detail.Status != models.StatusFailed {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Only failed jobs can be retried",
		})
	}

	if err := h.ps.ResetForRetry(c.Context(), detail.ID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to reset status",
		})
	}

	go func(statusID int64) {
		if err := h.submitter.Submit(context.Background(), statusID); err != nil {
			log.Printf("Error submitting job %d: %v", statusID, err)
		}
	}(detail.ID)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Retry scheduled",
	})
}

// ResetStuck fails the caller's jobs that have sat in processing past
// the staleness threshold, without waiting for the next sweep.
func (h *StatusHandler) ResetStuck(c *fiber.Ctx) error {
	userID := GetUserID(c)

	olderThan := time.Now().Add(-5 * time.Minute)
	reaped, err := h.ps.ReapStaleForUser(c.Context(), userID, olderThan, "job timed out")
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to reset stuck jobs",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"reset": reaped,
	})
}
