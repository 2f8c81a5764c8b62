package handlers

import (
	"github.com/gofiber/fiber/v2"
	job "github.com/maheshrc27/crossflow/internal/jobs"
)

// CronHandler exposes the background jobs over HTTP so an external
// scheduler can drive them in deployments without the in-process cron.
type CronHandler struct {
	recovery *job.RecoveryJob
	poll     *job.PollJob
}

func NewCronHandler(recovery *job.RecoveryJob, poll *job.PollJob) *CronHandler {
	return &CronHandler{recovery: recovery, poll: poll}
}

// Run does one full pass, sweep then poll, and reports the combined
// counts.
func (h *CronHandler) Run(c *fiber.Ctx) error {
	reaped, err := h.recovery.Reap(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	retried, err := h.recovery.RetryPending(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	ingested, err := h.poll.Poll(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"reaped":   reaped,
		"retried":  retried,
		"ingested": ingested,
	})
}

func (h *CronHandler) RunSweep(c *fiber.Ctx) error {
	reaped, err := h.recovery.Reap(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	retried, err := h.recovery.RetryPending(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"reaped":  reaped,
		"retried": retried,
	})
}

func (h *CronHandler) RunPoll(c *fiber.Ctx) error {
	ingested, err := h.poll.Poll(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ingested": ingested,
	})
}
