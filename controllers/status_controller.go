package controller

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
)

// StatsStore is the slice of the record store the status API reads.
type StatsStore interface {
	Healthy() bool
	ProcessedCount() int
	TaskCount() int
	DelayedCount() int
	LastCheckTime() time.Time
}

// MailboxHealth checks the mailbox provider under a bounded timeout.
type MailboxHealth interface {
	CheckHealth(ctx context.Context, timeout time.Duration) error
}

// GenerationHealth reports whether the generation provider is usable.
type GenerationHealth interface {
	Configured() bool
}

type StatusController struct {
	Store          StatsStore
	Mailbox        MailboxHealth
	Generation     GenerationHealth
	MailboxTimeout time.Duration
	Logger         *log.Logger
}

func NewStatusController(store StatsStore, mailbox MailboxHealth, generation GenerationHealth, mailboxTimeout time.Duration, logger *log.Logger) *StatusController {
	return &StatusController{
		Store:          store,
		Mailbox:        mailbox,
		Generation:     generation,
		MailboxTimeout: mailboxTimeout,
		Logger:         logger,
	}
}

// Health is the bare liveness probe.
func (sc *StatusController) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
	})
}

// Status reports each dependency independently. One subsystem being down
// never hides the state of the others; the mailbox dial is bounded so a
// hung IMAP server cannot stall the endpoint.
func (sc *StatusController) Status(c *fiber.Ctx) error {
	storeOK := sc.Store.Healthy()

	mailboxOK := true
	var mailboxErr string
	if err := sc.Mailbox.CheckHealth(c.Context(), sc.MailboxTimeout); err != nil {
		mailboxOK = false
		mailboxErr = err.Error()
	}

	generationOK := sc.Generation.Configured()

	overall := "ok"
	if !storeOK || !mailboxOK || !generationOK {
		overall = "degraded"
	}

	resp := fiber.Map{
		"status": overall,
		"store": fiber.Map{
			"available": storeOK,
		},
		"mailbox": fiber.Map{
			"available": mailboxOK,
		},
		"generation": fiber.Map{
			"available": generationOK,
		},
	}
	if mailboxErr != "" {
		resp["mailbox"] = fiber.Map{
			"available": false,
			"error":     mailboxErr,
		}
	}
	return c.JSON(resp)
}

// Stats exposes the operational counters.
func (sc *StatusController) Stats(c *fiber.Ctx) error {
	resp := fiber.Map{
		"processed_items": sc.Store.ProcessedCount(),
		"pending_tasks":   sc.Store.TaskCount(),
		"pending_delayed": sc.Store.DelayedCount(),
	}
	if last := sc.Store.LastCheckTime(); !last.IsZero() {
		resp["last_check_time"] = last.UTC()
	}
	return c.JSON(resp)
}
