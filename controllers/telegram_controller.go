package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"inboxpilot/telegram"
	"inboxpilot/utils"
)

type TelegramController struct {
	Resolver    *telegram.Resolver
	Logger      *log.Logger
	Environment string
}

func NewTelegramController(resolver *telegram.Resolver, logger *log.Logger, environment string) *TelegramController {
	return &TelegramController{
		Resolver:    resolver,
		Logger:      logger,
		Environment: environment,
	}
}

// Webhook receives pushed updates in webhook mode. The Bot API retries on
// non-200, so transient handling failures surface as errors instead of
// being swallowed.
func (tc *TelegramController) Webhook(c *fiber.Ctx) error {
	var update telegram.Update
	if err := c.BodyParser(&update); err != nil {
		return respondError(c, tc.Environment, utils.NewValidationError("invalid update payload"))
	}

	if err := tc.Resolver.HandleUpdate(c.Context(), update); err != nil {
		return respondError(c, tc.Environment, err)
	}
	return c.SendStatus(fiber.StatusOK)
}
