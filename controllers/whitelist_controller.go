package controller

import (
	"log"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"

	"inboxpilot/models"
	"inboxpilot/utils"
)

// WhitelistStore is the slice of the record store the whitelist API uses.
type WhitelistStore interface {
	Whitelist() []string
	AddWhitelist(addr string) error
	RemoveWhitelist(addr string) (bool, error)
}

type WhitelistController struct {
	Store       WhitelistStore
	Logger      *log.Logger
	Environment string
}

func NewWhitelistController(store WhitelistStore, logger *log.Logger, environment string) *WhitelistController {
	return &WhitelistController{
		Store:       store,
		Logger:      logger,
		Environment: environment,
	}
}

// GetWhitelist lists the trusted sender addresses.
func (wc *WhitelistController) GetWhitelist(c *fiber.Ctx) error {
	senders := wc.Store.Whitelist()
	return c.JSON(fiber.Map{
		"senders": senders,
		"count":   len(senders),
	})
}

// AddSender whitelists an address. The address must be a syntactically
// valid email; it is normalized before storage so matching is
// case-insensitive.
func (wc *WhitelistController) AddSender(c *fiber.Ctx) error {
	var input struct {
		Address string `json:"address"`
	}
	if err := c.BodyParser(&input); err != nil {
		return respondError(c, wc.Environment, utils.NewValidationError("invalid request body"))
	}

	addr := models.NormalizeAddress(input.Address)
	if addr == "" {
		return respondError(c, wc.Environment, utils.NewValidationError("address is required"))
	}
	if err := checkmail.ValidateFormat(addr); err != nil {
		return respondError(c, wc.Environment, utils.NewValidationError("invalid email address: %s", input.Address))
	}

	if err := wc.Store.AddWhitelist(addr); err != nil {
		return respondError(c, wc.Environment, err)
	}
	wc.Logger.Printf("✅ Whitelisted sender %s", addr)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"address": addr,
	})
}

// RemoveSender drops an address from the whitelist. Removing an unknown
// address succeeds with removed=false.
func (wc *WhitelistController) RemoveSender(c *fiber.Ctx) error {
	addr := models.NormalizeAddress(c.Params("address"))
	if addr == "" {
		return respondError(c, wc.Environment, utils.NewValidationError("address is required"))
	}

	removed, err := wc.Store.RemoveWhitelist(addr)
	if err != nil {
		return respondError(c, wc.Environment, err)
	}
	return c.JSON(fiber.Map{
		"removed": removed,
	})
}
