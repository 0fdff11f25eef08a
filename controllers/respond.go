package controller

import (
	"github.com/gofiber/fiber/v2"

	"inboxpilot/utils"
)

// respondError maps the error taxonomy onto HTTP statuses and renders the
// shared {error, code} payload. Raw error detail is only exposed outside
// production.
func respondError(c *fiber.Ctx, environment string, err error) error {
	kind := utils.KindOf(err)

	status := fiber.StatusInternalServerError
	message := "Internal server error"
	switch kind {
	case utils.ErrKindValidation:
		status = fiber.StatusBadRequest
		message = "Invalid request"
	case utils.ErrKindNotFound:
		status = fiber.StatusNotFound
		message = "Not found"
	case utils.ErrKindUpstream:
		status = fiber.StatusServiceUnavailable
		message = "Upstream service unavailable"
	case utils.ErrKindConflict:
		status = fiber.StatusConflict
		message = "Conflict"
	case utils.ErrKindPersistence:
		status = fiber.StatusInternalServerError
		message = "Storage failure"
	}

	if environment != "production" {
		message = err.Error()
	}
	return c.Status(status).JSON(fiber.Map{
		"error": message,
		"code":  string(kind),
	})
}
