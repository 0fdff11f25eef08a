package controller

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"

	"inboxpilot/models"
	"inboxpilot/utils"
)

// ItemClassifier is the slice of the classifier the diagnostics API uses.
type ItemClassifier interface {
	Classify(ctx context.Context, item models.Item) models.Classification
}

type DiagnosticsController struct {
	Classifier  ItemClassifier
	Logger      *log.Logger
	Environment string
}

func NewDiagnosticsController(classifier ItemClassifier, logger *log.Logger, environment string) *DiagnosticsController {
	return &DiagnosticsController{
		Classifier:  classifier,
		Logger:      logger,
		Environment: environment,
	}
}

// ClassifySample force-categorizes an ad-hoc payload without touching the
// mailbox. Loose field names are tolerated through the normalizer; a payload
// matching none of the expected shapes is rejected.
func (dc *DiagnosticsController) ClassifySample(c *fiber.Ctx) error {
	var raw map[string]interface{}
	if err := c.BodyParser(&raw); err != nil {
		return respondError(c, dc.Environment, utils.NewValidationError("invalid request body"))
	}

	item, err := models.NormalizeInbound(raw)
	if err != nil {
		return respondError(c, dc.Environment, utils.NewValidationError("%s", err.Error()))
	}

	cls := dc.Classifier.Classify(c.Context(), item)
	return c.JSON(fiber.Map{
		"category":  cls.Category,
		"routing":   cls.Routing,
		"questions": cls.Questions,
		"reasoning": cls.Reasoning,
	})
}
