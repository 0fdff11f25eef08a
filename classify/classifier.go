package classify

import (
	"context"
	"strings"

	"inboxpilot/ai"
	"inboxpilot/models"
	"inboxpilot/utils"
)

// WhitelistChecker is the slice of the record store the classifier needs.
type WhitelistChecker interface {
	IsWhitelisted(sender string) bool
}

// Generator is the slice of the AI client the classifier needs.
type Generator interface {
	Configured() bool
	ClassifyItem(ctx context.Context, item models.Item) (ai.Verdict, error)
}

// GuidanceTemplates maps a classification's guidance key to the system
// guidance handed to the reply generator.
var GuidanceTemplates = map[string]string{
	"wedding_enquiry": "You are replying on behalf of a wedding photography studio. Be warm and professional, answer the couple's questions using the details provided, and invite them to book a call.",
	"invoices":        "You are replying about an invoice or payment matter. Be concise and factual, confirm receipt, and state the next step.",
	"whitelisted":     "You are replying to a trusted sender. Be brief, friendly and direct.",
}

// Classifier turns a raw item into a category and a routing decision. The
// special-case automated-sender rule runs first, then the whitelist
// short-circuit, then the external decision procedure with a deterministic
// keyword fallback.
type Classifier struct {
	whitelist        WhitelistChecker
	generator        Generator
	automatedSenders map[string]struct{}
}

func NewClassifier(whitelist WhitelistChecker, generator Generator, automatedSenders []string) *Classifier {
	set := make(map[string]struct{}, len(automatedSenders))
	for _, s := range automatedSenders {
		set[models.NormalizeAddress(s)] = struct{}{}
	}
	return &Classifier{
		whitelist:        whitelist,
		generator:        generator,
		automatedSenders: set,
	}
}

func (c *Classifier) Classify(ctx context.Context, item models.Item) models.Classification {
	sender := models.NormalizeAddress(item.Sender)

	// Automated-system rule runs before everything, including the
	// whitelist: these senders are relays, and the reply-to header decides
	// whether a real person is behind the message.
	if _, ok := c.automatedSenders[sender]; ok {
		if item.Header("Reply-To") != "" {
			return c.enquiryClassification(item, "automated sender with reply-to header")
		}
		return models.Classification{
			Category:  models.CategoryNotification,
			Routing:   models.RoutingAuto,
			Reasoning: "automated sender without reply-to header",
		}
	}

	if c.whitelist.IsWhitelisted(sender) {
		return models.Classification{
			Category:    models.CategoryWhitelisted,
			Routing:     models.RoutingAuto,
			GuidanceKey: "whitelisted",
			Reasoning:   "sender is whitelisted",
		}
	}

	category, reasoning := c.generalCategory(ctx, item)
	if category == models.CategoryEnquiry {
		cls := c.enquiryClassification(item, reasoning)
		return cls
	}
	return models.Classification{
		Category:    category,
		Routing:     models.RoutingAuto,
		GuidanceKey: guidanceKeyFor(category),
		Reasoning:   reasoning,
	}
}

// generalCategory runs the external decision procedure, coercing any label
// outside the closed set to the safe default, and falls back to the keyword
// heuristic when the provider is unconfigured or unreachable.
func (c *Classifier) generalCategory(ctx context.Context, item models.Item) (models.Category, string) {
	if c.generator != nil && c.generator.Configured() {
		verdict, err := c.generator.ClassifyItem(ctx, item)
		if err == nil {
			label := strings.TrimSpace(verdict.Category)
			if models.ValidCategory(label) {
				return models.Category(label), verdict.Reasoning
			}
			utils.LogEvent("classification_label_coerced", map[string]interface{}{
				"item_id": item.ID,
				"label":   label,
			})
			return models.CategoryEnquiry, "unrecognized label coerced to default"
		}
		utils.LogError("classification_provider_failed", err, map[string]interface{}{
			"item_id": item.ID,
		})
	}
	return keywordCategory(item)
}

// keywordCategory is the deterministic fallback. Precedence is fixed:
// invoice match beats promotional match beats notification match, with the
// enquiry default last.
func keywordCategory(item models.Item) (models.Category, string) {
	text := strings.ToLower(item.Subject + " " + item.Body + " " + item.Sender)

	invoiceKeywords := []string{"invoice", "payment due", "amount due", "receipt", "billing", "remittance"}
	promoKeywords := []string{"% off", "discount", "sale ends", "limited time", "unsubscribe", "special offer", "promo"}
	notifyKeywords := []string{"no-reply", "noreply", "do not reply", "notification", "password reset", "verify your", "your account", "security alert"}

	for _, kw := range invoiceKeywords {
		if strings.Contains(text, kw) {
			return models.CategoryInvoice, "keyword fallback: " + kw
		}
	}
	for _, kw := range promoKeywords {
		if strings.Contains(text, kw) {
			return models.CategoryPromotion, "keyword fallback: " + kw
		}
	}
	for _, kw := range notifyKeywords {
		if strings.Contains(text, kw) {
			return models.CategoryNotification, "keyword fallback: " + kw
		}
	}
	return models.CategoryEnquiry, "keyword fallback: default"
}

func (c *Classifier) enquiryClassification(item models.Item, reasoning string) models.Classification {
	questions := RoutingQuestions(item)
	routing := models.RoutingAuto
	if len(questions) > 0 {
		routing = models.RoutingNeedsInput
	}
	return models.Classification{
		Category:    models.CategoryEnquiry,
		Routing:     routing,
		Questions:   questions,
		GuidanceKey: "wedding_enquiry",
		Reasoning:   reasoning,
	}
}

func guidanceKeyFor(category models.Category) string {
	switch category {
	case models.CategoryInvoice:
		return "invoices"
	case models.CategoryWhitelisted:
		return "whitelisted"
	default:
		return "wedding_enquiry"
	}
}
