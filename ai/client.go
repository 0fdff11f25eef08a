package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"inboxpilot/config"
	"inboxpilot/models"
	"inboxpilot/utils"
)

// Verdict is the structured classification answer expected from the model.
type Verdict struct {
	Category  string `json:"category"`
	Reasoning string `json:"reasoning"`
}

// Client wraps the text-generation provider. Classification and reply
// generation both go through it; callers are expected to have their own
// fallback when it is unconfigured or unreachable.
type Client struct {
	api           openai.Client
	model         string
	fallbackModel string
	configured    bool
}

func NewClient(cfg config.OpenAIConfig) *Client {
	c := &Client{
		model:         cfg.Model,
		fallbackModel: cfg.FallbackModel,
		configured:    cfg.APIKey != "",
	}
	if c.configured {
		c.api = openai.NewClient(option.WithAPIKey(cfg.APIKey))
	}
	return c
}

// Configured reports whether an API key is present. When false, callers
// must use their deterministic fallback instead of calling the provider.
func (c *Client) Configured() bool {
	return c.configured
}

const classifySystemPrompt = `You are an email triage assistant for a wedding photography studio.
Classify the email into exactly one of these categories:
"Wedding Enquiry", "Invoices", "Promotions", "Notifications".
Respond with a JSON object: {"category": "<label>", "reasoning": "<one sentence>"}.`

// ClassifyItem asks the model for a category verdict. The response may be
// raw JSON or markdown-wrapped JSON; both are tolerated.
func (c *Client) ClassifyItem(ctx context.Context, item models.Item) (Verdict, error) {
	if !c.configured {
		return Verdict{}, utils.NewUpstreamError("generation provider not configured", nil)
	}
	user := fmt.Sprintf("From: %s\nSubject: %s\n\n%s", item.Sender, item.Subject, clip(item.Body, 4000))
	text, err := c.complete(ctx, c.model, classifySystemPrompt, user)
	if err != nil {
		return Verdict{}, err
	}
	var verdict Verdict
	if err := utils.ExtractJSONObject(text, &verdict); err != nil {
		return Verdict{}, utils.NewUpstreamError("unparseable classification response", err)
	}
	return verdict, nil
}

// GenerateReply drafts a reply body for the item using the category's
// guidance and any operator-collected answers. On a model-unavailability
// error it retries once with the configured fallback model.
func (c *Client) GenerateReply(ctx context.Context, guidance string, item models.Item, answers map[string]string) (string, error) {
	if !c.configured {
		return "", utils.NewUpstreamError("generation provider not configured", nil)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Original email from %s:\nSubject: %s\n\n%s\n", item.Sender, item.Subject, clip(item.Body, 4000))
	if len(answers) > 0 {
		b.WriteString("\nDetails provided by the studio:\n")
		for q, a := range answers {
			fmt.Fprintf(&b, "- %s: %s\n", q, a)
		}
	}
	b.WriteString("\nWrite the reply body only, no subject line.")

	text, err := c.complete(ctx, c.model, guidance, b.String())
	if err != nil && isModelUnavailable(err) && c.fallbackModel != "" && c.fallbackModel != c.model {
		utils.LogEvent("generation_fallback_model", map[string]interface{}{
			"primary":  c.model,
			"fallback": c.fallbackModel,
		})
		text, err = c.complete(ctx, c.fallbackModel, guidance, b.String())
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (c *Client) complete(ctx context.Context, model, system, user string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	}
	completion, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", utils.NewUpstreamError("generation provider request failed", err)
	}
	if len(completion.Choices) == 0 {
		return "", utils.NewUpstreamError("generation provider returned no choices", nil)
	}
	return completion.Choices[0].Message.Content, nil
}

// isModelUnavailable detects the provider's model-not-found/unavailable
// class of failures, the documented trigger for the fallback model.
func isModelUnavailable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 404 || apiErr.StatusCode == 503 {
			return true
		}
		if strings.Contains(apiErr.Code, "model_not_found") {
			return true
		}
	}
	return err != nil && strings.Contains(err.Error(), "model_not_found")
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
