package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verdictPayload struct {
	Category  string `json:"category"`
	Reasoning string `json:"reasoning"`
}

func TestExtractJSONObject(t *testing.T) {
	t.Run("raw JSON", func(t *testing.T) {
		var v verdictPayload
		err := ExtractJSONObject(`{"category": "Invoices", "reasoning": "mentions a bill"}`, &v)
		require.NoError(t, err)
		assert.Equal(t, "Invoices", v.Category)
	})

	t.Run("markdown fenced JSON", func(t *testing.T) {
		text := "```json\n{\"category\": \"Promotions\", \"reasoning\": \"discount code\"}\n```"
		var v verdictPayload
		require.NoError(t, ExtractJSONObject(text, &v))
		assert.Equal(t, "Promotions", v.Category)
	})

	t.Run("JSON buried in prose", func(t *testing.T) {
		text := `Sure! Here is the classification you asked for:
{"category": "Notifications", "reasoning": "automated alert"}
Let me know if you need anything else.`
		var v verdictPayload
		require.NoError(t, ExtractJSONObject(text, &v))
		assert.Equal(t, "Notifications", v.Category)
	})

	t.Run("braces inside string literals", func(t *testing.T) {
		text := `{"category": "Wedding Enquiry", "reasoning": "body contains {curly} text and an escaped \" quote"}`
		var v verdictPayload
		require.NoError(t, ExtractJSONObject(text, &v))
		assert.Equal(t, "Wedding Enquiry", v.Category)
		assert.Contains(t, v.Reasoning, "{curly}")
	})

	t.Run("nested objects stay balanced", func(t *testing.T) {
		text := `prefix {"category": "Invoices", "reasoning": "nested"} {"category": "Promotions"}`
		var v verdictPayload
		require.NoError(t, ExtractJSONObject(text, &v))
		assert.Equal(t, "Invoices", v.Category, "the first balanced block wins")
	})

	t.Run("empty text", func(t *testing.T) {
		var v verdictPayload
		assert.Error(t, ExtractJSONObject("   ", &v))
	})

	t.Run("no JSON at all", func(t *testing.T) {
		var v verdictPayload
		assert.Error(t, ExtractJSONObject("I could not classify this email.", &v))
	})
}
