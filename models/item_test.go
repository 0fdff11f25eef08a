package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeInbound(t *testing.T) {
	t.Run("canonical fields", func(t *testing.T) {
		item, err := NormalizeInbound(map[string]interface{}{
			"sender":  "couple@example.com",
			"subject": "June wedding",
			"body":    "Are you free?",
		})
		require.NoError(t, err)
		assert.Equal(t, "couple@example.com", item.Sender)
		assert.Equal(t, "June wedding", item.Subject)
		assert.Equal(t, "Are you free?", item.Body)
	})

	t.Run("alias priority is fixed", func(t *testing.T) {
		item, err := NormalizeInbound(map[string]interface{}{
			"sender":  "primary@example.com",
			"from":    "secondary@example.com",
			"body":    "canonical body",
			"content": "alias body",
			"title":   "alias subject",
		})
		require.NoError(t, err)
		assert.Equal(t, "primary@example.com", item.Sender, "sender outranks from")
		assert.Equal(t, "canonical body", item.Body, "body outranks content")
		assert.Equal(t, "alias subject", item.Subject, "title accepted when subject absent")
	})

	t.Run("fallback aliases accepted", func(t *testing.T) {
		item, err := NormalizeInbound(map[string]interface{}{
			"from":    "someone@example.com",
			"message": "hello there",
		})
		require.NoError(t, err)
		assert.Equal(t, "someone@example.com", item.Sender)
		assert.Equal(t, "hello there", item.Body)
	})

	t.Run("missing sender rejected", func(t *testing.T) {
		_, err := NormalizeInbound(map[string]interface{}{
			"subject": "no sender here",
			"body":    "text",
		})
		assert.Error(t, err)
	})

	t.Run("missing subject and body rejected", func(t *testing.T) {
		_, err := NormalizeInbound(map[string]interface{}{
			"sender": "someone@example.com",
		})
		assert.Error(t, err)
	})

	t.Run("non-string values ignored", func(t *testing.T) {
		item, err := NormalizeInbound(map[string]interface{}{
			"sender": "real@example.com",
			"from":   42,
			"body":   "text",
		})
		require.NoError(t, err)
		assert.Equal(t, "real@example.com", item.Sender)
	})

	t.Run("nil payload rejected", func(t *testing.T) {
		_, err := NormalizeInbound(nil)
		assert.Error(t, err)
	})
}

func TestNormalizeAddress(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"couple@example.com", "couple@example.com"},
		{"COUPLE@Example.COM", "couple@example.com"},
		{"Jane Doe <jane@example.com>", "jane@example.com"},
		{"  spaced@example.com  ", "spaced@example.com"},
		{`"Doe, Jane" <Jane@Example.com>`, "jane@example.com"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeAddress(tc.in), "input %q", tc.in)
	}
}

func TestItemHelpers(t *testing.T) {
	t.Run("snippet caps at 200 chars", func(t *testing.T) {
		long := make([]byte, 500)
		for i := range long {
			long[i] = 'a'
		}
		item := Item{Body: string(long)}
		assert.Len(t, item.Snippet(), 200)
	})

	t.Run("header lookup is case-insensitive", func(t *testing.T) {
		item := Item{Headers: map[string]string{"Reply-To": "real@example.com"}}
		assert.Equal(t, "real@example.com", item.Header("reply-to"))
		assert.Empty(t, item.Header("X-Missing"))
	})
}
