package classify

import (
	"fmt"
	"strings"

	"inboxpilot/models"
)

// Trigger phrases that force the needs-input routing even without an
// explicit question in the body. Each maps to the question the operator
// has to answer before a reply can be drafted.
var triggerQuestions = []struct {
	phrases  []string
	question string
}{
	{
		phrases:  []string{"price", "pricing", "cost", "how much", "rates", "package"},
		question: "What pricing or package details should we quote?",
	},
	{
		phrases:  []string{"available", "availability", "free on", "open on"},
		question: "Are we available on the requested date?",
	},
	{
		phrases:  []string{"location", "venue", "travel", "where are you based"},
		question: "Do we cover the requested location, and is there a travel fee?",
	},
	{
		phrases:  []string{"custom", "customise", "customize", "tailor", "add-on", "bespoke"},
		question: "Can we accommodate the requested customization?",
	},
}

// RoutingQuestions decides auto vs needs-input for an enquiry. It extracts
// embedded questions from the body and tests the domain trigger phrases;
// either forces needs-input. An empty result means auto.
func RoutingQuestions(item models.Item) []models.Question {
	var out []models.Question
	seen := make(map[string]struct{})
	add := func(text string) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		key := strings.ToLower(text)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, models.Question{
			ID:   fmt.Sprintf("q%d", len(out)+1),
			Text: text,
		})
	}

	for _, q := range ExtractQuestions(item.Body) {
		add(q)
	}

	text := strings.ToLower(item.Subject + " " + item.Body)
	for _, trigger := range triggerQuestions {
		for _, phrase := range trigger.phrases {
			if strings.Contains(text, phrase) {
				add(trigger.question)
				break
			}
		}
	}
	return out
}

// ExtractQuestions pulls the question sentences out of free text.
func ExtractQuestions(body string) []string {
	var questions []string
	start := 0
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '?':
			sentence := strings.TrimSpace(body[start : i+1])
			if len(sentence) > 3 {
				questions = append(questions, sentence)
			}
			start = i + 1
		case '.', '!', '\n':
			start = i + 1
		}
	}
	return questions
}
