package utils

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSONObject pulls the first well-formed JSON object out of free
// text. Generation providers wrap JSON in markdown fences or prose more
// often than not, so the extraction strategy is:
//
//  1. try the raw text as-is;
//  2. strip ```json / ``` fences and retry;
//  3. scan for the first balanced brace block and parse that.
//
// The destination must be a pointer, as with json.Unmarshal.
func ExtractJSONObject(text string, out interface{}) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fmt.Errorf("empty response text")
	}

	if err := json.Unmarshal([]byte(trimmed), out); err == nil {
		return nil
	}

	if fenced := stripCodeFence(trimmed); fenced != trimmed {
		if err := json.Unmarshal([]byte(fenced), out); err == nil {
			return nil
		}
	}

	block, ok := firstBalancedBraceBlock(trimmed)
	if !ok {
		return fmt.Errorf("no JSON object found in response")
	}
	if err := json.Unmarshal([]byte(block), out); err != nil {
		return fmt.Errorf("parse extracted JSON block: %w", err)
	}
	return nil
}

func stripCodeFence(text string) string {
	start := strings.Index(text, "```")
	if start == -1 {
		return text
	}
	rest := text[start+3:]
	// Skip a language tag like "json" on the fence line.
	if nl := strings.IndexByte(rest, '\n'); nl != -1 {
		firstLine := strings.TrimSpace(rest[:nl])
		if len(firstLine) <= 10 && !strings.ContainsAny(firstLine, "{}") {
			rest = rest[nl+1:]
		}
	}
	if end := strings.Index(rest, "```"); end != -1 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// firstBalancedBraceBlock returns the first {...} substring with balanced
// braces, honoring JSON string literals and escapes.
func firstBalancedBraceBlock(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
