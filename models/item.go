package models

import (
	"fmt"
	"strings"
	"time"
)

// Item is a single inbound message fetched from the mailbox provider.
// Identity is the provider-assigned id; an Item is immutable once fetched
// and is never persisted standalone.
type Item struct {
	ID         string            `json:"id"`
	ThreadID   string            `json:"thread_id"`
	Subject    string            `json:"subject"`
	Sender     string            `json:"sender"`
	Recipient  string            `json:"recipient"`
	ReceivedAt time.Time         `json:"received_at"`
	Body       string            `json:"body"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// Snippet returns the leading portion of the body used for content-equality
// deduplication of retried deliveries.
func (i Item) Snippet() string {
	body := strings.TrimSpace(i.Body)
	if len(body) > 200 {
		return body[:200]
	}
	return body
}

// Header performs a case-insensitive header lookup.
func (i Item) Header(name string) string {
	for k, v := range i.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Field-priority order for NormalizeInbound. First present, non-empty key
// wins; inputs matching none of the sender aliases are rejected.
var (
	senderAliases  = []string{"sender", "from"}
	bodyAliases    = []string{"body", "content", "message"}
	subjectAliases = []string{"subject", "title"}
)

// NormalizeInbound converts a loosely shaped JSON object (diagnostic input,
// webhook payload) into a canonical Item. It replaces duck-typed field
// probing with a fixed, documented priority order: sender > from,
// body > content > message, subject > title.
func NormalizeInbound(raw map[string]interface{}) (Item, error) {
	if raw == nil {
		return Item{}, fmt.Errorf("empty payload")
	}
	pick := func(aliases []string) string {
		for _, key := range aliases {
			if v, ok := raw[key]; ok {
				if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
					return strings.TrimSpace(s)
				}
			}
		}
		return ""
	}

	item := Item{
		Sender:     pick(senderAliases),
		Body:       pick(bodyAliases),
		Subject:    pick(subjectAliases),
		ReceivedAt: time.Now().UTC(),
	}
	if id, ok := raw["id"].(string); ok {
		item.ID = strings.TrimSpace(id)
	}
	if tid, ok := raw["thread_id"].(string); ok {
		item.ThreadID = strings.TrimSpace(tid)
	}
	if hdrs, ok := raw["headers"].(map[string]interface{}); ok {
		item.Headers = make(map[string]string, len(hdrs))
		for k, v := range hdrs {
			if s, ok := v.(string); ok {
				item.Headers[k] = s
			}
		}
	}

	if item.Sender == "" {
		return Item{}, fmt.Errorf("payload matches no expected shape: missing sender/from")
	}
	if item.Subject == "" && item.Body == "" {
		return Item{}, fmt.Errorf("payload matches no expected shape: missing subject and body")
	}
	return item, nil
}

// NormalizeAddress lowers and trims a sender address, stripping any
// display-name wrapper ("Name <addr>" form).
func NormalizeAddress(raw string) string {
	addr := strings.TrimSpace(raw)
	if start := strings.LastIndex(addr, "<"); start != -1 {
		if end := strings.LastIndex(addr, ">"); end > start {
			addr = addr[start+1 : end]
		}
	}
	return strings.ToLower(strings.TrimSpace(addr))
}
