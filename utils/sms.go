package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SMSNotifier posts short operator alerts to an external SMS gateway. The
// provider is an out-of-scope collaborator; this is the whole boundary.
type SMSNotifier struct {
	webhookURL string
	recipient  string
	client     *http.Client
}

func NewSMSNotifier(webhookURL, recipient string) *SMSNotifier {
	return &SMSNotifier{
		webhookURL: webhookURL,
		recipient:  recipient,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Configured reports whether a gateway URL is present.
func (n *SMSNotifier) Configured() bool {
	return n.webhookURL != "" && n.recipient != ""
}

// Notify sends one message. Failures surface as upstream errors; callers
// log and move on rather than retrying.
func (n *SMSNotifier) Notify(text string) error {
	if !n.Configured() {
		return NewUpstreamError("SMS gateway not configured", nil)
	}
	payload, err := json.Marshal(map[string]string{
		"to":   n.recipient,
		"body": text,
	})
	if err != nil {
		return err
	}
	resp, err := n.client.Post(n.webhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return NewUpstreamError("SMS gateway unreachable", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return NewUpstreamError(fmt.Sprintf("SMS gateway returned %d", resp.StatusCode), nil)
	}
	return nil
}
