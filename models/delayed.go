package models

import "time"

// DelayedPayload carries the routing data the delayed side effect needs.
type DelayedPayload struct {
	ThreadID string `json:"thread_id"`
	Sender   string `json:"sender"`
	Subject  string `json:"subject"`
}

// PendingDelayedAction is an item waiting out its grace period before the
// file-away side effect fires. Re-enqueueing the same item id resets the
// timer.
type PendingDelayedAction struct {
	ItemID     string         `json:"item_id"`
	Payload    DelayedPayload `json:"payload"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}
