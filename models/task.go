package models

import "time"

type TaskStatus string

const (
	TaskPendingInput TaskStatus = "pending_input"
	TaskAnswered     TaskStatus = "answered"
)

// Question is a single piece of information the operator must supply before
// a reply can be drafted.
type Question struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Task is a unit of work representing an item awaiting human-provided
// answers. One Task exists per (item id, content) pair.
type Task struct {
	ID                    string            `json:"id"`
	OriginalItem          Item              `json:"original_item"`
	Questions             []Question        `json:"questions"`
	Answers               map[string]string `json:"answers"`
	Status                TaskStatus        `json:"status"`
	DraftGuidanceTemplate string            `json:"draft_guidance_template"`
	Version               int               `json:"version"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

type DraftStatus string

const DraftPendingReview DraftStatus = "pending_review"

// Draft is a generated (or human-finalized) reply body awaiting explicit
// approval before transmission. The stored content is a suggestion, never
// authoritative at send time.
type Draft struct {
	ID              string      `json:"id"`
	InReplyToItemID string      `json:"in_reply_to_item_id"`
	ThreadID        string      `json:"thread_id"`
	Recipient       string      `json:"recipient"`
	Subject         string      `json:"subject"`
	Content         string      `json:"content"`
	Status          DraftStatus `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
}

// SendResult reports the outcome of transmitting an approved draft.
type SendResult struct {
	Sent      bool      `json:"sent"`
	Recipient string    `json:"recipient"`
	SentAt    time.Time `json:"sent_at"`
}
