package tasks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"inboxpilot/classify"
	"inboxpilot/models"
	"inboxpilot/utils"
)

// FallbackDraftNote is the placeholder body used when reply generation
// fails after answers were collected. The task is still resolved; the
// operator writes the reply by hand from the draft screen.
const FallbackDraftNote = "Automatic reply generation failed for this enquiry. Please compose the reply manually using the collected answers."

// TaskStore is the slice of the record store the manager mutates.
type TaskStore interface {
	TaskForItem(itemID, snippet string) (models.Task, bool)
	TaskByID(id string) (models.Task, bool)
	Tasks() []models.Task
	PutTask(t models.Task) error
	DeleteTask(id string) (bool, error)
}

// Generator produces reply bodies.
type Generator interface {
	Configured() bool
	GenerateReply(ctx context.Context, guidance string, item models.Item, answers map[string]string) (string, error)
}

// ReplySender transmits an approved draft.
type ReplySender interface {
	SendReply(draft models.Draft, finalContent string) (models.SendResult, error)
}

// DraftMirror reflects drafts into the operator's mailbox folders.
// Mirroring is best-effort; a nil mirror disables it.
type DraftMirror interface {
	AppendDraft(draft models.Draft) error
	AppendSent(draft models.Draft, finalContent string) error
}

// Manager owns the task and draft lifecycle for items that need human
// input or produce a draft. Tasks persist through the store; drafts live
// in memory (mirrored to the mailbox drafts folder) until approved.
type Manager struct {
	store     TaskStore
	generator Generator
	sender    ReplySender
	mirror    DraftMirror

	mu     sync.Mutex
	drafts map[string]models.Draft
}

func NewManager(store TaskStore, generator Generator, sender ReplySender, mirror DraftMirror) *Manager {
	return &Manager{
		store:     store,
		generator: generator,
		sender:    sender,
		mirror:    mirror,
		drafts:    make(map[string]models.Draft),
	}
}

// AddTask opens a task for an item that needs operator answers. A retry
// carrying the same item id and body snippet returns the existing task
// unchanged instead of creating a duplicate.
func (m *Manager) AddTask(item models.Item, questions []models.Question, guidanceKey string) (models.Task, error) {
	if existing, ok := m.store.TaskForItem(item.ID, item.Snippet()); ok {
		return existing, nil
	}

	now := time.Now().UTC()
	task := models.Task{
		ID:                    uuid.NewString(),
		OriginalItem:          item,
		Questions:             questions,
		Answers:               make(map[string]string),
		Status:                models.TaskPendingInput,
		DraftGuidanceTemplate: guidanceFor(guidanceKey),
		Version:               1,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := m.store.PutTask(task); err != nil {
		return models.Task{}, err
	}
	return task, nil
}

// ListPending returns stored tasks newest-first.
func (m *Manager) ListPending() []models.Task {
	return m.store.Tasks()
}

// TaskByID looks up a stored task.
func (m *Manager) TaskByID(taskID string) (models.Task, bool) {
	return m.store.TaskByID(taskID)
}

// SubmitAnswers merges answers into the task, generates the reply draft and
// resolves the task. A generator failure still removes the task; the
// returned draft then carries the fallback placeholder so the flow never
// leaves a task stuck behind a downstream error.
func (m *Manager) SubmitAnswers(ctx context.Context, taskID string, answers map[string]string) (models.Draft, error) {
	task, ok := m.store.TaskByID(taskID)
	if !ok {
		return models.Draft{}, utils.NewNotFoundError("task %s not found", taskID)
	}

	if task.Answers == nil {
		task.Answers = make(map[string]string)
	}
	for k, v := range answers {
		task.Answers[k] = v
	}
	task.Status = models.TaskAnswered
	task.Version++
	task.UpdatedAt = time.Now().UTC()
	if err := m.store.PutTask(task); err != nil {
		return models.Draft{}, err
	}

	content, genErr := m.generate(ctx, task)

	if _, err := m.store.DeleteTask(task.ID); err != nil {
		utils.LogError("task_delete_failed", err, map[string]interface{}{"task_id": task.ID})
	}

	draft := m.newDraft(task.OriginalItem, content)
	if genErr != nil {
		utils.LogError("reply_generation_failed", genErr, map[string]interface{}{
			"task_id": task.ID,
			"item_id": task.OriginalItem.ID,
		})
	}
	return draft, nil
}

func (m *Manager) generate(ctx context.Context, task models.Task) (string, error) {
	// Answers are keyed by question id; re-key by question text so the
	// generator prompt reads naturally.
	byText := make(map[string]string, len(task.Answers))
	for _, q := range task.Questions {
		if a, ok := task.Answers[q.ID]; ok {
			byText[q.Text] = a
		}
	}
	for k, v := range task.Answers {
		if _, known := byText[k]; !known && !isQuestionID(task.Questions, k) {
			byText[k] = v
		}
	}

	if m.generator == nil || !m.generator.Configured() {
		return FallbackDraftNote, utils.NewUpstreamError("generation provider not configured", nil)
	}
	content, err := m.generator.GenerateReply(ctx, task.DraftGuidanceTemplate, task.OriginalItem, byText)
	if err != nil {
		return FallbackDraftNote, err
	}
	return content, nil
}

// CreateAutoDraft generates a reply draft without a question round-trip,
// for items the classifier routed as auto-resolvable.
func (m *Manager) CreateAutoDraft(ctx context.Context, item models.Item, guidanceKey string) (models.Draft, error) {
	var content string
	if m.generator != nil && m.generator.Configured() {
		generated, err := m.generator.GenerateReply(ctx, guidanceFor(guidanceKey), item, nil)
		if err != nil {
			utils.LogError("reply_generation_failed", err, map[string]interface{}{"item_id": item.ID})
			content = FallbackDraftNote
		} else {
			content = generated
		}
	} else {
		content = FallbackDraftNote
	}
	return m.newDraft(item, content), nil
}

func (m *Manager) newDraft(item models.Item, content string) models.Draft {
	draft := models.Draft{
		ID:              uuid.NewString(),
		InReplyToItemID: item.ID,
		ThreadID:        item.ThreadID,
		Recipient:       replyAddress(item),
		Subject:         item.Subject,
		Content:         content,
		Status:          models.DraftPendingReview,
		CreatedAt:       time.Now().UTC(),
	}

	m.mu.Lock()
	m.drafts[draft.ID] = draft
	m.mu.Unlock()

	if m.mirror != nil {
		if err := m.mirror.AppendDraft(draft); err != nil {
			utils.LogError("draft_mirror_failed", err, map[string]interface{}{"draft_id": draft.ID})
		}
	}
	return draft
}

// ListDrafts returns pending drafts newest-first.
func (m *Manager) ListDrafts() []models.Draft {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Draft, 0, len(m.drafts))
	for _, d := range m.drafts {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// DeleteTask cancels a task. Idempotent: deleting an unknown id reports
// false without an error.
func (m *Manager) DeleteTask(taskID string) (bool, error) {
	return m.store.DeleteTask(taskID)
}

// ApproveDraft transmits finalContent, the human-edited text rather than
// the stored suggestion, and removes the draft. On send failure the draft
// is retained so approval can be retried.
func (m *Manager) ApproveDraft(draftID, finalContent string) (models.SendResult, error) {
	m.mu.Lock()
	draft, ok := m.drafts[draftID]
	m.mu.Unlock()
	if !ok {
		return models.SendResult{}, utils.NewNotFoundError("draft %s not found", draftID)
	}

	result, err := m.sender.SendReply(draft, finalContent)
	if err != nil {
		return models.SendResult{}, err
	}

	m.mu.Lock()
	delete(m.drafts, draftID)
	m.mu.Unlock()

	if m.mirror != nil {
		if err := m.mirror.AppendSent(draft, finalContent); err != nil {
			utils.LogError("sent_mirror_failed", err, map[string]interface{}{"draft_id": draftID})
		}
	}
	return result, nil
}

// DraftByID exposes a single draft for the API layer.
func (m *Manager) DraftByID(draftID string) (models.Draft, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[draftID]
	return d, ok
}

func guidanceFor(key string) string {
	if tpl, ok := classify.GuidanceTemplates[key]; ok {
		return tpl
	}
	return classify.GuidanceTemplates["wedding_enquiry"]
}

func replyAddress(item models.Item) string {
	if rt := item.Header("Reply-To"); rt != "" {
		return models.NormalizeAddress(rt)
	}
	return models.NormalizeAddress(item.Sender)
}

func isQuestionID(questions []models.Question, key string) bool {
	for _, q := range questions {
		if q.ID == key {
			return true
		}
	}
	return false
}
