package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"inboxpilot/models"
	"inboxpilot/utils"
)

// TaskService is the slice of the task lifecycle the resolver drives.
type TaskService interface {
	ListPending() []models.Task
	TaskByID(taskID string) (models.Task, bool)
	SubmitAnswers(ctx context.Context, taskID string, answers map[string]string) (models.Draft, error)
	DeleteTask(taskID string) (bool, error)
}

// Sender is the outbound half of the chat transport.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Resolver runs the per-chat question/answer session. Each chat is either
// idle or awaiting the answer blob for exactly one task; assigning a new
// task to a chat replaces the old association (last write wins).
type Resolver struct {
	tasks          TaskService
	sender         Sender
	operatorChatID int64

	mu       sync.Mutex
	sessions map[int64]string
}

func NewResolver(tasks TaskService, sender Sender, operatorChatID int64) *Resolver {
	return &Resolver{
		tasks:          tasks,
		sender:         sender,
		operatorChatID: operatorChatID,
		sessions:       make(map[int64]string),
	}
}

// NotifyTask announces a new question task to the operator chat and binds
// the chat to it, so the next inbound message is taken as the answers.
func (r *Resolver) NotifyTask(task models.Task) error {
	if r.operatorChatID == 0 {
		return nil
	}
	r.AssignTask(r.operatorChatID, task.ID)
	return r.sender.SendMessage(context.Background(), r.operatorChatID, formatTaskPrompt(task))
}

// AssignTask binds a chat to a task, replacing any existing binding.
func (r *Resolver) AssignTask(chatID int64, taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[chatID] = taskID
}

// HandleUpdate processes one inbound update, from either transport.
func (r *Resolver) HandleUpdate(ctx context.Context, update Update) error {
	if update.Message == nil || strings.TrimSpace(update.Message.Text) == "" {
		return nil
	}
	chatID := update.Message.Chat.ID
	text := strings.TrimSpace(update.Message.Text)

	r.mu.Lock()
	taskID, awaiting := r.sessions[chatID]
	r.mu.Unlock()

	if awaiting && !strings.HasPrefix(text, "/") {
		return r.handleAnswer(ctx, chatID, taskID, text)
	}
	return r.handleCommand(ctx, chatID, text, awaiting)
}

// handleAnswer maps the whole message positionally against the task's
// questions and submits. The chat goes back to idle no matter how the
// submission or downstream generation turns out.
func (r *Resolver) handleAnswer(ctx context.Context, chatID int64, taskID, text string) error {
	r.clearSession(chatID)

	task, ok := r.tasks.TaskByID(taskID)
	if !ok {
		return r.sender.SendMessage(ctx, chatID, "That task is gone (it may have been answered or deleted elsewhere).")
	}

	answers := mapAnswers(task.Questions, text)
	draft, err := r.tasks.SubmitAnswers(ctx, taskID, answers)
	if err != nil {
		utils.LogError("telegram_submit_failed", err, map[string]interface{}{
			"task_id": taskID,
			"chat_id": chatID,
		})
		return r.sender.SendMessage(ctx, chatID, "Couldn't record those answers: "+err.Error())
	}

	reply := fmt.Sprintf("Thanks! Draft reply to %s is ready for review (draft %s).", draft.Recipient, draft.ID)
	return r.sender.SendMessage(ctx, chatID, reply)
}

func (r *Resolver) handleCommand(ctx context.Context, chatID int64, text string, awaiting bool) error {
	switch {
	case strings.HasPrefix(text, "/start"):
		return r.sender.SendMessage(ctx, chatID, "Hi! I'll ping you here when an enquiry needs your input. Use /tasks to see what's pending.")

	case strings.HasPrefix(text, "/tasks"):
		return r.sender.SendMessage(ctx, chatID, formatTaskList(r.tasks.ListPending()))

	case strings.HasPrefix(text, "/cancel"):
		if awaiting {
			r.clearSession(chatID)
			return r.sender.SendMessage(ctx, chatID, "Okay, dropped the current question session.")
		}
		return r.sender.SendMessage(ctx, chatID, "Nothing to cancel.")

	default:
		return r.sender.SendMessage(ctx, chatID, "Commands: /tasks to list pending questions, /cancel to drop the current session. When I ask about an enquiry, just reply with the answers, one per line.")
	}
}

func (r *Resolver) clearSession(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, chatID)
}

// mapAnswers splits the blob on newlines and pairs lines with questions in
// order. Extra trailing lines fold into the last answer; with a single
// question the whole blob is the answer.
func mapAnswers(questions []models.Question, text string) map[string]string {
	answers := make(map[string]string, len(questions))
	if len(questions) == 0 {
		return answers
	}
	if len(questions) == 1 {
		answers[questions[0].ID] = text
		return answers
	}

	lines := make([]string, 0)
	for _, l := range strings.Split(text, "\n") {
		if s := strings.TrimSpace(l); s != "" {
			lines = append(lines, s)
		}
	}
	for i, q := range questions {
		if i >= len(lines) {
			break
		}
		if i == len(questions)-1 && len(lines) > len(questions) {
			answers[q.ID] = strings.Join(lines[i:], "\n")
			break
		}
		answers[q.ID] = lines[i]
	}
	return answers
}

func formatTaskPrompt(task models.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New enquiry from %s needs your input.\nSubject: %s\n\n", task.OriginalItem.Sender, task.OriginalItem.Subject)
	for i, q := range task.Questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q.Text)
	}
	b.WriteString("\nReply with the answers, one per line.")
	return b.String()
}

func formatTaskList(tasks []models.Task) string {
	if len(tasks) == 0 {
		return "No pending tasks."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d pending task(s):\n", len(tasks))
	for _, t := range tasks {
		fmt.Fprintf(&b, "• %s: %s (%d question(s))\n", t.OriginalItem.Sender, t.OriginalItem.Subject, len(t.Questions))
	}
	return b.String()
}
