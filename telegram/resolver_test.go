package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inboxpilot/models"
)

type fakeTaskService struct {
	tasks      map[string]models.Task
	submitted  map[string]map[string]string
	submitErr  error
	lastTaskID string
}

func newFakeTaskService(tasks ...models.Task) *fakeTaskService {
	f := &fakeTaskService{
		tasks:     make(map[string]models.Task),
		submitted: make(map[string]map[string]string),
	}
	for _, t := range tasks {
		f.tasks[t.ID] = t
	}
	return f
}

func (f *fakeTaskService) ListPending() []models.Task {
	out := make([]models.Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, t)
	}
	return out
}

func (f *fakeTaskService) TaskByID(taskID string) (models.Task, bool) {
	t, ok := f.tasks[taskID]
	return t, ok
}

func (f *fakeTaskService) SubmitAnswers(ctx context.Context, taskID string, answers map[string]string) (models.Draft, error) {
	f.lastTaskID = taskID
	if f.submitErr != nil {
		return models.Draft{}, f.submitErr
	}
	f.submitted[taskID] = answers
	delete(f.tasks, taskID)
	return models.Draft{ID: "d1", Recipient: "couple@example.com"}, nil
}

func (f *fakeTaskService) DeleteTask(taskID string) (bool, error) {
	_, ok := f.tasks[taskID]
	delete(f.tasks, taskID)
	return ok, nil
}

type fakeSender struct {
	messages []string
	chats    []int64
}

func (f *fakeSender) SendMessage(ctx context.Context, chatID int64, text string) error {
	f.chats = append(f.chats, chatID)
	f.messages = append(f.messages, text)
	return nil
}

func (f *fakeSender) last() string {
	if len(f.messages) == 0 {
		return ""
	}
	return f.messages[len(f.messages)-1]
}

const operatorChat int64 = 777

func questionTask(id string, questions ...string) models.Task {
	t := models.Task{
		ID: id,
		OriginalItem: models.Item{
			ID:      "<" + id + "@mail>",
			Sender:  "couple@example.com",
			Subject: "June wedding",
		},
		Status:    models.TaskPendingInput,
		CreatedAt: time.Now(),
	}
	for i, q := range questions {
		t.Questions = append(t.Questions, models.Question{ID: "q" + string(rune('1'+i)), Text: q})
	}
	return t
}

func inbound(chatID int64, text string) Update {
	return Update{Message: &Message{Chat: Chat{ID: chatID}, Text: text}}
}

func TestResolver_NotifyTaskBindsChat(t *testing.T) {
	task := questionTask("t1", "Are we available on June 5th?")
	svc := newFakeTaskService(task)
	sender := &fakeSender{}
	r := NewResolver(svc, sender, operatorChat)

	require.NoError(t, r.NotifyTask(task))

	require.Len(t, sender.messages, 1)
	assert.Contains(t, sender.messages[0], "couple@example.com")
	assert.Contains(t, sender.messages[0], "Are we available on June 5th?")
	assert.Equal(t, operatorChat, sender.chats[0])
}

func TestResolver_AnswerFlow(t *testing.T) {
	t.Run("single question takes the whole blob", func(t *testing.T) {
		task := questionTask("t1", "Are we available?")
		svc := newFakeTaskService(task)
		sender := &fakeSender{}
		r := NewResolver(svc, sender, operatorChat)
		require.NoError(t, r.NotifyTask(task))

		require.NoError(t, r.HandleUpdate(context.Background(), inbound(operatorChat, "Yes, June 5th is wide open.\nTell them we'd love to shoot it.")))

		answers := svc.submitted["t1"]
		require.NotNil(t, answers)
		assert.Equal(t, "Yes, June 5th is wide open.\nTell them we'd love to shoot it.", answers["q1"])
		assert.Contains(t, sender.last(), "Draft reply")
	})

	t.Run("multiple questions map positionally", func(t *testing.T) {
		task := questionTask("t2", "Are we available?", "What price?")
		svc := newFakeTaskService(task)
		sender := &fakeSender{}
		r := NewResolver(svc, sender, operatorChat)
		require.NoError(t, r.NotifyTask(task))

		require.NoError(t, r.HandleUpdate(context.Background(), inbound(operatorChat, "Yes\n$4,200 full day")))

		answers := svc.submitted["t2"]
		require.NotNil(t, answers)
		assert.Equal(t, "Yes", answers["q1"])
		assert.Equal(t, "$4,200 full day", answers["q2"])
	})

	t.Run("session clears after the answer", func(t *testing.T) {
		task := questionTask("t3", "Are we available?")
		svc := newFakeTaskService(task)
		sender := &fakeSender{}
		r := NewResolver(svc, sender, operatorChat)
		require.NoError(t, r.NotifyTask(task))

		require.NoError(t, r.HandleUpdate(context.Background(), inbound(operatorChat, "Yes")))
		require.NoError(t, r.HandleUpdate(context.Background(), inbound(operatorChat, "what now?")))

		// Second message hits the help path, not another submission.
		assert.Contains(t, sender.last(), "Commands:")
		assert.Equal(t, "t3", svc.lastTaskID)
	})

	t.Run("session clears even when submission fails", func(t *testing.T) {
		task := questionTask("t4", "Are we available?")
		svc := newFakeTaskService(task)
		svc.submitErr = errors.New("store down")
		sender := &fakeSender{}
		r := NewResolver(svc, sender, operatorChat)
		require.NoError(t, r.NotifyTask(task))

		require.NoError(t, r.HandleUpdate(context.Background(), inbound(operatorChat, "Yes")))
		assert.Contains(t, sender.last(), "Couldn't record")

		require.NoError(t, r.HandleUpdate(context.Background(), inbound(operatorChat, "Yes again")))
		assert.Contains(t, sender.last(), "Commands:", "chat must be idle after a failed submission")
	})

	t.Run("last assignment wins", func(t *testing.T) {
		taskA := questionTask("tA", "Question A?")
		taskB := questionTask("tB", "Question B?")
		svc := newFakeTaskService(taskA, taskB)
		sender := &fakeSender{}
		r := NewResolver(svc, sender, operatorChat)

		require.NoError(t, r.NotifyTask(taskA))
		require.NoError(t, r.NotifyTask(taskB))
		require.NoError(t, r.HandleUpdate(context.Background(), inbound(operatorChat, "answer")))

		assert.Equal(t, "tB", svc.lastTaskID)
		_, stillThere := svc.TaskByID("tA")
		assert.True(t, stillThere, "the superseded task must stay pending")
	})
}

func TestResolver_IdleCommands(t *testing.T) {
	task := questionTask("t1", "Are we available?")
	svc := newFakeTaskService(task)
	sender := &fakeSender{}
	r := NewResolver(svc, sender, operatorChat)

	t.Run("start", func(t *testing.T) {
		require.NoError(t, r.HandleUpdate(context.Background(), inbound(operatorChat, "/start")))
		assert.Contains(t, sender.last(), "/tasks")
	})

	t.Run("tasks lists pending", func(t *testing.T) {
		require.NoError(t, r.HandleUpdate(context.Background(), inbound(operatorChat, "/tasks")))
		assert.Contains(t, sender.last(), "couple@example.com")
	})

	t.Run("cancel with nothing active", func(t *testing.T) {
		require.NoError(t, r.HandleUpdate(context.Background(), inbound(operatorChat, "/cancel")))
		assert.Contains(t, sender.last(), "Nothing to cancel")
	})

	t.Run("cancel drops an active session", func(t *testing.T) {
		require.NoError(t, r.NotifyTask(task))
		require.NoError(t, r.HandleUpdate(context.Background(), inbound(operatorChat, "/cancel")))
		assert.True(t, strings.Contains(sender.last(), "dropped"))
	})

	t.Run("free text gets help", func(t *testing.T) {
		require.NoError(t, r.HandleUpdate(context.Background(), inbound(operatorChat, "hello?")))
		assert.Contains(t, sender.last(), "Commands:")
	})

	t.Run("empty update ignored", func(t *testing.T) {
		before := len(sender.messages)
		require.NoError(t, r.HandleUpdate(context.Background(), Update{}))
		assert.Len(t, sender.messages, before)
	})
}

func TestMapAnswers(t *testing.T) {
	questions := []models.Question{
		{ID: "q1", Text: "First?"},
		{ID: "q2", Text: "Second?"},
	}

	t.Run("extra lines fold into the last answer", func(t *testing.T) {
		answers := mapAnswers(questions, "yes\nline two\nline three")
		assert.Equal(t, "yes", answers["q1"])
		assert.Equal(t, "line two\nline three", answers["q2"])
	})

	t.Run("fewer lines than questions", func(t *testing.T) {
		answers := mapAnswers(questions, "only one")
		assert.Equal(t, "only one", answers["q1"])
		_, ok := answers["q2"]
		assert.False(t, ok)
	})

	t.Run("no questions yields no answers", func(t *testing.T) {
		assert.Empty(t, mapAnswers(nil, "text"))
	})
}
