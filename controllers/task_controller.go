package controller

import (
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"inboxpilot/tasks"
	"inboxpilot/utils"
)

type TaskController struct {
	Manager     *tasks.Manager
	Logger      *log.Logger
	Environment string
	validate    *validator.Validate
}

func NewTaskController(manager *tasks.Manager, logger *log.Logger, environment string) *TaskController {
	return &TaskController{
		Manager:     manager,
		Logger:      logger,
		Environment: environment,
		validate:    validator.New(),
	}
}

// GetTasks lists pending question tasks, newest first.
func (tc *TaskController) GetTasks(c *fiber.Ctx) error {
	list := tc.Manager.ListPending()
	return c.JSON(fiber.Map{
		"tasks": list,
		"count": len(list),
	})
}

// GetTask returns a single task by id.
func (tc *TaskController) GetTask(c *fiber.Ctx) error {
	task, ok := tc.Manager.TaskByID(c.Params("id"))
	if !ok {
		return respondError(c, tc.Environment, utils.NewNotFoundError("task %s not found", c.Params("id")))
	}
	return c.JSON(task)
}

// SubmitAnswers records the operator's answers and returns the generated
// draft. The task is resolved even when generation fails; the draft then
// carries placeholder content.
func (tc *TaskController) SubmitAnswers(c *fiber.Ctx) error {
	var input struct {
		Answers map[string]string `json:"answers" validate:"required,min=1"`
	}
	if err := c.BodyParser(&input); err != nil {
		return respondError(c, tc.Environment, utils.NewValidationError("invalid request body"))
	}
	if err := tc.validate.Struct(input); err != nil {
		return respondError(c, tc.Environment, utils.NewValidationError("answers are required"))
	}

	draft, err := tc.Manager.SubmitAnswers(c.Context(), c.Params("id"), input.Answers)
	if err != nil {
		return respondError(c, tc.Environment, err)
	}

	tc.Logger.Printf("✅ Task %s answered, draft %s created", c.Params("id"), draft.ID)
	return c.JSON(fiber.Map{
		"draft": draft,
	})
}

// DeleteTask cancels a task. Deleting an unknown id succeeds with
// deleted=false so retries are harmless.
func (tc *TaskController) DeleteTask(c *fiber.Ctx) error {
	deleted, err := tc.Manager.DeleteTask(c.Params("id"))
	if err != nil {
		return respondError(c, tc.Environment, err)
	}
	return c.JSON(fiber.Map{
		"deleted": deleted,
	})
}

// GetDrafts lists drafts awaiting review, newest first.
func (tc *TaskController) GetDrafts(c *fiber.Ctx) error {
	list := tc.Manager.ListDrafts()
	return c.JSON(fiber.Map{
		"drafts": list,
		"count":  len(list),
	})
}

// ApproveDraft sends the operator-approved text. The stored suggestion is
// never transmitted; the body's content field is what goes out.
func (tc *TaskController) ApproveDraft(c *fiber.Ctx) error {
	var input struct {
		Content string `json:"content" validate:"required"`
	}
	if err := c.BodyParser(&input); err != nil {
		return respondError(c, tc.Environment, utils.NewValidationError("invalid request body"))
	}
	if err := tc.validate.Struct(input); err != nil {
		return respondError(c, tc.Environment, utils.NewValidationError("content is required"))
	}

	result, err := tc.Manager.ApproveDraft(c.Params("id"), input.Content)
	if err != nil {
		return respondError(c, tc.Environment, err)
	}

	tc.Logger.Printf("📤 Draft %s approved and sent to %s", c.Params("id"), result.Recipient)
	return c.JSON(result)
}
