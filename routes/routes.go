package routes

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"inboxpilot/ai"
	"inboxpilot/classify"
	"inboxpilot/config"
	controller "inboxpilot/controllers"
	"inboxpilot/mailbox"
	"inboxpilot/store"
	"inboxpilot/tasks"
	"inboxpilot/telegram"
)

// Deps carries the wired collaborators the HTTP surface exposes.
type Deps struct {
	Config     *config.Config
	Store      *store.Store
	Mailbox    *mailbox.Client
	AI         *ai.Client
	Classifier *classify.Classifier
	Tasks      *tasks.Manager
	Resolver   *telegram.Resolver
}

func SetupRoutes(app *fiber.App, deps Deps) {
	routeLogger := log.New(os.Stdout, "ROUTES: ", log.Ldate|log.Ltime|log.Lshortfile)
	env := deps.Config.Environment

	statusController := controller.NewStatusController(deps.Store, deps.Mailbox, deps.AI, deps.Config.MailboxHealthTimeout, log.New(os.Stdout, "STATUS: ", log.LstdFlags))
	taskController := controller.NewTaskController(deps.Tasks, log.New(os.Stdout, "TASK: ", log.LstdFlags), env)
	whitelistController := controller.NewWhitelistController(deps.Store, log.New(os.Stdout, "WHITELIST: ", log.LstdFlags), env)
	diagnosticsController := controller.NewDiagnosticsController(deps.Classifier, log.New(os.Stdout, "DIAG: ", log.LstdFlags), env)

	// Bare liveness probe, outside the versioned group
	app.Get("/health", statusController.Health)

	api := app.Group("/api/v1", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	api.Get("/status", statusController.Status)
	api.Get("/stats", statusController.Stats)

	// Task routes
	task := api.Group("/tasks")
	task.Get("/", taskController.GetTasks)
	task.Get("/:id", taskController.GetTask)
	task.Post("/:id/answers", taskController.SubmitAnswers)
	task.Delete("/:id", taskController.DeleteTask)

	// Draft routes
	draft := api.Group("/drafts")
	draft.Get("/", taskController.GetDrafts)
	draft.Post("/:id/approve", taskController.ApproveDraft)

	// Whitelist routes
	whitelist := api.Group("/whitelist")
	whitelist.Get("/", whitelistController.GetWhitelist)
	whitelist.Post("/", whitelistController.AddSender)
	whitelist.Delete("/:address", whitelistController.RemoveSender)

	// Diagnostics
	api.Post("/diagnostics/classify", diagnosticsController.ClassifySample)

	// Telegram webhook, only registered in webhook mode
	if deps.Config.Telegram.Mode == "webhook" && deps.Resolver != nil {
		telegramController := controller.NewTelegramController(deps.Resolver, log.New(os.Stdout, "TELEGRAM: ", log.LstdFlags), env)
		app.Post("/telegram/webhook", logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}), telegramController.Webhook)
	}

	// 404 fallback
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Endpoint not found",
		})
	})

	routeLogger.Println("Routes initialized successfully")
}
