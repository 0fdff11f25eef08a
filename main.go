package main

import (
	"context"
	"log"
	"os"

	"github.com/gofiber/fiber/v2"

	"inboxpilot/ai"
	"inboxpilot/classify"
	"inboxpilot/config"
	"inboxpilot/delay"
	"inboxpilot/mailbox"
	"inboxpilot/middleware"
	"inboxpilot/routes"
	"inboxpilot/store"
	"inboxpilot/tasks"
	"inboxpilot/telegram"
	"inboxpilot/utils"
	"inboxpilot/worker"
)

func main() {
	// Initialize logger
	logger := log.New(os.Stdout, "INBOXPILOT: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := &config.AppConfig

	// Initialize error reporting
	if err := utils.InitSentry(cfg.SentryDSN, cfg.Environment); err != nil {
		logger.Printf("⚠️ Sentry initialization failed: %v", err)
	}

	// Open the record store
	recordStore, err := store.Open(cfg.DataDir, cfg.ProcessedCap)
	if err != nil {
		logger.Fatalf("Failed to open record store: %v", err)
	}

	// Build the domain collaborators
	mailboxClient := mailbox.NewClient(cfg.IMAP)
	aiClient := ai.NewClient(cfg.OpenAI)
	classifier := classify.NewClassifier(recordStore, aiClient, cfg.AutomatedSenders)
	mailer := utils.NewReplyMailer(cfg.SMTP)
	taskManager := tasks.NewManager(recordStore, aiClient, mailer, mailboxClient)
	delayScheduler := delay.NewScheduler(recordStore, cfg.GracePeriod, cfg.DelayedCeiling)
	smsNotifier := utils.NewSMSNotifier(cfg.SMSWebhookURL, cfg.SMSRecipient)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telegram transport: polling and webhook are mutually exclusive
	var resolver *telegram.Resolver
	if cfg.Telegram.BotToken != "" {
		botClient := telegram.NewClient(cfg.Telegram.BotToken)
		resolver = telegram.NewResolver(taskManager, botClient, cfg.Telegram.OperatorChatID)
		if cfg.Telegram.Mode == "polling" {
			poller := telegram.NewPoller(botClient, resolver, cfg.Telegram)
			go poller.Run(ctx)
		}
	} else {
		logger.Println("⚠️ No Telegram bot token configured, operator chat disabled")
	}

	// Start the sweeps
	var operatorNotifier worker.OperatorNotifier
	if resolver != nil {
		operatorNotifier = resolver
	}
	pipeline := worker.NewPipeline(cfg, mailboxClient, classifier, taskManager, recordStore, delayScheduler, operatorNotifier, smsNotifier)
	scheduler := worker.NewScheduler(worker.RealClock(), pipeline.Loops()...)
	scheduler.Start(ctx)

	// Create Fiber app
	app := fiber.New()
	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept"},
		MaxAge:           3600,
	}))

	// Setup routes
	routes.SetupRoutes(app, routes.Deps{
		Config:     cfg,
		Store:      recordStore,
		Mailbox:    mailboxClient,
		AI:         aiClient,
		Classifier: classifier,
		Tasks:      taskManager,
		Resolver:   resolver,
	})

	// Start server
	logger.Printf("🚀 Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
