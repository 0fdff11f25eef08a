package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	AppConfig Config
	envLoaded bool
)

// IMAPConfig holds the mailbox provider connection settings.
type IMAPConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	Username       string `json:"username"`
	Password       string `json:"-"`
	Encryption     string `json:"encryption"` // SSL, STARTTLS or NONE
	DeferredFolder string `json:"deferred_folder"`
	DraftsFolder   string `json:"drafts_folder"`
	SentFolder     string `json:"sent_folder"`
}

// SMTPConfig holds the outbound reply transport settings.
type SMTPConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"-"`
	FromName  string `json:"from_name"`
	FromEmail string `json:"from_email"`
}

// OpenAIConfig holds the text-generation provider settings.
type OpenAIConfig struct {
	APIKey        string `json:"-"`
	Model         string `json:"model"`
	FallbackModel string `json:"fallback_model"`
}

// TelegramConfig holds the chat transport settings. Mode selects push
// (webhook) or pull (long polling); the two are mutually exclusive.
type TelegramConfig struct {
	BotToken        string        `json:"-"`
	Mode            string        `json:"mode"` // polling or webhook
	OperatorChatID  int64         `json:"operator_chat_id"`
	BackoffBase     time.Duration `json:"backoff_base"`
	BackoffCap      time.Duration `json:"backoff_cap"`
	MaxConflicts    int           `json:"max_conflicts"`
	PassiveInterval time.Duration `json:"passive_interval"`
}

type Config struct {
	Environment          string         `json:"environment"`
	ServerPort           string         `json:"server_port"`
	DataDir              string         `json:"data_dir"`
	SentryDSN            string         `json:"-"`
	AllowedOrigins       []string       `json:"allowed_origins"`
	IMAP                 IMAPConfig     `json:"imap"`
	SMTP                 SMTPConfig     `json:"smtp"`
	OpenAI               OpenAIConfig   `json:"openai"`
	Telegram             TelegramConfig `json:"telegram"`
	SMSWebhookURL        string         `json:"sms_webhook_url"`
	SMSRecipient         string         `json:"sms_recipient"`
	AutomatedSenders     []string       `json:"automated_senders"`
	IntakeInterval       time.Duration  `json:"intake_interval"`
	DeferredInterval     time.Duration  `json:"deferred_interval"`
	DelayedSweepInterval time.Duration  `json:"delayed_sweep_interval"`
	JitterWindow         time.Duration  `json:"jitter_window"`
	GracePeriod          time.Duration  `json:"grace_period"`
	DelayedCeiling       time.Duration  `json:"delayed_ceiling"`
	ProcessedCap         int            `json:"processed_cap"`
	MailboxHealthTimeout time.Duration  `json:"mailbox_health_timeout"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
	envLoaded = true
}

func LoadConfig() error {
	AppConfig = Config{
		Environment:    getEnv("ENVIRONMENT", "development"),
		ServerPort:     getEnv("SERVER_PORT", "5000"),
		DataDir:        getEnv("DATA_DIR", "data"),
		SentryDSN:      getEnv("SENTRY_DSN", ""),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		IMAP: IMAPConfig{
			Host:           getEnv("IMAP_HOST", ""),
			Port:           getEnvAsInt("IMAP_PORT", 993),
			Username:       getEnv("IMAP_USERNAME", ""),
			Password:       getEnv("IMAP_PASSWORD", ""),
			Encryption:     getEnv("IMAP_ENCRYPTION", "SSL"),
			DeferredFolder: getEnv("IMAP_DEFERRED_FOLDER", "Deferred"),
			DraftsFolder:   getEnv("IMAP_DRAFTS_FOLDER", "Drafts"),
			SentFolder:     getEnv("IMAP_SENT_FOLDER", "Sent"),
		},
		SMTP: SMTPConfig{
			Host:      getEnv("SMTP_HOST", ""),
			Port:      getEnvAsInt("SMTP_PORT", 587),
			Username:  getEnv("SMTP_USERNAME", ""),
			Password:  getEnv("SMTP_PASSWORD", ""),
			FromName:  getEnv("SMTP_FROM_NAME", "Studio Assistant"),
			FromEmail: getEnv("SMTP_FROM_EMAIL", ""),
		},
		OpenAI: OpenAIConfig{
			APIKey:        getEnv("OPENAI_API_KEY", ""),
			Model:         getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			FallbackModel: getEnv("OPENAI_FALLBACK_MODEL", "gpt-4o"),
		},
		Telegram: TelegramConfig{
			BotToken:        getEnv("TELEGRAM_BOT_TOKEN", ""),
			Mode:            getEnv("TELEGRAM_MODE", "polling"),
			OperatorChatID:  getEnvAsInt64("TELEGRAM_OPERATOR_CHAT_ID", 0),
			BackoffBase:     getEnvAsDuration("TELEGRAM_BACKOFF_BASE", 2*time.Second),
			BackoffCap:      getEnvAsDuration("TELEGRAM_BACKOFF_CAP", 5*time.Minute),
			MaxConflicts:    getEnvAsInt("TELEGRAM_MAX_CONFLICTS", 8),
			PassiveInterval: getEnvAsDuration("TELEGRAM_PASSIVE_INTERVAL", 10*time.Minute),
		},
		SMSWebhookURL:        getEnv("SMS_WEBHOOK_URL", ""),
		SMSRecipient:         getEnv("SMS_RECIPIENT", ""),
		AutomatedSenders:     splitList(getEnv("AUTOMATED_SENDERS", "no-reply@studioninja.app")),
		IntakeInterval:       getEnvAsDuration("INTAKE_INTERVAL", 5*time.Minute),
		DeferredInterval:     getEnvAsDuration("DEFERRED_FOLDER_INTERVAL", 10*time.Minute),
		DelayedSweepInterval: getEnvAsDuration("DELAYED_SWEEP_INTERVAL", 1*time.Minute),
		JitterWindow:         getEnvAsDuration("POLL_JITTER_WINDOW", 30*time.Second),
		GracePeriod:          getEnvAsDuration("GRACE_PERIOD", 5*time.Minute),
		DelayedCeiling:       getEnvAsDuration("DELAYED_CEILING", time.Hour),
		ProcessedCap:         getEnvAsInt("PROCESSED_CAP", 1000),
		MailboxHealthTimeout: getEnvAsDuration("MAILBOX_HEALTH_TIMEOUT", 5*time.Second),
	}

	// Validate required configurations
	if AppConfig.IMAP.Host == "" {
		return fmt.Errorf("IMAP_HOST is required")
	}
	if AppConfig.IMAP.Username == "" || AppConfig.IMAP.Password == "" {
		return fmt.Errorf("IMAP_USERNAME and IMAP_PASSWORD are required")
	}
	switch AppConfig.Telegram.Mode {
	case "polling", "webhook":
	default:
		return fmt.Errorf("TELEGRAM_MODE must be polling or webhook, got %q", AppConfig.Telegram.Mode)
	}
	if AppConfig.GracePeriod >= AppConfig.DelayedCeiling {
		return fmt.Errorf("GRACE_PERIOD must be shorter than DELAYED_CEILING")
	}
	if AppConfig.Environment == "production" {
		if AppConfig.SMTP.Host == "" || AppConfig.SMTP.FromEmail == "" {
			return fmt.Errorf("SMTP_HOST and SMTP_FROM_EMAIL are required in production")
		}
	}

	logConfig()
	return nil
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		log.Printf("⚠️ Environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsInt64(key string, fallback int64) int64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int64
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return fallback
	}
	return value
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func logConfig() {
	log.Println("🔧 Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Mailbox: %s@%s:%d (%s)",
		AppConfig.IMAP.Username,
		AppConfig.IMAP.Host,
		AppConfig.IMAP.Port,
		AppConfig.IMAP.Encryption)
	log.Printf("Generation provider configured: %t (model %s, fallback %s)",
		AppConfig.OpenAI.APIKey != "",
		AppConfig.OpenAI.Model,
		AppConfig.OpenAI.FallbackModel)
	log.Printf("Telegram: mode=%s configured=%t",
		AppConfig.Telegram.Mode,
		AppConfig.Telegram.BotToken != "")
}
