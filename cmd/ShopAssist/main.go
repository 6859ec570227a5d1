package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/ShopAssist/internal/api"
	"github.com/BTreeMap/ShopAssist/internal/dispatch"
	"github.com/BTreeMap/ShopAssist/internal/shopify"
	"github.com/BTreeMap/ShopAssist/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for ShopAssist state data
	DefaultStateDir = "/var/lib/shopassist"
	// DefaultDBFileName is the default SQLite ticket database filename
	DefaultDBFileName = "shopassist.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow device database filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// MemoryDSN selects the in-memory ticket store
	MemoryDSN = "memory"
)

// WhatsApp providers.
const (
	ProviderWhatsmeow = "whatsmeow"
	ProviderTwilio    = "twilio"
)

func main() {
	initializeLogger(os.Stdout, os.Getenv("LOG_LEVEL"))

	config := loadEnvironmentConfig()
	config, err := parseCommandLineFlags(os.Args[1:], config)
	if err != nil {
		slog.Error("Invalid command line", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping ShopAssist", "api_addr", config.APIAddr, "state_dir", config.StateDir, "whatsapp", config.WhatsAppEnabled)
	if err := run(ctx, config); err != nil {
		slog.Error("ShopAssist failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("ShopAssist exited successfully")
}

// Config holds the process configuration.
type Config struct {
	StateDir    string
	DatabaseDSN string
	APIAddr     string
	LogLevel    string

	OpenAIKey   string
	OpenAIModel string

	ShopifyShop       string
	ShopifyToken      string
	ShopifyAPIVersion string

	OutboundCallURL string
	CarrierPhone    string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
	TwilioVoiceFrom  string
	TwilioWebhookURL string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string
	SupportInbox string

	RedisURL       string
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int

	WhatsAppEnabled  bool
	WhatsAppProvider string
	WhatsAppDSN      string
	QROutput         string
	NumericCode      bool
}

// initializeLogger sets the default slog text logger at level.
func initializeLogger(w io.Writer, level string) {
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
}

func parseLogLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:          os.Getenv("SHOPASSIST_STATE_DIR"),
		DatabaseDSN:       os.Getenv("SHOPASSIST_DB_DSN"),
		APIAddr:           os.Getenv("API_ADDR"),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:       os.Getenv("OPENAI_MODEL"),
		ShopifyShop:       os.Getenv("SHOPIFY_SHOP"),
		ShopifyToken:      os.Getenv("SHOPIFY_ACCESS_TOKEN"),
		ShopifyAPIVersion: os.Getenv("SHOPIFY_API_VERSION"),
		OutboundCallURL:   os.Getenv("OUTBOUND_CALL_URL"),
		CarrierPhone:      os.Getenv("CARRIER_PHONE_NUMBER"),
		TwilioAccountSID:  os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:        os.Getenv("TWILIO_FROM_NUMBER"),
		TwilioVoiceFrom:   os.Getenv("TWILIO_VOICE_FROM"),
		TwilioWebhookURL:  os.Getenv("TWILIO_WEBHOOK_URL"),
		SMTPHost:          os.Getenv("SMTP_HOST"),
		SMTPPort:          util.ParseIntEnv("SMTP_PORT", 587),
		SMTPUsername:      os.Getenv("SMTP_USERNAME"),
		SMTPPassword:      os.Getenv("SMTP_PASSWORD"),
		MailFrom:          os.Getenv("MAIL_FROM"),
		SupportInbox:      os.Getenv("SUPPORT_INBOX"),
		RedisURL:          os.Getenv("REDIS_URL"),
		AllowedOrigins:    util.SplitList(os.Getenv("ALLOWED_ORIGINS")),
		RateLimitRPS:      util.ParseFloatEnv("RATE_LIMIT_RPS", api.DefaultRateLimitRPS),
		RateLimitBurst:    util.ParseIntEnv("RATE_LIMIT_BURST", api.DefaultRateLimitBurst),
		WhatsAppEnabled:   util.ParseBoolEnv("WHATSAPP_ENABLED", false),
		WhatsAppProvider:  os.Getenv("WHATSAPP_PROVIDER"),
		WhatsAppDSN:       os.Getenv("WHATSAPP_DB_DSN"),
	}

	if config.DatabaseDSN == "" {
		config.DatabaseDSN = os.Getenv("DATABASE_URL")
	}
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No SHOPASSIST_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.APIAddr == "" {
		config.APIAddr = api.DefaultAddr
	}
	if config.ShopifyAPIVersion == "" {
		config.ShopifyAPIVersion = shopify.DefaultAPIVersion
	}
	if config.CarrierPhone == "" {
		config.CarrierPhone = dispatch.DefaultCarrierPhone
	}
	if config.SupportInbox == "" {
		config.SupportInbox = dispatch.DefaultSupportInbox
	}
	if config.WhatsAppProvider == "" {
		config.WhatsAppProvider = ProviderWhatsmeow
	}

	slog.Debug("environment variables loaded",
		"SHOPASSIST_STATE_DIR", config.StateDir,
		"SHOPASSIST_DB_DSN_SET", config.DatabaseDSN != "",
		"API_ADDR", config.APIAddr,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"SHOPIFY_SHOP", config.ShopifyShop,
		"OUTBOUND_CALL_URL_SET", config.OutboundCallURL != "",
		"TWILIO_ACCOUNT_SID_SET", config.TwilioAccountSID != "",
		"SMTP_HOST", config.SMTPHost,
		"REDIS_URL_SET", config.RedisURL != "",
		"WHATSAPP_ENABLED", config.WhatsAppEnabled,
		"WHATSAPP_PROVIDER", config.WhatsAppProvider)

	return config
}

// parseCommandLineFlags applies command line overrides on top of the
// environment configuration and fills the state-directory defaults.
func parseCommandLineFlags(args []string, config Config) (Config, error) {
	fs := flag.NewFlagSet("shopassist", flag.ContinueOnError)
	fs.StringVar(&config.StateDir, "state-dir", config.StateDir, "state directory for ShopAssist data (overrides $SHOPASSIST_STATE_DIR)")
	fs.StringVar(&config.DatabaseDSN, "db-dsn", config.DatabaseDSN, "ticket database DSN, a SQLite path, a PostgreSQL URL or \"memory\" (overrides $SHOPASSIST_DB_DSN or $DATABASE_URL)")
	fs.StringVar(&config.APIAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR)")
	fs.StringVar(&config.OpenAIKey, "openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)")
	fs.StringVar(&config.OpenAIModel, "openai-model", config.OpenAIModel, "OpenAI chat model (overrides $OPENAI_MODEL)")
	fs.StringVar(&config.RedisURL, "redis-url", config.RedisURL, "Redis URL for the shared cache and order locks (overrides $REDIS_URL)")
	fs.BoolVar(&config.WhatsAppEnabled, "whatsapp", config.WhatsAppEnabled, "answer shoppers over WhatsApp (overrides $WHATSAPP_ENABLED)")
	fs.StringVar(&config.WhatsAppProvider, "whatsapp-provider", config.WhatsAppProvider, "WhatsApp provider: whatsmeow or twilio (overrides $WHATSAPP_PROVIDER)")
	fs.StringVar(&config.WhatsAppDSN, "whatsapp-db-dsn", config.WhatsAppDSN, "whatsmeow device database DSN (overrides $WHATSAPP_DB_DSN)")
	fs.StringVar(&config.QROutput, "qr-output", config.QROutput, "path to write the WhatsApp login QR code")
	fs.BoolVar(&config.NumericCode, "numeric-code", config.NumericCode, "print the raw WhatsApp pairing code instead of a QR code")
	if err := fs.Parse(args); err != nil {
		return config, err
	}

	switch config.WhatsAppProvider {
	case ProviderWhatsmeow, ProviderTwilio:
	default:
		return config, fmt.Errorf("unknown WhatsApp provider %q", config.WhatsAppProvider)
	}
	if config.DatabaseDSN == "" {
		config.DatabaseDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseDSN)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = "file:" + filepath.Join(config.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	}

	slog.Debug("flags parsed",
		"stateDir", config.StateDir,
		"dbDSN_set", config.DatabaseDSN != "",
		"apiAddr", config.APIAddr,
		"openaiKeySet", config.OpenAIKey != "",
		"whatsapp", config.WhatsAppEnabled,
		"provider", config.WhatsAppProvider)
	return config, nil
}
