// Package config loads skillvet settings from config.yaml, .env and
// SKILLVET_* environment variables through viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "SKILLVET"

// Load initializes the configuration from file and environment variables.
func Load(cfgFile string) error {
	// .env is optional
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	SetDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
		return nil
	}
	fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	return nil
}

// SetDefaults registers the default for every key.
func SetDefaults() {
	viper.SetDefault("provider", "anthropic")
	viper.SetDefault("model", "claude-3-5-sonnet-latest")
	viper.SetDefault("api_key", "")
	viper.SetDefault("base_url", "")

	viper.SetDefault("ai.enabled", true)
	viper.SetDefault("ai.timeout", 120)
	viper.SetDefault("ai.max_tokens", 4096)
	viper.SetDefault("ai.max_retries", 2)

	viper.SetDefault("limits.max_file_size", 100*1024)
	viper.SetDefault("limits.max_total_size", 500*1024)

	viper.SetDefault("rules.file", "")
	viper.SetDefault("rules.watch", false)

	viper.SetDefault("store.type", "sqlite")
	viper.SetDefault("store.dsn", ".skillvet.db")

	slackEnabled := os.Getenv("SLACK_BOT_USER_TOKEN") != "" || os.Getenv("SLACK_WEBHOOK_URL") != ""
	viper.SetDefault("notifications.slack.enabled", slackEnabled)
	viper.SetDefault("notifications.slack.channel", "")

	viper.SetDefault("metrics_port", 2112)
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.max_upload", 20<<20)
	viper.SetDefault("watch.dir", "inbox")
	viper.SetDefault("watch.interval", 10)
	viper.SetDefault("workers", 4)
	viper.SetDefault("verbose", false)
	viper.SetDefault("log_file", "")
}

// Config is a typed snapshot of the loaded settings.
type Config struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	AIEnabled  bool
	AITimeout  time.Duration
	MaxTokens  int
	MaxRetries int

	MaxFileSize  int
	MaxTotalSize int

	RulesFile  string
	WatchRules bool

	StoreType string
	StoreDSN  string

	SlackEnabled    bool
	SlackChannel    string
	SlackToken      string
	SlackWebhookURL string

	MetricsPort   int
	ServerPort    int
	MaxUpload     int64
	WatchDir      string
	WatchInterval time.Duration
	Workers       int
	Verbose       bool
	LogFile       string
}

// Get reads the current viper state into a Config.
func Get() Config {
	provider := viper.GetString("provider")
	return Config{
		Provider:   provider,
		Model:      viper.GetString("model"),
		APIKey:     APIKey(provider),
		BaseURL:    viper.GetString("base_url"),
		AIEnabled:  viper.GetBool("ai.enabled"),
		AITimeout:  seconds("ai.timeout"),
		MaxTokens:  viper.GetInt("ai.max_tokens"),
		MaxRetries: viper.GetInt("ai.max_retries"),

		MaxFileSize:  viper.GetInt("limits.max_file_size"),
		MaxTotalSize: viper.GetInt("limits.max_total_size"),

		RulesFile:  viper.GetString("rules.file"),
		WatchRules: viper.GetBool("rules.watch"),

		StoreType: viper.GetString("store.type"),
		StoreDSN:  viper.GetString("store.dsn"),

		SlackEnabled:    viper.GetBool("notifications.slack.enabled"),
		SlackChannel:    viper.GetString("notifications.slack.channel"),
		SlackToken:      os.Getenv("SLACK_BOT_USER_TOKEN"),
		SlackWebhookURL: os.Getenv("SLACK_WEBHOOK_URL"),

		MetricsPort:   viper.GetInt("metrics_port"),
		ServerPort:    viper.GetInt("server.port"),
		MaxUpload:     viper.GetInt64("server.max_upload"),
		WatchDir:      viper.GetString("watch.dir"),
		WatchInterval: seconds("watch.interval"),
		Workers:       viper.GetInt("workers"),
		Verbose:       viper.GetBool("verbose"),
		LogFile:       viper.GetString("log_file"),
	}
}

// providerKeyEnv maps providers to their conventional credential variables.
var providerKeyEnv = map[string]string{
	"anthropic":  "ANTHROPIC_API_KEY",
	"openai":     "OPENAI_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
}

// APIKey returns api_key, falling back to the provider's own variable.
func APIKey(provider string) string {
	if key := viper.GetString("api_key"); key != "" {
		return key
	}
	if env, ok := providerKeyEnv[provider]; ok {
		return os.Getenv(env)
	}
	return ""
}

// seconds reads a key given either as a duration string or whole seconds.
func seconds(key string) time.Duration {
	raw := viper.GetString(key)
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return time.Duration(viper.GetInt(key)) * time.Second
}
