package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"skillvet/internal/agent"
)

// ValidateConfig validates configuration values and returns an error if any are invalid.
// This function should be called after viper has loaded the configuration.
func ValidateConfig() error {
	return Validate(Get())
}

// Validate checks a Config and reports every problem at once.
func Validate(c Config) error {
	var errors []string

	if !slices.Contains(agent.Providers, c.Provider) {
		errors = append(errors, fmt.Sprintf("provider must be one of %s, got: %q", strings.Join(agent.Providers, ", "), c.Provider))
	}
	if c.Model == "" && c.Provider != "mock" {
		errors = append(errors, "model must be set")
	}
	if c.AITimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ai.timeout must be positive, got: %v", c.AITimeout))
	}
	if c.MaxTokens <= 0 {
		errors = append(errors, fmt.Sprintf("ai.max_tokens must be positive, got: %d", c.MaxTokens))
	}
	if c.MaxRetries < 0 {
		errors = append(errors, fmt.Sprintf("ai.max_retries must not be negative, got: %d", c.MaxRetries))
	}

	if c.MaxFileSize <= 0 {
		errors = append(errors, fmt.Sprintf("limits.max_file_size must be positive, got: %d", c.MaxFileSize))
	}
	if c.MaxTotalSize <= 0 {
		errors = append(errors, fmt.Sprintf("limits.max_total_size must be positive, got: %d", c.MaxTotalSize))
	} else if c.MaxFileSize > c.MaxTotalSize {
		errors = append(errors, fmt.Sprintf("limits.max_file_size (%d) must not exceed limits.max_total_size (%d)", c.MaxFileSize, c.MaxTotalSize))
	}

	switch strings.ToLower(c.StoreType) {
	case "sqlite", "sqlite3", "postgres", "postgresql", "none":
	default:
		errors = append(errors, fmt.Sprintf("store.type must be sqlite, postgres or none, got: %q", c.StoreType))
	}
	if strings.HasPrefix(strings.ToLower(c.StoreType), "postgres") && c.StoreDSN == "" {
		errors = append(errors, "store.dsn is required for postgres")
	}

	if c.SlackEnabled && c.SlackWebhookURL == "" && (c.SlackToken == "" || c.SlackChannel == "") {
		errors = append(errors, "notifications.slack needs SLACK_BOT_USER_TOKEN with a channel, or SLACK_WEBHOOK_URL")
	}

	for key, port := range map[string]int{"metrics_port": c.MetricsPort, "server.port": c.ServerPort} {
		if port < 0 || port > 65535 {
			errors = append(errors, fmt.Sprintf("%s must be between 0 and 65535, got: %d", key, port))
		}
	}
	if c.MaxUpload <= 0 {
		errors = append(errors, fmt.Sprintf("server.max_upload must be positive, got: %d", c.MaxUpload))
	}
	if c.WatchInterval <= 0 {
		errors = append(errors, fmt.Sprintf("watch.interval must be positive, got: %v", c.WatchInterval))
	}
	if c.Workers <= 0 {
		errors = append(errors, fmt.Sprintf("workers must be positive, got: %d", c.Workers))
	}

	if len(errors) > 0 {
		slices.Sort(errors)
		return fmt.Errorf("configuration validation failed:\n  %s", strings.Join(errors, "\n  "))
	}
	return nil
}

// ValidateAndExit validates the configuration and exits with a non-zero code if validation fails.
func ValidateAndExit() {
	if err := ValidateConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
