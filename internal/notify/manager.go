// Package notify hands blocked packages to the people who enforce policy.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"skillvet/internal/model"

	"github.com/slack-go/slack"
)

// Config selects how Slack is reached. A bot token with a channel uses the
// Web API; otherwise a webhook URL is used.
type Config struct {
	Enabled    bool
	Token      string
	Channel    string
	WebhookURL string
	// APIURL overrides the Slack API base, for tests.
	APIURL string
}

// Manager sends blocked-package alerts to Slack.
type Manager struct {
	client     *slack.Client
	channelID  string
	webhookURL string
	logger     *slog.Logger
}

// NewManager creates a new notification manager. It returns a manager that
// does nothing when Slack is disabled or not configured.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{logger: logger}
	if !cfg.Enabled {
		return m
	}

	switch {
	case cfg.Token != "" && cfg.Channel != "":
		opts := []slack.Option{}
		if cfg.APIURL != "" {
			opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
		}
		m.client = slack.New(cfg.Token, opts...)
		m.channelID = cfg.Channel
	case cfg.WebhookURL != "":
		m.webhookURL = cfg.WebhookURL
	default:
		logger.Warn("Slack notifications enabled but neither a bot token with channel nor a webhook URL is set")
	}
	return m
}

// Active reports whether alerts will be sent.
func (m *Manager) Active() bool {
	return m.client != nil || m.webhookURL != ""
}

// NotifyBlocked posts an alert for a report that blocks execution.
func (m *Manager) NotifyBlocked(ctx context.Context, r *model.CombinedReport) error {
	if r == nil || !r.BlockExecution || !m.Active() {
		return nil
	}
	text := summaryText(r)

	if m.client != nil {
		_, ts, err := m.client.PostMessageContext(ctx, m.channelID,
			slack.MsgOptionText(text, false),
			slack.MsgOptionBlocks(blocks(r)...),
		)
		if err != nil {
			return fmt.Errorf("failed to post slack message: %w", err)
		}
		m.logger.Info("Block notification sent", "channel", m.channelID, "ts", ts, "report", r.ID)
		return nil
	}

	if err := slack.PostWebhookContext(ctx, m.webhookURL, &slack.WebhookMessage{Text: text}); err != nil {
		return fmt.Errorf("failed to send slack webhook: %w", err)
	}
	m.logger.Info("Block notification sent", "webhook", true, "report", r.ID)
	return nil
}

func summaryText(r *model.CombinedReport) string {
	name := r.Package
	if name == "" {
		name = "unnamed package"
	}
	return fmt.Sprintf(":no_entry: Skill package %q blocked (risk %s, score %d, %d findings, report %s)",
		name, r.RiskLevel, r.Score, len(r.Findings), r.ID)
}

// maxListed caps the findings shown in one alert.
const maxListed = 5

func blocks(r *model.CombinedReport) []slack.Block {
	header := slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, "*"+summaryText(r)+"*", false, false),
		nil, nil,
	)

	var lines []string
	for _, f := range r.Findings {
		if f.Severity != model.SeverityCritical && !f.Block {
			continue
		}
		loc := f.File
		if loc != "" && f.Line > 0 {
			loc = fmt.Sprintf("%s:%d", f.File, f.Line)
		}
		line := fmt.Sprintf("• [%s] %s", f.Severity, f.Title)
		if loc != "" {
			line += " (`" + loc + "`)"
		}
		lines = append(lines, line)
		if len(lines) == maxListed {
			break
		}
	}
	if len(lines) == 0 {
		return []slack.Block{header}
	}
	detail := slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, strings.Join(lines, "\n"), false, false),
		nil, nil,
	)
	return []slack.Block{header, slack.NewDividerBlock(), detail}
}

// ErrNotConfigured is returned by Test when no Slack target is set.
var ErrNotConfigured = errors.New("slack notifications are not configured")

// Test sends a plain message to verify the configuration.
func (m *Manager) Test(ctx context.Context) error {
	if !m.Active() {
		return ErrNotConfigured
	}
	const text = "skillvet notification test"
	if m.client != nil {
		_, _, err := m.client.PostMessageContext(ctx, m.channelID, slack.MsgOptionText(text, false))
		return err
	}
	return slack.PostWebhookContext(ctx, m.webhookURL, &slack.WebhookMessage{Text: text})
}
