package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"skillvet/internal/agent"
	"skillvet/internal/archive"
	"skillvet/internal/config"
	"skillvet/internal/db"
	"skillvet/internal/notify"
	"skillvet/internal/pipeline"
	"skillvet/internal/rules"
	"skillvet/internal/security"
	"skillvet/internal/semantic"
)

// stack holds everything one command needs to analyze packages.
type stack struct {
	cfg      config.Config
	logger   *slog.Logger
	store    db.Store
	rules    *rules.FileProvider
	notifier *notify.Manager
	pipeline *pipeline.Pipeline
}

// Close releases the store.
func (s *stack) Close() {
	if s.store != nil {
		_ = s.store.Close()
	}
}

// watchRules hot-reloads the operator catalog until ctx is done, when enabled.
func (s *stack) watchRules(ctx context.Context) {
	if s.rules == nil || !s.cfg.WatchRules {
		return
	}
	go func() {
		if err := s.rules.Watch(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("Rule watcher stopped", "error", err)
		}
	}()
}

type buildOptions struct {
	withStore bool
}

func buildStack(cfg config.Config, opts buildOptions) (*stack, error) {
	s := &stack{cfg: cfg, logger: slog.Default()}

	if opts.withStore {
		store, err := openStore(cfg)
		if err != nil {
			return nil, err
		}
		s.store = store
	}

	var ruleProvider rules.Provider
	if cfg.RulesFile != "" {
		fp, err := rules.NewFileProvider(cfg.RulesFile, s.logger)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to load rules: %w", err)
		}
		s.rules = fp
		ruleProvider = fp
	}

	client, err := buildAgent(cfg, s.logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	analyzer := semantic.NewAnalyzer(client,
		semantic.WithRules(ruleProvider),
		semantic.WithLogger(s.logger),
		semantic.WithTimeout(cfg.AITimeout),
		semantic.WithMaxTokens(cfg.MaxTokens),
		semantic.WithEnabled(cfg.AIEnabled),
	)

	s.notifier = notify.NewManager(notify.Config{
		Enabled:    cfg.SlackEnabled,
		Token:      cfg.SlackToken,
		Channel:    cfg.SlackChannel,
		WebhookURL: cfg.SlackWebhookURL,
	}, s.logger)

	popts := []pipeline.Option{
		pipeline.WithLimits(archive.Options{MaxFileSize: cfg.MaxFileSize, MaxTotalSize: cfg.MaxTotalSize}),
		pipeline.WithLogger(s.logger),
	}
	if s.store != nil {
		popts = append(popts, pipeline.WithStore(s.store))
	}
	if s.notifier.Active() {
		popts = append(popts, pipeline.WithNotifier(s.notifier))
	}
	s.pipeline = pipeline.New(security.NewRegexScanner(), analyzer, popts...)
	return s, nil
}

// buildAgent returns nil when semantic analysis cannot run, which makes
// every semantic report "unavailable" rather than failing the command.
func buildAgent(cfg config.Config, logger *slog.Logger) (agent.Agent, error) {
	if !cfg.AIEnabled {
		return nil, nil
	}
	if agent.RequiresAPIKey(cfg.Provider) && cfg.APIKey == "" {
		logger.Warn("No API key configured, semantic analysis unavailable", "provider", cfg.Provider)
		return nil, nil
	}
	client, err := agent.NewAgent(agent.Config{
		Provider:   cfg.Provider,
		Model:      cfg.Model,
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		MaxRetries: cfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}
	return client, nil
}

// openStore returns a nil store when persistence is turned off.
func openStore(cfg config.Config) (db.Store, error) {
	if strings.EqualFold(cfg.StoreType, "none") {
		return nil, nil
	}
	store, err := db.NewStore(db.StoreConfig{Type: cfg.StoreType, ConnectionString: cfg.StoreDSN})
	if err != nil {
		return nil, fmt.Errorf("failed to open report store: %w", err)
	}
	return store, nil
}

// requireStore is openStore for commands that only work with persistence.
func requireStore(cfg config.Config) (db.Store, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("report storage is disabled (store.type=none)")
	}
	return store, nil
}
