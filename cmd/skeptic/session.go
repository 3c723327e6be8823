package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"skeptic/internal/config"
	"skeptic/internal/gateway"
	"skeptic/internal/ingest"
	"skeptic/internal/logging"
	"skeptic/internal/pipeline"
	"skeptic/internal/store"
)

// session bundles everything a command needs for one workspace.
type session struct {
	ws     string
	cfg    *config.Config
	store  *store.ArtifactStore
	ledger *store.Ledger
	runner *pipeline.Runner
}

func resolveWorkspace() string {
	if workspace != "" {
		return workspace
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

// loadConfig reads .env, the YAML config and the command-line overrides.
func loadConfig(cmd *cobra.Command, ws string) (*config.Config, error) {
	if err := config.LoadDotEnv(ws); err != nil {
		logger.Warn("Ignoring .env", zap.Error(err))
	}
	path := configPath
	if path == "" {
		path = config.DefaultPath(ws)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if cmd != nil && cmd.Flags().Changed("test-mode") {
		cfg.Models.TestMode = testMode
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// openSession loads config and artifacts. withGateway also builds the LLM
// gateway and fails when no credentials are configured.
func openSession(ctx context.Context, cmd *cobra.Command, withGateway bool) (*session, error) {
	ws := resolveWorkspace()
	cfg, err := loadConfig(cmd, ws)
	if err != nil {
		return nil, err
	}

	if err := logging.Initialize(ws, logger, logging.Options{
		Level:      cfg.Logging.Level,
		JSONFormat: cfg.Logging.JSONFormat,
		File:       cfg.Logging.File,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		logger.Warn("File logging disabled", zap.Error(err))
	}
	logging.Boot("workspace %s (test_mode=%v, gateway=%v)", ws, cfg.Models.TestMode, withGateway)

	st, err := store.NewArtifactStore(config.Resolve(ws, cfg.Storage.ArtifactDir))
	if err != nil {
		return nil, err
	}
	s := &session{ws: ws, cfg: cfg, store: st}

	var runLedger pipeline.RunLedger
	if cfg.Storage.LedgerEnabled {
		l, err := store.OpenLedger(config.Resolve(ws, cfg.Storage.LedgerPath))
		if err != nil {
			logger.Warn("Run ledger disabled", zap.Error(err))
		} else {
			s.ledger = l
			runLedger = l
		}
	}

	gw := gateway.Gateway(gateway.Func(func(ctx context.Context, req gateway.Request) (*gateway.Response, error) {
		return nil, &gateway.Failure{Model: req.Model, Message: "gateway not configured for this command"}
	}))
	if withGateway {
		if err := cfg.Validate(); err != nil {
			s.Close()
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		gw, err = gateway.New(ctx, gateway.Config{
			OpenRouter: gateway.OpenRouterConfig{
				APIKey:     cfg.Gateway.APIKey,
				BaseURL:    cfg.Gateway.BaseURL,
				SiteURL:    cfg.Gateway.Referrer,
				SiteName:   cfg.Gateway.Title,
				JSONModels: cfg.Gateway.JSONModels,
			},
			GenAIAPIKey: cfg.Gateway.GenAIAPIKey,
			GenAIPrefix: cfg.Gateway.GenAIPrefix,
			Timeout:     cfg.GetGatewayTimeout(),
		})
		if err != nil {
			s.Close()
			return nil, err
		}
		if s.ledger != nil {
			gw = gateway.NewRecorder(gw, s.ledger)
		}
	}

	pipe := pipeline.New(gw, gateway.NewThrottle(cfg.GetCallDelay()), ingest.NewFileExtractor(), pipeline.OptionsFromConfig(cfg))
	inputs := pipeline.InputPaths{
		Narrative:    config.Resolve(ws, cfg.Inputs.Narrative),
		PitchDeck:    config.Resolve(ws, cfg.Inputs.PitchDeck),
		MarketReport: config.Resolve(ws, cfg.Inputs.MarketReport),
	}
	s.runner = pipeline.NewRunner(pipe, st, runLedger, inputs, "")
	if err := s.runner.Load(); err != nil {
		s.Close()
		return nil, err
	}

	logger.Debug("Session opened",
		zap.String("workspace", ws),
		zap.String("artifacts", st.Dir()),
		zap.Bool("test_mode", cfg.Models.TestMode),
		zap.Int("models", len(cfg.GenerationModels())))
	return s, nil
}

func (s *session) Close() {
	if s.ledger != nil {
		if err := s.ledger.Close(); err != nil {
			logger.Warn("Failed to close ledger", zap.Error(err))
		}
	}
	logging.CloseAll()
}

// commandContext applies the global timeout and cancels on SIGINT/SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := context.Background()
	if cmd != nil && cmd.Context() != nil {
		parent = cmd.Context()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}
