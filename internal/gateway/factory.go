package gateway

import (
	"context"
	"fmt"
	"time"

	"skeptic/internal/logging"
)

// Config selects and configures the transports behind a Gateway.
type Config struct {
	OpenRouter OpenRouterConfig

	// GenAIAPIKey enables direct Gemini calls for models with GenAIPrefix.
	GenAIAPIKey string
	GenAIPrefix string
	Timeout     time.Duration
}

// New builds the production gateway: OpenRouter for every model, plus a
// direct Gemini route when a GenAI key is configured.
func New(ctx context.Context, cfg Config) (Gateway, error) {
	if cfg.OpenRouter.APIKey == "" && cfg.GenAIAPIKey == "" {
		return nil, fmt.Errorf("no gateway credentials configured (set OPENROUTER_API_KEY or GEMINI_API_KEY)")
	}
	if cfg.Timeout > 0 {
		cfg.OpenRouter.Timeout = cfg.Timeout
	}

	router := NewRouter(NewOpenRouter(cfg.OpenRouter))
	if cfg.GenAIAPIKey != "" && cfg.GenAIPrefix != "" {
		g, err := NewGenAI(ctx, cfg.GenAIAPIKey, cfg.GenAIPrefix, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		router.Route(cfg.GenAIPrefix, g)
		logging.BootDebug("gateway: routing %s* to GenAI", cfg.GenAIPrefix)
	}
	return router, nil
}
