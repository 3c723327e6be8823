// Package config holds skeptic's YAML configuration, its defaults and the
// environment overrides applied on top of the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DirName is the per-workspace state directory.
const DirName = ".skeptic"

// Config holds all skeptic configuration.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway"`
	Models   ModelsConfig   `yaml:"models"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Inputs   InputsConfig   `yaml:"inputs"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// GatewayConfig configures the LLM transports.
type GatewayConfig struct {
	BaseURL    string   `yaml:"base_url"`
	APIKey     string   `yaml:"api_key"`
	Referrer   string   `yaml:"referrer"` // HTTP-Referer attribution header
	Title      string   `yaml:"title"`    // X-Title attribution header
	Timeout    string   `yaml:"timeout"`
	JSONModels []string `yaml:"json_models"` // model id substrings that accept response_format

	GenAIAPIKey string `yaml:"genai_api_key"`
	GenAIPrefix string `yaml:"genai_prefix"` // models with this prefix go to Gemini directly
}

// ModelsConfig selects which models run in each phase.
type ModelsConfig struct {
	TestMode      bool     `yaml:"test_mode"`
	Full          []string `yaml:"full"`
	Test          []string `yaml:"test"`
	HighReasoning string   `yaml:"high_reasoning"`
}

// PipelineConfig tunes phase behaviour.
type PipelineConfig struct {
	CallDelay          string `yaml:"call_delay"`
	ParallelGeneration bool   `yaml:"parallel_generation"`
	MaxParallel        int    `yaml:"max_parallel"`
	DeriskMinScore     int    `yaml:"derisk_min_score"`
	DeriskMaxRisks     int    `yaml:"derisk_max_risks"`

	NarrativeLimit      int `yaml:"narrative_limit"`
	DocumentLimit       int `yaml:"document_limit"`
	DeriskExcerptLimit  int `yaml:"derisk_excerpt_limit"`
	ReflectSnippetLimit int `yaml:"reflect_snippet_limit"`
}

// InputsConfig names the Phase 1 source documents.
type InputsConfig struct {
	Narrative    string `yaml:"narrative"`
	PitchDeck    string `yaml:"pitch_deck"`
	MarketReport string `yaml:"market_report"`
}

// StorageConfig configures artifact persistence and the run ledger.
type StorageConfig struct {
	ArtifactDir   string `yaml:"artifact_dir"`
	LedgerPath    string `yaml:"ledger_path"`
	LedgerEnabled bool   `yaml:"ledger_enabled"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"` // debug, info, warn, error
	JSONFormat bool            `yaml:"json_format"`
	File       string          `yaml:"file"`
	Categories map[string]bool `yaml:"categories,omitempty"`
}

// DefaultFullModels is the production Phase 2 model list.
var DefaultFullModels = []string{
	"openai/o1-mini",
	"anthropic/claude-3.7-sonnet",
	"google/gemini-2.5-flash-preview",
	"x-ai/grok-3-beta",
	"deepseek/deepseek-chat-v3-0324",
	"arcee-ai/maestro-reasoning",
	"qwen/qwq-32b",
	"perplexity/sonar-reasoning-pro",
	"meta-llama/llama-4-maverick",
	"mistralai/mistral-medium-3",
}

// DefaultTestModels is the reduced list used for fast iteration.
var DefaultTestModels = []string{
	"meta-llama/llama-4-maverick",
	"qwen/qwq-32b",
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			BaseURL:     "https://openrouter.ai/api/v1",
			Referrer:    "http://localhost:8501",
			Title:       "Intelligence Questions App",
			Timeout:     "180s",
			JSONModels:  []string{"gpt", "claude-3.5", "claude-3-"},
			GenAIPrefix: "google-direct/",
		},
		Models: ModelsConfig{
			TestMode:      true,
			Full:          append([]string(nil), DefaultFullModels...),
			Test:          append([]string(nil), DefaultTestModels...),
			HighReasoning: "anthropic/claude-3.7-sonnet:thinking",
		},
		Pipeline: PipelineConfig{
			CallDelay:           "3s",
			MaxParallel:         4,
			DeriskMinScore:      15,
			DeriskMaxRisks:      3,
			NarrativeLimit:      100000,
			DocumentLimit:       150000,
			DeriskExcerptLimit:  7000,
			ReflectSnippetLimit: 2000,
		},
		Inputs: InputsConfig{
			Narrative:    "marketchapter.txt",
			PitchDeck:    "pitch_deck.pdf",
			MarketReport: "market_report.pdf",
		},
		Storage: StorageConfig{
			ArtifactDir:   filepath.Join(DirName, "artifacts"),
			LedgerPath:    filepath.Join(DirName, "ledger.db"),
			LedgerEnabled: true,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(DirName, "logs", "skeptic.log"),
		},
	}
}

// DefaultPath returns the config file location inside a workspace.
func DefaultPath(workspace string) string {
	return filepath.Join(workspace, DirName, "config.yaml")
}

// Load loads configuration from a YAML file. A missing file yields defaults.
// A .env file next to the workspace root is loaded before env overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from <workspace>/.env without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(workspace string) error {
	path := filepath.Join(workspace, ".env")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		c.Gateway.APIKey = key
	}
	if ref := os.Getenv("OPENROUTER_REFERRER"); ref != "" {
		c.Gateway.Referrer = ref
	}
	if title := os.Getenv("OPENROUTER_X_TITLE"); title != "" {
		c.Gateway.Title = title
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Gateway.GenAIAPIKey = key
	}
	if v := os.Getenv("SKEPTIC_TEST_MODE"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			c.Models.TestMode = b
		}
	}
	if dir := os.Getenv("SKEPTIC_ARTIFACT_DIR"); dir != "" {
		c.Storage.ArtifactDir = dir
	}
	if path := os.Getenv("SKEPTIC_LEDGER"); path != "" {
		c.Storage.LedgerPath = path
	}
}

// GenerationModels returns the Phase 2 model list for the current mode.
func (c *Config) GenerationModels() []string {
	if c.Models.TestMode {
		return c.Models.Test
	}
	return c.Models.Full
}

// GetGatewayTimeout returns the per-call timeout as a duration.
func (c *Config) GetGatewayTimeout() time.Duration {
	d, err := time.ParseDuration(c.Gateway.Timeout)
	if err != nil {
		return 180 * time.Second
	}
	return d
}

// GetCallDelay returns the fixed delay between sequential calls.
func (c *Config) GetCallDelay() time.Duration {
	d, err := time.ParseDuration(c.Pipeline.CallDelay)
	if err != nil {
		return 3 * time.Second
	}
	return d
}

// Resolve returns path joined to workspace unless it is already absolute.
func Resolve(workspace, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workspace, path)
}

// RoutesToGenAI reports whether model is sent to Gemini directly.
func (c *Config) RoutesToGenAI(model string) bool {
	return c.Gateway.GenAIPrefix != "" && strings.HasPrefix(model, c.Gateway.GenAIPrefix)
}

// Validate validates the configuration. Each configured model needs the
// credential of the transport it routes to.
func (c *Config) Validate() error {
	if len(c.GenerationModels()) == 0 {
		return fmt.Errorf("no generation models configured (test_mode=%v)", c.Models.TestMode)
	}
	if c.Models.HighReasoning == "" {
		return fmt.Errorf("high-reasoning model not configured")
	}
	for _, m := range append(c.GenerationModels(), c.Models.HighReasoning) {
		if c.RoutesToGenAI(m) {
			if c.Gateway.GenAIAPIKey == "" {
				return fmt.Errorf("model %s needs a GenAI API key (set GEMINI_API_KEY)", m)
			}
		} else if c.Gateway.APIKey == "" {
			return fmt.Errorf("gateway API key not configured (set OPENROUTER_API_KEY)")
		}
	}
	if c.Pipeline.DeriskMaxRisks < 0 {
		return fmt.Errorf("derisk_max_risks must be >= 0, got %d", c.Pipeline.DeriskMaxRisks)
	}
	if c.Pipeline.DeriskMinScore < 1 || c.Pipeline.DeriskMinScore > 25 {
		return fmt.Errorf("derisk_min_score must be in [1,25], got %d", c.Pipeline.DeriskMinScore)
	}
	if c.Pipeline.ParallelGeneration && c.Pipeline.MaxParallel < 1 {
		return fmt.Errorf("max_parallel must be >= 1 when parallel_generation is set")
	}
	return nil
}
