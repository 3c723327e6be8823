package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"skeptic/internal/logging"
)

const maxResponseBytes = 10 * 1024 * 1024

// Calls slower than this are logged as warnings.
const slowCallThreshold = 2 * time.Minute

// OpenRouterConfig holds OpenRouter transport settings.
type OpenRouterConfig struct {
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
	SiteURL  string // HTTP-Referer
	SiteName string // X-Title

	// JSONModels lists model id substrings that accept response_format.
	JSONModels []string
}

// DefaultOpenRouterConfig returns the production defaults.
func DefaultOpenRouterConfig(apiKey string) OpenRouterConfig {
	return OpenRouterConfig{
		APIKey:     apiKey,
		BaseURL:    "https://openrouter.ai/api/v1",
		Timeout:    180 * time.Second,
		SiteURL:    "http://localhost:8501",
		SiteName:   "Intelligence Questions App",
		JSONModels: []string{"gpt", "claude-3.5", "claude-3-"},
	}
}

// OpenRouter calls the OpenRouter chat completions endpoint.
type OpenRouter struct {
	cfg        OpenRouterConfig
	httpClient *http.Client
}

// NewOpenRouter creates an OpenRouter transport.
func NewOpenRouter(cfg OpenRouterConfig) *OpenRouter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	return &OpenRouter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type openRouterRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type openRouterResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
	Error   *struct {
		Message string          `json:"message"`
		Code    json.RawMessage `json:"code"`
	} `json:"error,omitempty"`
}

// supportsJSON reports whether model accepts response_format json_object.
func (c *OpenRouter) supportsJSON(model string) bool {
	for _, s := range c.cfg.JSONModels {
		if s != "" && strings.Contains(model, s) {
			return true
		}
	}
	return false
}

// Call implements Gateway.
func (c *OpenRouter) Call(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, &Failure{Model: req.Model, Message: "invalid request: " + err.Error(), Err: err}
	}
	if c.cfg.APIKey == "" {
		logging.APIError("[OpenRouter] API key not configured")
		return nil, &Failure{Model: req.Model, Message: "API key not configured"}
	}

	// Bounded wait per call when the caller set no deadline.
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	timer := logging.StartTimer(logging.CategoryAPI, "[OpenRouter] "+req.Model)
	defer timer.StopWithThreshold(slowCallThreshold)
	body := openRouterRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.WantJSON && c.supportsJSON(req.Model) {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	logging.API("[OpenRouter] call model=%s temperature=%.2f max_tokens=%d json=%v prompt_len=%d",
		req.Model, req.Temperature, req.MaxTokens, body.ResponseFormat != nil, req.PromptChars())

	data, err := json.Marshal(body)
	if err != nil {
		return nil, &Failure{Model: req.Model, Message: "failed to marshal request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, &Failure{Model: req.Model, Message: "failed to create request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("HTTP-Referer", c.cfg.SiteURL)
	httpReq.Header.Set("X-Title", c.cfg.SiteName)
	logging.APIDebug("[OpenRouter] POST %s (%d bytes)", httpReq.URL, len(data))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		logging.APIError("[OpenRouter] model=%s request failed after %v: %v", req.Model, time.Since(start), err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return nil, &Failure{Model: req.Model, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &Failure{Model: req.Model, StatusCode: resp.StatusCode, Message: "failed to read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(raw))
		logging.APIError("[OpenRouter] model=%s status=%d body=%s", req.Model, resp.StatusCode, truncate(msg, 300))
		return nil, &Failure{Model: req.Model, StatusCode: resp.StatusCode, Message: truncate(msg, 1000)}
	}

	var orResp openRouterResponse
	if err := json.Unmarshal(raw, &orResp); err != nil {
		return nil, &Failure{Model: req.Model, StatusCode: resp.StatusCode, Message: "failed to decode response", Err: err}
	}
	if orResp.Error != nil {
		logging.APIError("[OpenRouter] model=%s provider error: %s", req.Model, orResp.Error.Message)
		return nil, &Failure{Model: req.Model, StatusCode: resp.StatusCode, Message: "provider error: " + orResp.Error.Message}
	}
	if len(orResp.Choices) == 0 {
		logging.APIError("[OpenRouter] model=%s returned no choices", req.Model)
		return nil, &Failure{Model: req.Model, StatusCode: resp.StatusCode, Message: "no completion returned"}
	}

	out := &Response{Model: req.Model, Choices: orResp.Choices, Usage: orResp.Usage}
	logging.API("[OpenRouter] model=%s completed in %v response_len=%d", req.Model, time.Since(start), len(out.Content()))
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
