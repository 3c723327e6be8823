package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"skeptic/internal/logging"
)

// GenAI calls Gemini models directly through the Google GenAI SDK. Model ids
// carry a routing prefix (for example "google-direct/gemini-2.5-flash") that
// is stripped before the call.
type GenAI struct {
	client  *genai.Client
	prefix  string
	timeout time.Duration
}

// NewGenAI creates a Gemini transport.
func NewGenAI(ctx context.Context, apiKey, prefix string, timeout time.Duration) (*GenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &GenAI{client: client, prefix: prefix, timeout: timeout}, nil
}

// toGenAIContents splits system messages into a system instruction and maps
// the rest onto user/model turns.
func toGenAIContents(msgs []Message) ([]*genai.Content, *genai.Content) {
	var (
		contents []*genai.Content
		system   []string
	)
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) == 0 {
		return contents, nil
	}
	return contents, genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
}

// generateConfig maps sampling parameters onto the SDK config.
func generateConfig(req Request, system *genai.Content) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens:   int32(req.MaxTokens),
		SystemInstruction: system,
	}
	if req.WantJSON {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg
}

// Call implements Gateway.
func (g *GenAI) Call(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, &Failure{Model: req.Model, Message: "invalid request: " + err.Error(), Err: err}
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	model := strings.TrimPrefix(req.Model, g.prefix)
	contents, system := toGenAIContents(req.Messages)
	start := time.Now()
	timer := logging.StartTimer(logging.CategoryAPI, "[GenAI] "+model)
	defer timer.StopWithThreshold(slowCallThreshold)
	logging.API("[GenAI] call model=%s temperature=%.2f max_tokens=%d json=%v", model, req.Temperature, req.MaxTokens, req.WantJSON)

	result, err := g.client.Models.GenerateContent(ctx, model, contents, generateConfig(req, system))
	if err != nil {
		logging.APIError("[GenAI] model=%s failed after %v: %v", model, time.Since(start), err)
		return nil, &Failure{Model: req.Model, Message: "generate content failed", Err: err}
	}
	if result == nil || len(result.Candidates) == 0 {
		logging.APIWarn("[GenAI] model=%s returned no candidates", model)
		return nil, &Failure{Model: req.Model, Message: "no candidates returned"}
	}

	out := &Response{
		Model: req.Model,
		Choices: []Choice{{
			Message:      Message{Role: RoleAssistant, Content: result.Text()},
			FinishReason: string(result.Candidates[0].FinishReason),
		}},
	}
	if u := result.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	logging.API("[GenAI] model=%s completed in %v response_len=%d", model, time.Since(start), len(out.Content()))
	return out, nil
}
