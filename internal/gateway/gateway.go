// Package gateway submits chat requests to LLM providers.
//
// A call has exactly two outcomes: a *Response, or an error that is always a
// *Failure. Transport errors, timeouts, non-2xx statuses and empty responses
// all become Failures. No retries happen here.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Role is a chat message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role/content pair.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is one chat completion call.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	// WantJSON asks JSON-capable providers for a JSON object. The content
	// still has to be parsed; the hint guarantees nothing.
	WantJSON bool
}

// UserPrompt builds a single-message request.
func UserPrompt(model, prompt string, temperature float64, maxTokens int, wantJSON bool) Request {
	return Request{
		Model:       model,
		Messages:    []Message{{Role: RoleUser, Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
		WantJSON:    wantJSON,
	}
}

// Validate checks the input constraints of a call.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Model) == "" {
		return errors.New("model identifier is empty")
	}
	if len(r.Messages) == 0 {
		return errors.New("message list is empty")
	}
	for i, m := range r.Messages {
		if m.Role == "" {
			return fmt.Errorf("message %d has no role", i)
		}
	}
	if r.Temperature < 0 || r.Temperature > 2 {
		return fmt.Errorf("temperature %.2f outside [0,2]", r.Temperature)
	}
	if r.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", r.MaxTokens)
	}
	return nil
}

// PromptChars is the total message content length.
func (r Request) PromptChars() int {
	n := 0
	for _, m := range r.Messages {
		n += len(m.Content)
	}
	return n
}

// Choice is one completion alternative.
type Choice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// Usage reports token accounting when the provider returns it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a received provider response.
type Response struct {
	Model   string
	Choices []Choice
	Usage   Usage
}

// Content returns the first choice's message content.
func (r *Response) Content() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// Failure is the only error type a Gateway returns.
type Failure struct {
	Model      string
	StatusCode int // 0 when no HTTP status was received
	Message    string
	Err        error
}

func (f *Failure) Error() string {
	if f.StatusCode != 0 {
		return fmt.Sprintf("gateway: model %s: status %d: %s", f.Model, f.StatusCode, f.Message)
	}
	return fmt.Sprintf("gateway: model %s: %s", f.Model, f.Message)
}

func (f *Failure) Unwrap() error { return f.Err }

// Timeout reports whether the call ran out of time.
func (f *Failure) Timeout() bool {
	return errors.Is(f.Err, context.DeadlineExceeded)
}

// AsFailure converts any error into a *Failure for model.
func AsFailure(model string, err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Model: model, Message: err.Error(), Err: err}
}

// Gateway submits one request.
type Gateway interface {
	Call(ctx context.Context, req Request) (*Response, error)
}

// Func adapts a function to Gateway.
type Func func(ctx context.Context, req Request) (*Response, error)

// Call implements Gateway.
func (f Func) Call(ctx context.Context, req Request) (*Response, error) { return f(ctx, req) }
