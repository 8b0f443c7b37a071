// Package llm talks to the generative model backend used for tutor replies,
// message classification and practice test generation.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Provider is the core abstraction for model interaction.
type Provider interface {
	// Generate sends a prompt and returns the reply. When req.Schema is set
	// the reply text is JSON that has been validated against it.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the model identifier this provider is configured to use.
	ModelID() string
}

// Request describes what to send to the model.
type Request struct {
	// System sets the tutor persona and constraints.
	System string

	// Messages is the conversation, oldest first. The last entry is the
	// student's current message.
	Messages []Message

	// Schema requests structured JSON output. Nil means free text.
	Schema *Schema

	MaxTokens   int
	Temperature float64
}

// Message is a single conversation turn.
type Message struct {
	Role    Role
	Content string
}

// Role is the message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Schema defines the JSON structure expected from the model.
type Schema struct {
	// Name identifies the schema, kebab-case, e.g. "message-classification".
	Name        string
	Description string
	Definition  map[string]any
}

// Response holds the model output.
type Response struct {
	Text       string
	Usage      Usage
	Model      string
	StopReason string // "end", "max_tokens"
}

// Decode unmarshals a structured reply into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal([]byte(r.Text), v); err != nil {
		return &ErrInvalidResponse{Content: r.Text, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// UserTurn builds a single-message conversation.
func UserTurn(content string) []Message {
	return []Message{{Role: RoleUser, Content: content}}
}

// GenerateText returns the trimmed free-text reply. An empty reply is an error.
func GenerateText(ctx context.Context, p Provider, req Request) (string, error) {
	resp, err := p.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

// GenerateJSON requests structured output and decodes it into T.
func GenerateJSON[T any](ctx context.Context, p Provider, req Request) (T, error) {
	var out T
	if req.Schema == nil {
		return out, fmt.Errorf("llm: GenerateJSON requires a schema")
	}
	resp, err := p.Generate(ctx, req)
	if err != nil {
		return out, err
	}
	if resp.StopReason == "max_tokens" {
		return out, &ErrMaxTokensExceeded{Content: resp.Text}
	}
	err = resp.Decode(&out)
	return out, err
}
