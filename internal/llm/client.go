// Package llm abstracts the two supported chat backends behind one
// capability interface: plain chat, chat with tools, and streaming chat.
// Role translation for tool results differs per backend and is centralized
// in the adapters here.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openmaw-ai/openmaw/internal/config"
	"github.com/openmaw-ai/openmaw/pkg/models"
)

// Sentinel errors so callers can distinguish remediation paths: a missing
// key needs configuration, a provider error may warrant a retry, a
// malformed response is a bug to report.
var (
	ErrNoAPIKey          = errors.New("no API key configured")
	ErrMalformedResponse = errors.New("malformed provider response")
)

// ProviderError carries the HTTP status of a failed backend call.
type ProviderError struct {
	Provider string
	Status   int
	Body     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Body)
}

// Options tune a single chat request. Zero values fall back to the
// client's configured defaults.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// ToolResponse is the outcome of one tool-capable round-trip: either final
// text, or a set of tool calls to execute before continuing.
type ToolResponse struct {
	Text       string
	ToolCalls  []models.ToolCall
	StopReason string
}

// Client is the provider-neutral chat surface. Messages use the engine's
// uniform roles; adapters translate per wire protocol.
type Client interface {
	Chat(ctx context.Context, messages []models.ChatMessage, opts Options) (string, error)
	ChatWithTools(ctx context.Context, messages []models.ChatMessage, tools []models.ToolDefinition, opts Options) (*ToolResponse, error)
	ChatStream(ctx context.Context, messages []models.ChatMessage, opts Options) (<-chan string, <-chan error)
}

// New builds the client for the configured provider.
func New(cfg config.AIConfig) (Client, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	switch cfg.Provider {
	case "openai", "":
		return newOpenAIClient(cfg, httpClient), nil
	case "anthropic":
		return newAnthropicClient(cfg, httpClient), nil
	}
	return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
}
