package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openmaw-ai/openmaw/internal/config"
	"github.com/openmaw-ai/openmaw/pkg/models"
	"github.com/openmaw-ai/openmaw/pkg/value"
)

// anthropicClient speaks the Anthropic messages protocol. The wire has no
// "tool" role: tool results become user messages carrying tool_result
// blocks, and an assistant turn that called tools becomes mixed
// text + tool_use blocks. That translation lives entirely here.
type anthropicClient struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func newAnthropicClient(cfg config.AIConfig, httpClient *http.Client) *anthropicClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return &anthropicClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   cfg.Model,
		client:  httpClient,
	}
}

// ── Wire types ──────────────────────────────────────────────

type anthContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string       `json:"id,omitempty"`
	Name  string       `json:"name,omitempty"`
	Input *value.Value `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

type anthMessage struct {
	Role    string             `json:"role"`
	Content []anthContentBlock `json:"content"`
}

type anthTool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema value.Value `json:"input_schema"`
}

type anthRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	System      string        `json:"system,omitempty"`
	Messages    []anthMessage `json:"messages"`
	Tools       []anthTool    `json:"tools,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type anthResponse struct {
	Content    []anthContentBlock `json:"content"`
	StopReason string             `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// translate rewrites uniform messages into the Anthropic shape: the system
// prompt lifts out to its own field, and consecutive tool results fold into
// one user message so the conversation alternates user/assistant.
func translate(messages []models.ChatMessage) (string, []anthMessage) {
	system := ""
	out := []anthMessage{}
	for _, m := range messages {
		switch m.Role {
		case models.RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += m.Content

		case models.RoleTool:
			block := anthContentBlock{
				Type:      "tool_result",
				ToolUseID: m.ToolCallID,
				Content:   m.Content,
			}
			if n := len(out); n > 0 && out[n-1].Role == "user" && out[n-1].Content[0].Type == "tool_result" {
				out[n-1].Content = append(out[n-1].Content, block)
				continue
			}
			out = append(out, anthMessage{Role: "user", Content: []anthContentBlock{block}})

		case models.RoleAssistant:
			blocks := []anthContentBlock{}
			if m.Content != "" {
				blocks = append(blocks, anthContentBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				input := tc.Args
				blocks = append(blocks, anthContentBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: &input,
				})
			}
			if len(blocks) == 0 {
				blocks = append(blocks, anthContentBlock{Type: "text", Text: ""})
			}
			out = append(out, anthMessage{Role: "assistant", Content: blocks})

		default:
			out = append(out, anthMessage{
				Role:    "user",
				Content: []anthContentBlock{{Type: "text", Text: m.Content}},
			})
		}
	}
	return system, out
}

func (c *anthropicClient) do(ctx context.Context, req anthRequest) (*http.Response, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if req.Model == "" {
		req.Model = c.model
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = 4096
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &ProviderError{Provider: "anthropic", Status: resp.StatusCode, Body: string(respBody)}
	}
	return resp, nil
}

func (c *anthropicClient) Chat(ctx context.Context, messages []models.ChatMessage, opts Options) (string, error) {
	resp, err := c.ChatWithTools(ctx, messages, nil, opts)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (c *anthropicClient) ChatWithTools(ctx context.Context, messages []models.ChatMessage, tools []models.ToolDefinition, opts Options) (*ToolResponse, error) {
	system, wireMessages := translate(messages)
	wireTools := make([]anthTool, 0, len(tools))
	for _, t := range tools {
		wireTools = append(wireTools, anthTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}

	resp, err := c.do(ctx, anthRequest{
		Model:       opts.Model,
		MaxTokens:   opts.MaxTokens,
		System:      system,
		Messages:    wireMessages,
		Tools:       wireTools,
		Temperature: opts.Temperature,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed anthResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("anthropic: %s: %s", parsed.Error.Type, parsed.Error.Message)
	}

	result := &ToolResponse{StopReason: parsed.StopReason}
	var text strings.Builder
	for _, block := range parsed.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args := value.Null()
			if block.Input != nil {
				args = *block.Input
			}
			result.ToolCalls = append(result.ToolCalls, models.ToolCall{
				ID:   block.ID,
				Name: block.Name,
				Args: args,
			})
		}
	}
	result.Text = strings.TrimSpace(text.String())
	return result, nil
}

// ChatStream parses the event-typed SSE stream, forwarding text from
// content_block_delta frames.
func (c *anthropicClient) ChatStream(ctx context.Context, messages []models.ChatMessage, opts Options) (<-chan string, <-chan error) {
	deltas := make(chan string, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(deltas)
		defer close(errs)

		system, wireMessages := translate(messages)
		resp, err := c.do(ctx, anthRequest{
			Model:       opts.Model,
			MaxTokens:   opts.MaxTokens,
			System:      system,
			Messages:    wireMessages,
			Temperature: opts.Temperature,
			Stream:      true,
		})
		if err != nil {
			errs <- err
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}
			var evt struct {
				Type  string `json:"type"`
				Delta *struct {
					Type string `json:"type"`
					Text string `json:"text,omitempty"`
				} `json:"delta,omitempty"`
				Error *struct {
					Type    string `json:"type"`
					Message string `json:"message"`
				} `json:"error,omitempty"`
			}
			if err := json.Unmarshal([]byte(data), &evt); err != nil {
				continue
			}
			if evt.Error != nil {
				errs <- fmt.Errorf("anthropic: %s: %s", evt.Error.Type, evt.Error.Message)
				return
			}
			if evt.Type == "message_stop" {
				return
			}
			if evt.Type == "content_block_delta" && evt.Delta != nil && evt.Delta.Text != "" {
				select {
				case deltas <- evt.Delta.Text:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- fmt.Errorf("stream read: %w", err)
		}
	}()

	return deltas, errs
}
