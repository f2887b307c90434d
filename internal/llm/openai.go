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

	"github.com/rs/zerolog/log"

	"github.com/openmaw-ai/openmaw/internal/config"
	"github.com/openmaw-ai/openmaw/pkg/models"
	"github.com/openmaw-ai/openmaw/pkg/value"
)

// openAIClient speaks the OpenAI chat-completions protocol. Tool results
// keep their uniform "tool" role on this wire; no re-representation needed.
type openAIClient struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func newOpenAIClient(cfg config.AIConfig, httpClient *http.Client) *openAIClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &openAIClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   cfg.Model,
		client:  httpClient,
	}
}

// ── Wire types ──────────────────────────────────────────────

type oaiMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	ToolCalls  []oaiToolCall `json:"tool_calls,omitempty"`
}

type oaiToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type oaiTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string      `json:"name"`
		Description string      `json:"description"`
		Parameters  value.Value `json:"parameters"`
	} `json:"function"`
}

type oaiRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	Temperature float64      `json:"temperature,omitempty"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Tools       []oaiTool    `json:"tools,omitempty"`
	Stream      bool         `json:"stream,omitempty"`
}

type oaiResponse struct {
	Choices []struct {
		Message      oaiMessage `json:"message"`
		FinishReason string     `json:"finish_reason"`
	} `json:"choices"`
}

func toWireMessages(messages []models.ChatMessage) []oaiMessage {
	out := make([]oaiMessage, 0, len(messages))
	for _, m := range messages {
		wire := oaiMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Args)
			if err != nil {
				args = []byte("{}")
			}
			wtc := oaiToolCall{ID: tc.ID, Type: "function"}
			wtc.Function.Name = tc.Name
			wtc.Function.Arguments = string(args)
			wire.ToolCalls = append(wire.ToolCalls, wtc)
		}
		out = append(out, wire)
	}
	return out
}

func toWireTools(tools []models.ToolDefinition) []oaiTool {
	out := make([]oaiTool, 0, len(tools))
	for _, t := range tools {
		wt := oaiTool{Type: "function"}
		wt.Function.Name = t.Name
		wt.Function.Description = t.Description
		wt.Function.Parameters = t.Parameters
		out = append(out, wt)
	}
	return out
}

func (c *openAIClient) do(ctx context.Context, req oaiRequest) (*http.Response, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if req.Model == "" {
		req.Model = c.model
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &ProviderError{Provider: "openai", Status: resp.StatusCode, Body: string(respBody)}
	}
	return resp, nil
}

func (c *openAIClient) Chat(ctx context.Context, messages []models.ChatMessage, opts Options) (string, error) {
	resp, err := c.ChatWithTools(ctx, messages, nil, opts)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (c *openAIClient) ChatWithTools(ctx context.Context, messages []models.ChatMessage, tools []models.ToolDefinition, opts Options) (*ToolResponse, error) {
	resp, err := c.do(ctx, oaiRequest{
		Model:       opts.Model,
		Messages:    toWireMessages(messages),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Tools:       toWireTools(tools),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed oaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}

	choice := parsed.Choices[0]
	result := &ToolResponse{
		Text:       choice.Message.Content,
		StopReason: choice.FinishReason,
	}
	for _, wtc := range choice.Message.ToolCalls {
		args, err := value.Decode([]byte(wtc.Function.Arguments))
		if err != nil {
			return nil, fmt.Errorf("%w: tool arguments for %s: %v", ErrMalformedResponse, wtc.Function.Name, err)
		}
		result.ToolCalls = append(result.ToolCalls, models.ToolCall{
			ID:   wtc.ID,
			Name: wtc.Function.Name,
			Args: args,
		})
	}
	return result, nil
}

// ChatStream issues a streaming completion and forwards text deltas. The
// error channel receives at most one error; both channels close when the
// stream ends.
func (c *openAIClient) ChatStream(ctx context.Context, messages []models.ChatMessage, opts Options) (<-chan string, <-chan error) {
	deltas := make(chan string, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(deltas)
		defer close(errs)

		resp, err := c.do(ctx, oaiRequest{
			Model:       opts.Model,
			Messages:    toWireMessages(messages),
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
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
			if data == "[DONE]" {
				return
			}
			var frame struct {
				Choices []struct {
					Delta struct {
						Content string `json:"content"`
					} `json:"delta"`
				} `json:"choices"`
			}
			if err := json.Unmarshal([]byte(data), &frame); err != nil {
				log.Debug().Err(err).Msg("skipping unparseable stream frame")
				continue
			}
			if len(frame.Choices) == 0 || frame.Choices[0].Delta.Content == "" {
				continue
			}
			select {
			case deltas <- frame.Choices[0].Delta.Content:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- fmt.Errorf("stream read: %w", err)
		}
	}()

	return deltas, errs
}
