package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/openmaw-ai/openmaw/internal/llm"
	"github.com/openmaw-ai/openmaw/internal/toolrun"
	"github.com/openmaw-ai/openmaw/pkg/models"
)

// systemPrompt resolves the AI system prompt: inline text wins, else the
// referenced file relative to the plugin dir. Placeholders expand either way.
func systemPrompt(plugin models.LoadedPlugin, match models.Match, settings map[string]string) (string, error) {
	cfg := plugin.Manifest.Execution
	prompt := cfg.SystemPrompt
	if prompt == "" && cfg.SystemPromptFile != "" {
		data, err := os.ReadFile(filepath.Join(plugin.Dir, cfg.SystemPromptFile))
		if err != nil {
			return "", fmt.Errorf("read system prompt: %w", err)
		}
		prompt = string(data)
	}
	return strings.TrimSpace(expand(prompt, match.Input, settings)), nil
}

func (r *Runner) runAI(ctx context.Context, plugin models.LoadedPlugin, match models.Match, settings map[string]string) (*Execution, error) {
	if r.client == nil {
		return nil, llm.ErrNoAPIKey
	}
	cfg := plugin.Manifest.Execution

	prompt, err := systemPrompt(plugin, match, settings)
	if err != nil {
		return nil, err
	}

	messages := []models.ChatMessage{}
	if prompt != "" {
		messages = append(messages, models.ChatMessage{Role: models.RoleSystem, Content: prompt})
	}
	if cfg.Conversational {
		messages = append(messages, r.convos.Messages(plugin.Manifest.ID)...)
	}
	userMsg := models.ChatMessage{Role: models.RoleUser, Content: match.Input}
	messages = append(messages, userMsg)

	opts := llm.Options{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}

	dataDir, err := r.plugins.DataDir(plugin.Manifest.ID)
	if err != nil {
		return nil, fmt.Errorf("plugin data dir: %w", err)
	}
	tools := toolrun.New(plugin, settings, dataDir, r.toolDeps)
	defs := tools.Definitions()

	// Tool-capable plugins run the tool loop and never stream.
	if len(defs) > 0 {
		final, _, err := llm.RunToolLoop(ctx, r.client, tools, messages, defs, opts)
		if err != nil {
			return nil, err
		}
		return r.finishAI(plugin, userMsg, final), nil
	}

	// Conversational plugins stream implicitly, explicit flag or not.
	if cfg.Streaming || cfg.Conversational {
		return r.streamAI(ctx, plugin, userMsg, messages, opts), nil
	}

	final, err := r.client.Chat(ctx, messages, opts)
	if err != nil {
		return nil, err
	}
	return r.finishAI(plugin, userMsg, final), nil
}

// finishAI records the exchange for conversational plugins and wraps the
// final text as a result.
func (r *Runner) finishAI(plugin models.LoadedPlugin, userMsg models.ChatMessage, final string) *Execution {
	if plugin.Manifest.Execution.Conversational {
		r.convos.Append(plugin.Manifest.ID, userMsg)
		r.convos.Append(plugin.Manifest.ID, models.ChatMessage{Role: models.RoleAssistant, Content: final})
	}
	text, mode := ParseOutput(final, plugin.Manifest.DefaultOutput())
	return &Execution{Result: &models.Result{
		PluginID: plugin.Manifest.ID,
		Text:     text,
		Output:   mode,
	}}
}

// streamAI forwards provider deltas as stream events and closes with a Done
// frame carrying the accumulated text. The conversation is recorded only
// once the stream completes cleanly.
func (r *Runner) streamAI(ctx context.Context, plugin models.LoadedPlugin, userMsg models.ChatMessage, messages []models.ChatMessage, opts llm.Options) *Execution {
	events := make(chan models.StreamEvent, 16)
	deltas, errs := r.client.ChatStream(ctx, messages, opts)

	go func() {
		defer close(events)
		var b strings.Builder
		for deltas != nil || errs != nil {
			select {
			case delta, ok := <-deltas:
				if !ok {
					deltas = nil
					continue
				}
				b.WriteString(delta)
				events <- models.StreamEvent{Delta: delta}
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				if err != nil {
					events <- models.StreamEvent{Err: err}
					return
				}
			}
		}
		final := b.String()
		if plugin.Manifest.Execution.Conversational {
			r.convos.Append(plugin.Manifest.ID, userMsg)
			r.convos.Append(plugin.Manifest.ID, models.ChatMessage{Role: models.RoleAssistant, Content: final})
		}
		events <- models.StreamEvent{Done: true, Text: final}
	}()

	return &Execution{Stream: events}
}
