package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/openmaw-ai/openmaw/pkg/models"
)

// DefaultMaxTurns caps the tool-calling loop. A model that keeps asking
// for tools gets cut off with whatever text it produced last.
const DefaultMaxTurns = 10

// ToolRunner executes one tool call. Failures come back as IsError
// results so the model can see them and recover.
type ToolRunner interface {
	RunTool(ctx context.Context, call models.ToolCall) models.ToolResult
}

// RunToolLoop drives the tool-calling conversation: one non-streaming
// round-trip per turn, execute any requested tools, append the results,
// repeat until the model answers with plain text. It returns the final
// text and the full message history including tool traffic.
func RunToolLoop(ctx context.Context, client Client, runner ToolRunner, messages []models.ChatMessage, tools []models.ToolDefinition, opts Options) (string, []models.ChatMessage, error) {
	history := make([]models.ChatMessage, len(messages))
	copy(history, messages)

	lastText := ""
	for turn := 0; turn < DefaultMaxTurns; turn++ {
		resp, err := client.ChatWithTools(ctx, history, tools, opts)
		if err != nil {
			return "", history, err
		}
		lastText = resp.Text

		if len(resp.ToolCalls) == 0 {
			history = append(history, models.ChatMessage{
				Role:    models.RoleAssistant,
				Content: resp.Text,
			})
			return resp.Text, history, nil
		}

		history = append(history, models.ChatMessage{
			Role:      models.RoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			log.Debug().Str("tool", call.Name).Str("id", call.ID).Msg("executing tool call")
			result := runner.RunTool(ctx, call)
			history = append(history, models.ChatMessage{
				Role:       models.RoleTool,
				Content:    result.Content,
				ToolCallID: result.ToolCallID,
			})
		}
	}

	final := fmt.Sprintf("[Max turns (%d) reached] %s", DefaultMaxTurns, lastText)
	history = append(history, models.ChatMessage{Role: models.RoleAssistant, Content: final})
	return final, history, nil
}
