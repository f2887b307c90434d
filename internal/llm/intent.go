package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openmaw-ai/openmaw/pkg/models"
)

const intentSystemPrompt = "You decide whether a dictated utterance matches an intent description. Answer with exactly one word: yes or no."

// Classifier answers intent-trigger questions with a short yes/no
// completion. The matcher treats any error as "no match".
type Classifier struct {
	client Client
}

// NewClassifier wraps a chat client for intent classification.
func NewClassifier(client Client) *Classifier {
	return &Classifier{client: client}
}

func (c *Classifier) ClassifyIntent(ctx context.Context, text, description string) (bool, error) {
	prompt := fmt.Sprintf("Intent: %s\nUtterance: %s\nDoes the utterance match the intent?", description, text)
	answer, err := c.client.Chat(ctx, []models.ChatMessage{
		{Role: models.RoleSystem, Content: intentSystemPrompt},
		{Role: models.RoleUser, Content: prompt},
	}, Options{MaxTokens: 5})
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "yes"), nil
}
