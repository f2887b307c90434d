package runner

import (
	"encoding/json"
	"strings"

	"github.com/openmaw-ai/openmaw/pkg/models"
)

// ParseOutput applies the shared output convention to raw executor text.
// A JSON object with a "text" field wins, then an "@output:<mode>" first
// line, else the text passes through verbatim (minus trailing newlines)
// with the default mode. Any executor can reroute its result this way
// without a structured API.
func ParseOutput(raw string, def models.OutputMode) (string, models.OutputMode) {
	trimmed := strings.TrimSpace(raw)

	if strings.HasPrefix(trimmed, "{") {
		var obj struct {
			Text   *string `json:"text"`
			Output string  `json:"output"`
		}
		if err := json.Unmarshal([]byte(trimmed), &obj); err == nil && obj.Text != nil {
			mode := def
			if obj.Output != "" {
				mode = models.OutputMode(obj.Output)
			}
			return *obj.Text, mode
		}
	}

	if strings.HasPrefix(trimmed, "@output:") {
		head, rest, found := strings.Cut(trimmed, "\n")
		if found {
			mode := models.OutputMode(strings.TrimSpace(strings.TrimPrefix(head, "@output:")))
			if mode != "" {
				return rest, mode
			}
		}
	}

	// Verbatim path: scripts almost always end with a newline, but leading
	// whitespace may be deliberate output.
	return strings.TrimRight(raw, "\n"), def
}
