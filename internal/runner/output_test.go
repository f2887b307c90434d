package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openmaw-ai/openmaw/pkg/models"
)

func TestParseOutput(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		def      models.OutputMode
		wantText string
		wantMode models.OutputMode
	}{
		{
			name:     "plain text keeps default mode",
			raw:      "hello world\n",
			def:      models.OutputPaste,
			wantText: "hello world",
			wantMode: models.OutputPaste,
		},
		{
			name:     "leading whitespace survives verbatim",
			raw:      "    indented line\n",
			def:      models.OutputPaste,
			wantText: "    indented line",
			wantMode: models.OutputPaste,
		},
		{
			name:     "json object with text and output",
			raw:      `{"text": "copied!", "output": "clipboard"}`,
			def:      models.OutputPaste,
			wantText: "copied!",
			wantMode: models.OutputClipboard,
		},
		{
			name:     "json object with text only keeps default",
			raw:      `{"text": "just text"}`,
			def:      models.OutputReply,
			wantText: "just text",
			wantMode: models.OutputReply,
		},
		{
			name:     "json without text field is treated as raw",
			raw:      `{"message": "not the convention"}`,
			def:      models.OutputPaste,
			wantText: `{"message": "not the convention"}`,
			wantMode: models.OutputPaste,
		},
		{
			name:     "output directive line",
			raw:      "@output:reply\nthe answer",
			def:      models.OutputPaste,
			wantText: "the answer",
			wantMode: models.OutputReply,
		},
		{
			name:     "directive without body is raw",
			raw:      "@output:reply",
			def:      models.OutputPaste,
			wantText: "@output:reply",
			wantMode: models.OutputPaste,
		},
		{
			name:     "empty text field is honored",
			raw:      `{"text": "", "output": "none"}`,
			def:      models.OutputPaste,
			wantText: "",
			wantMode: models.OutputNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, mode := ParseOutput(tt.raw, tt.def)
			assert.Equal(t, tt.wantText, text)
			assert.Equal(t, tt.wantMode, mode)
		})
	}
}

func TestExtractPath(t *testing.T) {
	doc := []byte(`{"choices": [{"message": {"content": "hi there"}}], "n": 3}`)

	got, err := extractPath(doc, ".choices[0].message.content")
	assert.NoError(t, err)
	assert.Equal(t, "hi there", got)

	got, err = extractPath(doc, ".n")
	assert.NoError(t, err)
	assert.Equal(t, "3", got)

	_, err = extractPath(doc, ".choices[5]")
	assert.Error(t, err)

	_, err = extractPath(doc, ".missing")
	assert.Error(t, err)

	_, err = extractPath([]byte("not json"), ".a")
	assert.Error(t, err)
}

func TestExpandValue(t *testing.T) {
	body := mustDecode(t, `{"prompt": "{{input}}", "key": "{{settings.api_key}}", "nested": {"q": "{{input}}"}, "n": 1}`)
	out := expandValue(body, "hello", map[string]string{"api_key": "sk-123"})

	data, err := out.MarshalJSON()
	assert.NoError(t, err)
	assert.JSONEq(t, `{"prompt": "hello", "key": "sk-123", "nested": {"q": "hello"}, "n": 1}`, string(data))
}
