package toolrun

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/openmaw-ai/openmaw/pkg/models"
	"github.com/openmaw-ai/openmaw/pkg/value"
)

func toolPlugin(dir string, tools ...models.ToolSpec) models.LoadedPlugin {
	return models.LoadedPlugin{
		Manifest: models.Manifest{
			ID:   "assistant",
			Name: "Assistant",
			Trigger: models.Trigger{
				Type:     models.TriggerKeyword,
				Keywords: []string{"assistant"},
			},
			Execution: models.ExecutionConfig{
				Type:         models.ExecAI,
				SystemPrompt: "help",
			},
			Tools: tools,
		},
		Dir:     dir,
		Enabled: true,
	}
}

type fakeClipboard struct{ text string }

func (f *fakeClipboard) ReadText() (string, error) { return f.text, nil }

type fakePaster struct{ got string }

func (f *fakePaster) Paste(text string) error {
	f.got = text
	return nil
}

type fakeDispatcher struct {
	lastPlugin string
	lastInput  string
	result     string
	err        error
}

func (f *fakeDispatcher) RunPlugin(_ context.Context, pluginID, input string) (string, error) {
	f.lastPlugin = pluginID
	f.lastInput = input
	return f.result, f.err
}

func args(t *testing.T, raw string) value.Value {
	t.Helper()
	v, err := value.Decode([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestDefinitions(t *testing.T) {
	params := args(t, `{"type":"object","properties":{"city":{"type":"string"}}}`)
	r := New(toolPlugin(t.TempDir(),
		models.ToolSpec{Name: "clipboard_read"},
		models.ToolSpec{Name: "weather", Description: "look up weather", Script: "weather.sh", Parameters: &params},
		models.ToolSpec{Name: "bogus_builtin"},
	), nil, t.TempDir(), Deps{})

	defs := r.Definitions()
	if len(defs) != 2 {
		t.Fatalf("definitions = %d, want 2 (unknown built-in skipped)", len(defs))
	}
	if defs[0].Name != "clipboard_read" || defs[0].Description == "" {
		t.Errorf("built-in def = %+v, want default description", defs[0])
	}
	if defs[1].Name != "weather" {
		t.Errorf("script def = %+v", defs[1])
	}
	if _, ok := defs[1].Parameters.Field("properties"); !ok {
		t.Error("declared parameter schema not carried through")
	}
}

func TestBuiltinTools(t *testing.T) {
	clip := &fakeClipboard{text: "copied text"}
	paster := &fakePaster{}
	disp := &fakeDispatcher{result: "UPPER OUT"}

	r := New(toolPlugin(t.TempDir(),
		models.ToolSpec{Name: "clipboard_read"},
		models.ToolSpec{Name: "paste"},
		models.ToolSpec{Name: "run_plugin"},
	), nil, t.TempDir(), Deps{Clipboard: clip, Paster: paster, Dispatcher: disp})

	res := r.RunTool(context.Background(), models.ToolCall{ID: "1", Name: "clipboard_read", Args: value.Object()})
	if res.IsError || res.Content != "copied text" {
		t.Errorf("clipboard_read = %+v", res)
	}

	res = r.RunTool(context.Background(), models.ToolCall{ID: "2", Name: "paste", Args: args(t, `{"text":"hi"}`)})
	if res.IsError || paster.got != "hi" {
		t.Errorf("paste = %+v, pasted %q", res, paster.got)
	}

	res = r.RunTool(context.Background(), models.ToolCall{ID: "3", Name: "run_plugin", Args: args(t, `{"plugin":"upper","input":"out"}`)})
	if res.IsError || res.Content != "UPPER OUT" {
		t.Errorf("run_plugin = %+v", res)
	}
	if disp.lastPlugin != "upper" || disp.lastInput != "out" {
		t.Errorf("dispatch args = %q, %q", disp.lastPlugin, disp.lastInput)
	}
}

func TestFailuresBecomeErrorResults(t *testing.T) {
	disp := &fakeDispatcher{err: errors.New("plugin not found")}
	r := New(toolPlugin(t.TempDir(),
		models.ToolSpec{Name: "run_plugin"},
	), nil, t.TempDir(), Deps{Dispatcher: disp})

	res := r.RunTool(context.Background(), models.ToolCall{ID: "1", Name: "run_plugin", Args: args(t, `{"plugin":"x"}`)})
	if !res.IsError {
		t.Fatal("expected error result")
	}
	if !strings.Contains(res.Content, "plugin not found") {
		t.Errorf("content = %q, want underlying error visible to the model", res.Content)
	}

	// undeclared tool
	res = r.RunTool(context.Background(), models.ToolCall{ID: "2", Name: "web_search", Args: value.Object()})
	if !res.IsError || !strings.Contains(res.Content, "not declared") {
		t.Errorf("undeclared tool = %+v", res)
	}
}

func TestScriptTool(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell tests need a POSIX sh")
	}
	pluginDir := t.TempDir()
	scriptBody := "#!/bin/sh\n" +
		"stdin=$(cat)\n" +
		"echo \"args=$stdin city=$TOOL_ARG_CITY key=$API_KEY\"\n"
	if err := os.WriteFile(filepath.Join(pluginDir, "weather.sh"), []byte(scriptBody), 0o755); err != nil {
		t.Fatal(err)
	}

	r := New(toolPlugin(pluginDir,
		models.ToolSpec{Name: "weather", Script: "weather.sh"},
	), map[string]string{"api_key": "k123"}, t.TempDir(), Deps{})

	res := r.RunTool(context.Background(), models.ToolCall{
		ID:   "1",
		Name: "weather",
		Args: args(t, `{"city":"Oslo"}`),
	})
	if res.IsError {
		t.Fatalf("script tool failed: %s", res.Content)
	}
	if !strings.Contains(res.Content, `{"city":"Oslo"}`) {
		t.Errorf("stdin JSON missing: %q", res.Content)
	}
	if !strings.Contains(res.Content, "city=Oslo") || !strings.Contains(res.Content, "key=k123") {
		t.Errorf("env mirror missing: %q", res.Content)
	}
}

func TestScriptToolFailureIsResult(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell tests need a POSIX sh")
	}
	pluginDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(pluginDir, "fail.sh"), []byte("#!/bin/sh\necho bad >&2\nexit 1\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	r := New(toolPlugin(pluginDir,
		models.ToolSpec{Name: "fail", Script: "fail.sh"},
	), nil, t.TempDir(), Deps{})

	res := r.RunTool(context.Background(), models.ToolCall{ID: "1", Name: "fail", Args: value.Object()})
	if !res.IsError {
		t.Fatal("expected error result")
	}
	if !strings.Contains(res.Content, "bad") {
		t.Errorf("stderr not surfaced: %q", res.Content)
	}
}
