package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmaw-ai/openmaw/internal/convo"
	"github.com/openmaw-ai/openmaw/internal/llm"
	"github.com/openmaw-ai/openmaw/internal/plugins"
	"github.com/openmaw-ai/openmaw/internal/script"
	"github.com/openmaw-ai/openmaw/internal/secrets"
	"github.com/openmaw-ai/openmaw/internal/toolrun"
	"github.com/openmaw-ai/openmaw/pkg/models"
	"github.com/openmaw-ai/openmaw/pkg/value"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func mustDecode(t *testing.T, s string) value.Value {
	t.Helper()
	v, err := value.Decode([]byte(s))
	require.NoError(t, err)
	return v
}

type fakeSource struct {
	dataDir string
	set     map[string]models.LoadedPlugin
}

func (f *fakeSource) Get(id string) (models.LoadedPlugin, bool) {
	p, ok := f.set[id]
	return p, ok
}

func (f *fakeSource) DataDir(pluginID string) (string, error) {
	dir := filepath.Join(f.dataDir, "plugin-data", pluginID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

type testHarness struct {
	runner *Runner
	source *fakeSource
	convos *convo.Manager
}

func newHarness(t *testing.T, client llm.Client, set ...models.LoadedPlugin) *testHarness {
	t.Helper()
	dataDir := t.TempDir()
	store := secrets.NewFileStore(filepath.Join(dataDir, "secrets.json"))

	source := &fakeSource{dataDir: dataDir, set: map[string]models.LoadedPlugin{}}
	for _, p := range set {
		source.set[p.Manifest.ID] = p
	}
	convos := convo.NewManager()
	r := New(source, plugins.NewSettings(dataDir, store), convos, client, nil, toolrun.Deps{})
	return &testHarness{runner: r, source: source, convos: convos}
}

func inlinePlugin(id, body string) models.LoadedPlugin {
	return models.LoadedPlugin{
		Manifest: models.Manifest{
			ID:   id,
			Name: id,
			Trigger: models.Trigger{
				Type:     models.TriggerKeyword,
				Keywords: []string{id},
			},
			Execution: models.ExecutionConfig{
				Type:   models.ExecScript,
				Inline: body,
			},
		},
		Dir:     os.TempDir(),
		Enabled: true,
	}
}

func TestExecuteScriptEnvContract(t *testing.T) {
	skipOnWindows(t)

	h := newHarness(t, nil, inlinePlugin("env-probe",
		`printf '%s|%s|%s' "$INPUT" "$RAW_INPUT" "$GREETING"`))
	p := h.source.set["env-probe"]
	p.Manifest.Settings = []models.SettingSpec{{
		Key:     "greeting",
		Type:    models.SettingString,
		Default: valuePtr(value.String("hello")),
	}}
	h.source.set["env-probe"] = p

	exec, err := h.runner.Execute(context.Background(), models.Match{
		PluginID: "env-probe",
		Input:    "stripped text",
		RawInput: "probe stripped text",
	})
	require.NoError(t, err)
	require.NotNil(t, exec.Result)
	assert.Equal(t, "stripped text|probe stripped text|hello", exec.Result.Text)
	assert.Equal(t, models.OutputPaste, exec.Result.Output)
}

func valuePtr(v value.Value) *value.Value { return &v }

func TestExecuteScriptReadsStdin(t *testing.T) {
	skipOnWindows(t)

	h := newHarness(t, nil, inlinePlugin("rev", `tr 'a-z' 'A-Z'`))
	exec, err := h.runner.Execute(context.Background(), models.Match{
		PluginID: "rev",
		Input:    "quiet",
		RawInput: "quiet",
	})
	require.NoError(t, err)
	assert.Equal(t, "QUIET", exec.Result.Text)
}

func TestExecuteUnknownPlugin(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.runner.Execute(context.Background(), models.Match{PluginID: "ghost"})
	assert.ErrorIs(t, err, ErrPluginNotFound)
}

func TestExecuteScriptOutputDirective(t *testing.T) {
	skipOnWindows(t)

	h := newHarness(t, nil, inlinePlugin("to-clipboard",
		`printf '@output:clipboard\ncopied text'`))
	exec, err := h.runner.Execute(context.Background(), models.Match{
		PluginID: "to-clipboard", Input: "x", RawInput: "x",
	})
	require.NoError(t, err)
	assert.Equal(t, "copied text", exec.Result.Text)
	assert.Equal(t, models.OutputClipboard, exec.Result.Output)
}

func TestExecutePipelineComposes(t *testing.T) {
	skipOnWindows(t)

	upper := inlinePlugin("upper", `tr 'a-z' 'A-Z'`)
	exclaim := inlinePlugin("exclaim", `printf '%s!' "$INPUT"`)
	pipe := models.LoadedPlugin{
		Manifest: models.Manifest{
			ID:      "shout",
			Name:    "shout",
			Trigger: models.Trigger{Type: models.TriggerKeyword, Keywords: []string{"shout"}},
			Execution: models.ExecutionConfig{
				Type: models.ExecPipeline,
				Steps: []models.PipelineStep{
					{Plugin: "upper"},
					{Plugin: "exclaim"},
				},
			},
			Output: models.OutputReply,
		},
		Enabled: true,
	}

	h := newHarness(t, nil, upper, exclaim, pipe)
	exec, err := h.runner.Execute(context.Background(), models.Match{
		PluginID: "shout", Input: "hi", RawInput: "shout hi",
	})
	require.NoError(t, err)
	assert.Equal(t, "HI!", exec.Result.Text)
	assert.Equal(t, models.OutputReply, exec.Result.Output)
}

func TestExecutePipelineMissingStep(t *testing.T) {
	pipe := models.LoadedPlugin{
		Manifest: models.Manifest{
			ID:      "broken",
			Name:    "broken",
			Trigger: models.Trigger{Type: models.TriggerCatchAll},
			Execution: models.ExecutionConfig{
				Type:  models.ExecPipeline,
				Steps: []models.PipelineStep{{Plugin: "nope"}},
			},
		},
		Enabled: true,
	}

	h := newHarness(t, nil, pipe)
	_, err := h.runner.Execute(context.Background(), models.Match{PluginID: "broken", Input: "x"})
	assert.ErrorIs(t, err, ErrPluginNotFound)
}

func TestExecutePipelineDepthLimit(t *testing.T) {
	loop := models.LoadedPlugin{
		Manifest: models.Manifest{
			ID:      "ouroboros",
			Name:    "ouroboros",
			Trigger: models.Trigger{Type: models.TriggerCatchAll},
			Execution: models.ExecutionConfig{
				Type:  models.ExecPipeline,
				Steps: []models.PipelineStep{{Plugin: "ouroboros"}},
			},
		},
		Enabled: true,
	}

	h := newHarness(t, nil, loop)
	_, err := h.runner.Execute(context.Background(), models.Match{PluginID: "ouroboros", Input: "x"})
	assert.ErrorIs(t, err, ErrPipelineDepth)
}

func TestExecuteScriptFailureSurfaces(t *testing.T) {
	skipOnWindows(t)

	h := newHarness(t, nil, inlinePlugin("fails", `echo "boom" >&2; exit 3`))
	_, err := h.runner.Execute(context.Background(), models.Match{PluginID: "fails", Input: "x"})
	require.Error(t, err)

	var exitErr *script.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.Code)
	assert.Contains(t, exitErr.Stderr, "boom")
}
