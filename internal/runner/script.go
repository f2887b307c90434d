package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/openmaw-ai/openmaw/internal/script"
	"github.com/openmaw-ai/openmaw/pkg/models"
)

// scriptEnv builds the environment contract every plugin subprocess gets:
// the stripped input, the raw utterance, the matched trigger text, the
// plugin's own directory, its data directory, and one variable per resolved
// setting.
func scriptEnv(plugin models.LoadedPlugin, match models.Match, dataDir string, settings map[string]string) map[string]string {
	env := map[string]string{
		"INPUT":      match.Input,
		"RAW_INPUT":  match.RawInput,
		"TRIGGER":    match.TriggerText,
		"PLUGIN_DIR": plugin.Dir,
		"DATA_DIR":   dataDir,
	}
	for k, v := range settings {
		env[script.EnvName(k)] = v
	}
	return env
}

func (r *Runner) runScript(ctx context.Context, plugin models.LoadedPlugin, match models.Match, settings map[string]string) (*Execution, error) {
	cfg := plugin.Manifest.Execution
	dataDir, err := r.plugins.DataDir(plugin.Manifest.ID)
	if err != nil {
		return nil, fmt.Errorf("plugin data dir: %w", err)
	}

	scriptPath := filepath.Join(plugin.Dir, cfg.Command)
	if cfg.Inline != "" {
		// Inline scripts run from a private temp file, owner-only.
		tmp, err := os.CreateTemp("", "openmaw-inline-*")
		if err != nil {
			return nil, fmt.Errorf("write inline script: %w", err)
		}
		defer os.Remove(tmp.Name())
		if _, err := tmp.WriteString(cfg.Inline); err != nil {
			tmp.Close()
			return nil, fmt.Errorf("write inline script: %w", err)
		}
		if err := tmp.Close(); err != nil {
			return nil, fmt.Errorf("write inline script: %w", err)
		}
		if err := os.Chmod(tmp.Name(), 0o700); err != nil {
			return nil, fmt.Errorf("write inline script: %w", err)
		}
		scriptPath = tmp.Name()
	}

	interpreter := cfg.Interpreter
	if interpreter == "" {
		if cfg.Inline != "" {
			interpreter = "sh"
		} else {
			interpreter = script.Interpreter(cfg.Command)
		}
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	out, err := script.Run(ctx, script.Options{
		Command: interpreter,
		Args:    []string{scriptPath},
		Dir:     plugin.Dir,
		Env:     scriptEnv(plugin, match, dataDir, settings),
		Stdin:   match.Input,
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}

	text, mode := ParseOutput(out, plugin.Manifest.DefaultOutput())
	return &Execution{Result: &models.Result{
		PluginID: plugin.Manifest.ID,
		Text:     text,
		Output:   mode,
	}}, nil
}
