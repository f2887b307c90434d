package runner

import (
	"context"
	"runtime"
	"time"

	"github.com/openmaw-ai/openmaw/internal/script"
	"github.com/openmaw-ai/openmaw/pkg/models"
)

// shortcutCommand picks the host bridge for shortcut executions. macOS
// ships a shortcuts CLI; elsewhere a shim named openmaw-shortcut must be
// on PATH.
func shortcutCommand(name string) (string, []string) {
	if runtime.GOOS == "darwin" {
		return "shortcuts", []string{"run", name}
	}
	return "openmaw-shortcut", []string{name}
}

func (r *Runner) runShortcut(ctx context.Context, plugin models.LoadedPlugin, match models.Match, settings map[string]string) (*Execution, error) {
	cfg := plugin.Manifest.Execution
	command, args := shortcutCommand(cfg.Shortcut)

	env := map[string]string{
		"INPUT":     match.Input,
		"RAW_INPUT": match.RawInput,
	}
	for k, v := range settings {
		env[script.EnvName(k)] = v
	}

	out, err := script.Run(ctx, script.Options{
		Command: command,
		Args:    args,
		Env:     env,
		Stdin:   match.Input,
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
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
