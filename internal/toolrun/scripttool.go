package toolrun

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/openmaw-ai/openmaw/internal/script"
	"github.com/openmaw-ai/openmaw/pkg/models"
)

// runScriptTool executes a manifest-declared tool script. Arguments travel
// twice: as a JSON document on stdin, and mirrored as TOOL_ARG_<KEY> env
// vars for shell one-liners that don't want to parse JSON.
func (r *Runner) runScriptTool(ctx context.Context, spec models.ToolSpec, call models.ToolCall) (string, error) {
	argsJSON, err := json.Marshal(call.Args)
	if err != nil {
		return "", fmt.Errorf("encode tool arguments: %w", err)
	}

	env := map[string]string{
		"PLUGIN_DIR": r.plugin.Dir,
		"DATA_DIR":   r.dataDir,
		"TOOL_NAME":  call.Name,
		"TOOL_ARGS":  string(argsJSON),
	}
	for _, member := range call.Args.Members() {
		env["TOOL_ARG_"+script.EnvName(member.Key)] = member.Val.Text()
	}
	for k, v := range r.settings {
		env[script.EnvName(k)] = v
	}

	scriptPath := filepath.Join(r.plugin.Dir, spec.Script)
	timeout := time.Duration(r.plugin.Manifest.Execution.TimeoutSeconds) * time.Second

	out, err := script.Run(ctx, script.Options{
		Command: script.Interpreter(scriptPath),
		Args:    []string{scriptPath},
		Dir:     r.plugin.Dir,
		Env:     env,
		Stdin:   string(argsJSON),
		Timeout: timeout,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
