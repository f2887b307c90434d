// Package runner executes matched plugins per their manifest's execution
// variant: script, http, shortcut, ai, or pipeline. It owns timeouts,
// streaming, output parsing, and the pipeline depth guard. The dispatcher
// tolerates reentrant invocation: the AI tool loop and pipeline steps both
// call back into it.
package runner

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openmaw-ai/openmaw/internal/convo"
	"github.com/openmaw-ai/openmaw/internal/llm"
	"github.com/openmaw-ai/openmaw/internal/plugins"
	"github.com/openmaw-ai/openmaw/internal/toolrun"
	"github.com/openmaw-ai/openmaw/pkg/models"
)

// PluginSource is the slice of the loader the runner reads.
type PluginSource interface {
	Get(id string) (models.LoadedPlugin, bool)
	DataDir(pluginID string) (string, error)
}

// UsageRecorder observes completed dispatches. May be nil.
type UsageRecorder interface {
	Record(pluginID string, kind models.ExecutionType, duration time.Duration, execErr error)
}

// Execution is what a dispatch produced: a complete result, or a stream of
// events for streaming AI plugins. Exactly one field is set.
type Execution struct {
	Result *models.Result
	Stream <-chan models.StreamEvent
}

// Runner is the execution dispatcher.
type Runner struct {
	plugins    PluginSource
	settings   *plugins.Settings
	convos     *convo.Manager
	client     llm.Client
	usage      UsageRecorder
	toolDeps   toolrun.Deps
	httpClient *http.Client
}

// New wires the dispatcher. client may be nil when no AI provider is
// configured; AI executions then fail with llm.ErrNoAPIKey.
func New(source PluginSource, settings *plugins.Settings, convos *convo.Manager, client llm.Client, usage UsageRecorder, toolDeps toolrun.Deps) *Runner {
	r := &Runner{
		plugins:    source,
		settings:   settings,
		convos:     convos,
		client:     client,
		usage:      usage,
		toolDeps:   toolDeps,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	// run_plugin tool calls and pipeline steps re-enter through the runner.
	r.toolDeps.Dispatcher = reentrant{r}
	return r
}

type depthKey struct{}

func depth(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}

func deeper(ctx context.Context) context.Context {
	return context.WithValue(ctx, depthKey{}, depth(ctx)+1)
}

// Execute runs a match and produces a result or a stream. Errors are typed:
// script.ErrTimeout, script.ExitError, HTTPStatusError, ErrPluginNotFound,
// ErrPipelineDepth, and the llm sentinels all pass through uninterpreted.
func (r *Runner) Execute(ctx context.Context, match models.Match) (*Execution, error) {
	plugin, ok := r.plugins.Get(match.PluginID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, match.PluginID)
	}

	settings, err := r.settings.Resolved(plugin.Manifest)
	if err != nil {
		return nil, fmt.Errorf("resolve settings: %w", err)
	}

	start := time.Now()
	invocation := uuid.New().String()
	log.Info().
		Str("invocation", invocation).
		Str("plugin", plugin.Manifest.ID).
		Str("kind", string(plugin.Manifest.Execution.Type)).
		Msg("▶️  executing plugin")

	var exec *Execution
	switch plugin.Manifest.Execution.Type {
	case models.ExecScript:
		exec, err = r.runScript(ctx, plugin, match, settings)
	case models.ExecHTTP:
		exec, err = r.runHTTP(ctx, plugin, match, settings)
	case models.ExecShortcut:
		exec, err = r.runShortcut(ctx, plugin, match, settings)
	case models.ExecAI:
		exec, err = r.runAI(ctx, plugin, match, settings)
	case models.ExecPipeline:
		exec, err = r.runPipeline(ctx, plugin, match)
	default:
		err = fmt.Errorf("unknown execution type %q", plugin.Manifest.Execution.Type)
	}

	if r.usage != nil && (exec == nil || exec.Stream == nil) {
		r.usage.Record(plugin.Manifest.ID, plugin.Manifest.Execution.Type, time.Since(start), err)
	}
	if err != nil {
		log.Warn().
			Str("invocation", invocation).
			Str("plugin", plugin.Manifest.ID).
			Err(err).
			Msg("plugin execution failed")
		return nil, err
	}
	if exec.Result != nil {
		exec.Result.Duration = time.Since(start)
	}
	return exec, nil
}

// ── Pipeline ────────────────────────────────────────────────

func (r *Runner) runPipeline(ctx context.Context, plugin models.LoadedPlugin, match models.Match) (*Execution, error) {
	if depth(ctx) >= maxPipelineDepth {
		return nil, fmt.Errorf("%w (%d) at plugin %s", ErrPipelineDepth, maxPipelineDepth, plugin.Manifest.ID)
	}
	ctx = deeper(ctx)

	text := match.Input
	for i, step := range plugin.Manifest.Execution.Steps {
		target, ok := r.plugins.Get(step.Plugin)
		if !ok {
			return nil, fmt.Errorf("pipeline step %d: %w: %s", i+1, ErrPluginNotFound, step.Plugin)
		}
		stepMatch := models.Match{
			PluginID: target.Manifest.ID,
			Input:    text,
			RawInput: text,
		}
		exec, err := r.Execute(ctx, stepMatch)
		if err != nil {
			return nil, fmt.Errorf("pipeline step %d (%s): %w", i+1, step.Plugin, err)
		}
		text, err = drain(exec)
		if err != nil {
			return nil, fmt.Errorf("pipeline step %d (%s): %w", i+1, step.Plugin, err)
		}
	}

	parsed, mode := ParseOutput(text, plugin.Manifest.DefaultOutput())
	return &Execution{Result: &models.Result{
		PluginID: plugin.Manifest.ID,
		Text:     parsed,
		Output:   mode,
	}}, nil
}

// drain collapses an execution to text; streams are fully consumed.
// Pipelines never stream.
func drain(exec *Execution) (string, error) {
	if exec.Result != nil {
		return exec.Result.Text, nil
	}
	var b strings.Builder
	for ev := range exec.Stream {
		if ev.Err != nil {
			return "", ev.Err
		}
		if ev.Done {
			return ev.Text, nil
		}
		b.WriteString(ev.Delta)
	}
	return b.String(), nil
}

// ── Reentry for run_plugin tool calls ───────────────────────

type reentrant struct{ r *Runner }

func (d reentrant) RunPlugin(ctx context.Context, pluginID, input string) (string, error) {
	if depth(ctx) >= maxPipelineDepth {
		return "", fmt.Errorf("%w (%d) at plugin %s", ErrPipelineDepth, maxPipelineDepth, pluginID)
	}
	exec, err := d.r.Execute(deeper(ctx), models.Match{
		PluginID: pluginID,
		Input:    input,
		RawInput: input,
	})
	if err != nil {
		return "", err
	}
	return drain(exec)
}
