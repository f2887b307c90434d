// Package toolrun executes tool calls requested by the model during an AI
// turn. Built-in tools run in-process; manifest-declared script tools run
// as subprocesses. Failures are returned as error results the model can
// read, never as Go errors: a failing tool must not abort the AI turn.
package toolrun

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/rs/zerolog/log"

	"github.com/openmaw-ai/openmaw/pkg/models"
	"github.com/openmaw-ai/openmaw/pkg/value"
)

// Clipboard reads the system clipboard. Platform glue implements it.
type Clipboard interface {
	ReadText() (string, error)
}

// Paster delivers text to the system input focus. Platform glue implements it.
type Paster interface {
	Paste(text string) error
}

// Searcher answers web_search tool calls.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Dispatcher re-enters plugin execution for run_plugin tool calls. The
// engine's runner implements it; streaming results arrive fully drained.
type Dispatcher interface {
	RunPlugin(ctx context.Context, pluginID, input string) (string, error)
}

// Deps are the collaborators a Runner needs. Nil members disable the
// corresponding built-in tool.
type Deps struct {
	Clipboard  Clipboard
	Paster     Paster
	Searcher   Searcher
	Dispatcher Dispatcher
}

// Runner executes the tools one plugin declared, for one invocation.
type Runner struct {
	plugin   models.LoadedPlugin
	settings map[string]string
	dataDir  string
	deps     Deps
}

// New builds a tool runner scoped to one plugin invocation.
func New(plugin models.LoadedPlugin, settings map[string]string, dataDir string, deps Deps) *Runner {
	return &Runner{plugin: plugin, settings: settings, dataDir: dataDir, deps: deps}
}

// ── Built-in argument shapes ────────────────────────────────

type webSearchArgs struct {
	Query string `json:"query" jsonschema:"description=The search query"`
}

type clipboardReadArgs struct{}

type pasteArgs struct {
	Text string `json:"text" jsonschema:"description=Text to paste at the current input focus"`
}

type runPluginArgs struct {
	Plugin string `json:"plugin" jsonschema:"description=Id of the plugin to invoke"`
	Input  string `json:"input" jsonschema:"description=Input text for the plugin"`
}

var builtinDescriptions = map[string]string{
	"web_search":     "Search the web and return a short textual summary of results.",
	"clipboard_read": "Read the current text content of the system clipboard.",
	"paste":          "Paste text at the current system input focus.",
	"run_plugin":     "Invoke another installed plugin with the given input and return its output.",
}

func reflectSchema(v interface{}) value.Value {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(v)
	data, err := json.Marshal(schema)
	if err != nil {
		return value.Object()
	}
	decoded, err := value.Decode(data)
	if err != nil {
		return value.Object()
	}
	return decoded
}

func builtinSchema(name string) (value.Value, bool) {
	switch name {
	case "web_search":
		return reflectSchema(&webSearchArgs{}), true
	case "clipboard_read":
		return reflectSchema(&clipboardReadArgs{}), true
	case "paste":
		return reflectSchema(&pasteArgs{}), true
	case "run_plugin":
		return reflectSchema(&runPluginArgs{}), true
	}
	return value.Null(), false
}

// permissiveSchema accepts any object, for script tools that declare no
// parameter schema of their own.
var permissiveSchema = value.Object(
	value.Member{Key: "type", Val: value.String("object")},
	value.Member{Key: "additionalProperties", Val: value.Bool(true)},
)

// Definitions renders the plugin's declared tools as model-facing tool
// definitions. Unknown built-in names are skipped with a log.
func (r *Runner) Definitions() []models.ToolDefinition {
	defs := []models.ToolDefinition{}
	for _, spec := range r.plugin.Manifest.Tools {
		def := models.ToolDefinition{
			Name:        spec.Name,
			Description: spec.Description,
		}
		switch {
		case spec.Script != "":
			def.Parameters = permissiveSchema
			if spec.Parameters != nil {
				def.Parameters = *spec.Parameters
			}
		default:
			schema, ok := builtinSchema(spec.Name)
			if !ok {
				log.Warn().Str("plugin", r.plugin.Manifest.ID).Str("tool", spec.Name).
					Msg("skipping unknown built-in tool")
				continue
			}
			def.Parameters = schema
			if def.Description == "" {
				def.Description = builtinDescriptions[spec.Name]
			}
		}
		defs = append(defs, def)
	}
	return defs
}

// RunTool executes one tool call and always produces a result.
func (r *Runner) RunTool(ctx context.Context, call models.ToolCall) models.ToolResult {
	content, err := r.dispatch(ctx, call)
	if err != nil {
		log.Warn().Str("tool", call.Name).Err(err).Msg("tool call failed")
		return models.ToolResult{
			ToolCallID: call.ID,
			Name:       call.Name,
			Content:    fmt.Sprintf("Error: %v", err),
			IsError:    true,
		}
	}
	return models.ToolResult{
		ToolCallID: call.ID,
		Name:       call.Name,
		Content:    content,
	}
}

func (r *Runner) dispatch(ctx context.Context, call models.ToolCall) (string, error) {
	var spec *models.ToolSpec
	for i := range r.plugin.Manifest.Tools {
		if r.plugin.Manifest.Tools[i].Name == call.Name {
			spec = &r.plugin.Manifest.Tools[i]
			break
		}
	}
	if spec == nil {
		return "", fmt.Errorf("tool %q not declared by plugin %s", call.Name, r.plugin.Manifest.ID)
	}
	if spec.Script != "" {
		return r.runScriptTool(ctx, *spec, call)
	}

	switch call.Name {
	case "web_search":
		if r.deps.Searcher == nil {
			return "", fmt.Errorf("web search is not available")
		}
		query := argString(call.Args, "query")
		if query == "" {
			return "", fmt.Errorf("web_search needs a query argument")
		}
		return r.deps.Searcher.Search(ctx, query)

	case "clipboard_read":
		if r.deps.Clipboard == nil {
			return "", fmt.Errorf("clipboard access is not available")
		}
		return r.deps.Clipboard.ReadText()

	case "paste":
		if r.deps.Paster == nil {
			return "", fmt.Errorf("paste is not available")
		}
		text := argString(call.Args, "text")
		if err := r.deps.Paster.Paste(text); err != nil {
			return "", err
		}
		return "pasted", nil

	case "run_plugin":
		if r.deps.Dispatcher == nil {
			return "", fmt.Errorf("plugin dispatch is not available")
		}
		target := argString(call.Args, "plugin")
		if target == "" {
			return "", fmt.Errorf("run_plugin needs a plugin argument")
		}
		return r.deps.Dispatcher.RunPlugin(ctx, target, argString(call.Args, "input"))
	}
	return "", fmt.Errorf("tool %q has no implementation", call.Name)
}

func argString(args value.Value, key string) string {
	v, ok := args.Field(key)
	if !ok {
		return ""
	}
	return v.Text()
}
