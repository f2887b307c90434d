// Package models defines the shared data model for the OpenMaw engine:
// plugin manifests, triggers, match results, execution results, chat
// messages, tool definitions, and registry entries.
package models

import (
	"time"

	"github.com/openmaw-ai/openmaw/pkg/value"
)

// ── Triggers ────────────────────────────────────────────────

// TriggerType discriminates the trigger union in a manifest.
type TriggerType string

const (
	TriggerKeyword  TriggerType = "keyword"
	TriggerRegex    TriggerType = "regex"
	TriggerIntent   TriggerType = "intent"
	TriggerCatchAll TriggerType = "catch_all"
)

// KeywordPosition says where a keyword must sit in the utterance.
type KeywordPosition string

const (
	PositionStart    KeywordPosition = "start"
	PositionEnd      KeywordPosition = "end"
	PositionAnywhere KeywordPosition = "anywhere"
)

// Trigger is a plugin's activation rule; exactly one variant is active per
// manifest. Which fields apply depends on Type: keyword uses
// Keywords/Position/StripTrigger, regex uses Pattern, intent uses
// Description, catch_all uses nothing extra.
type Trigger struct {
	Type         TriggerType     `json:"type" validate:"required,oneof=keyword regex intent catch_all"`
	Keywords     []string        `json:"keywords,omitempty"`
	Position     KeywordPosition `json:"position,omitempty" validate:"omitempty,oneof=start end anywhere"`
	StripTrigger *bool           `json:"strip_trigger,omitempty"`
	Pattern      string          `json:"pattern,omitempty"`
	Description  string          `json:"description,omitempty"`
}

// Strips reports whether a matched keyword should be removed from the input.
// Defaults to true when the manifest leaves it unset.
func (t Trigger) Strips() bool {
	return t.StripTrigger == nil || *t.StripTrigger
}

// ── Execution ───────────────────────────────────────────────

// ExecutionType discriminates the execution union in a manifest.
type ExecutionType string

const (
	ExecScript   ExecutionType = "script"
	ExecHTTP     ExecutionType = "http"
	ExecShortcut ExecutionType = "shortcut"
	ExecAI       ExecutionType = "ai"
	ExecPipeline ExecutionType = "pipeline"
)

// OutputMode says what the caller should do with a result's text.
type OutputMode string

const (
	OutputPaste     OutputMode = "paste"
	OutputReply     OutputMode = "reply"
	OutputClipboard OutputMode = "clipboard"
	OutputNone      OutputMode = "none"
)

// PipelineStep is one stage of a pipeline execution.
type PipelineStep struct {
	Plugin string `json:"plugin" validate:"required"`
}

// ExecutionConfig describes how a plugin runs. Type selects the variant;
// the remaining fields are variant-specific and ignored otherwise.
type ExecutionConfig struct {
	Type ExecutionType `json:"type" validate:"required,oneof=script http shortcut ai pipeline"`

	// script: Command references a file relative to the plugin dir,
	// Inline carries the script body directly. One of the two is set.
	Command        string `json:"command,omitempty"`
	Inline         string `json:"inline,omitempty"`
	Interpreter    string `json:"interpreter,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" validate:"omitempty,min=1,max=600"`

	// http
	URL     string            `json:"url,omitempty"`
	Method  string            `json:"method,omitempty" validate:"omitempty,oneof=GET POST PUT PATCH DELETE"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    *value.Value      `json:"body,omitempty"`
	// ResponsePath selects a field from a JSON response, e.g. ".choices[0].text".
	ResponsePath string `json:"response_path,omitempty"`

	// shortcut
	Shortcut string `json:"shortcut,omitempty"`

	// ai
	SystemPrompt     string  `json:"system_prompt,omitempty"`
	SystemPromptFile string  `json:"system_prompt_file,omitempty"`
	Model            string  `json:"model,omitempty"`
	Temperature      float64 `json:"temperature,omitempty"`
	MaxTokens        int     `json:"max_tokens,omitempty"`
	Conversational   bool    `json:"conversational,omitempty"`
	Streaming        bool    `json:"streaming,omitempty"`

	// pipeline
	Steps []PipelineStep `json:"steps,omitempty"`
}

// ToolSpec is a manifest-declared tool the AI executor may call. Built-in
// tools name one of the engine's tools; script tools bring their own command.
type ToolSpec struct {
	Name        string       `json:"name" validate:"required"`
	Description string       `json:"description,omitempty"`
	Script      string       `json:"script,omitempty"`
	Parameters  *value.Value `json:"parameters,omitempty"`
}

// ── Settings ────────────────────────────────────────────────

// SettingType constrains a declared plugin setting.
type SettingType string

const (
	SettingString SettingType = "string"
	SettingNumber SettingType = "number"
	SettingBool   SettingType = "boolean"
	SettingSecret SettingType = "secret"
	SettingSelect SettingType = "select"
)

// SettingSpec declares one configurable value of a plugin.
type SettingSpec struct {
	Key      string       `json:"key" validate:"required"`
	Label    string       `json:"label,omitempty"`
	Type     SettingType  `json:"type" validate:"required,oneof=string number boolean secret select"`
	Default  *value.Value `json:"default,omitempty"`
	Options  []string     `json:"options,omitempty"`
	Required bool         `json:"required,omitempty"`
}

// ── Manifest and loaded plugins ─────────────────────────────

// Manifest is the parsed manifest of a Tolk-format plugin: one trigger
// variant, one execution variant, optional settings and tools.
type Manifest struct {
	ID          string          `json:"id" validate:"required"`
	Name        string          `json:"name" validate:"required"`
	Version     string          `json:"version,omitempty"`
	Description string          `json:"description,omitempty"`
	Author      string          `json:"author,omitempty"`
	Trigger     Trigger         `json:"trigger" validate:"required"`
	Execution   ExecutionConfig `json:"execution" validate:"required"`
	Settings    []SettingSpec   `json:"settings,omitempty" validate:"dive"`
	Tools       []ToolSpec      `json:"tools,omitempty" validate:"dive"`
	Output      OutputMode      `json:"output,omitempty" validate:"omitempty,oneof=paste reply clipboard none"`
}

// DefaultOutput is the result mode when the manifest declares none.
func (m Manifest) DefaultOutput() OutputMode {
	if m.Output == "" {
		return OutputPaste
	}
	return m.Output
}

// LoadedPlugin is a manifest bound to its on-disk location and enabled state.
type LoadedPlugin struct {
	Manifest Manifest
	Dir      string
	Enabled  bool
	LoadedAt time.Time
}

// ── Matching ────────────────────────────────────────────────

// Match is the outcome of running the trigger matcher over an utterance.
type Match struct {
	PluginID    string  `json:"plugin_id"`
	Trigger     Trigger `json:"trigger"`
	TriggerText string  `json:"trigger_text,omitempty"`
	Input       string  `json:"input"`
	RawInput    string  `json:"raw_input"`
}

// ── Results ─────────────────────────────────────────────────

// Result is what a plugin execution produced.
type Result struct {
	PluginID string        `json:"plugin_id"`
	Text     string        `json:"text"`
	Output   OutputMode    `json:"output"`
	Duration time.Duration `json:"duration_ms"`
}

// StreamEvent is one frame of a streaming AI execution.
type StreamEvent struct {
	Delta string
	Done  bool
	Text  string
	Err   error
}

// ── Chat ────────────────────────────────────────────────────

// Chat message roles, in the provider-neutral form used inside the engine.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatMessage is one turn of an AI conversation. ToolCalls is set on
// assistant turns that requested tools; ToolCallID on tool-result turns.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolDefinition is a tool as advertised to the model.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  value.Value `json:"parameters"`
}

// ToolCall is a model request to invoke a tool.
type ToolCall struct {
	ID   string      `json:"id"`
	Name string      `json:"name"`
	Args value.Value `json:"args"`
}

// ToolResult is the outcome of running one tool call. Failures travel back
// to the model as IsError results, not as Go errors.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// ── Registry ────────────────────────────────────────────────

// RegistryPlugin is one entry of the remote plugin index.
type RegistryPlugin struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description,omitempty"`
	Author      string   `json:"author,omitempty"`
	DownloadURL string   `json:"download_url"`
	Homepage    string   `json:"homepage,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Featured    bool     `json:"featured,omitempty"`
}

// RegistryIndex is the wire shape of the remote index document.
type RegistryIndex struct {
	Plugins []RegistryPlugin `json:"plugins"`
}

// UpdateInfo pairs an installed plugin with a newer registry version.
type UpdateInfo struct {
	PluginID         string `json:"plugin_id"`
	InstalledVersion string `json:"installed_version"`
	LatestVersion    string `json:"latest_version"`
	DownloadURL      string `json:"download_url"`
}
