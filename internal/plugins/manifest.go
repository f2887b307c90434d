// Package plugins owns the on-disk plugin set: manifest parsing and
// validation, the authoritative loaded set with hot reload, per-plugin
// settings with secret isolation, and uninstall.
package plugins

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/openmaw-ai/openmaw/pkg/models"
)

// Extension marks a plugin on disk, as a file or directory suffix.
const Extension = ".tolkplugin"

// ManifestFilename is the manifest inside a directory-form plugin.
const ManifestFilename = "manifest.json"

var validate = validator.New()

// LoadManifest reads a plugin from path, which is either a single manifest
// file or a plugin directory containing manifest.json. It returns the parsed
// manifest and the plugin's effective directory.
func LoadManifest(path string) (models.Manifest, string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.Manifest{}, "", fmt.Errorf("stat plugin: %w", err)
	}

	manifestPath := path
	dir := filepath.Dir(path)
	if info.IsDir() {
		manifestPath = filepath.Join(path, ManifestFilename)
		dir = path
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return models.Manifest{}, "", fmt.Errorf("read manifest: %w", err)
	}
	var m models.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return models.Manifest{}, "", fmt.Errorf("parse manifest: %w", err)
	}
	if err := ValidateManifest(m, dir); err != nil {
		return models.Manifest{}, "", err
	}
	return m, dir, nil
}

// ValidateManifest checks a manifest beyond JSON well-formedness: struct
// tags, id path-safety, per-variant required fields, and script file
// existence relative to dir. Any failure keeps the plugin out of the
// loaded set.
func ValidateManifest(m models.Manifest, dir string) error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("manifest validation: %w", err)
	}
	if strings.Contains(m.ID, "..") || strings.ContainsAny(m.ID, `/\`) {
		return fmt.Errorf("plugin id %q contains path separators", m.ID)
	}

	switch m.Trigger.Type {
	case models.TriggerKeyword:
		if len(m.Trigger.Keywords) == 0 {
			return fmt.Errorf("keyword trigger has no keywords")
		}
	case models.TriggerRegex:
		if m.Trigger.Pattern == "" {
			return fmt.Errorf("regex trigger has no pattern")
		}
		if _, err := regexp.Compile(m.Trigger.Pattern); err != nil {
			return fmt.Errorf("regex trigger pattern: %w", err)
		}
	case models.TriggerIntent:
		if m.Trigger.Description == "" {
			return fmt.Errorf("intent trigger has no description")
		}
	}

	switch m.Execution.Type {
	case models.ExecScript:
		if m.Execution.Command == "" && m.Execution.Inline == "" {
			return fmt.Errorf("script execution needs a command or inline body")
		}
		if m.Execution.Command != "" {
			script := filepath.Join(dir, m.Execution.Command)
			if _, err := os.Stat(script); err != nil {
				return fmt.Errorf("script file %s: %w", m.Execution.Command, err)
			}
		}
	case models.ExecHTTP:
		if m.Execution.URL == "" {
			return fmt.Errorf("http execution has no url")
		}
	case models.ExecShortcut:
		if m.Execution.Shortcut == "" {
			return fmt.Errorf("shortcut execution has no name")
		}
	case models.ExecAI:
		if m.Execution.SystemPrompt == "" && m.Execution.SystemPromptFile == "" {
			return fmt.Errorf("ai execution has no system prompt")
		}
	case models.ExecPipeline:
		if len(m.Execution.Steps) == 0 {
			return fmt.Errorf("pipeline execution has no steps")
		}
	}
	return nil
}
