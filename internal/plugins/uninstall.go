package plugins

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// ConversationClearer wipes a plugin's conversation state on uninstall.
// The conversation manager implements it.
type ConversationClearer interface {
	Clear(pluginID string)
}

// Uninstall removes a plugin entirely: its files, settings, secrets,
// private data directory, conversation state, and enabled preference,
// then reloads the set.
func (l *Loader) Uninstall(id string, settings *Settings, convos ConversationClearer) error {
	p, ok := l.Get(id)
	if !ok {
		return fmt.Errorf("plugin %q not loaded", id)
	}

	// A directory plugin's Dir is its own folder under the plugins dir; a
	// single-file plugin's Dir is the plugins dir itself, so remove the
	// manifest file instead.
	target := p.Dir
	if filepath.Clean(target) == filepath.Clean(l.pluginsDir) {
		target = ""
		entries, err := os.ReadDir(l.pluginsDir)
		if err != nil {
			return fmt.Errorf("scan plugins dir: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := filepath.Join(l.pluginsDir, entry.Name())
			m, _, err := LoadManifest(path)
			if err == nil && m.ID == id {
				target = path
				break
			}
		}
		if target == "" {
			return fmt.Errorf("could not locate files for plugin %q", id)
		}
	}
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("remove plugin files: %w", err)
	}

	if err := settings.Purge(p.Manifest); err != nil {
		return err
	}
	dataDir := filepath.Join(l.dataDir, "plugin-data", id)
	if err := os.RemoveAll(dataDir); err != nil {
		return fmt.Errorf("remove plugin data: %w", err)
	}
	if convos != nil {
		convos.Clear(id)
	}
	if err := l.dropEnabled(id); err != nil {
		return err
	}

	log.Info().Str("id", id).Msg("🗑️  plugin uninstalled")
	return l.Reload()
}
