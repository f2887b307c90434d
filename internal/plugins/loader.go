package plugins

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openmaw-ai/openmaw/internal/events"
	"github.com/openmaw-ai/openmaw/pkg/models"
)

// Loader owns the authoritative in-memory plugin set. Reload replaces the
// whole set from the plugins directory; readers get immutable snapshots.
// All mutation (enable/disable, settings, uninstall) goes through here.
type Loader struct {
	pluginsDir string
	dataDir    string
	bus        *events.Bus

	mu      sync.RWMutex
	plugins []models.LoadedPlugin
	enabled map[string]bool
}

// NewLoader creates a loader rooted at pluginsDir, persisting state under
// dataDir. Call Reload before first use.
func NewLoader(pluginsDir, dataDir string, bus *events.Bus) *Loader {
	return &Loader{
		pluginsDir: pluginsDir,
		dataDir:    dataDir,
		bus:        bus,
		enabled:    map[string]bool{},
	}
}

func (l *Loader) enabledPath() string {
	return filepath.Join(l.dataDir, "enabled.json")
}

// DataDir returns a plugin's private data directory, creating it on demand.
func (l *Loader) DataDir(pluginID string) (string, error) {
	dir := filepath.Join(l.dataDir, "plugin-data", pluginID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create plugin data dir: %w", err)
	}
	return dir, nil
}

// Reload rescans the plugins directory and swaps in a fresh sorted set.
// Invalid manifests are logged and skipped; they never abort the scan.
func (l *Loader) Reload() error {
	entries, err := os.ReadDir(l.pluginsDir)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(l.pluginsDir, 0o755); err != nil {
				return fmt.Errorf("create plugins dir: %w", err)
			}
			entries = nil
		} else {
			return fmt.Errorf("scan plugins dir: %w", err)
		}
	}

	enabled, err := l.loadEnabled()
	if err != nil {
		log.Warn().Err(err).Msg("could not read enabled state, defaulting all plugins on")
		enabled = map[string]bool{}
	}

	loaded := []models.LoadedPlugin{}
	seen := map[string]string{}
	now := time.Now()
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, Extension) {
			continue
		}
		path := filepath.Join(l.pluginsDir, name)
		manifest, dir, err := LoadManifest(path)
		if err != nil {
			log.Warn().Str("plugin", name).Err(err).Msg("skipping invalid plugin")
			continue
		}
		if prev, dup := seen[manifest.ID]; dup {
			log.Warn().Str("id", manifest.ID).Str("path", name).Str("conflicts_with", prev).
				Msg("skipping plugin with duplicate id")
			continue
		}
		seen[manifest.ID] = name

		on, ok := enabled[manifest.ID]
		if !ok {
			on = true
		}
		loaded = append(loaded, models.LoadedPlugin{
			Manifest: manifest,
			Dir:      dir,
			Enabled:  on,
			LoadedAt: now,
		})
	}

	sort.Slice(loaded, func(i, j int) bool {
		return strings.ToLower(loaded[i].Manifest.Name) < strings.ToLower(loaded[j].Manifest.Name)
	})

	l.mu.Lock()
	l.plugins = loaded
	l.enabled = enabled
	l.mu.Unlock()

	log.Info().Int("count", len(loaded)).Msg("🔌 plugins reloaded")
	l.bus.Publish(events.Event{Kind: events.PluginsReloaded})
	return nil
}

// Plugins returns a snapshot of the loaded set in sorted order.
func (l *Loader) Plugins() []models.LoadedPlugin {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.LoadedPlugin, len(l.plugins))
	copy(out, l.plugins)
	return out
}

// Enabled returns only the enabled plugins, in sorted order.
func (l *Loader) Enabled() []models.LoadedPlugin {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := []models.LoadedPlugin{}
	for _, p := range l.plugins {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// Get looks up a loaded plugin by id.
func (l *Loader) Get(id string) (models.LoadedPlugin, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, p := range l.plugins {
		if p.Manifest.ID == id {
			return p, true
		}
	}
	return models.LoadedPlugin{}, false
}

// SetEnabled flips a plugin's enabled flag and persists the preference.
// The manifest on disk is never touched.
func (l *Loader) SetEnabled(id string, on bool) error {
	l.mu.Lock()
	found := false
	for i := range l.plugins {
		if l.plugins[i].Manifest.ID == id {
			l.plugins[i].Enabled = on
			found = true
			break
		}
	}
	if !found {
		l.mu.Unlock()
		return fmt.Errorf("plugin %q not loaded", id)
	}
	l.enabled[id] = on
	err := l.saveEnabledLocked()
	l.mu.Unlock()
	if err != nil {
		return err
	}
	l.bus.Publish(events.Event{Kind: events.PluginsReloaded, PluginID: id})
	return nil
}

func (l *Loader) loadEnabled() (map[string]bool, error) {
	data, err := os.ReadFile(l.enabledPath())
	if os.IsNotExist(err) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, err
	}
	m := map[string]bool{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse enabled state: %w", err)
	}
	return m, nil
}

func (l *Loader) saveEnabledLocked() error {
	data, err := json.MarshalIndent(l.enabled, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(l.dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(l.enabledPath(), data, 0o644); err != nil {
		return fmt.Errorf("write enabled state: %w", err)
	}
	return nil
}

func (l *Loader) dropEnabled(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.enabled[id]; !ok {
		return nil
	}
	delete(l.enabled, id)
	return l.saveEnabledLocked()
}
