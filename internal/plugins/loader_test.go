package plugins

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openmaw-ai/openmaw/internal/events"
	"github.com/openmaw-ai/openmaw/pkg/models"
)

func writeDirPlugin(t *testing.T, pluginsDir, id, name string, manifest map[string]interface{}) {
	t.Helper()
	if manifest == nil {
		manifest = map[string]interface{}{}
	}
	manifest["id"] = id
	manifest["name"] = name
	if _, ok := manifest["trigger"]; !ok {
		manifest["trigger"] = map[string]interface{}{
			"type":     "keyword",
			"keywords": []string{id},
		}
	}
	if _, ok := manifest["execution"]; !ok {
		manifest["execution"] = map[string]interface{}{
			"type":   "script",
			"inline": "echo hi",
		}
	}
	dir := filepath.Join(pluginsDir, id+Extension)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(manifest)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFilename), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestLoader(t *testing.T) (*Loader, string) {
	t.Helper()
	root := t.TempDir()
	pluginsDir := filepath.Join(root, "plugins")
	if err := os.MkdirAll(pluginsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	return NewLoader(pluginsDir, filepath.Join(root, "data"), events.NewBus()), pluginsDir
}

func TestReloadIsIdempotent(t *testing.T) {
	loader, pluginsDir := newTestLoader(t)
	writeDirPlugin(t, pluginsDir, "zulu", "Zulu", nil)
	writeDirPlugin(t, pluginsDir, "alpha", "alpha", nil)
	writeDirPlugin(t, pluginsDir, "mike", "Mike", nil)

	if err := loader.Reload(); err != nil {
		t.Fatalf("first reload: %v", err)
	}
	first := loader.Plugins()
	if err := loader.Reload(); err != nil {
		t.Fatalf("second reload: %v", err)
	}
	second := loader.Plugins()

	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("plugin counts = %d, %d, want 3", len(first), len(second))
	}
	// case-insensitive name order
	wantOrder := []string{"alpha", "mike", "zulu"}
	for i, want := range wantOrder {
		if first[i].Manifest.ID != want {
			t.Errorf("first[%d] = %s, want %s", i, first[i].Manifest.ID, want)
		}
		if second[i].Manifest.ID != first[i].Manifest.ID {
			t.Errorf("order changed between reloads at %d", i)
		}
	}
}

func TestReloadSkipsInvalidPlugins(t *testing.T) {
	loader, pluginsDir := newTestLoader(t)
	writeDirPlugin(t, pluginsDir, "good", "Good", nil)

	// corrupt manifest
	badDir := filepath.Join(pluginsDir, "bad"+Extension)
	if err := os.MkdirAll(badDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(badDir, ManifestFilename), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	// script plugin pointing at a missing file
	writeDirPlugin(t, pluginsDir, "ghost", "Ghost", map[string]interface{}{
		"execution": map[string]interface{}{
			"type":    "script",
			"command": "does-not-exist.sh",
		},
	})

	// path traversal in id
	writeDirPlugin(t, pluginsDir, "evil", "Evil", nil)
	evil := filepath.Join(pluginsDir, "evil"+Extension, ManifestFilename)
	data, _ := os.ReadFile(evil)
	if err := os.WriteFile(evil, []byte(strings.Replace(string(data), `"evil"`, `"../evil"`, 1)), 0o644); err != nil {
		t.Fatal(err)
	}

	// hidden entries are ignored
	if err := os.WriteFile(filepath.Join(pluginsDir, ".hidden"+Extension), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := loader.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	got := loader.Plugins()
	if len(got) != 1 || got[0].Manifest.ID != "good" {
		t.Fatalf("loaded = %+v, want only good", got)
	}
}

func TestSingleFilePlugin(t *testing.T) {
	loader, pluginsDir := newTestLoader(t)
	manifest := models.Manifest{
		ID:   "oneliner",
		Name: "One Liner",
		Trigger: models.Trigger{
			Type:     models.TriggerKeyword,
			Keywords: []string{"one"},
		},
		Execution: models.ExecutionConfig{
			Type:   models.ExecScript,
			Inline: "echo one",
		},
	}
	data, err := json.Marshal(manifest)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(pluginsDir, "oneliner"+Extension), data, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := loader.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	p, ok := loader.Get("oneliner")
	if !ok {
		t.Fatal("plugin not loaded")
	}
	if filepath.Clean(p.Dir) != filepath.Clean(pluginsDir) {
		t.Errorf("single-file plugin dir = %s, want plugins dir", p.Dir)
	}
}

func TestSetEnabledPersists(t *testing.T) {
	loader, pluginsDir := newTestLoader(t)
	writeDirPlugin(t, pluginsDir, "toggle", "Toggle", nil)

	if err := loader.Reload(); err != nil {
		t.Fatal(err)
	}
	p, _ := loader.Get("toggle")
	if !p.Enabled {
		t.Fatal("plugins should default to enabled")
	}

	if err := loader.SetEnabled("toggle", false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	// survives a reload
	if err := loader.Reload(); err != nil {
		t.Fatal(err)
	}
	p, _ = loader.Get("toggle")
	if p.Enabled {
		t.Error("disabled state lost across reload")
	}
	if got := loader.Enabled(); len(got) != 0 {
		t.Errorf("Enabled() = %d plugins, want 0", len(got))
	}

	if err := loader.SetEnabled("missing", true); err == nil {
		t.Error("expected error enabling unknown plugin")
	}
}

func TestReloadPublishesEvent(t *testing.T) {
	root := t.TempDir()
	bus := events.NewBus()
	fired := 0
	bus.Subscribe(events.PluginsReloaded, func(events.Event) { fired++ })

	loader := NewLoader(filepath.Join(root, "plugins"), filepath.Join(root, "data"), bus)
	if err := loader.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if fired != 1 {
		t.Errorf("reload events = %d, want 1", fired)
	}
}
