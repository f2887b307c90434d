package plugins

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/openmaw-ai/openmaw/internal/secrets"
	"github.com/openmaw-ai/openmaw/pkg/models"
)

// Settings persists per-plugin settings. Keys declared secret in the
// manifest go to the secret store; everything else lands in a plain JSON
// file per plugin. The plain file never holds a secret value.
type Settings struct {
	mu      sync.Mutex
	dataDir string
	store   secrets.Store
}

// NewSettings creates the settings service over dataDir and a secret store.
func NewSettings(dataDir string, store secrets.Store) *Settings {
	return &Settings{dataDir: dataDir, store: store}
}

func (s *Settings) path(pluginID string) string {
	return filepath.Join(s.dataDir, "settings", pluginID+".json")
}

func secretKeys(m models.Manifest) map[string]bool {
	out := map[string]bool{}
	for _, spec := range m.Settings {
		if spec.Type == models.SettingSecret {
			out[spec.Key] = true
		}
	}
	return out
}

// Save stores the given values for a plugin, routing secret-declared keys
// to the secret store and the rest to the plain file.
func (s *Settings) Save(m models.Manifest, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	secret := secretKeys(m)
	plain := map[string]string{}
	for k, v := range values {
		if secret[k] {
			if err := s.store.Set(secrets.Key(m.ID, k), v); err != nil {
				return fmt.Errorf("store secret %s: %w", k, err)
			}
			continue
		}
		plain[k] = v
	}

	data, err := json.MarshalIndent(plain, "", "  ")
	if err != nil {
		return err
	}
	path := s.path(m.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// Resolved returns the effective settings for a plugin: declared defaults,
// overlaid by the plain file, overlaid by secret-store values.
func (s *Settings) Resolved(m models.Manifest) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := map[string]string{}
	for _, spec := range m.Settings {
		if spec.Default != nil {
			out[spec.Key] = spec.Default.Text()
		}
	}

	data, err := os.ReadFile(s.path(m.ID))
	if err == nil {
		plain := map[string]string{}
		if err := json.Unmarshal(data, &plain); err != nil {
			return nil, fmt.Errorf("parse settings for %s: %w", m.ID, err)
		}
		for k, v := range plain {
			out[k] = v
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read settings for %s: %w", m.ID, err)
	}

	for k := range secretKeys(m) {
		v, ok, err := s.store.Get(secrets.Key(m.ID, k))
		if err != nil {
			return nil, fmt.Errorf("load secret %s: %w", k, err)
		}
		if ok {
			out[k] = v
		}
	}
	return out, nil
}

// Purge removes a plugin's settings file and all its secret entries.
func (s *Settings) Purge(m models.Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(m.ID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove settings: %w", err)
	}
	for k := range secretKeys(m) {
		if err := s.store.Delete(secrets.Key(m.ID, k)); err != nil {
			return fmt.Errorf("delete secret %s: %w", k, err)
		}
	}
	return nil
}
