package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmaw-ai/openmaw/internal/api"
	"github.com/openmaw-ai/openmaw/internal/api/handlers"
	"github.com/openmaw-ai/openmaw/internal/config"
	"github.com/openmaw-ai/openmaw/internal/convo"
	"github.com/openmaw-ai/openmaw/internal/events"
	"github.com/openmaw-ai/openmaw/internal/matcher"
	"github.com/openmaw-ai/openmaw/internal/plugins"
	"github.com/openmaw-ai/openmaw/internal/registry"
	"github.com/openmaw-ai/openmaw/internal/runner"
	"github.com/openmaw-ai/openmaw/internal/secrets"
	"github.com/openmaw-ai/openmaw/internal/toolrun"
)

const shoutManifest = `{
	"id": "shout",
	"name": "Shout",
	"version": "1.0.0",
	"trigger": {"type": "keyword", "keywords": ["shout"]},
	"execution": {"type": "script", "inline": "tr 'a-z' 'A-Z'"},
	"output": "reply",
	"settings": [
		{"key": "volume", "type": "string", "default": "loud"},
		{"key": "api_key", "type": "secret"}
	]
}`

func newTestAPI(t *testing.T, registryIndex string) (http.Handler, *plugins.Loader) {
	t.Helper()
	dataDir := t.TempDir()
	pluginsDir := filepath.Join(dataDir, "plugins")
	require.NoError(t, os.MkdirAll(pluginsDir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(pluginsDir, "shout.tolkplugin"), []byte(shoutManifest), 0o644))

	loader := plugins.NewLoader(pluginsDir, dataDir, events.NewBus())
	require.NoError(t, loader.Reload())

	store := secrets.NewFileStore(filepath.Join(dataDir, "secrets.json"))
	settings := plugins.NewSettings(dataDir, store)
	convos := convo.NewManager()
	run := runner.New(loader, settings, convos, nil, nil, toolrun.Deps{})

	regCfg := config.RegistryConfig{IndexURL: registryIndex, CacheTTL: 0}
	regClient := registry.NewClient(regCfg)
	installer := registry.NewInstaller(pluginsDir, loader)

	h := handlers.New(loader, settings, matcher.New(nil), run, convos, regClient, installer, nil)
	cfg := config.Load()
	return api.NewRouter(cfg, h), loader
}

func do(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestTranscriptMatchesAndExecutes(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	router, _ := newTestAPI(t, "http://127.0.0.1:0/index.json")
	rec := do(t, router, http.MethodPost, "/api/v1/transcripts", `{"text": "shout hello there"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Matched bool `json:"matched"`
		Match   struct {
			PluginID string `json:"plugin_id"`
			Input    string `json:"input"`
		} `json:"match"`
		Result struct {
			Text   string `json:"text"`
			Output string `json:"output"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Matched)
	assert.Equal(t, "shout", resp.Match.PluginID)
	assert.Equal(t, "hello there", resp.Match.Input)
	assert.Equal(t, "HELLO THERE", resp.Result.Text)
	assert.Equal(t, "reply", resp.Result.Output)
}

func TestTranscriptNoMatch(t *testing.T) {
	router, _ := newTestAPI(t, "http://127.0.0.1:0/index.json")
	rec := do(t, router, http.MethodPost, "/api/v1/transcripts", `{"text": "nothing triggers this"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"matched":false`)
}

func TestTranscriptRejectsEmptyText(t *testing.T) {
	router, _ := newTestAPI(t, "http://127.0.0.1:0/index.json")
	rec := do(t, router, http.MethodPost, "/api/v1/transcripts", `{"text": "  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPluginLifecycleOverHTTP(t *testing.T) {
	router, loader := newTestAPI(t, "http://127.0.0.1:0/index.json")

	rec := do(t, router, http.MethodGet, "/api/v1/plugins/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"shout"`)

	rec = do(t, router, http.MethodPost, "/api/v1/plugins/shout/disable", "")
	require.Equal(t, http.StatusOK, rec.Code)
	p, ok := loader.Get("shout")
	require.True(t, ok)
	assert.False(t, p.Enabled)

	// Disabled plugins do not match.
	rec = do(t, router, http.MethodPost, "/api/v1/transcripts", `{"text": "shout hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"matched":false`)

	rec = do(t, router, http.MethodPost, "/api/v1/plugins/shout/enable", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/v1/plugins/missing/enable", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSettingsRoundTripMasksSecrets(t *testing.T) {
	router, _ := newTestAPI(t, "http://127.0.0.1:0/index.json")

	rec := do(t, router, http.MethodPut, "/api/v1/plugins/shout/settings",
		`{"volume": "quiet", "api_key": "sk-secret"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/v1/plugins/shout/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var views []struct {
		Key   string `json:"key"`
		Type  string `json:"type"`
		Value string `json:"value"`
		Set   bool   `json:"set"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 2)

	byKey := map[string]int{}
	for i, v := range views {
		byKey[v.Key] = i
	}
	volume := views[byKey["volume"]]
	assert.Equal(t, "quiet", volume.Value)
	assert.True(t, volume.Set)

	secret := views[byKey["api_key"]]
	assert.True(t, secret.Set)
	assert.Empty(t, secret.Value)
	assert.NotContains(t, rec.Body.String(), "sk-secret")

	rec = do(t, router, http.MethodPut, "/api/v1/plugins/shout/settings", `{"undeclared": "x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUninstallPluginOverHTTP(t *testing.T) {
	router, loader := newTestAPI(t, "http://127.0.0.1:0/index.json")

	rec := do(t, router, http.MethodDelete, "/api/v1/plugins/shout/", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	_, ok := loader.Get("shout")
	assert.False(t, ok)
}

func TestRegistrySearchOverHTTP(t *testing.T) {
	index := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"plugins": [{"id": "remote", "name": "Remote", "version": "1.0.0", "download_url": "https://example.com/remote.zip", "featured": true}]}`))
	}))
	defer index.Close()

	router, _ := newTestAPI(t, index.URL)

	rec := do(t, router, http.MethodGet, "/api/v1/registry/search?q=remote", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"remote"`)

	rec = do(t, router, http.MethodGet, "/api/v1/registry/featured", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"remote"`)

	rec = do(t, router, http.MethodGet, "/api/v1/registry/updates", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestClearConversation(t *testing.T) {
	router, _ := newTestAPI(t, "http://127.0.0.1:0/index.json")
	rec := do(t, router, http.MethodDelete, "/api/v1/conversations/shout", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHealthAndVersion(t *testing.T) {
	router, _ := newTestAPI(t, "http://127.0.0.1:0/index.json")

	rec := do(t, router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec = do(t, router, http.MethodGet, "/version", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "version")
}
