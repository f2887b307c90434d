package runner

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmaw-ai/openmaw/pkg/models"
	"github.com/openmaw-ai/openmaw/pkg/value"
)

func httpPlugin(id string, cfg models.ExecutionConfig) models.LoadedPlugin {
	cfg.Type = models.ExecHTTP
	return models.LoadedPlugin{
		Manifest: models.Manifest{
			ID:        id,
			Name:      id,
			Trigger:   models.Trigger{Type: models.TriggerCatchAll},
			Execution: cfg,
		},
		Enabled: true,
	}
}

func TestExecuteHTTPTemplating(t *testing.T) {
	var got struct {
		method string
		auth   string
		body   map[string]any
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.auth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &got.body)
		w.Write([]byte(`{"result": {"text": "translated"}}`))
	}))
	defer srv.Close()

	body := mustDecode(t, `{"q": "{{input}}", "target": "{{settings.lang}}"}`)
	p := httpPlugin("translate", models.ExecutionConfig{
		URL:          srv.URL + "/v1/translate",
		Headers:      map[string]string{"Authorization": "Bearer {{settings.token}}"},
		Body:         &body,
		ResponsePath: ".result.text",
	})
	p.Manifest.Settings = []models.SettingSpec{
		{Key: "lang", Type: models.SettingString, Default: valuePtr(value.String("de"))},
		{Key: "token", Type: models.SettingString, Default: valuePtr(value.String("tok-1"))},
	}

	h := newHarness(t, nil, p)
	exec, err := h.runner.Execute(context.Background(), models.Match{
		PluginID: "translate", Input: "good morning", RawInput: "good morning",
	})
	require.NoError(t, err)
	assert.Equal(t, "translated", exec.Result.Text)
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "Bearer tok-1", got.auth)
	assert.Equal(t, "good morning", got.body["q"])
	assert.Equal(t, "de", got.body["target"])
}

func TestExecuteHTTPRawBodyWithoutPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Write([]byte("plain response"))
	}))
	defer srv.Close()

	h := newHarness(t, nil, httpPlugin("fetch", models.ExecutionConfig{
		URL:    srv.URL,
		Method: http.MethodGet,
	}))
	exec, err := h.runner.Execute(context.Background(), models.Match{PluginID: "fetch", Input: "x"})
	require.NoError(t, err)
	assert.Equal(t, "plain response", exec.Result.Text)
}

func TestExecuteHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(strings.Repeat("x", 900)))
	}))
	defer srv.Close()

	h := newHarness(t, nil, httpPlugin("failing", models.ExecutionConfig{URL: srv.URL}))
	_, err := h.runner.Execute(context.Background(), models.Match{PluginID: "failing", Input: "x"})
	require.Error(t, err)

	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.Status)
	assert.Len(t, statusErr.Body, maxErrorBody)
}

func TestExecuteHTTPErrorBodyKeepsRunesWhole(t *testing.T) {
	// 400 three-byte runes; a byte-count cut at 500 would land mid-rune.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(strings.Repeat("日", 400)))
	}))
	defer srv.Close()

	h := newHarness(t, nil, httpPlugin("failing", models.ExecutionConfig{URL: srv.URL}))
	_, err := h.runner.Execute(context.Background(), models.Match{PluginID: "failing", Input: "x"})
	require.Error(t, err)

	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.True(t, utf8.ValidString(statusErr.Body))
	assert.LessOrEqual(t, len(statusErr.Body), maxErrorBody)
}
