// Package handlers implements the HTTP handlers of the OpenMaw daemon:
// transcript dispatch, plugin management, settings, the remote registry,
// conversations, and usage.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/openmaw-ai/openmaw/internal/convo"
	"github.com/openmaw-ai/openmaw/internal/matcher"
	"github.com/openmaw-ai/openmaw/internal/plugins"
	"github.com/openmaw-ai/openmaw/internal/registry"
	"github.com/openmaw-ai/openmaw/internal/runner"
	"github.com/openmaw-ai/openmaw/internal/usage"
	"github.com/openmaw-ai/openmaw/pkg/models"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Loader    *plugins.Loader
	Settings  *plugins.Settings
	Matcher   *matcher.Matcher
	Runner    *runner.Runner
	Convos    *convo.Manager
	Registry  *registry.Client
	Installer *registry.Installer
	Usage     *usage.Tracker
}

// New creates a Handlers instance with all dependencies.
func New(loader *plugins.Loader, settings *plugins.Settings, m *matcher.Matcher, run *runner.Runner, convos *convo.Manager, reg *registry.Client, inst *registry.Installer, track *usage.Tracker) *Handlers {
	return &Handlers{
		Loader:    loader,
		Settings:  settings,
		Matcher:   m,
		Runner:    run,
		Convos:    convos,
		Registry:  reg,
		Installer: inst,
		Usage:     track,
	}
}

// ── Transcript dispatch ─────────────────────────────────────

type transcriptRequest struct {
	Text string `json:"text"`
}

type transcriptResponse struct {
	Matched bool           `json:"matched"`
	Match   *models.Match  `json:"match,omitempty"`
	Result  *models.Result `json:"result,omitempty"`
}

// HandleTranscript matches an utterance against the loaded plugins and
// executes the winner. ?stream=1 upgrades streaming AI plugins to SSE;
// everything else answers with a single JSON document either way.
func (h *Handlers) HandleTranscript(w http.ResponseWriter, r *http.Request) {
	var req transcriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "text is required")
		return
	}

	match, ok := h.Matcher.Match(r.Context(), req.Text, h.Loader.Enabled())
	if !ok {
		respondJSON(w, http.StatusOK, transcriptResponse{Matched: false})
		return
	}

	exec, err := h.Runner.Execute(r.Context(), match)
	if err != nil {
		respondError(w, executionStatus(err), err.Error())
		return
	}

	if exec.Stream != nil {
		if r.URL.Query().Get("stream") != "" {
			h.streamResult(w, match, exec)
			return
		}
		result, err := drainToResult(match, exec)
		if err != nil {
			respondError(w, http.StatusBadGateway, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, transcriptResponse{Matched: true, Match: &match, Result: result})
		return
	}

	respondJSON(w, http.StatusOK, transcriptResponse{Matched: true, Match: &match, Result: exec.Result})
}

func drainToResult(match models.Match, exec *runner.Execution) (*models.Result, error) {
	var b strings.Builder
	for ev := range exec.Stream {
		if ev.Err != nil {
			return nil, ev.Err
		}
		if ev.Done {
			b.Reset()
			b.WriteString(ev.Text)
			break
		}
		b.WriteString(ev.Delta)
	}
	return &models.Result{
		PluginID: match.PluginID,
		Text:     b.String(),
		Output:   models.OutputReply,
	}, nil
}

// streamResult forwards a streaming execution as server-sent events:
// "delta" frames while text arrives, one "done" frame with the full text,
// or an "error" frame.
func (h *Handlers) streamResult(w http.ResponseWriter, match models.Match, exec *runner.Execution) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	send := func(event string, payload any) {
		data, _ := json.Marshal(payload)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		if flusher != nil {
			flusher.Flush()
		}
	}

	send("match", match)
	for ev := range exec.Stream {
		switch {
		case ev.Err != nil:
			send("error", map[string]string{"error": ev.Err.Error()})
			return
		case ev.Done:
			send("done", models.Result{PluginID: match.PluginID, Text: ev.Text, Output: models.OutputReply})
			return
		default:
			send("delta", map[string]string{"delta": ev.Delta})
		}
	}
}

func executionStatus(err error) int {
	switch {
	case errors.Is(err, runner.ErrPluginNotFound):
		return http.StatusNotFound
	case errors.Is(err, runner.ErrPipelineDepth):
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadGateway
}

// ── Plugin management ───────────────────────────────────────

type pluginSummary struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Version     string            `json:"version,omitempty"`
	Description string            `json:"description,omitempty"`
	Author      string            `json:"author,omitempty"`
	Trigger     models.Trigger    `json:"trigger"`
	Execution   string            `json:"execution"`
	Output      models.OutputMode `json:"output"`
	Enabled     bool              `json:"enabled"`
}

func (h *Handlers) ListPlugins(w http.ResponseWriter, r *http.Request) {
	out := []pluginSummary{}
	for _, p := range h.Loader.Plugins() {
		out = append(out, pluginSummary{
			ID:          p.Manifest.ID,
			Name:        p.Manifest.Name,
			Version:     p.Manifest.Version,
			Description: p.Manifest.Description,
			Author:      p.Manifest.Author,
			Trigger:     p.Manifest.Trigger,
			Execution:   string(p.Manifest.Execution.Type),
			Output:      p.Manifest.DefaultOutput(),
			Enabled:     p.Enabled,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handlers) ReloadPlugins(w http.ResponseWriter, r *http.Request) {
	if err := h.Loader.Reload(); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"plugins": len(h.Loader.Plugins())})
}

func (h *Handlers) EnablePlugin(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

func (h *Handlers) DisablePlugin(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

func (h *Handlers) setEnabled(w http.ResponseWriter, r *http.Request, on bool) {
	id := chi.URLParam(r, "pluginID")
	if _, ok := h.Loader.Get(id); !ok {
		respondError(w, http.StatusNotFound, "plugin not found")
		return
	}
	if err := h.Loader.SetEnabled(id, on); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"enabled": on})
}

func (h *Handlers) UninstallPlugin(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "pluginID")
	if _, ok := h.Loader.Get(id); !ok {
		respondError(w, http.StatusNotFound, "plugin not found")
		return
	}
	if err := h.Loader.Uninstall(id, h.Settings, h.Convos); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if h.Usage != nil {
		if err := h.Usage.Purge(id); err != nil {
			log.Warn().Str("plugin", id).Err(err).Msg("failed to purge usage records")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Settings ────────────────────────────────────────────────

type settingView struct {
	Key      string   `json:"key"`
	Label    string   `json:"label,omitempty"`
	Type     string   `json:"type"`
	Options  []string `json:"options,omitempty"`
	Required bool     `json:"required,omitempty"`
	Value    string   `json:"value,omitempty"`
	Set      bool     `json:"set"`
}

// GetSettings returns the plugin's declared settings with current values.
// Secret values never leave the daemon; only whether one is set.
func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "pluginID")
	p, ok := h.Loader.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "plugin not found")
		return
	}

	resolved, err := h.Settings.Resolved(p.Manifest)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := []settingView{}
	for _, spec := range p.Manifest.Settings {
		view := settingView{
			Key:      spec.Key,
			Label:    spec.Label,
			Type:     string(spec.Type),
			Options:  spec.Options,
			Required: spec.Required,
		}
		value, has := resolved[spec.Key]
		view.Set = has
		if has && spec.Type != models.SettingSecret {
			view.Value = value
		}
		out = append(out, view)
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handlers) PutSettings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "pluginID")
	p, ok := h.Loader.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "plugin not found")
		return
	}

	var values map[string]string
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	declared := map[string]bool{}
	for _, spec := range p.Manifest.Settings {
		declared[spec.Key] = true
	}
	for key := range values {
		if !declared[key] {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("setting %q is not declared by plugin %s", key, id))
			return
		}
	}

	if err := h.Settings.Save(p.Manifest, values); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"saved": len(values)})
}

// ── Registry ────────────────────────────────────────────────

func (h *Handlers) SearchRegistry(w http.ResponseWriter, r *http.Request) {
	results, err := h.Registry.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, results)
}

func (h *Handlers) FeaturedRegistry(w http.ResponseWriter, r *http.Request) {
	results, err := h.Registry.Featured(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, results)
}

func (h *Handlers) CheckUpdates(w http.ResponseWriter, r *http.Request) {
	updates, err := h.Registry.CheckUpdates(r.Context(), h.Loader.Plugins())
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, updates)
}

type installRequest struct {
	URL string `json:"url"`
}

func (h *Handlers) InstallPlugin(w http.ResponseWriter, r *http.Request) {
	var req installRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}
	source, err := registry.ParseInstallURL(req.URL)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.Installer.Install(r.Context(), source)
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// ── Conversations ───────────────────────────────────────────

func (h *Handlers) ClearConversation(w http.ResponseWriter, r *http.Request) {
	h.Convos.Clear(chi.URLParam(r, "pluginID"))
	w.WriteHeader(http.StatusNoContent)
}

// ── Usage ───────────────────────────────────────────────────

func (h *Handlers) GetUsage(w http.ResponseWriter, r *http.Request) {
	if h.Usage == nil {
		respondJSON(w, http.StatusOK, []usage.Summary{})
		return
	}
	summaries, err := h.Usage.Summaries()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, summaries)
}

// ── Helpers ─────────────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
