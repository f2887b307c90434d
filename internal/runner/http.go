package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/openmaw-ai/openmaw/pkg/models"
)

// maxErrorBody bounds how much of a failing response travels in the error.
const maxErrorBody = 500

func (r *Runner) runHTTP(ctx context.Context, plugin models.LoadedPlugin, match models.Match, settings map[string]string) (*Execution, error) {
	cfg := plugin.Manifest.Execution

	method := cfg.Method
	if method == "" {
		method = http.MethodPost
	}
	url := expand(cfg.URL, match.Input, settings)

	var body io.Reader
	if cfg.Body != nil {
		expanded := expandValue(*cfg.Body, match.Input, settings)
		data, err := json.Marshal(expanded)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if cfg.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, expand(v, match.Input, settings))
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := strings.TrimSpace(string(raw))
		if len(snippet) > maxErrorBody {
			// Back up to a rune boundary so the cut never splits UTF-8.
			cut := maxErrorBody
			for cut > 0 && !utf8.RuneStart(snippet[cut]) {
				cut--
			}
			snippet = snippet[:cut]
		}
		return nil, &HTTPStatusError{Status: resp.StatusCode, Body: snippet}
	}

	out := string(raw)
	if cfg.ResponsePath != "" {
		out, err = extractPath(raw, cfg.ResponsePath)
		if err != nil {
			return nil, fmt.Errorf("extract %q: %w", cfg.ResponsePath, err)
		}
	}

	text, mode := ParseOutput(out, plugin.Manifest.DefaultOutput())
	return &Execution{Result: &models.Result{
		PluginID: plugin.Manifest.ID,
		Text:     text,
		Output:   mode,
	}}, nil
}
