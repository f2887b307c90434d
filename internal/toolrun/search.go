package toolrun

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DuckDuckGoSearcher implements web_search against the DuckDuckGo instant
// answer API. No key required, which suits a local-first daemon.
type DuckDuckGoSearcher struct {
	BaseURL string
	Client  *http.Client
}

// NewDuckDuckGoSearcher creates a searcher with sane defaults.
func NewDuckDuckGoSearcher() *DuckDuckGoSearcher {
	return &DuckDuckGoSearcher{
		BaseURL: "https://api.duckduckgo.com",
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *DuckDuckGoSearcher) Search(ctx context.Context, query string) (string, error) {
	u := fmt.Sprintf("%s/?q=%s&format=json&no_html=1", strings.TrimSuffix(s.BaseURL, "/"), url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return "", fmt.Errorf("search: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		AbstractText  string `json:"AbstractText"`
		Answer        string `json:"Answer"`
		RelatedTopics []struct {
			Text string `json:"Text"`
		} `json:"RelatedTopics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode search response: %w", err)
	}

	if parsed.Answer != "" {
		return parsed.Answer, nil
	}
	if parsed.AbstractText != "" {
		return parsed.AbstractText, nil
	}
	lines := []string{}
	for i, topic := range parsed.RelatedTopics {
		if i >= 5 || topic.Text == "" {
			break
		}
		lines = append(lines, "- "+topic.Text)
	}
	if len(lines) == 0 {
		return "No results found.", nil
	}
	return strings.Join(lines, "\n"), nil
}
