// Package registry talks to the remote plugin index and installs plugins
// from it. The index is a single JSON document cached for a short window;
// installs fetch either a prepared archive or a repository release.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openmaw-ai/openmaw/internal/config"
	"github.com/openmaw-ai/openmaw/pkg/models"
)

// Client fetches and caches the remote plugin index.
type Client struct {
	indexURL   string
	cacheTTL   time.Duration
	httpClient *http.Client

	mu        sync.Mutex
	cached    *models.RegistryIndex
	fetchedAt time.Time
	now       func() time.Time
}

// NewClient builds a registry client from configuration.
func NewClient(cfg config.RegistryConfig) *Client {
	return &Client{
		indexURL:   cfg.IndexURL,
		cacheTTL:   cfg.CacheTTL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
}

// Index returns the plugin index, served from cache inside the TTL.
// force bypasses the cache.
func (c *Client) Index(ctx context.Context, force bool) (*models.RegistryIndex, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force && c.cached != nil && c.now().Sub(c.fetchedAt) < c.cacheTTL {
		return c.cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.indexURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build index request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// A stale index beats no index when the registry is unreachable.
		if c.cached != nil {
			log.Warn().Err(err).Msg("registry unreachable, serving stale index")
			return c.cached, nil
		}
		return nil, fmt.Errorf("fetch index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch index: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}

	var index models.RegistryIndex
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}

	c.cached = &index
	c.fetchedAt = c.now()
	log.Debug().Int("plugins", len(index.Plugins)).Msg("registry index refreshed")
	return c.cached, nil
}

// Search filters the index by a case-insensitive substring over id, name,
// description, and tags. An empty query returns everything.
func (c *Client) Search(ctx context.Context, query string) ([]models.RegistryPlugin, error) {
	index, err := c.Index(ctx, false)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return index.Plugins, nil
	}

	out := []models.RegistryPlugin{}
	for _, p := range index.Plugins {
		hay := strings.ToLower(p.ID + " " + p.Name + " " + p.Description + " " + strings.Join(p.Tags, " "))
		if strings.Contains(hay, q) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Featured returns the entries the index flags as featured.
func (c *Client) Featured(ctx context.Context) ([]models.RegistryPlugin, error) {
	index, err := c.Index(ctx, false)
	if err != nil {
		return nil, err
	}
	out := []models.RegistryPlugin{}
	for _, p := range index.Plugins {
		if p.Featured {
			out = append(out, p)
		}
	}
	return out, nil
}

// CheckUpdates compares installed plugins against a freshly fetched index.
// The cache is bypassed so a just-published version is visible immediately.
// Any version string difference counts as an update; the registry is the
// source of truth, not a semver oracle.
func (c *Client) CheckUpdates(ctx context.Context, installed []models.LoadedPlugin) ([]models.UpdateInfo, error) {
	index, err := c.Index(ctx, true)
	if err != nil {
		return nil, err
	}

	byID := map[string]models.RegistryPlugin{}
	for _, p := range index.Plugins {
		byID[p.ID] = p
	}

	out := []models.UpdateInfo{}
	for _, p := range installed {
		remote, ok := byID[p.Manifest.ID]
		if !ok || remote.Version == "" || p.Manifest.Version == "" {
			continue
		}
		if remote.Version != p.Manifest.Version {
			out = append(out, models.UpdateInfo{
				PluginID:         p.Manifest.ID,
				InstalledVersion: p.Manifest.Version,
				LatestVersion:    remote.Version,
				DownloadURL:      remote.DownloadURL,
			})
		}
	}
	return out, nil
}
