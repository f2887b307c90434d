package registry

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openmaw-ai/openmaw/internal/plugins"
	"github.com/openmaw-ai/openmaw/pkg/models"
)

// maxArchiveBytes bounds how much of a download the installer will accept,
// both over the wire and per extracted file.
const maxArchiveBytes = 64 << 20

// ParseInstallURL extracts the plugin source URL from an install link.
// tolk://install?url=… links carry the source in their query; plain http(s)
// URLs pass through unchanged.
func ParseInstallURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid install link %q", raw)
	}
	switch u.Scheme {
	case "http", "https":
		return u.String(), nil
	case "tolk":
		if u.Host != "install" {
			return "", fmt.Errorf("unsupported install link %q, expected tolk://install", raw)
		}
		target := u.Query().Get("url")
		if target == "" {
			return "", fmt.Errorf("install link %q has no url parameter", raw)
		}
		return target, nil
	}
	return "", fmt.Errorf("unsupported install link scheme %q", u.Scheme)
}

// Installer downloads plugins and places them in the plugins directory.
type Installer struct {
	pluginsDir string
	loader     *plugins.Loader
	httpClient *http.Client
	githubAPI  string
}

// NewInstaller builds an installer writing into pluginsDir and reloading
// through loader after every install.
func NewInstaller(pluginsDir string, loader *plugins.Loader) *Installer {
	return &Installer{
		pluginsDir: pluginsDir,
		loader:     loader,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		githubAPI:  "https://api.github.com",
	}
}

// Install fetches a plugin from rawURL and installs it. Three source forms
// are accepted: a direct manifest URL (single-file plugin), a zip archive
// URL, and a GitHub repository URL whose latest release carries the plugin.
// It returns the installed plugin's id.
func (i *Installer) Install(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid install url %q", rawURL)
	}

	switch {
	case strings.HasSuffix(u.Path, ".json"):
		return i.installManifest(ctx, u.String())
	case strings.HasSuffix(u.Path, ".zip"):
		return i.installArchive(ctx, u.String())
	case u.Host == "github.com":
		return i.installFromGitHub(ctx, u)
	}
	return "", fmt.Errorf("unsupported install url %q: expected a manifest, a zip archive, or a GitHub repository", rawURL)
}

// ── Single-file manifest ────────────────────────────────────

func (i *Installer) installManifest(ctx context.Context, manifestURL string) (string, error) {
	data, err := i.download(ctx, manifestURL)
	if err != nil {
		return "", err
	}

	var m models.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return "", fmt.Errorf("parse downloaded manifest: %w", err)
	}
	if m.Execution.Type == models.ExecScript && m.Execution.Command != "" {
		return "", fmt.Errorf("plugin %s references a script file and must be installed as an archive", m.ID)
	}
	if err := plugins.ValidateManifest(m, i.pluginsDir); err != nil {
		return "", err
	}

	dest := filepath.Join(i.pluginsDir, m.ID+plugins.Extension)
	if err := os.MkdirAll(i.pluginsDir, 0o755); err != nil {
		return "", fmt.Errorf("create plugins dir: %w", err)
	}
	// Installing over an existing plugin replaces it.
	if err := os.RemoveAll(dest); err != nil {
		return "", fmt.Errorf("replace existing plugin: %w", err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("write plugin: %w", err)
	}

	log.Info().Str("plugin", m.ID).Msg("📦 plugin installed")
	return m.ID, i.loader.Reload()
}

// ── Zip archives ────────────────────────────────────────────

func (i *Installer) installArchive(ctx context.Context, archiveURL string) (string, error) {
	data, err := i.download(ctx, archiveURL)
	if err != nil {
		return "", err
	}

	staging, err := os.MkdirTemp("", "openmaw-install-*")
	if err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	if err := extractZip(data, staging); err != nil {
		return "", err
	}

	root, err := findPluginRoot(staging)
	if err != nil {
		return "", err
	}
	m, _, err := plugins.LoadManifest(root)
	if err != nil {
		return "", err
	}

	dest := filepath.Join(i.pluginsDir, m.ID+plugins.Extension)
	if err := os.MkdirAll(i.pluginsDir, 0o755); err != nil {
		return "", fmt.Errorf("create plugins dir: %w", err)
	}
	if err := os.RemoveAll(dest); err != nil {
		return "", fmt.Errorf("replace existing plugin: %w", err)
	}
	if err := os.Rename(root, dest); err != nil {
		// Rename fails across filesystems; fall back to a copy.
		if err := copyTree(root, dest); err != nil {
			return "", fmt.Errorf("install plugin: %w", err)
		}
	}

	log.Info().Str("plugin", m.ID).Msg("📦 plugin installed")
	return m.ID, i.loader.Reload()
}

// findPluginRoot locates the directory holding manifest.json: the staging
// root itself, or exactly one level down. Release archives commonly wrap
// their content in a single top-level folder.
func findPluginRoot(staging string) (string, error) {
	if _, err := os.Stat(filepath.Join(staging, plugins.ManifestFilename)); err == nil {
		return staging, nil
	}
	entries, err := os.ReadDir(staging)
	if err != nil {
		return "", fmt.Errorf("read staging dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		candidate := filepath.Join(staging, e.Name())
		if _, err := os.Stat(filepath.Join(candidate, plugins.ManifestFilename)); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("archive contains no %s", plugins.ManifestFilename)
}

func extractZip(data []byte, dest string) error {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	for _, f := range reader.File {
		target := filepath.Join(dest, filepath.Clean(f.Name))
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes the target directory", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		src, err := f.Open()
		if err != nil {
			return fmt.Errorf("open archive entry %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(io.LimitReader(src, maxArchiveBytes))
		src.Close()
		if err != nil {
			return fmt.Errorf("read archive entry %s: %w", f.Name, err)
		}
		if err := os.WriteFile(target, content, f.Mode().Perm()|0o400); err != nil {
			return fmt.Errorf("write %s: %w", target, err)
		}
	}
	return nil
}

func copyTree(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, info.Mode().Perm())
	})
}

// ── GitHub repositories ─────────────────────────────────────

type ghRelease struct {
	TagName string `json:"tag_name"`
	Assets  []struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
	} `json:"assets"`
	ZipballURL string `json:"zipball_url"`
}

// installFromGitHub resolves a repository URL to its latest release: a zip
// asset wins, the source zipball is the fallback.
func (i *Installer) installFromGitHub(ctx context.Context, u *url.URL) (string, error) {
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 {
		return "", fmt.Errorf("github url %q is not owner/repo", u.String())
	}
	owner, repo := parts[0], strings.TrimSuffix(parts[1], ".git")

	data, err := i.download(ctx, fmt.Sprintf("%s/repos/%s/%s/releases/latest", i.githubAPI, owner, repo))
	if err != nil {
		return "", fmt.Errorf("resolve latest release: %w", err)
	}
	var release ghRelease
	if err := json.Unmarshal(data, &release); err != nil {
		return "", fmt.Errorf("parse release: %w", err)
	}

	archiveURL := release.ZipballURL
	for _, asset := range release.Assets {
		if strings.HasSuffix(asset.Name, ".zip") {
			archiveURL = asset.BrowserDownloadURL
			// An asset named for the plugin format is the intended one.
			if strings.Contains(asset.Name, plugins.Extension) {
				break
			}
		}
	}
	if archiveURL == "" {
		return "", fmt.Errorf("release %s has no downloadable archive", release.TagName)
	}
	return i.installArchive(ctx, archiveURL)
}

func (i *Installer) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: status %d", rawURL, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxArchiveBytes))
}
