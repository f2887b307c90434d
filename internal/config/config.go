package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all configuration for the OpenMaw daemon.
type Config struct {
	Port       int
	Version    string
	DataDir    string
	PluginsDir string
	AI         AIConfig
	Registry   RegistryConfig
	Telemetry  TelemetryConfig
}

type AIConfig struct {
	// Provider selects the wire protocol: "openai" or "anthropic".
	Provider string
	BaseURL  string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

type RegistryConfig struct {
	IndexURL string
	CacheTTL time.Duration
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	dataDir := envStr("OPENMAW_DATA_DIR", defaultDataDir())
	return &Config{
		Port:       envInt("OPENMAW_PORT", 4280),
		Version:    envStr("OPENMAW_VERSION", "0.4.0"),
		DataDir:    dataDir,
		PluginsDir: envStr("OPENMAW_PLUGINS_DIR", filepath.Join(dataDir, "plugins")),
		AI: AIConfig{
			Provider: envStr("OPENMAW_AI_PROVIDER", "openai"),
			BaseURL:  envStr("OPENMAW_AI_BASE_URL", ""),
			Model:    envStr("OPENMAW_AI_MODEL", "gpt-4o-mini"),
			APIKey:   envStr("OPENMAW_AI_API_KEY", ""),
			Timeout:  envDur("OPENMAW_AI_TIMEOUT", 120*time.Second),
		},
		Registry: RegistryConfig{
			IndexURL: envStr("OPENMAW_REGISTRY_URL", "https://registry.openmaw.dev/index.json"),
			CacheTTL: envDur("OPENMAW_REGISTRY_CACHE_TTL", 5*time.Minute),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "openmaw"),
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".openmaw"
	}
	return filepath.Join(home, ".openmaw")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
