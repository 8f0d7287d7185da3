package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
)

// DaemonConfig controls the HTTP surface of the completion daemon.
type DaemonConfig struct {
	Host                  string `json:"host" env:"BASHME_DAEMON_HOST"`
	Port                  int    `json:"port" env:"BASHME_DAEMON_PORT"`
	AuthToken             string `json:"auth_token,omitempty" env:"BASHME_DAEMON_AUTH_TOKEN"`
	RequestsPerMinute     int    `json:"requests_per_minute" env:"BASHME_DAEMON_REQUESTS_PER_MINUTE"` // 0 = unlimited
	RequestTimeoutSeconds int    `json:"request_timeout_seconds" env:"BASHME_DAEMON_REQUEST_TIMEOUT_SECONDS"`
}

type LLMConfig struct {
	Provider          string  `json:"provider,omitempty" env:"BASHME_LLM_PROVIDER"`
	Model             string  `json:"model" env:"BASHME_LLM_MODEL"`
	APIKey            string  `json:"api_key" env:"BASHME_LLM_API_KEY"`
	BaseURL           string  `json:"base_url" env:"BASHME_LLM_BASE_URL"`
	Proxy             string  `json:"proxy,omitempty" env:"BASHME_LLM_PROXY"`
	MaxTokens         int     `json:"max_tokens" env:"BASHME_LLM_MAX_TOKENS"`
	Temperature       float64 `json:"temperature" env:"BASHME_LLM_TEMPERATURE"`
	MaxToolIterations int     `json:"max_tool_iterations" env:"BASHME_LLM_MAX_TOOL_ITERATIONS"`
}

// RegistryConfig describes how the daemon reaches the tool registry.
// The default transport spawns this binary's own `toolserver` subcommand
// over stdio; streamable_http and sse point at remote registries.
type RegistryConfig struct {
	Transport        string            `json:"transport" env:"BASHME_TOOLS_REGISTRY_TRANSPORT"`
	Command          string            `json:"command,omitempty" env:"BASHME_TOOLS_REGISTRY_COMMAND"`
	Args             []string          `json:"args,omitempty"`
	Env              map[string]string `json:"env,omitempty"`
	URL              string            `json:"url,omitempty" env:"BASHME_TOOLS_REGISTRY_URL"`
	ToolPrefix       string            `json:"tool_prefix,omitempty" env:"BASHME_TOOLS_REGISTRY_TOOL_PREFIX"`
	StartupTimeoutMS int               `json:"startup_timeout_ms,omitempty" env:"BASHME_TOOLS_REGISTRY_STARTUP_TIMEOUT_MS"`
	CallTimeoutMS    int               `json:"call_timeout_ms,omitempty" env:"BASHME_TOOLS_REGISTRY_CALL_TIMEOUT_MS"`
}

type CacheConfig struct {
	TTLMS    int `json:"ttl_ms" env:"BASHME_TOOLS_CACHE_TTL_MS"`
	Capacity int `json:"capacity" env:"BASHME_TOOLS_CACHE_CAPACITY"`
}

type ToolsConfig struct {
	Registry RegistryConfig `json:"registry"`
	// StableTools never change their answer for the same arguments, so
	// their results live in the LRU tier instead of expiring.
	StableTools []string    `json:"stable_tools" env:"BASHME_TOOLS_STABLE_TOOLS"`
	Cache       CacheConfig `json:"cache"`
	HistoryFile string      `json:"history_file,omitempty" env:"BASHME_TOOLS_HISTORY_FILE"`
}

type LogConfig struct {
	Level string `json:"level" env:"BASHME_LOG_LEVEL"`
	File  string `json:"file,omitempty" env:"BASHME_LOG_FILE"`
}

type Config struct {
	Daemon DaemonConfig `json:"daemon"`
	LLM    LLMConfig    `json:"llm"`
	Tools  ToolsConfig  `json:"tools"`
	Log    LogConfig    `json:"log"`
	mu     sync.RWMutex
}

// DefaultBaseURL is Google's OpenAI-compatible surface. The default model
// runs there; any OpenAI-style endpoint works via llm.base_url.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

func DefaultConfig() *Config {
	return &Config{
		Daemon: DaemonConfig{
			Host:                  "127.0.0.1",
			Port:                  50052,
			RequestsPerMinute:     0,
			RequestTimeoutSeconds: 60,
		},
		LLM: LLMConfig{
			Model:             "gemini-2.5-flash-lite",
			BaseURL:           DefaultBaseURL,
			MaxTokens:         1024,
			Temperature:       0.2,
			MaxToolIterations: 10,
		},
		Tools: ToolsConfig{
			Registry: RegistryConfig{
				Transport:        "command",
				StartupTimeoutMS: 8000,
				CallTimeoutMS:    30000,
			},
			StableTools: []string{"manual_page"},
			Cache: CacheConfig{
				TTLMS:    5000,
				Capacity: 1024,
			},
		},
		Log: LogConfig{
			Level: "INFO",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return applyEnv(cfg)
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return applyEnv(cfg)
}

func applyEnv(cfg *Config) (*Config, error) {
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	// The original service ran on Gemini; honor its key variable when no
	// bashme-specific key is configured.
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

func (c *Config) Lock()    { c.mu.Lock() }
func (c *Config) Unlock()  { c.mu.Unlock() }
func (c *Config) RLock()   { c.mu.RLock() }
func (c *Config) RUnlock() { c.mu.RUnlock() }

// ListenAddr returns the daemon's host:port bind address.
func (c *Config) ListenAddr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return net.JoinHostPort(c.Daemon.Host, strconv.Itoa(c.Daemon.Port))
}

// RequestTimeout returns the per-request deadline for /generate.
func (c *Config) RequestTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Daemon.RequestTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Daemon.RequestTimeoutSeconds) * time.Second
}

// HistoryFilePath returns the configured history override with ~ expanded,
// or "" when the history tool should resolve the path itself.
func (c *Config) HistoryFilePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.Tools.HistoryFile)
}

// ExpandHome resolves a leading ~ against the current user's home directory.
func ExpandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
