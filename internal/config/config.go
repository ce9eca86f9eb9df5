package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetryPolicy configures CallWithRetry for one endpoint.
// MaxRetries 0 disables retry for that endpoint.
type RetryPolicy struct {
	MaxRetries  int `json:"max_retries"`
	BaseDelayMs int `json:"base_delay_ms"`
}

// BaseDelay returns the initial wait as a duration.
func (p RetryPolicy) BaseDelay() time.Duration {
	return time.Duration(p.BaseDelayMs) * time.Millisecond
}

// Config holds application configuration.
type Config struct {
	// BaseURL is the patent service root, e.g. http://localhost:8000.
	// A value stored with `scout config set-url` takes precedence.
	BaseURL string `json:"base_url,omitempty"`

	// RequestTimeoutSeconds bounds a single HTTP exchange. 0 leaves the transport default (no timeout).
	RequestTimeoutSeconds int `json:"request_timeout_seconds,omitempty"`

	// MaxResults is the default max_results sent with searches.
	MaxResults int `json:"max_results,omitempty"`

	// ProgressSeconds is the expected duration per search mode ("tech", "condition", "excel")
	// used to pace the simulated progress indicator.
	ProgressSeconds map[string]int `json:"progress_seconds,omitempty"`

	// Retry overrides the per-endpoint retry policy, keyed by endpoint name
	// (e.g. "keywords", "memory_status"). Entries replace defaults wholesale.
	Retry map[string]RetryPolicy `json:"retry,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`

	// ExportLabel is the filename prefix for spreadsheet exports.
	ExportLabel string `json:"export_label,omitempty"`

	// AllowedPaths is an allowlist of directories for exports and uploads.
	// Paths outside ~/.scout/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for exports.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of tool groups to disable entirely.
	// Known types: "patent", "chat", "config".
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "http://localhost:8000",
		MaxResults: 1000,
		ProgressSeconds: map[string]int{
			"tech":      60,
			"condition": 45,
			"excel":     180,
		},
		LogLevel:    "info",
		ExportLabel: "patents",
	}
}

// ProgressDuration returns the expected duration for a search mode.
func (c *Config) ProgressDuration(mode string) time.Duration {
	if secs, ok := c.ProgressSeconds[mode]; ok && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return time.Minute
}

// RequestTimeout returns the transport timeout, 0 meaning none.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.scout.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.scout) and repo (.scout) directories.
// Repo config is found by walking upward from startDir to find the nearest .scout/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated); maps are merged by key.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repoConfigPath := FindRepoConfig(startDir)
	repo, err := loadFileRaw(repoConfigPath)
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .scout/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".scout", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated;
// maps are merged with overlay keys winning.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.BaseURL = firstNonEmpty(strings.TrimSpace(overlay.BaseURL), base.BaseURL)
	result.LogLevel = firstNonEmpty(strings.TrimSpace(overlay.LogLevel), base.LogLevel)
	result.ExportLabel = firstNonEmpty(strings.TrimSpace(overlay.ExportLabel), base.ExportLabel)

	result.RequestTimeoutSeconds = firstNonZero(overlay.RequestTimeoutSeconds, base.RequestTimeoutSeconds)
	result.MaxResults = firstNonZero(overlay.MaxResults, base.MaxResults)
	result.DBMaxOpenConns = firstNonZero(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = firstNonZero(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	result.ProgressSeconds = mergeMap(base.ProgressSeconds, overlay.ProgressSeconds)
	result.Retry = mergeMap(base.Retry, overlay.Retry)

	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func firstNonZero(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}

// mergeMap copies base then overlays overlay. Returns nil when both are empty.
func mergeMap[V any](base, overlay map[string]V) map[string]V {
	if len(base) == 0 && len(overlay) == 0 {
		return nil
	}
	result := make(map[string]V, len(base)+len(overlay))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range overlay {
		result[strings.TrimSpace(k)] = v
	}
	return result
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
