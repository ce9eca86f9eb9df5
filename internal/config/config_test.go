package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BaseURL != DefaultConfig().BaseURL {
		t.Fatalf("BaseURL = %q, want %q", cfg.BaseURL, DefaultConfig().BaseURL)
	}
	if cfg.MaxResults != 1000 {
		t.Fatalf("MaxResults = %d, want 1000", cfg.MaxResults)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"base_url": "https://patents.example.com", "max_results": 200}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BaseURL != "https://patents.example.com" {
		t.Fatalf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.MaxResults != 200 {
		t.Fatalf("MaxResults = %d, want 200", cfg.MaxResults)
	}
	// Untouched defaults survive
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{not json}`)

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoad_RetryOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"retry": {"keywords": {"max_retries": 0}, "history": {"max_retries": 4, "base_delay_ms": 250}}}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	kw, ok := cfg.Retry["keywords"]
	if !ok || kw.MaxRetries != 0 {
		t.Errorf("Retry[keywords] = %+v, want explicit zero", kw)
	}
	hist := cfg.Retry["history"]
	if hist.MaxRetries != 4 || hist.BaseDelay() != 250*time.Millisecond {
		t.Errorf("Retry[history] = %+v", hist)
	}
}

func TestProgressDuration(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.ProgressDuration("tech"); got != 60*time.Second {
		t.Errorf("ProgressDuration(tech) = %v, want 60s", got)
	}
	if got := cfg.ProgressDuration("unknown"); got != time.Minute {
		t.Errorf("ProgressDuration(unknown) = %v, want 1m fallback", got)
	}
}

func TestLoadWithRepo_BothPresent(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()

	writeConfig(t, globalDir, `{"max_results": 800, "disabled_tools": ["patent_reset"], "progress_seconds": {"tech": 90}}`)
	writeConfig(t, filepath.Join(repoRoot, ".scout"), `{"max_results": 300, "disabled_tools": ["chat_clear_memory"], "progress_seconds": {"excel": 30}}`)

	cfg, err := LoadWithRepo(globalDir, repoRoot)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	if cfg.MaxResults != 300 {
		t.Errorf("MaxResults = %d, want 300 (repo override)", cfg.MaxResults)
	}
	if len(cfg.DisabledTools) != 2 {
		t.Errorf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
	// Maps merge by key across all three layers
	if cfg.ProgressSeconds["tech"] != 90 || cfg.ProgressSeconds["excel"] != 30 || cfg.ProgressSeconds["condition"] != 45 {
		t.Errorf("ProgressSeconds = %v", cfg.ProgressSeconds)
	}
}

func TestLoadWithRepo_NeitherPresent(t *testing.T) {
	cfg, err := LoadWithRepo(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	if cfg.MaxResults != 1000 {
		t.Errorf("MaxResults = %d, want 1000", cfg.MaxResults)
	}
	if len(cfg.DisabledTools) != 0 {
		t.Errorf("DisabledTools = %v, want empty", cfg.DisabledTools)
	}
}

func TestMerge_ScalarOverride(t *testing.T) {
	base := &Config{MaxResults: 1000, DBMaxOpenConns: 5, BaseURL: "http://a"}
	overlay := &Config{MaxResults: 50, BaseURL: "  "}

	result := Merge(base, overlay)

	if result.MaxResults != 50 {
		t.Errorf("MaxResults = %d, want 50 (overlay)", result.MaxResults)
	}
	if result.DBMaxOpenConns != 5 {
		t.Errorf("DBMaxOpenConns = %d, want 5 (base, overlay is zero)", result.DBMaxOpenConns)
	}
	if result.BaseURL != "http://a" {
		t.Errorf("BaseURL = %q, blank overlay should not win", result.BaseURL)
	}
}

func TestMerge_BooleanOr(t *testing.T) {
	result := Merge(&Config{AllowUnsafePaths: true}, &Config{AllowUnsafePaths: false})

	if !result.AllowUnsafePaths {
		t.Error("AllowUnsafePaths should be true (base OR overlay)")
	}
}

func TestMerge_ArrayMergeDedup(t *testing.T) {
	base := &Config{DisabledTools: []string{"patent_reset", "chat_ask"}}
	overlay := &Config{DisabledTools: []string{"chat_ask", " chat_history "}}

	result := Merge(base, overlay)

	if len(result.DisabledTools) != 3 {
		t.Fatalf("DisabledTools = %v, want 3 (merged, deduped)", result.DisabledTools)
	}
	if result.DisabledTools[2] != "chat_history" {
		t.Errorf("DisabledTools[2] = %q, want trimmed chat_history", result.DisabledTools[2])
	}
}

func TestMerge_RetryOverlayReplacesEntry(t *testing.T) {
	base := &Config{Retry: map[string]RetryPolicy{"keywords": {MaxRetries: 2, BaseDelayMs: 1000}}}
	overlay := &Config{Retry: map[string]RetryPolicy{"keywords": {MaxRetries: 0}}}

	result := Merge(base, overlay)

	if got := result.Retry["keywords"]; got.MaxRetries != 0 || got.BaseDelayMs != 0 {
		t.Errorf("Retry[keywords] = %+v, want overlay entry", got)
	}
}

func TestFindRepoConfig_InParentDir(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeConfig(t, filepath.Join(tmpDir, ".scout"), `{}`)

	subdir := filepath.Join(tmpDir, "subdir", "deeper")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	if found := FindRepoConfig(subdir); found != configPath {
		t.Errorf("FindRepoConfig() = %q, want %q", found, configPath)
	}
}

func TestFindRepoConfig_NotFound(t *testing.T) {
	if found := FindRepoConfig(t.TempDir()); found != "" {
		t.Errorf("FindRepoConfig() = %q, want empty string", found)
	}
	if found := FindRepoConfig(""); found != "" {
		t.Errorf("FindRepoConfig(\"\") = %q, want empty string", found)
	}
}
