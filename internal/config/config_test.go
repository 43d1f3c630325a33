package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"WarningsLevel", cfg.WarningsLevel, 1},
		{"MergeSameTypes", cfg.MergeSameTypes, true},
		{"RemoveDeadCode", cfg.RemoveDeadCode, true},
		{"Workers", cfg.Workers, 0},
		{"UnknownCallsThrow", cfg.UnknownCallsThrow, false},
		{"CacheFile", cfg.CacheFile, filepath.Join(".flowsplit", "cache.msgpack")},
		{"CacheSize", cfg.CacheSize, 512},
		{"LogLevel", cfg.LogLevel, "info"},
		{"JSONLog", cfg.JSONLog, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("DefaultConfig().%s = %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		errContains string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "negative warnings", mutate: func(c *Config) { c.WarningsLevel = -1 }, errContains: "warnings_level"},
		{name: "negative workers", mutate: func(c *Config) { c.Workers = -2 }, errContains: "workers"},
		{name: "negative cache size", mutate: func(c *Config) { c.CacheSize = -1 }, errContains: "cache_size"},
		{name: "unknown log level", mutate: func(c *Config) { c.LogLevel = "loud" }, errContains: "log level"},
		{
			name:        "negative ref position",
			mutate:      func(c *Config) { c.RefParamFunctions = map[string][]int{"fill": {0, -1}} },
			errContains: "ref_param_functions[fill]",
		},
		{
			name:   "ref positions",
			mutate: func(c *Config) { c.RefParamFunctions = map[string][]int{"fill": {0, 2}} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errContains == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errContains) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.errContains)
			}
		})
	}
}

func TestSaveAndLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := ProjectConfigFilePath(dir)

	cfg := DefaultConfig()
	cfg.WarningsLevel = 2
	cfg.MergeSameTypes = false
	cfg.ThrowingFunctions = []string{"fail", "abort"}
	cfg.RefParamFunctions = map[string][]int{"fill": {1}}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if loaded.WarningsLevel != 2 || loaded.MergeSameTypes {
		t.Errorf("loaded = %+v", loaded)
	}
	if len(loaded.ThrowingFunctions) != 2 || loaded.RefParamFunctions["fill"][0] != 1 {
		t.Errorf("callee settings not restored: %+v", loaded)
	}
	if !loaded.RemoveDeadCode {
		t.Error("unset keys should keep their defaults")
	}
}

func TestLoadFromFilePartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("workers: 3\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if cfg.Workers != 3 || cfg.WarningsLevel != 1 || cfg.CacheSize != 512 {
		t.Errorf("partial file merged wrongly: %+v", cfg)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("workers: [1, 2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(bad); err == nil {
		t.Error("expected parse error")
	}

	invalid := filepath.Join(t.TempDir(), "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("cache_size: -5\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(invalid); err == nil {
		t.Error("expected validation error")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("FLOWSPLIT_WARNINGS_LEVEL", "0")
	t.Setenv("FLOWSPLIT_WORKERS", "8")
	t.Setenv("FLOWSPLIT_MERGE_SAME_TYPES", "false")
	t.Setenv("FLOWSPLIT_CACHE_FILE", "reports.msgpack")
	t.Setenv("FLOWSPLIT_LOG_LEVEL", "debug")
	t.Setenv("FLOWSPLIT_JSON_LOG", "true")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	if cfg.WarningsLevel != 0 {
		t.Errorf("WarningsLevel = %d, want 0", cfg.WarningsLevel)
	}
	if cfg.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Workers)
	}
	if cfg.MergeSameTypes {
		t.Error("MergeSameTypes should be disabled")
	}
	if cfg.CacheFile != "reports.msgpack" {
		t.Errorf("CacheFile = %q, want reports.msgpack", cfg.CacheFile)
	}
	if cfg.LogLevel != "debug" || !cfg.JSONLog {
		t.Errorf("logging overrides not applied: %+v", cfg)
	}
	if !cfg.RemoveDeadCode {
		t.Error("unset variables must not change settings")
	}
}

func TestFingerprint(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatal("equal configs must share a fingerprint")
	}

	b.ThrowingFunctions = []string{"b", "a"}
	a.ThrowingFunctions = []string{"a", "b"}
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("order of throwing functions must not matter")
	}

	b.Workers = 16
	b.LogLevel = "error"
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("settings that do not affect results must not change the fingerprint")
	}

	b.MergeSameTypes = false
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("merge toggle must change the fingerprint")
	}
}
