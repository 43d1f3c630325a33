package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xyproto/env/v2"
	"gopkg.in/yaml.v3"

	"github.com/l3aro/go-flowsplit/internal/log"
)

// DirName is the directory holding project and global settings.
const DirName = ".flowsplit"

// Config holds all configuration for flowsplit
type Config struct {
	// WarningsLevel enables uninitialized-use diagnostics when >= 1.
	WarningsLevel int `yaml:"warnings_level" env:"FLOWSPLIT_WARNINGS_LEVEL"`

	// Passes
	MergeSameTypes bool `yaml:"merge_same_types" env:"FLOWSPLIT_MERGE_SAME_TYPES"`
	RemoveDeadCode bool `yaml:"remove_dead_code" env:"FLOWSPLIT_REMOVE_DEAD_CODE"`

	// Workers bounds parallel function analyses. 0 means GOMAXPROCS.
	Workers int `yaml:"workers" env:"FLOWSPLIT_WORKERS"`

	// Callee knowledge
	ThrowingFunctions []string         `yaml:"throwing_functions,omitempty"`
	RefParamFunctions map[string][]int `yaml:"ref_param_functions,omitempty"`
	UnknownCallsThrow bool             `yaml:"unknown_calls_throw" env:"FLOWSPLIT_UNKNOWN_CALLS_THROW"`

	// Report cache; an empty CacheFile disables it.
	CacheFile string `yaml:"cache_file" env:"FLOWSPLIT_CACHE_FILE"`
	CacheSize int    `yaml:"cache_size" env:"FLOWSPLIT_CACHE_SIZE"`

	// Logging
	LogLevel string `yaml:"log_level" env:"FLOWSPLIT_LOG_LEVEL"`
	JSONLog  bool   `yaml:"json_log" env:"FLOWSPLIT_JSON_LOG"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		WarningsLevel:  1,
		MergeSameTypes: true,
		RemoveDeadCode: true,
		Workers:        0,
		CacheFile:      filepath.Join(DirName, "cache.msgpack"),
		CacheSize:      512,
		LogLevel:       "info",
	}
}

// globalConfigFilePath returns the path to the global config file
func globalConfigFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, DirName, "config.yaml"), nil
}

// ProjectConfigFilePath returns the project config file below dir.
func ProjectConfigFilePath(dir string) string {
	return filepath.Join(dir, DirName, "config.yaml")
}

// Load reads the global config, then the project config in the current
// directory, then environment overrides. Missing files are not an error.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if globalPath, err := globalConfigFilePath(); err == nil {
		if err := cfg.mergeFile(globalPath); err != nil {
			return nil, err
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	if err := cfg.mergeFile(ProjectConfigFilePath(cwd)); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromFile reads a single config file over the defaults, without
// environment overrides.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// mergeFile overlays the keys present in path onto cfg.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Save writes the configuration to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// applyEnvOverrides applies FLOWSPLIT_* environment variables that are set.
func (c *Config) applyEnvOverrides() {
	c.WarningsLevel = env.Int("FLOWSPLIT_WARNINGS_LEVEL", c.WarningsLevel)
	c.Workers = env.Int("FLOWSPLIT_WORKERS", c.Workers)
	c.CacheSize = env.Int("FLOWSPLIT_CACHE_SIZE", c.CacheSize)
	c.LogLevel = env.Str("FLOWSPLIT_LOG_LEVEL", c.LogLevel)

	if env.Has("FLOWSPLIT_CACHE_FILE") {
		c.CacheFile = env.Str("FLOWSPLIT_CACHE_FILE")
	}
	if env.Has("FLOWSPLIT_MERGE_SAME_TYPES") {
		c.MergeSameTypes = env.Bool("FLOWSPLIT_MERGE_SAME_TYPES")
	}
	if env.Has("FLOWSPLIT_REMOVE_DEAD_CODE") {
		c.RemoveDeadCode = env.Bool("FLOWSPLIT_REMOVE_DEAD_CODE")
	}
	if env.Has("FLOWSPLIT_UNKNOWN_CALLS_THROW") {
		c.UnknownCallsThrow = env.Bool("FLOWSPLIT_UNKNOWN_CALLS_THROW")
	}
	if env.Has("FLOWSPLIT_JSON_LOG") {
		c.JSONLog = env.Bool("FLOWSPLIT_JSON_LOG")
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.WarningsLevel < 0 {
		return fmt.Errorf("warnings_level must be non-negative, got %d", c.WarningsLevel)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Workers)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache_size must be non-negative, got %d", c.CacheSize)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	for name, positions := range c.RefParamFunctions {
		for _, p := range positions {
			if p < 0 {
				return fmt.Errorf("ref_param_functions[%s]: negative position %d", name, p)
			}
		}
	}
	return nil
}

// Fingerprint summarizes every setting that changes analysis results, so
// cached reports can be keyed on it.
func (c *Config) Fingerprint() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "w=%d;m=%t;d=%t;u=%t;", c.WarningsLevel, c.MergeSameTypes, c.RemoveDeadCode, c.UnknownCallsThrow)

	throwing := append([]string(nil), c.ThrowingFunctions...)
	sort.Strings(throwing)
	fmt.Fprintf(&sb, "t=%s;", strings.Join(throwing, ","))

	names := make([]string, 0, len(c.RefParamFunctions))
	for name := range c.RefParamFunctions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&sb, "r.%s=%v;", strings.ToLower(name), c.RefParamFunctions[name])
	}
	return sb.String()
}
