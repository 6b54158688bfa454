package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultServer         = "http://127.0.0.1:5000"
	DefaultPollInterval   = time.Second
	DefaultLogLevel       = "warn"
	DefaultHistoryBackend = "sqlite"
)

// HistoryConfig selects where proxy history is kept.
type HistoryConfig struct {
	// Backend is one of sqlite, file, postgres, none.
	Backend string `yaml:"backend"`
	// Path is the state directory for the sqlite and file backends.
	Path      string `yaml:"path"`
	DSN       string `yaml:"dsn"`
	QueueSize int    `yaml:"queue_size"`
}

// Config holds nexusflow configuration
type Config struct {
	Server       string        `yaml:"server"`
	Password     string        `yaml:"password"`
	PollInterval time.Duration `yaml:"poll_interval"`
	// HTTPTimeout bounds each API request. Zero means no client timeout.
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	LogLevel    string        `yaml:"log_level"`
	// LogFile receives monitor logs; the terminal belongs to the dashboard.
	LogFile     string        `yaml:"log_file"`
	MetricsAddr string        `yaml:"metrics_addr"`
	// Preset is a FormConfig file (json, yaml or toml) used by start.
	Preset  string        `yaml:"preset"`
	History HistoryConfig `yaml:"history"`
}

// configFile is the name of the config file
const configFile = "config.yaml"

// repoDir is the per-directory config folder
const repoDir = ".nexusflow"

// Default returns the built-in configuration.
func Default() *Config {
	state := StateDir()
	return &Config{
		Server:       DefaultServer,
		PollInterval: DefaultPollInterval,
		LogLevel:     DefaultLogLevel,
		LogFile:      filepath.Join(state, "monitor.log"),
		History: HistoryConfig{
			Backend: DefaultHistoryBackend,
			Path:    state,
		},
	}
}

// Load loads configuration with the following precedence (highest first):
// 1. Repo-local .nexusflow/config.yaml in the current directory
// 2. Parent .nexusflow/config.yaml files (searched upward from cwd)
// 3. Environment variables
// 4. Global ~/.config/nexusflow/config.yaml
// 5. Built-in defaults
func Load() (*Config, error) {
	cfg := Default()

	// Load global config first (lowest precedence)
	globalPath := globalConfigPath()
	if globalPath != "" {
		if err := loadFromFile(globalPath, cfg); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}

	// Apply environment variables (higher precedence than global config)
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	// Load repo-local config files (highest precedence)
	repoPaths, err := findRepoConfigs()
	if err != nil {
		return nil, err
	}
	for _, repoPath := range repoPaths {
		if err := loadFromFile(repoPath, cfg); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}

	return cfg, nil
}

// LoadWithFile loads the layered configuration and then merges an explicit
// config file on top. A missing explicit file is an error.
func LoadWithFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return cfg, nil
	}
	if err := loadFromFile(path, cfg); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server) == "" {
		return fmt.Errorf("server is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("http_timeout must not be negative, got %s", c.HTTPTimeout)
	}
	switch c.History.Backend {
	case "sqlite", "file", "postgres", "none":
	default:
		return fmt.Errorf("unknown history backend %q (want sqlite, file, postgres or none)", c.History.Backend)
	}
	if c.History.Backend == "postgres" && c.History.DSN == "" {
		return fmt.Errorf("history.dsn is required for the postgres backend")
	}
	if c.History.QueueSize < 0 {
		return fmt.Errorf("history.queue_size must not be negative")
	}
	return nil
}

// RepoConfigDir returns the path to .nexusflow directory if found, empty string otherwise
func RepoConfigDir() string {
	paths, _ := findRepoConfigs()
	if len(paths) == 0 {
		return ""
	}
	return filepath.Dir(paths[len(paths)-1])
}

// findRepoConfigs searches upward from cwd for .nexusflow/config.yaml files.
// Returned paths are ordered from furthest ancestor to closest (highest precedence last).
func findRepoConfigs() ([]string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	dir := cwd
	var paths []string
	for {
		configPath := filepath.Join(dir, repoDir, configFile)
		if _, err := os.Stat(configPath); err == nil {
			paths = append(paths, configPath)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			break
		}
		dir = parent
	}

	for i, j := 0, len(paths)-1; i < j; i, j = i+1, j-1 {
		paths[i], paths[j] = paths[j], paths[i]
	}

	return paths, nil
}

// globalConfigPath returns the path to global config
func globalConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "nexusflow", configFile)
}

// StateDir is where history and logs live by default.
func StateDir() string {
	if v := os.Getenv("XDG_STATE_HOME"); v != "" {
		return filepath.Join(v, "nexusflow")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "nexusflow")
	}
	return filepath.Join(home, ".local", "state", "nexusflow")
}

// loadFromFile loads config from a YAML file, merging into existing cfg.
// Relative paths for log_file, preset and history.path are resolved
// relative to the config file's parent directory (for .nexusflow/config.yaml,
// the directory containing .nexusflow).
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Parse into a temporary struct to merge non-empty values
	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	configDir := filepath.Dir(path)
	baseDir := configDir
	if filepath.Base(configDir) == repoDir {
		baseDir = filepath.Dir(configDir)
	}

	if fileCfg.Server != "" {
		cfg.Server = fileCfg.Server
	}
	if fileCfg.Password != "" {
		cfg.Password = fileCfg.Password
	}
	if fileCfg.PollInterval != 0 {
		cfg.PollInterval = fileCfg.PollInterval
	}
	if fileCfg.HTTPTimeout != 0 {
		cfg.HTTPTimeout = fileCfg.HTTPTimeout
	}
	if fileCfg.LogLevel != "" {
		cfg.LogLevel = fileCfg.LogLevel
	}
	if fileCfg.LogFile != "" {
		cfg.LogFile = resolvePathFromConfig(fileCfg.LogFile, baseDir)
	}
	if fileCfg.MetricsAddr != "" {
		cfg.MetricsAddr = fileCfg.MetricsAddr
	}
	if fileCfg.Preset != "" {
		cfg.Preset = resolvePathFromConfig(fileCfg.Preset, baseDir)
	}
	if fileCfg.History.Backend != "" {
		cfg.History.Backend = fileCfg.History.Backend
	}
	if fileCfg.History.Path != "" {
		cfg.History.Path = resolvePathFromConfig(fileCfg.History.Path, baseDir)
	}
	if fileCfg.History.DSN != "" {
		cfg.History.DSN = fileCfg.History.DSN
	}
	if fileCfg.History.QueueSize != 0 {
		cfg.History.QueueSize = fileCfg.History.QueueSize
	}

	return nil
}

// resolvePathFromConfig resolves a path from a config file
// - Expands ~ to home directory
// - Makes relative paths absolute relative to baseDir
// - Returns absolute paths unchanged
func resolvePathFromConfig(path, baseDir string) string {
	return ExpandPath(path, baseDir)
}

// applyEnv applies environment variables to config
func applyEnv(cfg *Config) error {
	if v := os.Getenv("NEXUSFLOW_SERVER"); v != "" {
		cfg.Server = v
	}
	if v := os.Getenv("NEXUSFLOW_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("NEXUSFLOW_POLL_INTERVAL"); v != "" {
		d, err := ParseInterval(v)
		if err != nil {
			return fmt.Errorf("NEXUSFLOW_POLL_INTERVAL: %w", err)
		}
		cfg.PollInterval = d
	}
	if v := os.Getenv("NEXUSFLOW_HISTORY_BACKEND"); v != "" {
		cfg.History.Backend = v
	}
	if v := os.Getenv("NEXUSFLOW_HISTORY_PATH"); v != "" {
		cfg.History.Path = ExpandPath(v, "")
	}
	if v := os.Getenv("NEXUSFLOW_HISTORY_DSN"); v != "" {
		cfg.History.DSN = v
	}
	if v := os.Getenv("NEXUSFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("NEXUSFLOW_LOG_FILE"); v != "" {
		cfg.LogFile = ExpandPath(v, "")
	}
	if v := os.Getenv("NEXUSFLOW_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	return nil
}

// ParseInterval accepts a Go duration ("1500ms", "2s") or a bare number of
// milliseconds.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	return d, nil
}

// ExpandPath expands ~ and makes path absolute relative to base
func ExpandPath(path, base string) string {
	if path == "" {
		return ""
	}

	// Expand ~
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[1:])
	}

	// Make absolute if relative
	if !filepath.IsAbs(path) && base != "" {
		path = filepath.Join(base, path)
	}

	return path
}
