// Package config loads wfsandbox configuration from YAML or TOML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/fentz26/wfsandbox/internal/scheduler"
)

// Config holds wfsandbox configuration.
type Config struct {
	// ScratchRoot is the base directory for all task sandboxes.
	ScratchRoot string `yaml:"scratch_root" toml:"scratch_root"`

	// Workflow names tasks submitted without one.
	Workflow string `yaml:"workflow" toml:"workflow"`

	// UniqueID selects how sandbox ids are generated: human or uuid.
	UniqueID string `yaml:"unique_id" toml:"unique_id"`

	// Interpreter runs launcher and context scripts.
	Interpreter string `yaml:"interpreter" toml:"interpreter"`

	// LauncherName and ContextName are the script file names under .control.
	LauncherName string `yaml:"launcher_name" toml:"launcher_name"`
	ContextName  string `yaml:"context_name" toml:"context_name"`

	// Timeout is the default walltime; zero means none.
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`

	// KillGrace is the wait between SIGTERM and SIGKILL when a timeout fires.
	KillGrace time.Duration `yaml:"kill_grace" toml:"kill_grace"`

	// Probe selects the context probe: local or none.
	Probe string `yaml:"probe" toml:"probe"`

	// Staging selects how referenced outputs are staged: copy, link or none.
	Staging string `yaml:"staging" toml:"staging"`

	// Unresolved decides what happens to references with no producing task: fail or passthrough.
	Unresolved string `yaml:"unresolved" toml:"unresolved"`

	// DBPath is the SQLite task registry.
	DBPath string `yaml:"db_path" toml:"db_path"`

	// Listen is the daemon's HTTP address.
	Listen string `yaml:"listen" toml:"listen"`

	// Workers bounds how many tasks the daemon runs at once.
	Workers scheduler.Config `yaml:"workers" toml:"workers"`

	// EnvFile is a dotenv file whose variables are exported to every task.
	EnvFile string `yaml:"env_file,omitempty" toml:"env_file"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	base := "."
	if home, err := os.UserHomeDir(); err == nil {
		base = filepath.Join(home, ".wfsandbox")
	}
	return &Config{
		ScratchRoot:  filepath.Join(base, "scratch"),
		Workflow:     "main",
		UniqueID:     "human",
		Interpreter:  "/bin/bash",
		LauncherName: "launcher.sh",
		ContextName:  "context.sh",
		KillGrace:    2 * time.Second,
		Probe:        "local",
		Staging:      "copy",
		Unresolved:   "fail",
		DBPath:       filepath.Join(base, "wfsandbox.db"),
		Listen:       "127.0.0.1:7467",
		Workers:      *scheduler.DefaultConfig(),
	}
}

// LoadConfig loads configuration from a .yaml, .yml or .toml file. A missing
// file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// DefaultConfigPath returns ~/.wfsandbox/config.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".wfsandbox", "config.yaml"), nil
}

// LoadConfigFromHome loads configuration from ~/.wfsandbox/config.yaml.
func LoadConfigFromHome() (*Config, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadConfig(path)
}

// SaveConfig saves configuration as YAML, creating parent directories if needed.
func SaveConfig(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.ScratchRoot == "" {
		return fmt.Errorf("scratch_root is required")
	}
	if c.Workflow == "" || strings.ContainsRune(c.Workflow, '/') {
		return fmt.Errorf("invalid workflow %q", c.Workflow)
	}
	if c.Workers.GlobalMax < 1 {
		return fmt.Errorf("workers.global_max must be at least 1")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	checks := []struct {
		field string
		value string
		valid []string
	}{
		{"unique_id", c.UniqueID, []string{"human", "uuid"}},
		{"probe", c.Probe, []string{"local", "none"}},
		{"staging", c.Staging, []string{"copy", "link", "none"}},
		{"unresolved", c.Unresolved, []string{"fail", "passthrough"}},
	}
	for _, ch := range checks {
		if !contains(ch.valid, ch.value) {
			return fmt.Errorf("invalid %s %q, must be one of: %s", ch.field, ch.value, strings.Join(ch.valid, ", "))
		}
	}
	for _, name := range []string{c.LauncherName, c.ContextName} {
		if name == "" || strings.ContainsRune(name, '/') {
			return fmt.Errorf("invalid script name %q", name)
		}
	}
	return nil
}

// TaskEnv returns the variables of EnvFile, or nil when none is configured.
func (c *Config) TaskEnv() (map[string]string, error) {
	if c.EnvFile == "" {
		return nil, nil
	}
	env, err := godotenv.Read(c.EnvFile)
	if err != nil {
		return nil, fmt.Errorf("reading env file: %w", err)
	}
	return env, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
