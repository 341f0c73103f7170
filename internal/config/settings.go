// Package config loads workspace-scoped settings from pyscout.yaml
// with PYSCOUT_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings controls discovery, enrichment and the notebook facade.
type Settings struct {
	// VenvFolders are the workspace subdirectories checked for local
	// virtual environments.
	// Default: .venv, venv, env
	VenvFolders []string `mapstructure:"venv_folders"`

	// VenvPath is an extra root scanned for global virtual
	// environments, alongside WORKON_HOME and the poetry cache.
	// Default: "" (disabled)
	VenvPath string `mapstructure:"venv_path"`

	// CondaPath overrides where the conda installation is looked for.
	// Default: "" (well-known locations)
	CondaPath string `mapstructure:"conda_path"`

	// PipenvPath is the pipenv executable used to resolve Pipfile
	// projects.
	// Default: "pipenv"
	PipenvPath string `mapstructure:"pipenv_path"`

	// PoetryPath is the poetry executable used to resolve pyproject
	// projects.
	// Default: "poetry"
	PoetryPath string `mapstructure:"poetry_path"`

	// SearchPaths are extra directories checked for a bare jupyter
	// executable.
	// Default: none
	SearchPaths []string `mapstructure:"search_paths"`

	// ShellTimeout bounds every spawned tool and interpreter probe.
	// Default: 30s, Range: 1s-10m
	ShellTimeout time.Duration `mapstructure:"shell_timeout"`

	// WatcherSettle is the quiet period after a filesystem burst before
	// re-discovery runs.
	// Default: 5s, Range: 100ms-5m
	WatcherSettle time.Duration `mapstructure:"watcher_settle"`

	// InfoWorkers caps concurrent interpreter probe subprocesses.
	// Default: 2, Range: 1-16
	InfoWorkers int `mapstructure:"info_workers"`

	// DatabasePath is the persistent environment cache location.
	// Default: <user config dir>/pyscout/pyscout.db
	DatabasePath string `mapstructure:"database_path"`

	// LogLevel is one of debug, info, warn, error.
	// Default: info
	LogLevel string `mapstructure:"log_level"`
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() *Settings {
	return &Settings{
		VenvFolders:   []string{".venv", "venv", "env"},
		PipenvPath:    "pipenv",
		PoetryPath:    "poetry",
		ShellTimeout:  30 * time.Second,
		WatcherSettle: 5 * time.Second,
		InfoWorkers:   2,
		DatabasePath:  defaultDatabasePath(),
		LogLevel:      "info",
	}
}

func defaultDatabasePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "pyscout", "pyscout.db")
	}
	return filepath.Join(dir, "pyscout", "pyscout.db")
}

// Load reads pyscout.yaml from the workspace root (when present) and
// applies PYSCOUT_* environment overrides on top of the defaults.
func Load(workspaceRoot string) (*Settings, error) {
	v := viper.New()

	defaults := DefaultSettings()
	v.SetDefault("venv_folders", defaults.VenvFolders)
	v.SetDefault("venv_path", defaults.VenvPath)
	v.SetDefault("conda_path", defaults.CondaPath)
	v.SetDefault("pipenv_path", defaults.PipenvPath)
	v.SetDefault("poetry_path", defaults.PoetryPath)
	v.SetDefault("search_paths", defaults.SearchPaths)
	v.SetDefault("shell_timeout", defaults.ShellTimeout)
	v.SetDefault("watcher_settle", defaults.WatcherSettle)
	v.SetDefault("info_workers", defaults.InfoWorkers)
	v.SetDefault("database_path", defaults.DatabasePath)
	v.SetDefault("log_level", defaults.LogLevel)

	v.SetConfigName("pyscout")
	v.SetConfigType("yaml")
	if workspaceRoot != "" {
		v.AddConfigPath(workspaceRoot)
	}
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "pyscout"))
	}

	v.SetEnvPrefix("PYSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading pyscout.yaml: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decoding settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks ranges and enumerations.
func (s *Settings) Validate() error {
	if len(s.VenvFolders) == 0 {
		return fmt.Errorf("venv_folders must name at least one folder")
	}
	if s.ShellTimeout < time.Second || s.ShellTimeout > 10*time.Minute {
		return fmt.Errorf("shell_timeout %v out of range [1s, 10m]", s.ShellTimeout)
	}
	if s.WatcherSettle < 100*time.Millisecond || s.WatcherSettle > 5*time.Minute {
		return fmt.Errorf("watcher_settle %v out of range [100ms, 5m]", s.WatcherSettle)
	}
	if s.InfoWorkers < 1 || s.InfoWorkers > 16 {
		return fmt.Errorf("info_workers %d out of range [1, 16]", s.InfoWorkers)
	}
	switch s.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", s.LogLevel)
	}
	return nil
}
