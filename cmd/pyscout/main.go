package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/karrtikr/pyscout/internal/config"
)

var (
	workspaceFlag string
	verbose       bool

	settings *config.Settings
	logger   *log.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pyscout",
	Short: "Discover and inspect Python environments",
	Long: `pyscout finds the Python interpreters reachable from a workspace:
conda environments, virtual environments (venv, virtualenv,
virtualenvwrapper, pipenv, poetry), registry installs on Windows and
anything on PATH. Discovered environments are cached on disk so repeat
runs answer immediately.

It also resolves Jupyter tooling against the discovered interpreters:
which interpreter should run a notebook, and which kernel spec matches
the selected interpreter.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		root, err := workspaceRoot()
		if err != nil {
			return err
		}
		settings, err = config.Load(root)
		if err != nil {
			return err
		}

		level := log.InfoLevel
		if verbose {
			level = log.DebugLevel
		} else if parsed, err := log.ParseLevel(settings.LogLevel); err == nil {
			level = parsed
		}
		logger = log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			TimeFormat:      "15:04:05.00",
			Level:           level,
		})
		return nil
	},
}

// workspaceRoot resolves the --workspace flag, defaulting to the
// current directory.
func workspaceRoot() (string, error) {
	if workspaceFlag != "" {
		abs, err := filepath.Abs(workspaceFlag)
		if err != nil {
			return "", fmt.Errorf("resolving workspace path: %w", err)
		}
		return abs, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolving working directory: %w", err)
	}
	return wd, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workspaceFlag, "workspace", "w", "", "Workspace root (default: current directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
