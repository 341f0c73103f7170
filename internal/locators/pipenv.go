package locators

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"

	"github.com/karrtikr/pyscout/internal/platform"
	"github.com/karrtikr/pyscout/internal/python"
)

// pipfile is the subset of Pipfile content discovery cares about.
type pipfile struct {
	Requires struct {
		PythonVersion string `toml:"python_version"`
	} `toml:"requires"`
}

// PipenvLocator resolves the workspace's pipenv environment by asking
// the pipenv tool itself where the virtualenv lives. The Pipfile's
// requires section contributes a partial version before enrichment.
type PipenvLocator struct {
	fsys       platform.Filesystem
	exec       platform.Executor
	logger     *log.Logger
	pipenvPath string
	timeout    time.Duration
}

// NewPipenvLocator creates the locator. pipenvPath defaults to
// "pipenv" on PATH when empty.
func NewPipenvLocator(fsys platform.Filesystem, exec platform.Executor, logger *log.Logger, pipenvPath string, timeout time.Duration) *PipenvLocator {
	if pipenvPath == "" {
		pipenvPath = "pipenv"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PipenvLocator{fsys: fsys, exec: exec, logger: logger, pipenvPath: pipenvPath, timeout: timeout}
}

// Name implements Locator.
func (l *PipenvLocator) Name() string { return "pipenv" }

// Source implements Locator.
func (l *PipenvLocator) Source() python.Source { return python.SourcePipenv }

// Environments implements Locator.
func (l *PipenvLocator) Environments(ctx context.Context, scope Scope) ([]python.Record, error) {
	if scope.WorkspaceRoot == "" {
		return nil, nil
	}

	pipfilePath := filepath.Join(scope.WorkspaceRoot, "Pipfile")
	data, err := l.fsys.ReadFile(pipfilePath)
	if err != nil {
		return nil, nil
	}

	var pf pipfile
	if err := toml.Unmarshal(data, &pf); err != nil {
		l.logger.Debug("unparsable Pipfile", "path", pipfilePath, "err", err)
		// A broken Pipfile still marks a pipenv project.
	}

	result, err := l.exec.Run(ctx, l.pipenvPath, []string{"--venv"}, platform.RunOptions{
		Dir:     scope.WorkspaceRoot,
		Timeout: l.timeout,
	})
	if err != nil || result.ExitCode != 0 {
		l.logger.Debug("pipenv --venv failed", "workspace", scope.WorkspaceRoot, "err", err)
		return nil, nil
	}

	envDir := strings.TrimSpace(result.Stdout)
	interp := findInterpreter(l.fsys, envDir)
	if interp == "" {
		return nil, nil
	}

	rec := python.Record{
		Path:           python.NormalizePath(interp),
		Kind:           python.KindPipenv,
		EnvName:        filepath.Base(envDir),
		SearchLocation: scope.WorkspaceRoot,
		Source:         l.Source(),
		Tier:           python.TierPartial,
	}
	if pf.Requires.PythonVersion != "" {
		if v, err := python.ParseVersion(pf.Requires.PythonVersion); err == nil {
			rec.Version = v
		}
	}
	return []python.Record{rec}, nil
}
