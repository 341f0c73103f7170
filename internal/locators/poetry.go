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

// pyproject is the subset of pyproject.toml needed to recognize a
// poetry project.
type pyproject struct {
	Tool struct {
		Poetry map[string]any `toml:"poetry"`
	} `toml:"tool"`
}

// hasPoetrySection reports whether the workspace's pyproject.toml has
// a [tool.poetry] table.
func hasPoetrySection(fsys platform.Filesystem, workspaceRoot string) bool {
	data, err := fsys.ReadFile(filepath.Join(workspaceRoot, "pyproject.toml"))
	if err != nil {
		return false
	}
	var pp pyproject
	if err := toml.Unmarshal(data, &pp); err != nil {
		return false
	}
	return pp.Tool.Poetry != nil
}

// PoetryLocator resolves the workspace's poetry environment: the
// in-project .venv convention first, then `poetry env info -p`,
// checking that the reported path actually contains an interpreter.
type PoetryLocator struct {
	fsys       platform.Filesystem
	exec       platform.Executor
	logger     *log.Logger
	poetryPath string
	timeout    time.Duration
}

// NewPoetryLocator creates the locator. poetryPath defaults to
// "poetry" on PATH when empty.
func NewPoetryLocator(fsys platform.Filesystem, exec platform.Executor, logger *log.Logger, poetryPath string, timeout time.Duration) *PoetryLocator {
	if poetryPath == "" {
		poetryPath = "poetry"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PoetryLocator{fsys: fsys, exec: exec, logger: logger, poetryPath: poetryPath, timeout: timeout}
}

// Name implements Locator.
func (l *PoetryLocator) Name() string { return "poetry" }

// Source implements Locator. Poetry workspace envs rank with the
// workspace-venv band.
func (l *PoetryLocator) Source() python.Source { return python.SourceWorkspaceVenv }

// Environments implements Locator.
func (l *PoetryLocator) Environments(ctx context.Context, scope Scope) ([]python.Record, error) {
	if scope.WorkspaceRoot == "" || !hasPoetrySection(l.fsys, scope.WorkspaceRoot) {
		return nil, nil
	}

	// In-project convention.
	inProject := filepath.Join(scope.WorkspaceRoot, ".venv")
	if interp := findInterpreter(l.fsys, inProject); interp != "" {
		return []python.Record{l.record(interp, inProject, scope.WorkspaceRoot)}, nil
	}

	result, err := l.exec.Run(ctx, l.poetryPath, []string{"env", "info", "-p"}, platform.RunOptions{
		Dir:     scope.WorkspaceRoot,
		Timeout: l.timeout,
	})
	if err != nil || result.ExitCode != 0 {
		l.logger.Debug("poetry env info failed", "workspace", scope.WorkspaceRoot, "err", err)
		return nil, nil
	}

	envDir := strings.TrimSpace(result.Stdout)
	interp := findInterpreter(l.fsys, envDir)
	if interp == "" {
		return nil, nil
	}
	return []python.Record{l.record(interp, envDir, scope.WorkspaceRoot)}, nil
}

func (l *PoetryLocator) record(interp, envDir, workspaceRoot string) python.Record {
	return python.Record{
		Path:           python.NormalizePath(interp),
		Kind:           python.KindPoetry,
		EnvName:        filepath.Base(envDir),
		SearchLocation: workspaceRoot,
		Source:         l.Source(),
		Tier:           python.TierPartial,
	}
}
