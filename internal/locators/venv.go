package locators

import (
	"context"
	"os"
	"path/filepath"
	"regexp"

	"github.com/karrtikr/pyscout/internal/platform"
	"github.com/karrtikr/pyscout/internal/python"
)

// poetryEnvNamePattern matches poetry's generated global env names,
// e.g. "myproject-a1B2c3D4-py3.11".
var poetryEnvNamePattern = regexp.MustCompile(`^.+-[A-Za-z0-9_-]{8}-py\d+\.\d+$`)

// GlobalVenvLocator scans machine-wide virtualenv container
// directories: virtualenvwrapper's WORKON_HOME, ~/.virtualenvs, the
// poetry virtualenvs cache, and a user-configured extra path.
type GlobalVenvLocator struct {
	fsys platform.Filesystem
	home string
	// extraPath is the settings-provided venv container ("" = none).
	extraPath string
	// workonHome overrides $WORKON_HOME in tests.
	workonHome string
}

// NewGlobalVenvLocator creates the locator. extraPath may be "".
func NewGlobalVenvLocator(fsys platform.Filesystem, home, extraPath string) *GlobalVenvLocator {
	return &GlobalVenvLocator{
		fsys:       fsys,
		home:       home,
		extraPath:  extraPath,
		workonHome: os.Getenv("WORKON_HOME"),
	}
}

// Name implements Locator.
func (l *GlobalVenvLocator) Name() string { return "global-venv" }

// Source implements Locator.
func (l *GlobalVenvLocator) Source() python.Source { return python.SourceGlobalVenv }

// Environments implements Locator.
func (l *GlobalVenvLocator) Environments(ctx context.Context, scope Scope) ([]python.Record, error) {
	var records []python.Record
	for _, root := range l.roots() {
		wrapperRoot := root == l.wrapperHome()
		records = append(records, scanForEnvironments(l.fsys, root, 2, func(envDir string) python.Kind {
			return classifyGlobalEnv(l.fsys, envDir, wrapperRoot)
		}, l.Source())...)
	}
	return records, nil
}

// WatchRoots implements Watchable.
func (l *GlobalVenvLocator) WatchRoots(scope Scope) []string {
	return l.roots()
}

func (l *GlobalVenvLocator) roots() []string {
	var roots []string
	add := func(dir string) {
		if dir != "" && l.fsys.Exists(dir) {
			roots = append(roots, dir)
		}
	}
	add(l.wrapperHome())
	add(filepath.Join(l.home, ".virtualenvs"))
	add(filepath.Join(l.home, "Envs"))
	for _, cache := range poetryCacheDirs(l.home) {
		add(cache)
	}
	add(l.extraPath)
	return roots
}

func (l *GlobalVenvLocator) wrapperHome() string {
	if l.workonHome != "" {
		return l.workonHome
	}
	return filepath.Join(l.home, ".virtualenvs")
}

// classifyGlobalEnv applies the marker-file heuristics. False
// negatives degrade to virtualenv or unknown, never to an error.
func classifyGlobalEnv(fsys platform.Filesystem, envDir string, wrapperRoot bool) python.Kind {
	name := filepath.Base(envDir)
	switch {
	case poetryEnvNamePattern.MatchString(name):
		return python.KindPoetry
	case wrapperRoot:
		return python.KindVirtualenvWrapper
	case fsys.Exists(filepath.Join(envDir, "pyvenv.cfg")):
		return python.KindVenv
	case fsys.Exists(filepath.Join(envDir, "bin", "activate")) ||
		fsys.Exists(filepath.Join(envDir, "Scripts", "activate.bat")):
		return python.KindVirtualenv
	default:
		return python.KindUnknown
	}
}

// poetryCacheDirs returns the platform-dependent poetry virtualenvs
// cache locations.
func poetryCacheDirs(home string) []string {
	return []string{
		filepath.Join(home, ".cache", "pypoetry", "virtualenvs"),
		filepath.Join(home, "Library", "Caches", "pypoetry", "virtualenvs"),
		filepath.Join(home, "AppData", "Local", "pypoetry", "Cache", "virtualenvs"),
	}
}

// WorkspaceVenvLocator finds environments living inside the workspace:
// .venv and friends, classified by marker files next to them.
type WorkspaceVenvLocator struct {
	fsys platform.Filesystem
	// folders are the workspace-relative directory names to check.
	folders []string
}

// NewWorkspaceVenvLocator creates the locator. folders defaults to
// .venv, venv and env when empty.
func NewWorkspaceVenvLocator(fsys platform.Filesystem, folders []string) *WorkspaceVenvLocator {
	if len(folders) == 0 {
		folders = []string{".venv", "venv", "env"}
	}
	return &WorkspaceVenvLocator{fsys: fsys, folders: folders}
}

// Name implements Locator.
func (l *WorkspaceVenvLocator) Name() string { return "workspace-venv" }

// Source implements Locator.
func (l *WorkspaceVenvLocator) Source() python.Source { return python.SourceWorkspaceVenv }

// Environments implements Locator.
func (l *WorkspaceVenvLocator) Environments(ctx context.Context, scope Scope) ([]python.Record, error) {
	if scope.WorkspaceRoot == "" {
		return nil, nil
	}

	var records []python.Record
	for _, folder := range l.folders {
		envDir := filepath.Join(scope.WorkspaceRoot, folder)
		interp := findInterpreter(l.fsys, envDir)
		if interp == "" {
			continue
		}
		records = append(records, python.Record{
			Path:           python.NormalizePath(interp),
			Kind:           l.classify(scope.WorkspaceRoot, envDir),
			EnvName:        filepath.Base(scope.WorkspaceRoot),
			SearchLocation: scope.WorkspaceRoot,
			Source:         l.Source(),
			Tier:           python.TierPartial,
		})
	}
	return records, nil
}

// WatchRoots implements Watchable.
func (l *WorkspaceVenvLocator) WatchRoots(scope Scope) []string {
	if scope.WorkspaceRoot == "" {
		return nil
	}
	return []string{scope.WorkspaceRoot}
}

func (l *WorkspaceVenvLocator) classify(workspaceRoot, envDir string) python.Kind {
	// pyproject.toml + in-project .venv is the poetry convention.
	if filepath.Base(envDir) == ".venv" && hasPoetrySection(l.fsys, workspaceRoot) {
		return python.KindPoetry
	}
	if l.fsys.Exists(filepath.Join(envDir, "pyvenv.cfg")) {
		return python.KindVenv
	}
	return python.KindVirtualenv
}
