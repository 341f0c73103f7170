package locators

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/karrtikr/pyscout/internal/platform"
	"github.com/karrtikr/pyscout/internal/python"
)

// standardSearchDirs are non-PATH directories commonly holding system
// interpreters.
var standardSearchDirs = []string{
	"/usr/bin",
	"/usr/local/bin",
	"/opt/homebrew/bin",
}

// KnownPathLocator enumerates python executables found in PATH
// directories, standard system locations and user-configured search
// paths. Interpreters under WindowsApps are classified windows-store.
type KnownPathLocator struct {
	fsys platform.Filesystem
	// extraDirs come from settings.
	extraDirs []string
	// pathEnv overrides $PATH in tests.
	pathEnv string
}

// NewKnownPathLocator creates the locator.
func NewKnownPathLocator(fsys platform.Filesystem, extraDirs []string) *KnownPathLocator {
	return &KnownPathLocator{fsys: fsys, extraDirs: extraDirs, pathEnv: os.Getenv("PATH")}
}

// Name implements Locator.
func (l *KnownPathLocator) Name() string { return "known-path" }

// Source implements Locator.
func (l *KnownPathLocator) Source() python.Source { return python.SourceKnownPath }

// Environments implements Locator.
func (l *KnownPathLocator) Environments(ctx context.Context, scope Scope) ([]python.Record, error) {
	seen := make(map[string]bool)
	var records []python.Record

	for _, dir := range l.searchDirs() {
		entries, err := l.fsys.ListDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !executableNamePattern.MatchString(entry.Name()) {
				continue
			}
			path := python.NormalizePath(filepath.Join(dir, entry.Name()))
			if seen[path] {
				continue
			}
			seen[path] = true
			records = append(records, python.Record{
				Path:           path,
				Kind:           classifyKnownPath(dir),
				SearchLocation: dir,
				Source:         l.Source(),
				FileModified:   modTime(entry),
				Tier:           python.TierPartial,
			})
		}
	}
	return records, nil
}

func (l *KnownPathLocator) searchDirs() []string {
	var dirs []string
	seen := make(map[string]bool)
	add := func(dir string) {
		dir = strings.TrimSpace(dir)
		if dir == "" || seen[dir] {
			return
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}

	for _, dir := range filepath.SplitList(l.pathEnv) {
		add(dir)
	}
	for _, dir := range standardSearchDirs {
		add(dir)
	}
	for _, dir := range l.extraDirs {
		add(dir)
	}
	return dirs
}

// classifyKnownPath is heuristic: system directories mark system
// interpreters, the Windows Store alias directory marks store
// installs, everything else stays unknown.
func classifyKnownPath(dir string) python.Kind {
	if strings.Contains(dir, "WindowsApps") {
		return python.KindWindowsStore
	}
	switch dir {
	case "/usr/bin", "/bin":
		return python.KindSystem
	case "/usr/local/bin", "/opt/homebrew/bin":
		return python.KindGlobal
	}
	return python.KindUnknown
}

// CurrentPathLocator reports whichever interpreters resolve first on
// the current shell PATH via lookup, the lowest-confidence origin.
type CurrentPathLocator struct {
	exec platform.Executor
}

// NewCurrentPathLocator creates the locator.
func NewCurrentPathLocator(exec platform.Executor) *CurrentPathLocator {
	return &CurrentPathLocator{exec: exec}
}

// Name implements Locator.
func (l *CurrentPathLocator) Name() string { return "current-path" }

// Source implements Locator.
func (l *CurrentPathLocator) Source() python.Source { return python.SourceCurrentPath }

// Environments implements Locator.
func (l *CurrentPathLocator) Environments(ctx context.Context, scope Scope) ([]python.Record, error) {
	seen := make(map[string]bool)
	var records []python.Record
	for _, name := range []string{"python3", "python", "python2"} {
		path := l.exec.LookPath(name)
		if path == "" {
			continue
		}
		path = python.NormalizePath(path)
		if seen[path] {
			continue
		}
		seen[path] = true
		records = append(records, python.Record{
			Path:   path,
			Kind:   python.KindUnknown,
			Source: l.Source(),
			Tier:   python.TierPartial,
		})
	}
	return records, nil
}
