// Package locators discovers candidate Python interpreter paths.
// Each locator covers one origin (conda, venv flavours, pipenv,
// poetry, registry, search paths) and yields partial records; the
// environments collection merges and enriches them.
package locators

import (
	"context"
	"io/fs"
	"path/filepath"
	"regexp"
	"time"

	"github.com/karrtikr/pyscout/internal/platform"
	"github.com/karrtikr/pyscout/internal/python"
)

// Scope narrows discovery to a workspace. A zero Scope means
// global-only discovery.
type Scope struct {
	// WorkspaceRoot is the absolute path of the open workspace, or ""
	// when none is open.
	WorkspaceRoot string
}

// Locator discovers candidate interpreters of one origin. Environments
// is restartable: callers may invoke it repeatedly and each call
// re-enumerates from scratch. Classification is heuristic; locators
// fall back to KindUnknown instead of failing a candidate.
type Locator interface {
	// Name is a stable identifier used in logs.
	Name() string

	// Source identifies this locator for merge precedence.
	Source() python.Source

	// Environments returns the partial records currently discoverable
	// in scope. Probe errors inside are swallowed per candidate; the
	// returned error is reserved for total failure.
	Environments(ctx context.Context, scope Scope) ([]python.Record, error)
}

// Watchable is implemented by locators whose discovery roots can be
// watched for new or removed environments.
type Watchable interface {
	// WatchRoots returns the directories to watch for the scope.
	// Missing directories are skipped by the watcher.
	WatchRoots(scope Scope) []string
}

// interpreterCandidates are the executable layouts that mark a
// directory as a Python environment, checked in order.
var interpreterCandidates = []string{
	filepath.Join("bin", "python"),
	filepath.Join("bin", "python3"),
	filepath.Join("Scripts", "python.exe"),
	"python.exe",
}

// findInterpreter returns the interpreter inside envDir, or "".
func findInterpreter(fsys platform.Filesystem, envDir string) string {
	for _, rel := range interpreterCandidates {
		p := filepath.Join(envDir, rel)
		if fsys.Exists(p) {
			return p
		}
	}
	return ""
}

// executableNamePattern matches python, python3, python3.12,
// python.exe and friends.
var executableNamePattern = regexp.MustCompile(`^python(\d+(\.\d+)?)?(\.exe)?$`)

// modTime reads a path's mtime through fs.DirEntry when available.
func modTime(entry fs.DirEntry) time.Time {
	if info, err := entry.Info(); err == nil {
		return info.ModTime()
	}
	return time.Time{}
}

// scanForEnvironments walks root up to the depth limit looking for
// directories shaped like environments and classifies each via
// classify. Depth 1 finds root/env, depth 2 finds root/group/env.
func scanForEnvironments(
	fsys platform.Filesystem,
	root string,
	depth int,
	classify func(envDir string) python.Kind,
	source python.Source,
) []python.Record {
	var records []python.Record
	entries, err := fsys.ListDir(root)
	if err != nil {
		return nil
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		envDir := filepath.Join(root, entry.Name())
		if interp := findInterpreter(fsys, envDir); interp != "" {
			records = append(records, python.Record{
				Path:           python.NormalizePath(interp),
				Kind:           classify(envDir),
				EnvName:        entry.Name(),
				SearchLocation: root,
				Source:         source,
				FileModified:   modTime(entry),
				Tier:           python.TierPartial,
			})
			continue
		}
		if depth > 1 {
			records = append(records, scanForEnvironments(fsys, envDir, depth-1, classify, source)...)
		}
	}
	return records
}
