package locators

import (
	"context"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/karrtikr/pyscout/internal/platform"
	"github.com/karrtikr/pyscout/internal/python"
)

// condaRootNames are directory names conda installers create under the
// home directory (or /opt on shared machines).
var condaRootNames = []string{"anaconda3", "miniconda3", "miniforge3", "mambaforge"}

// CondaLocator discovers conda environments from the user's
// environments.txt registry and from the envs/ directories of known
// conda roots.
type CondaLocator struct {
	fsys platform.Filesystem
	home string
	// extra is a user-configured conda root checked alongside the
	// well-known install locations.
	extra string
}

// NewCondaLocator creates the locator. home is the user home dir and
// extra is an optional additional conda root ("" to disable).
func NewCondaLocator(fsys platform.Filesystem, home, extra string) *CondaLocator {
	return &CondaLocator{fsys: fsys, home: home, extra: extra}
}

// Name implements Locator.
func (l *CondaLocator) Name() string { return "conda" }

// Source implements Locator.
func (l *CondaLocator) Source() python.Source { return python.SourceConda }

// Environments implements Locator.
func (l *CondaLocator) Environments(ctx context.Context, scope Scope) ([]python.Record, error) {
	seen := make(map[string]bool)
	var records []python.Record

	add := func(envDir, envName string) {
		interp := findInterpreter(l.fsys, envDir)
		if interp == "" {
			return
		}
		key := python.NormalizePath(interp)
		if seen[key] {
			return
		}
		seen[key] = true
		records = append(records, python.Record{
			Path:           key,
			Kind:           python.KindConda,
			EnvName:        envName,
			SearchLocation: filepath.Dir(envDir),
			Source:         l.Source(),
			Tier:           python.TierPartial,
		})
	}

	// environments.txt lists every env prefix conda has created.
	for _, envDir := range l.registeredEnvironments() {
		name := filepath.Base(envDir)
		if l.isCondaRoot(envDir) {
			name = "base"
		}
		add(envDir, name)
	}

	// Known install roots, for machines where environments.txt is
	// missing or stale.
	for _, root := range l.condaRoots() {
		add(root, "base")
		for _, rec := range scanForEnvironments(l.fsys, filepath.Join(root, "envs"), 1,
			func(string) python.Kind { return python.KindConda }, l.Source()) {
			if !seen[rec.Path] {
				seen[rec.Path] = true
				records = append(records, rec)
			}
		}
	}

	return records, nil
}

// WatchRoots implements Watchable.
func (l *CondaLocator) WatchRoots(scope Scope) []string {
	var roots []string
	for _, root := range l.condaRoots() {
		roots = append(roots, filepath.Join(root, "envs"))
	}
	return roots
}

// registeredEnvironments reads ~/.conda/environments.txt, one env
// prefix per line.
func (l *CondaLocator) registeredEnvironments() []string {
	data, err := l.fsys.ReadFile(filepath.Join(l.home, ".conda", "environments.txt"))
	if err != nil {
		return nil
	}
	var envs []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		envs = append(envs, line)
	}
	return envs
}

func (l *CondaLocator) condaRoots() []string {
	var roots []string
	for _, name := range condaRootNames {
		for _, parent := range []string{l.home, "/opt"} {
			root := filepath.Join(parent, name)
			if l.fsys.Exists(root) {
				roots = append(roots, root)
			}
		}
	}
	if l.fsys.Exists("/opt/conda") {
		roots = append(roots, "/opt/conda")
	}
	if l.extra != "" && l.fsys.Exists(l.extra) {
		roots = append(roots, l.extra)
	}
	return roots
}

func (l *CondaLocator) isCondaRoot(dir string) bool {
	base := filepath.Base(dir)
	if base == "conda" {
		return true
	}
	for _, name := range condaRootNames {
		if base == name {
			return true
		}
	}
	return false
}

// CondaEnvFileLocator resolves the workspace's environment.yml to a
// named conda environment. It ranks below the conda locator itself:
// the file only hints at which env the project wants.
type CondaEnvFileLocator struct {
	fsys  platform.Filesystem
	conda *CondaLocator
}

// NewCondaEnvFileLocator creates the locator, reusing the conda
// locator's root knowledge.
func NewCondaEnvFileLocator(fsys platform.Filesystem, conda *CondaLocator) *CondaEnvFileLocator {
	return &CondaEnvFileLocator{fsys: fsys, conda: conda}
}

// Name implements Locator.
func (l *CondaEnvFileLocator) Name() string { return "conda-env-file" }

// Source implements Locator.
func (l *CondaEnvFileLocator) Source() python.Source { return python.SourceCondaFile }

type condaEnvFile struct {
	Name string `yaml:"name"`
}

// Environments implements Locator.
func (l *CondaEnvFileLocator) Environments(ctx context.Context, scope Scope) ([]python.Record, error) {
	if scope.WorkspaceRoot == "" {
		return nil, nil
	}

	var spec condaEnvFile
	for _, filename := range []string{"environment.yml", "environment.yaml"} {
		data, err := l.fsys.ReadFile(filepath.Join(scope.WorkspaceRoot, filename))
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, &spec); err == nil && spec.Name != "" {
			break
		}
		spec.Name = ""
	}
	if spec.Name == "" {
		return nil, nil
	}

	// Find the named env under any known conda root.
	for _, root := range l.conda.condaRoots() {
		envDir := filepath.Join(root, "envs", spec.Name)
		if interp := findInterpreter(l.fsys, envDir); interp != "" {
			return []python.Record{{
				Path:           python.NormalizePath(interp),
				Kind:           python.KindConda,
				EnvName:        spec.Name,
				SearchLocation: filepath.Join(root, "envs"),
				Source:         l.Source(),
				Tier:           python.TierPartial,
			}}, nil
		}
	}
	return nil, nil
}
