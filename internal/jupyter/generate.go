package jupyter

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/karrtikr/pyscout/internal/platform"
	"github.com/karrtikr/pyscout/internal/python"
	"github.com/karrtikr/pyscout/internal/workerpool"
)

// installedSpecPattern extracts the output directory from ipykernel's
// install report, e.g. "Installed kernelspec pyscout-1a2b in /home/u/.local/share/jupyter/kernels/pyscout-1a2b".
var installedSpecPattern = regexp.MustCompile(`(?im)^\s*installed kernelspec\s+\S+\s+in\s+(.+)$`)

// MatchingKernelSpec returns a kernel spec usable with the active
// interpreter: the best on-disk match when one scores, otherwise a
// freshly generated spec. Generation failure degrades to the
// enumeration fallback, never to an error.
func (s *Service) MatchingKernelSpec(ctx context.Context) *KernelSpec {
	target := s.ActiveInterpreter()
	var targetVersion *python.Version
	if target != "" {
		if rec, ok := s.coll.Lookup(target); ok && rec.Version != nil {
			targetVersion = rec.Version
		} else if info := s.info.GetInfo(ctx, target, workerpool.PriorityFront); info != nil {
			targetVersion = info.Version
		}
	}

	spec, scored := s.BestMatchingSpec(ctx, target, targetVersion)
	if spec != nil && scored {
		return spec
	}

	if generated := s.generateKernelSpec(ctx); generated != nil {
		return generated
	}
	// Known weak point: an arbitrary first-enumerated spec (or nothing).
	return spec
}

// generateKernelSpec installs a uniquely named spec via ipykernel and
// rewrites its interpreter to the best notebook Python. The generated
// directory is tracked for deletion on Close.
func (s *Service) generateKernelSpec(ctx context.Context) *KernelSpec {
	cmd, err := s.Resolve(ctx, CommandIPyKernel)
	if err != nil {
		return nil
	}

	suffix := strings.Split(uuid.NewString(), "-")[0]
	name := "pyscout-" + suffix
	display := fmt.Sprintf("Python (pyscout %s)", suffix)
	exe, args := cmd.Argv("install", "--user", "--name", name, "--display-name", display)
	result, runErr := s.exec.Run(ctx, exe, args, platform.RunOptions{
		Timeout: s.timeout,
		Env:     s.environmentFor(cmd.Interpreter),
	})
	if runErr != nil || result.ExitCode != 0 {
		s.logger.Warn("kernel spec generation failed", "name", name, "err", runErr)
		return nil
	}

	// The install report names the output directory; tolerate format
	// drift by giving up rather than guessing.
	m := installedSpecPattern.FindStringSubmatch(result.Stdout + "\n" + result.Stderr)
	if m == nil {
		s.logger.Warn("could not locate generated kernel spec", "name", name, "stdout", strings.TrimSpace(result.Stdout))
		return nil
	}
	specDir := strings.TrimSpace(m[1])
	specFile := filepath.Join(specDir, "kernel.json")

	spec, err := s.rewriteKernelSpec(ctx, specFile, name)
	if err != nil {
		s.logger.Warn("could not rewrite generated kernel spec", "file", specFile, "err", err)
		return nil
	}

	s.genMu.Lock()
	s.generated = append(s.generated, specDir)
	s.genMu.Unlock()
	return spec
}

// kernelJSON is the standard Jupyter kernel.json layout.
type kernelJSON struct {
	Argv        []string `json:"argv"`
	DisplayName string   `json:"display_name"`
	Language    string   `json:"language"`
}

// rewriteKernelSpec points the generated spec's argv at the best
// notebook interpreter instead of whichever python ran the installer.
func (s *Service) rewriteKernelSpec(ctx context.Context, specFile, name string) (*KernelSpec, error) {
	data, err := s.fsys.ReadFile(specFile)
	if err != nil {
		return nil, err
	}
	var kj kernelJSON
	if err := json.Unmarshal(data, &kj); err != nil {
		return nil, err
	}
	if len(kj.Argv) == 0 {
		return nil, fmt.Errorf("generated spec has empty argv")
	}

	if best := s.BestNotebookInterpreter(ctx); best != nil {
		kj.Argv[0] = best.Path
	}
	if kj.Language == "" {
		kj.Language = "python"
	}

	rewritten, err := json.MarshalIndent(kj, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := s.fsys.WriteFile(specFile, rewritten); err != nil {
		return nil, err
	}

	return &KernelSpec{
		Name:           name,
		Language:       kj.Language,
		DisplayName:    kj.DisplayName,
		ExecutablePath: kj.Argv[0],
		SpecFile:       specFile,
	}, nil
}

// Close deletes every generated kernel spec directory, leaving other
// on-disk specs untouched.
func (s *Service) Close() {
	s.genMu.Lock()
	generated := s.generated
	s.generated = nil
	s.genMu.Unlock()

	for _, dir := range generated {
		if err := s.fsys.RemoveAll(dir); err != nil {
			s.logger.Warn("could not delete generated kernel spec", "dir", dir, "err", err)
		}
	}
}
