package jupyter

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/karrtikr/pyscout/internal/platform"
	"github.com/karrtikr/pyscout/internal/python"
	"github.com/karrtikr/pyscout/internal/workerpool"
)

// KernelSpec binds a display name to an executable interpreter, as
// consumed by the notebook launcher.
type KernelSpec struct {
	Name           string
	Language       string
	DisplayName    string
	ExecutablePath string
	// SpecFile is the on-disk kernel.json, "" for synthesized specs.
	SpecFile string
}

// kernelspecListOutput mirrors `jupyter kernelspec list --json`.
type kernelspecListOutput struct {
	Kernelspecs map[string]struct {
		ResourceDir string `json:"resource_dir"`
		Spec        struct {
			Argv        []string `json:"argv"`
			Language    string   `json:"language"`
			DisplayName string   `json:"display_name"`
		} `json:"spec"`
	} `json:"kernelspecs"`
}

// ListKernelSpecs enumerates installed kernel specs via the resolved
// kernelspec command. Probe failures yield an empty list, never an
// error: callers treat absence as "could not determine".
func (s *Service) ListKernelSpecs(ctx context.Context) []KernelSpec {
	cmd, err := s.Resolve(ctx, CommandKernelspec)
	if err != nil {
		return nil
	}

	exe, args := cmd.Argv("list", "--json")
	result, runErr := s.exec.Run(ctx, exe, args, platform.RunOptions{
		Timeout: s.timeout,
		Env:     s.environmentFor(cmd.Interpreter),
	})
	if runErr != nil || result.ExitCode != 0 {
		s.logger.Debug("kernelspec list failed", "err", runErr)
		return nil
	}

	payload := result.Stdout
	if idx := strings.Index(payload, "{"); idx > 0 {
		payload = payload[idx:]
	}
	var out kernelspecListOutput
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &out); err != nil {
		s.logger.Debug("kernelspec list output unparsable", "err", err)
		return nil
	}

	specs := make([]KernelSpec, 0, len(out.Kernelspecs))
	for name, entry := range out.Kernelspecs {
		spec := KernelSpec{
			Name:        name,
			Language:    entry.Spec.Language,
			DisplayName: entry.Spec.DisplayName,
		}
		if len(entry.Spec.Argv) > 0 {
			spec.ExecutablePath = entry.Spec.Argv[0]
		}
		if entry.ResourceDir != "" {
			spec.SpecFile = filepath.Join(entry.ResourceDir, "kernel.json")
		}
		specs = append(specs, spec)
	}
	// Map iteration is random; callers and the fallback rule depend on
	// a stable enumeration order.
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// ScoreSpec ranks a candidate spec against the target interpreter.
// Version points nest: minor only counts on a major match, patch only
// on a minor match.
func (s *Service) ScoreSpec(ctx context.Context, spec KernelSpec, targetPath string, targetVersion *python.Version) int {
	score := 0
	if spec.ExecutablePath != "" && python.NormalizePath(spec.ExecutablePath) == python.NormalizePath(targetPath) {
		score += 10
	}
	if strings.EqualFold(spec.Language, "python") {
		score++
	}
	if targetVersion == nil {
		return score
	}

	var specVersion *python.Version
	if spec.ExecutablePath != "" && s.fsys.Exists(spec.ExecutablePath) {
		if info := s.info.GetInfo(ctx, spec.ExecutablePath, workerpool.PriorityFront); info != nil {
			specVersion = info.Version
		}
	}

	if specVersion != nil {
		if specVersion.Major == targetVersion.Major {
			score += 4
			if specVersion.Minor == targetVersion.Minor {
				score += 2
				if specVersion.Patch == targetVersion.Patch {
					score++
				}
			}
		}
		return score
	}

	// The spec path doesn't resolve to a real interpreter; a declared
	// name ending in the target's major digit is weak evidence.
	if nameEndsInDigit(spec.Name, targetVersion.Major) {
		score += 4
	}
	return score
}

// BestMatchingSpec returns the highest-scoring spec for the target
// interpreter. Ties keep the first-seen. When nothing scores above
// zero the first enumerated spec is returned as a fallback — an
// arbitrary choice callers must tolerate, preserved as observed
// behaviour. The bool reports whether anything scored above zero.
func (s *Service) BestMatchingSpec(ctx context.Context, targetPath string, targetVersion *python.Version) (*KernelSpec, bool) {
	specs := s.ListKernelSpecs(ctx)
	if len(specs) == 0 {
		return nil, false
	}

	bestIdx, bestScore := -1, 0
	for i, spec := range specs {
		score := s.ScoreSpec(ctx, spec, targetPath, targetVersion)
		if score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	if bestIdx >= 0 {
		return &specs[bestIdx], true
	}
	return &specs[0], false
}

// nameEndsInDigit reports whether name's trailing digit run equals
// major, e.g. "python3" matches major 3.
func nameEndsInDigit(name string, major int) bool {
	trimmed := strings.TrimRightFunc(name, func(r rune) bool { return !unicode.IsDigit(r) })
	i := len(trimmed)
	for i > 0 && unicode.IsDigit(rune(trimmed[i-1])) {
		i--
	}
	digits := trimmed[i:]
	if digits == "" {
		return false
	}
	return digits == strconv.Itoa(major)
}
