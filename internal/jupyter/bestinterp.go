package jupyter

import (
	"context"

	"github.com/karrtikr/pyscout/internal/platform"
	"github.com/karrtikr/pyscout/internal/python"
	"github.com/karrtikr/pyscout/internal/workerpool"
)

// BestNotebookInterpreter picks the interpreter to run notebooks with:
// the active interpreter when it carries the kernel-creation module,
// otherwise the highest-scoring known interpreter. Ties keep the first
// found in enumeration order. Returns nil when nothing usable exists.
func (s *Service) BestNotebookInterpreter(ctx context.Context) *python.Record {
	active := s.ActiveInterpreter()

	var activeRec *python.Record
	if active != "" {
		if rec, ok := s.coll.Lookup(active); ok {
			activeRec = &rec
		} else {
			activeRec = &python.Record{Path: active, Kind: python.KindUnknown}
		}
		if s.hasIPyKernelModule(ctx, active) {
			return activeRec
		}
	}

	var activeVersion *python.Version
	var activeKind python.Kind
	if activeRec != nil {
		activeKind = activeRec.Kind
		activeVersion = activeRec.Version
		if activeVersion == nil {
			if info := s.info.GetInfo(ctx, active, workerpool.PriorityFront); info != nil {
				activeVersion = info.Version
			}
		}
	}

	var best *python.Record
	bestScore := -1
	for _, rec := range s.coll.Environments(ctx) {
		rec := rec
		if rec.Path == active {
			continue
		}
		score := s.scoreNotebookInterpreter(ctx, rec, activeVersion, activeKind)
		if score > bestScore {
			best, bestScore = &rec, score
		}
	}
	if best != nil {
		return best
	}
	return activeRec
}

// scoreNotebookInterpreter weights version closeness to the active
// interpreter far above everything else; each narrower component only
// counts when the broader one matched.
func (s *Service) scoreNotebookInterpreter(ctx context.Context, rec python.Record, activeVersion *python.Version, activeKind python.Kind) int {
	score := 0
	if s.hasIPyKernelModule(ctx, rec.Path) {
		score++
	}

	version := rec.Version
	if version == nil {
		if info := s.info.GetInfo(ctx, rec.Path, workerpool.PriorityBack); info != nil {
			version = info.Version
		}
	}
	if version != nil && activeVersion != nil && version.Major == activeVersion.Major {
		score += 32
		if version.Minor == activeVersion.Minor {
			score += 16
			if version.Patch == activeVersion.Patch {
				score += 8
				if version.Build == activeVersion.Build {
					score += 4
				}
			}
		}
	}
	if activeKind != "" && rec.Kind == activeKind {
		score++
	}
	return score
}

// hasIPyKernelModule probes for the kernel-creation module.
func (s *Service) hasIPyKernelModule(ctx context.Context, interp string) bool {
	if interp == "" {
		return false
	}
	result, err := s.exec.Run(ctx, interp, []string{"-c", "import ipykernel"}, platform.RunOptions{
		Timeout: s.timeout,
		Env:     s.environmentFor(interp),
	})
	return err == nil && result.ExitCode == 0
}
