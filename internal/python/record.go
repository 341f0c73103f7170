package python

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind classifies the origin of a Python environment.
type Kind string

const (
	KindConda             Kind = "conda"
	KindVenv              Kind = "venv"
	KindVirtualenv        Kind = "virtualenv"
	KindVirtualenvWrapper Kind = "virtualenvwrapper"
	KindPipenv            Kind = "pipenv"
	KindPoetry            Kind = "poetry"
	KindWindowsStore      Kind = "windows-store"
	KindGlobal            Kind = "global"
	KindSystem            Kind = "system"
	KindUnknown           Kind = "unknown"
)

// Architecture of the interpreter binary.
type Architecture string

const (
	ArchX86     Architecture = "x86"
	ArchX64     Architecture = "x64"
	ArchUnknown Architecture = "unknown"
)

// Source identifies which locator produced a record. Merge precedence
// is defined over sources, not kinds: two locators can both discover a
// conda environment but with different confidence.
type Source string

const (
	SourceWindowsRegistry Source = "windows-registry"
	SourceConda           Source = "conda"
	SourceCondaFile       Source = "conda-file"
	SourcePipenv          Source = "pipenv"
	SourceGlobalVenv      Source = "global-venv"
	SourceWorkspaceVenv   Source = "workspace-venv"
	SourceKnownPath       Source = "known-path"
	SourceCurrentPath     Source = "current-path"
)

// sourcePrecedence orders sources from most to least authoritative.
// Earlier sources win field conflicts during merge.
var sourcePrecedence = map[Source]int{
	SourceWindowsRegistry: 0,
	SourceConda:           1,
	SourceCondaFile:       2,
	SourcePipenv:          3,
	SourceGlobalVenv:      4,
	SourceWorkspaceVenv:   5,
	SourceKnownPath:       6,
	SourceCurrentPath:     7,
}

// Precedence returns the merge rank of s. Unknown sources rank last so
// a record from a future locator never outranks a known one.
func (s Source) Precedence() int {
	if p, ok := sourcePrecedence[s]; ok {
		return p
	}
	return len(sourcePrecedence)
}

// Version holds a parsed Python version. Build is the fourth component
// reported by sys.version_info (releaselevel.serial), kept as an opaque
// string because it only ever participates in equality checks.
type Version struct {
	Major      int    `json:"major"`
	Minor      int    `json:"minor"`
	Patch      int    `json:"patch"`
	Build      string `json:"build,omitempty"`
	Prerelease string `json:"prerelease,omitempty"`
	Raw        string `json:"raw"`
}

var versionPattern = regexp.MustCompile(`^(\d+)(?:\.(\d+))?(?:\.(\d+))?(.*)$`)

// ParseVersion parses strings like "3.8.3", "3.13.0rc2" or
// "3.9.1.final.0". Anything trailing the numeric triple that starts
// with a dot is treated as the build component, otherwise as a
// prerelease tag.
func ParseVersion(raw string) (*Version, error) {
	raw = strings.TrimSpace(raw)
	m := versionPattern.FindStringSubmatch(raw)
	if m == nil || m[1] == "" {
		return nil, fmt.Errorf("unparsable python version %q", raw)
	}

	v := &Version{Raw: raw}
	v.Major, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		v.Minor, _ = strconv.Atoi(m[2])
	}
	if m[3] != "" {
		v.Patch, _ = strconv.Atoi(m[3])
	}
	switch rest := m[4]; {
	case rest == "":
	case strings.HasPrefix(rest, "."):
		v.Build = strings.TrimPrefix(rest, ".")
	default:
		v.Prerelease = strings.TrimPrefix(rest, "-")
	}
	return v, nil
}

// String renders the numeric triple, e.g. "3.8.3".
func (v *Version) String() string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Tier is the confidence level of a record. Partial records carry
// whatever one locator observed; Complete records additionally carry
// enrichment data obtained by executing the interpreter.
type Tier string

const (
	TierPartial  Tier = "partial"
	TierComplete Tier = "complete"
)

// Record describes one discovered Python interpreter. Path is the
// unique key after normalization; every other field is optional until
// enrichment fills it in.
type Record struct {
	Path           string       `json:"path"`
	Kind           Kind         `json:"kind,omitempty"`
	Version        *Version     `json:"version,omitempty"`
	Architecture   Architecture `json:"architecture,omitempty"`
	EnvName        string       `json:"envName,omitempty"`
	SearchLocation string       `json:"searchLocation,omitempty"`
	Source         Source       `json:"source,omitempty"`
	FileModified   time.Time    `json:"fileModified,omitempty"`
	Tier           Tier         `json:"tier,omitempty"`
}

// CanPromote reports whether r carries everything a Complete record
// requires: an enriched version and a known architecture.
func (r Record) CanPromote() bool {
	return r.Path != "" && r.Version != nil && r.Architecture != "" && r.Architecture != ArchUnknown
}

// NormalizePath cleans and absolutizes p. Symlinks are deliberately
// not resolved: two symlinked aliases of one interpreter dedupe as
// distinct entries. See DESIGN.md before changing this.
func NormalizePath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return filepath.Clean(abs)
}
