package python

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		raw        string
		major      int
		minor      int
		patch      int
		build      string
		prerelease string
	}{
		{"3.8.3", 3, 8, 3, "", ""},
		{"3.13.0rc2", 3, 13, 0, "", "rc2"},
		{"3.9.1.final.0", 3, 9, 1, "final.0", ""},
		{"2.7", 2, 7, 0, "", ""},
		{"3.10.0-beta1", 3, 10, 0, "", "beta1"},
	}

	for _, tt := range tests {
		v, err := ParseVersion(tt.raw)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.major, v.Major, tt.raw)
		assert.Equal(t, tt.minor, v.Minor, tt.raw)
		assert.Equal(t, tt.patch, v.Patch, tt.raw)
		assert.Equal(t, tt.build, v.Build, tt.raw)
		assert.Equal(t, tt.prerelease, v.Prerelease, tt.raw)
		assert.Equal(t, tt.raw, v.Raw)
	}
}

func TestParseVersionRejectsGarbage(t *testing.T) {
	_, err := ParseVersion("not-a-version")
	assert.Error(t, err)
}

func TestMergeFillsGaps(t *testing.T) {
	a := Record{Path: "/py/bin/python", Source: SourceWorkspaceVenv, Kind: KindVenv}
	b := Record{Path: "/py/bin/python", Source: SourceKnownPath, EnvName: "proj"}

	merged := Merge(a, b)
	assert.Equal(t, KindVenv, merged.Kind)
	assert.Equal(t, "proj", merged.EnvName)
	assert.Equal(t, SourceWorkspaceVenv, merged.Source)
	assert.Equal(t, TierPartial, merged.Tier)
}

// Conflicting non-empty fields resolve by locator precedence, so merge
// is order-sensitive for conflicts by design.
func TestMergeConflictPrecedence(t *testing.T) {
	conda := Record{Path: "/envs/a/bin/python", Source: SourceConda, EnvName: "from-conda", Kind: KindConda}
	current := Record{Path: "/envs/a/bin/python", Source: SourceCurrentPath, EnvName: "from-path", Kind: KindGlobal}

	// Conda outranks current-path regardless of argument order.
	assert.Equal(t, "from-conda", Merge(conda, current).EnvName)
	assert.Equal(t, "from-conda", Merge(current, conda).EnvName)
	assert.Equal(t, KindConda, Merge(current, conda).Kind)
}

func TestMergeIdempotent(t *testing.T) {
	a := Record{Path: "/p", Source: SourceConda, EnvName: "x", Kind: KindConda}
	b := Record{Path: "/p", Source: SourceKnownPath, Architecture: ArchX64}

	once := Merge(a, b)
	twice := Merge(once)
	assert.Equal(t, once, twice)
}

func TestMergeCommutesWithoutConflicts(t *testing.T) {
	a := Record{Path: "/p", Source: SourceConda, EnvName: "x"}
	b := Record{Path: "/p", Source: SourceKnownPath, Architecture: ArchX64}

	assert.Equal(t, Merge(a, b), Merge(b, a))
}

func TestMergePromotesWhenEnriched(t *testing.T) {
	v, err := ParseVersion("3.11.4")
	require.NoError(t, err)

	a := Record{Path: "/p", Source: SourceConda, Kind: KindConda}
	b := Record{Path: "/p", Source: SourceKnownPath, Version: v, Architecture: ArchX64}

	merged := Merge(a, b)
	assert.Equal(t, TierComplete, merged.Tier)
}

func TestNormalizePathKeepsSymlinksDistinct(t *testing.T) {
	// Normalization cleans but never resolves symlinks, so aliases of
	// the same interpreter stay distinct keys.
	assert.Equal(t, NormalizePath("/usr/bin/../bin/python3"), NormalizePath("/usr/bin/python3"))
	assert.NotEqual(t, NormalizePath("/usr/bin/python3"), NormalizePath("/usr/local/bin/python3"))
}
