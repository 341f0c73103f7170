package python

import "sort"

// Merge combines partial observations of the same interpreter into one
// record. For every field the value from the record whose source ranks
// earliest in the locator precedence wins; records without a value for
// a field simply don't compete for it. Merge of a single record is the
// identity, so merging is idempotent.
//
// The path of the first record is kept verbatim; callers are expected
// to only merge records sharing one normalized path.
func Merge(records ...Record) Record {
	if len(records) == 0 {
		return Record{}
	}
	if len(records) == 1 {
		return records[0]
	}

	ordered := make([]Record, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Source.Precedence() < ordered[j].Source.Precedence()
	})

	merged := Record{Path: records[0].Path}
	for _, r := range ordered {
		if merged.Kind == "" || merged.Kind == KindUnknown {
			if r.Kind != "" && r.Kind != KindUnknown {
				merged.Kind = r.Kind
			}
		}
		if merged.Version == nil && r.Version != nil {
			merged.Version = r.Version
		}
		if (merged.Architecture == "" || merged.Architecture == ArchUnknown) &&
			r.Architecture != "" && r.Architecture != ArchUnknown {
			merged.Architecture = r.Architecture
		}
		if merged.EnvName == "" {
			merged.EnvName = r.EnvName
		}
		if merged.SearchLocation == "" {
			merged.SearchLocation = r.SearchLocation
		}
		if merged.Source == "" {
			merged.Source = r.Source
		}
		if merged.FileModified.IsZero() {
			merged.FileModified = r.FileModified
		}
	}

	if merged.Kind == "" {
		merged.Kind = KindUnknown
	}
	merged.Tier = TierPartial
	if merged.CanPromote() {
		merged.Tier = TierComplete
	}
	return merged
}
