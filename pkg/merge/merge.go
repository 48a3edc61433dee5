package merge

import (
	"bytes"

	"github.com/spacalexandru02/asheraflow/pkg/diff3"
)

// MergeStats summarizes how a file's content merge was resolved.
type MergeStats struct {
	Unchanged      int
	OursModified   int
	TheirsModified int
	BothModified   int
	Conflicts      int
}

// MergeResult holds the output of a three-way content merge.
type MergeResult struct {
	Merged        []byte
	HasConflicts  bool
	ConflictCount int
	Stats         MergeStats
}

// MergeFiles performs a three-way line-level merge of base, ours, and
// theirs, labeling any conflict markers with oursLabel/theirsLabel (the
// branch or ref names involved). Binary content (anything containing a NUL
// byte) is merged with simple whole-file semantics instead of diff3, since
// line-level merging is undefined for it.
func MergeFiles(base, ours, theirs []byte, oursLabel, theirsLabel string) (*MergeResult, error) {
	if isBinaryContent(base) || isBinaryContent(ours) || isBinaryContent(theirs) {
		return mergeBinaryFallback(base, ours, theirs), nil
	}
	return mergeTextFallback(base, ours, theirs, oursLabel, theirsLabel), nil
}

func mergeTextFallback(base, ours, theirs []byte, oursLabel, theirsLabel string) *MergeResult {
	result := diff3.MergeLabeled(base, ours, theirs, oursLabel, theirsLabel)
	merged, conflictCount := resolveTextConflicts(result, oursLabel, theirsLabel)
	var stats MergeStats
	if conflictCount > 0 {
		stats.Conflicts = conflictCount
	} else {
		stats.BothModified = 1
	}
	return &MergeResult{
		Merged:        merged,
		HasConflicts:  conflictCount > 0,
		ConflictCount: conflictCount,
		Stats:         stats,
	}
}

func mergeBinaryFallback(base, ours, theirs []byte) *MergeResult {
	var stats MergeStats
	switch {
	case bytes.Equal(ours, theirs):
		stats.Unchanged = 1
		return &MergeResult{Merged: append([]byte(nil), ours...), Stats: stats}
	case bytes.Equal(base, ours):
		stats.TheirsModified = 1
		return &MergeResult{Merged: append([]byte(nil), theirs...), Stats: stats}
	case bytes.Equal(base, theirs):
		stats.OursModified = 1
		return &MergeResult{Merged: append([]byte(nil), ours...), Stats: stats}
	default:
		stats.Conflicts = 1
		return &MergeResult{
			Merged:        append([]byte(nil), ours...),
			HasConflicts:  true,
			ConflictCount: 1,
			Stats:         stats,
		}
	}
}

func isBinaryContent(data []byte) bool {
	return bytes.IndexByte(data, 0) >= 0
}

// resolveTextConflicts walks the hunks of a diff3 result, resolving
// "parallel insertion" false conflicts (both sides inserted into a blank
// base region) and counting genuine conflicts.
func resolveTextConflicts(result diff3.Result, oursLabel, theirsLabel string) ([]byte, int) {
	if !result.HasConflicts {
		return result.Merged, 0
	}

	var merged bytes.Buffer
	conflictCount := 0
	for _, h := range result.Hunks {
		if h.Type != diff3.HunkConflict {
			merged.Write(h.Merged)
			continue
		}
		if canResolveParallelInsertion(h) {
			merged.Write(mergeParallelInsertions(h.Ours, h.Theirs))
			continue
		}
		conflictCount++
		merged.WriteString("<<<<<<< " + oursLabel + "\n")
		merged.Write(h.Ours)
		merged.WriteString("=======\n")
		merged.Write(h.Theirs)
		merged.WriteString(">>>>>>> " + theirsLabel + "\n")
	}

	return merged.Bytes(), conflictCount
}

func canResolveParallelInsertion(h diff3.Hunk) bool {
	return len(bytes.TrimSpace(h.Base)) == 0 &&
		len(bytes.TrimSpace(h.Ours)) > 0 &&
		len(bytes.TrimSpace(h.Theirs)) > 0
}

func mergeParallelInsertions(ours, theirs []byte) []byte {
	ours = append([]byte(nil), ours...)
	if bytes.Equal(bytes.TrimSpace(ours), bytes.TrimSpace(theirs)) {
		return ours
	}
	if len(ours) == 0 {
		return append([]byte(nil), theirs...)
	}
	if len(theirs) == 0 {
		return ours
	}

	out := ours
	if out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	out = append(out, theirs...)
	return out
}
