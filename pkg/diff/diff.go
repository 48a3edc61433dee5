// Package diff provides unified line-level diffing on top of the Myers
// algorithm in pkg/diff3, plus the similarity scoring the merge engine uses
// to disambiguate renames.
package diff

import (
	"strings"

	"github.com/spacalexandru02/asheraflow/pkg/diff3"
)

// DefaultContext is the number of unchanged lines kept around each change
// when no explicit context is requested.
const DefaultContext = 3

// Hunk is a contiguous region of a unified diff.
type Hunk struct {
	OldStart, OldLines int
	NewStart, NewLines int
	// Lines are prefixed " " (context), "-" (removed), or "+" (added).
	Lines []string
}

// FileDiff is the unified diff between two revisions of one file.
type FileDiff struct {
	OldPath, NewPath string
	Hunks            []Hunk
}

// Unified computes the unified line diff between a and b, keeping context
// unchanged lines around each change. context <= 0 uses DefaultContext.
func Unified(oldPath, newPath string, a, b []byte, context int) *FileDiff {
	if context <= 0 {
		context = DefaultContext
	}
	ops := diff3.MyersDiff(splitLines(string(a)), splitLines(string(b)))
	return &FileDiff{
		OldPath: oldPath,
		NewPath: newPath,
		Hunks:   buildHunks(ops, context),
	}
}

type annotatedOp struct {
	op      diff3.DiffOp
	oldLine int // 0-based position in a, valid for Equal/Delete
	newLine int // 0-based position in b, valid for Equal/Insert
}

func buildHunks(ops []diff3.DiffOp, context int) []Hunk {
	annotated := make([]annotatedOp, len(ops))
	oldLine, newLine := 0, 0
	for i, op := range ops {
		a := annotatedOp{op: op}
		switch op.Type {
		case diff3.Equal:
			a.oldLine, a.newLine = oldLine, newLine
			oldLine++
			newLine++
		case diff3.Delete:
			a.oldLine = oldLine
			oldLine++
		case diff3.Insert:
			a.newLine = newLine
			newLine++
		}
		annotated[i] = a
	}

	var hunks []Hunk
	i := 0
	for i < len(annotated) {
		if annotated[i].op.Type == diff3.Equal {
			i++
			continue
		}
		// Found a change; start a hunk, including up to `context` lines of
		// leading equal context.
		start := i
		for k := 0; k < context && start-1 >= 0 && annotated[start-1].op.Type == diff3.Equal; k++ {
			start--
		}

		end := i
		for end < len(annotated) {
			if annotated[end].op.Type != diff3.Equal {
				end++
				continue
			}
			// Count the run of equal lines; if it's short enough to be
			// context shared with a following change, keep scanning.
			runStart := end
			for end < len(annotated) && annotated[end].op.Type == diff3.Equal {
				end++
			}
			runLen := end - runStart
			if end >= len(annotated) || runLen > 2*context {
				end = runStart + min(runLen, context)
				break
			}
		}

		hunks = append(hunks, makeHunk(annotated[start:end]))
		i = end
	}
	return hunks
}

func makeHunk(ops []annotatedOp) Hunk {
	h := Hunk{}
	firstOld, firstNew := -1, -1
	oldCount, newCount := 0, 0
	for _, a := range ops {
		var prefix string
		switch a.op.Type {
		case diff3.Equal:
			prefix = " "
			if firstOld < 0 {
				firstOld, firstNew = a.oldLine, a.newLine
			}
			oldCount++
			newCount++
		case diff3.Delete:
			prefix = "-"
			if firstOld < 0 {
				firstOld = a.oldLine
			}
			oldCount++
		case diff3.Insert:
			prefix = "+"
			if firstNew < 0 {
				firstNew = a.newLine
			}
			newCount++
		}
		h.Lines = append(h.Lines, prefix+a.op.Line)
	}
	h.OldLines = oldCount
	h.NewLines = newCount
	if oldCount == 0 {
		h.OldStart = 0
	} else {
		h.OldStart = firstOld + 1
	}
	if newCount == 0 {
		h.NewStart = 0
	} else {
		h.NewStart = firstNew + 1
	}
	return h
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Similarity scores how alike two file contents are, for rename detection
// when a merge sees a delete on one side and an add on the other. A content
// hash match scores 1.0; otherwise the score is the fraction of lines in
// the larger file that also appear (by exact line match) in the smaller
// one, biased by line-overlap rather than positional alignment so that
// reordered but otherwise-identical files still score highly.
func Similarity(a, b []byte) float64 {
	if string(a) == string(b) {
		return 1.0
	}
	aLines := splitLines(string(a))
	bLines := splitLines(string(b))
	if len(aLines) == 0 && len(bLines) == 0 {
		return 1.0
	}
	if len(aLines) == 0 || len(bLines) == 0 {
		return 0
	}

	counts := make(map[string]int, len(aLines))
	for _, l := range aLines {
		counts[l]++
	}
	shared := 0
	for _, l := range bLines {
		if counts[l] > 0 {
			counts[l]--
			shared++
		}
	}

	larger := len(aLines)
	if len(bLines) > larger {
		larger = len(bLines)
	}
	return float64(shared) / float64(larger)
}

// IsLikelyRename reports whether two file contents are similar enough
// (≥50% line overlap, per the merge engine's rename-detection threshold)
// to be considered the same file renamed.
func IsLikelyRename(a, b []byte) bool {
	return Similarity(a, b) >= 0.5
}
