package diff

import (
	"fmt"
	"strings"
)

// Format renders a FileDiff as unified-diff text:
//
//	--- a/path
//	+++ b/path
//	@@ -l,s +l,s @@
//	 context line
//	-removed line
//	+added line
func Format(d *FileDiff) string {
	if len(d.Hunks) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n", d.OldPath)
	fmt.Fprintf(&b, "+++ b/%s\n", d.NewPath)

	for _, h := range d.Hunks {
		fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldLines, h.NewStart, h.NewLines)
		for _, line := range h.Lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	return b.String()
}

// FormatNoPrefix renders d the same way as Format but omits the file header
// lines, for callers that already print their own path banner.
func FormatNoPrefix(d *FileDiff) string {
	if len(d.Hunks) == 0 {
		return ""
	}

	var b strings.Builder
	for _, h := range d.Hunks {
		fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldLines, h.NewStart, h.NewLines)
		for _, line := range h.Lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
