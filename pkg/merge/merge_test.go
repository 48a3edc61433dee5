package merge

import (
	"bytes"
	"strings"
	"testing"
)

func TestMergeFilesCleanOursOnly(t *testing.T) {
	base := []byte("l1\nl2\nl3\n")
	ours := []byte("l1_m\nl2\nl3\n")
	theirs := []byte("l1\nl2\nl3\n")

	result, err := MergeFiles(base, ours, theirs, "master", "feature")
	if err != nil {
		t.Fatalf("MergeFiles: %v", err)
	}
	if result.HasConflicts {
		t.Fatalf("expected clean merge, got conflicts: %s", result.Merged)
	}
	if string(result.Merged) != string(ours) {
		t.Errorf("merged = %q, want %q", result.Merged, ours)
	}
}

func TestMergeFilesDivergentConflict(t *testing.T) {
	base := []byte("l1\nl2\nl3\n")
	ours := []byte("l1_m\nl2\nl3\n")
	theirs := []byte("l1_f\nl2\nl3\n")

	result, err := MergeFiles(base, ours, theirs, "master", "feature")
	if err != nil {
		t.Fatalf("MergeFiles: %v", err)
	}
	if !result.HasConflicts {
		t.Fatalf("expected conflict, got clean merge: %s", result.Merged)
	}
	merged := string(result.Merged)
	if !strings.Contains(merged, "<<<<<<< master") || !strings.Contains(merged, ">>>>>>> feature") {
		t.Errorf("merged output missing labeled markers: %q", merged)
	}
}

func TestMergeFilesIdenticalChangeIsClean(t *testing.T) {
	base := []byte("l1\nl2\n")
	ours := []byte("l1_x\nl2\n")
	theirs := []byte("l1_x\nl2\n")

	result, err := MergeFiles(base, ours, theirs, "a", "b")
	if err != nil {
		t.Fatalf("MergeFiles: %v", err)
	}
	if result.HasConflicts {
		t.Fatalf("identical change on both sides should not conflict: %s", result.Merged)
	}
}

func TestMergeFilesBinaryFallback(t *testing.T) {
	base := []byte("base\x00data")
	ours := []byte("ours\x00data")
	theirs := []byte("base\x00data")

	result, err := MergeFiles(base, ours, theirs, "a", "b")
	if err != nil {
		t.Fatalf("MergeFiles: %v", err)
	}
	if result.HasConflicts {
		t.Fatal("expected clean binary merge (only ours changed)")
	}
	if !bytes.Equal(result.Merged, ours) {
		t.Errorf("merged = %q, want %q", result.Merged, ours)
	}
}

func TestMergeFilesBinaryBothChangedConflicts(t *testing.T) {
	base := []byte("base\x00data")
	ours := []byte("ours\x00data")
	theirs := []byte("theirs\x00data")

	result, err := MergeFiles(base, ours, theirs, "a", "b")
	if err != nil {
		t.Fatalf("MergeFiles: %v", err)
	}
	if !result.HasConflicts {
		t.Fatal("expected conflict when both binary sides differ from base")
	}
}

func TestMergeFilesParallelInsertionResolved(t *testing.T) {
	// Both sides insert into the same blank base region; this should
	// resolve cleanly rather than conflict.
	base := []byte("a\n\nb\n")
	ours := []byte("a\nours-line\nb\n")
	theirs := []byte("a\ntheirs-line\nb\n")

	result, err := MergeFiles(base, ours, theirs, "a", "b")
	if err != nil {
		t.Fatalf("MergeFiles: %v", err)
	}
	if result.HasConflicts {
		t.Fatalf("expected parallel insertion to resolve cleanly, got: %s", result.Merged)
	}
	merged := string(result.Merged)
	if !strings.Contains(merged, "ours-line") || !strings.Contains(merged, "theirs-line") {
		t.Errorf("expected both insertions present: %q", merged)
	}
}
