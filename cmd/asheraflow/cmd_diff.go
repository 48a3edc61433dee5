package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spacalexandru02/asheraflow/pkg/diff"
	"github.com/spacalexandru02/asheraflow/pkg/object"
	"github.com/spacalexandru02/asheraflow/pkg/repo"
	"github.com/spf13/cobra"
)

func newDiffCmd() *cobra.Command {
	var staged bool

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Show changes between working tree, index, and HEAD",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			if staged {
				return diffStaged(cmd, r)
			}
			return diffUnstaged(cmd, r)
		},
	}

	cmd.Flags().BoolVar(&staged, "staged", false, "show staged changes (index vs HEAD)")

	return cmd
}

// diffUnstaged compares the working tree against the index.
func diffUnstaged(cmd *cobra.Command, r *repo.Repo) error {
	idx, err := r.ReadIndex()
	if err != nil {
		return err
	}
	statusEntries, err := r.Status()
	if err != nil {
		return err
	}
	workRenamedOldToNew := make(map[string]string)
	for _, e := range statusEntries {
		if e.WorkStatus == repo.StatusRenamed && e.RenamedFrom != "" {
			workRenamedOldToNew[e.RenamedFrom] = e.Path
		}
	}

	paths := make([]string, 0, len(idx.Entries))
	for p, e := range idx.Entries {
		if e.Conflict {
			continue
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := cmd.OutOrStdout()

	for _, p := range paths {
		se := idx.Entries[p]

		absPath := filepath.Join(r.RootDir, filepath.FromSlash(p))
		workData, err := os.ReadFile(absPath)
		if err != nil {
			if os.IsNotExist(err) {
				if newPath, renamed := workRenamedOldToNew[p]; renamed {
					printRename(out, p, newPath)
					continue
				}
				stagedBlob, blobErr := r.Store.ReadBlob(se.BlobHash)
				if blobErr != nil {
					return fmt.Errorf("diff: read staged blob %s: %w", p, blobErr)
				}
				printDiff(out, p, stagedBlob.Data, nil)
				continue
			}
			return fmt.Errorf("diff: read %s: %w", p, err)
		}

		workHash := object.HashObject(object.TypeBlob, workData)
		if workHash == se.BlobHash {
			continue
		}

		stagedBlob, err := r.Store.ReadBlob(se.BlobHash)
		if err != nil {
			return fmt.Errorf("diff: read staged blob %s: %w", p, err)
		}

		printDiff(out, p, stagedBlob.Data, workData)
	}

	return nil
}

// diffStaged compares the index against the HEAD commit tree.
func diffStaged(cmd *cobra.Command, r *repo.Repo) error {
	idx, err := r.ReadIndex()
	if err != nil {
		return err
	}
	statusEntries, err := r.Status()
	if err != nil {
		return err
	}
	indexRenamedNewToOld := make(map[string]string)
	indexRenamedOld := make(map[string]struct{})
	for _, e := range statusEntries {
		if e.IndexStatus == repo.StatusRenamed && e.RenamedFrom != "" {
			indexRenamedNewToOld[e.Path] = e.RenamedFrom
			indexRenamedOld[e.RenamedFrom] = struct{}{}
		}
	}

	headMap := make(map[string]repo.TreeFileEntry)
	headHash, err := r.ResolveRef("HEAD")
	if err == nil {
		if commit, err := r.Store.ReadCommit(headHash); err == nil {
			if entries, err := r.FlattenTree(commit.TreeHash); err == nil {
				for _, e := range entries {
					headMap[e.Path] = e
				}
			}
		}
	}

	paths := make([]string, 0, len(idx.Entries))
	for p, e := range idx.Entries {
		if e.Conflict {
			continue
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := cmd.OutOrStdout()

	for _, p := range paths {
		se := idx.Entries[p]
		if oldPath, renamed := indexRenamedNewToOld[p]; renamed {
			printRename(out, oldPath, p)
			continue
		}

		headEntry, inHead := headMap[p]
		if inHead && headEntry.BlobHash == se.BlobHash {
			continue
		}

		var before []byte
		if inHead {
			blob, err := r.Store.ReadBlob(headEntry.BlobHash)
			if err != nil {
				return fmt.Errorf("diff: read HEAD blob %s: %w", p, err)
			}
			before = blob.Data
		}

		stagedBlob, err := r.Store.ReadBlob(se.BlobHash)
		if err != nil {
			return fmt.Errorf("diff: read staged blob %s: %w", p, err)
		}

		printDiff(out, p, before, stagedBlob.Data)
	}

	deletedPaths := make([]string, 0)
	for p := range headMap {
		if e, inIndex := idx.Entries[p]; !inIndex || e.Conflict {
			deletedPaths = append(deletedPaths, p)
		}
	}
	sort.Strings(deletedPaths)

	for _, p := range deletedPaths {
		if _, renamed := indexRenamedOld[p]; renamed {
			continue
		}
		headEntry := headMap[p]
		blob, err := r.Store.ReadBlob(headEntry.BlobHash)
		if err != nil {
			return fmt.Errorf("diff: read HEAD blob %s: %w", p, err)
		}
		printDiff(out, p, blob.Data, nil)
	}

	return nil
}

// printDiff prints a unified diff for a single file. before or after may be
// nil for additions and deletions respectively.
func printDiff(out io.Writer, path string, before, after []byte) {
	fd := diff.Unified(path, path, before, after, diff.DefaultContext)
	if len(fd.Hunks) == 0 {
		return
	}
	fmt.Fprintf(out, "diff --asheraflow a/%s b/%s\n", path, path)
	fmt.Fprint(out, diff.Format(fd))
}

func printRename(out io.Writer, fromPath, toPath string) {
	fmt.Fprintf(out, "diff --asheraflow a/%s b/%s\n", fromPath, toPath)
	fmt.Fprintf(out, "rename from %s\n", fromPath)
	fmt.Fprintf(out, "rename to %s\n", toPath)
}
