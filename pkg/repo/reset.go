package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spacalexandru02/asheraflow/pkg/object"
)

// ResetMode selects how much of the repository state `reset` rewrites.
type ResetMode int

const (
	// ResetMixed moves HEAD and rewrites the index to match the target
	// commit; the working tree is untouched. This is the default mode.
	ResetMixed ResetMode = iota
	// ResetSoft moves HEAD only; index and working tree are untouched, so
	// `diff --cached` continues to show the pre-reset commit's changes
	// against the new HEAD.
	ResetSoft
	// ResetHard moves HEAD, rewrites the index, and overwrites tracked
	// working-tree files to match the target. Untracked files survive.
	ResetHard
)

// Reset moves the current branch (or detached HEAD) to commitRef and
// updates the index/working tree according to mode. When paths is
// non-empty, only those index entries are updated to the target's version,
// HEAD is left untouched, and mode is forced to ResetMixed — the
// path-limited form of reset (§4.6.1).
func (r *Repo) Reset(commitRef string, mode ResetMode, paths []string) error {
	targetHash, err := r.resolveCommittish(commitRef)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	if len(paths) > 0 {
		return r.resetPaths(targetHash, paths)
	}

	switch mode {
	case ResetSoft:
		return r.resetSoft(targetHash)
	case ResetHard:
		return r.resetHard(targetHash)
	default:
		return r.resetMixed(targetHash)
	}
}

// IsCommitHash reports whether ref resolves to a readable commit object,
// letting callers (e.g. the CLI) distinguish a commit argument from a bare
// path in commands that accept both.
func (r *Repo) IsCommitHash(ref string) bool {
	_, err := r.Store.ReadCommit(object.Hash(ref))
	return err == nil
}

func (r *Repo) resolveCommittish(ref string) (object.Hash, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || ref == "HEAD" {
		h, err := r.ResolveRef("HEAD")
		if err != nil {
			return "", fmt.Errorf("%w: HEAD", ErrUnknownRef)
		}
		return h, nil
	}
	if h, err := r.ResolveRef("refs/heads/" + ref); err == nil {
		return h, nil
	}
	if _, err := r.Store.ReadCommit(object.Hash(ref)); err == nil {
		return object.Hash(ref), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRef, ref)
}

// moveHead advances the current branch (or detached HEAD) to target.
func (r *Repo) moveHead(target object.Hash) error {
	head, err := r.Head()
	if err != nil {
		return fmt.Errorf("read HEAD: %w", err)
	}
	if strings.HasPrefix(head, "refs/") {
		if err := r.UpdateRef(head, target); err != nil {
			return fmt.Errorf("update %s: %w", head, err)
		}
		return nil
	}
	if err := r.UpdateRef("HEAD", target); err != nil {
		return fmt.Errorf("update detached HEAD: %w", err)
	}
	return nil
}

func (r *Repo) resetSoft(target object.Hash) error {
	if err := r.moveHead(target); err != nil {
		return fmt.Errorf("reset --soft: %w", err)
	}
	return nil
}

func (r *Repo) resetMixed(target object.Hash) error {
	if err := r.moveHead(target); err != nil {
		return fmt.Errorf("reset --mixed: %w", err)
	}
	if err := r.rewriteIndexToCommit(target); err != nil {
		return fmt.Errorf("reset --mixed: %w", err)
	}
	r.invalidateStatusCache()
	return nil
}

func (r *Repo) resetHard(target object.Hash) error {
	if err := r.moveHead(target); err != nil {
		return fmt.Errorf("reset --hard: %w", err)
	}
	if err := r.rewriteIndexToCommit(target); err != nil {
		return fmt.Errorf("reset --hard: %w", err)
	}

	commit, err := r.Store.ReadCommit(target)
	if err != nil {
		return fmt.Errorf("reset --hard: read commit %s: %w", target, err)
	}
	files, err := r.FlattenTree(commit.TreeHash)
	if err != nil {
		return fmt.Errorf("reset --hard: flatten tree: %w", err)
	}

	// Overwrite tracked files in the working tree; untracked files are left
	// alone (spec: proceed unconditionally, hard reset is explicit).
	for _, f := range files {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return fmt.Errorf("reset --hard: mkdir for %q: %w", f.Path, err)
		}
		blob, err := r.Store.ReadBlob(f.BlobHash)
		if err != nil {
			return fmt.Errorf("reset --hard: read blob for %q: %w", f.Path, err)
		}
		if err := os.WriteFile(absPath, blob.Data, filePermFromMode(f.Mode)); err != nil {
			return fmt.Errorf("reset --hard: write %q: %w", f.Path, err)
		}
	}

	r.invalidateStatusCache()
	return nil
}

func (r *Repo) rewriteIndexToCommit(target object.Hash) error {
	commit, err := r.Store.ReadCommit(target)
	if err != nil {
		return fmt.Errorf("read commit %s: %w", target, err)
	}
	files, err := r.FlattenTree(commit.TreeHash)
	if err != nil {
		return fmt.Errorf("flatten tree: %w", err)
	}

	idx := newIndex()
	for _, f := range files {
		idx.Entries[f.Path] = &IndexEntry{
			Path:     f.Path,
			Mode:     normalizeFileMode(f.Mode),
			BlobHash: f.BlobHash,
			Size:     -1, // force a rehash on next status/add, stat cache unknown
		}
	}
	return r.WriteIndex(idx)
}

// resetPaths implements the path-limited form: `reset <commit> -- <paths>`.
// Only the named index entries are updated to target's version (or removed
// if target has no such path); HEAD is untouched.
func (r *Repo) resetPaths(target object.Hash, paths []string) error {
	idx, err := r.ReadIndex()
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	commit, err := r.Store.ReadCommit(target)
	if err != nil {
		return fmt.Errorf("reset: read commit %s: %w", target, err)
	}
	targetFiles, err := r.FlattenTree(commit.TreeHash)
	if err != nil {
		return fmt.Errorf("reset: flatten tree: %w", err)
	}
	targetMap := make(map[string]TreeFileEntry, len(targetFiles))
	for _, f := range targetFiles {
		targetMap[f.Path] = f
	}

	targets, err := r.resolveResetTargets(paths, idx, targetMap)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	for _, p := range targets {
		if targetEntry, ok := targetMap[p]; ok {
			// Force status to hash-check this path after reset to avoid stale
			// stat-only matches when worktree content differs from the target.
			idx.Entries[p] = &IndexEntry{
				Path:     p,
				BlobHash: targetEntry.BlobHash,
				Mode:     normalizeFileMode(targetEntry.Mode),
				ModTime:  0,
				Size:     -1,
			}
			continue
		}
		delete(idx.Entries, p)
	}

	if err := r.WriteIndex(idx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	r.invalidateStatusCache()
	return nil
}

func (r *Repo) resolveResetTargets(paths []string, idx *Index, target map[string]TreeFileEntry) ([]string, error) {
	all := make(map[string]struct{}, len(idx.Entries)+len(target))
	for p := range idx.Entries {
		all[p] = struct{}{}
	}
	for p := range target {
		all[p] = struct{}{}
	}

	if len(paths) == 0 {
		return sortedPathSet(all), nil
	}

	targets := make(map[string]struct{})
	for _, raw := range paths {
		rel, err := r.repoRelPath(raw)
		if err != nil {
			return nil, err
		}
		rel = filepath.ToSlash(filepath.Clean(strings.TrimSpace(rel)))
		if rel == "" || rel == "." {
			for p := range all {
				targets[p] = struct{}{}
			}
			continue
		}

		matched := false
		if _, ok := all[rel]; ok {
			targets[rel] = struct{}{}
			matched = true
		}

		prefix := rel + "/"
		for p := range all {
			if strings.HasPrefix(p, prefix) {
				targets[p] = struct{}{}
				matched = true
			}
		}

		if !matched {
			return nil, fmt.Errorf("path %q did not match staged or target entries", raw)
		}
	}

	return sortedPathSet(targets), nil
}

func sortedPathSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
