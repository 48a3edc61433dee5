package repo

import (
	"bytes"
	"container/heap"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spacalexandru02/asheraflow/pkg/merge"
	"github.com/spacalexandru02/asheraflow/pkg/object"
)

// FileMergeReport records the merge outcome for a single file.
type FileMergeReport struct {
	Path          string
	Status        string // "clean", "conflict", "added", "deleted"
	ConflictCount int
}

// MergeReport is the overall result of a repository-level merge.
type MergeReport struct {
	Files          []FileMergeReport
	HasConflicts   bool
	TotalConflicts int
	MergeCommit    object.Hash // set on a clean merge: the new merge commit, or the branch tip on a fast-forward
}

type mergeConflictState struct {
	path       string
	baseHash   object.Hash
	oursHash   object.Hash
	theirsHash object.Hash
	mode       string
	// noMergedContent is set for file/directory collisions: there is no
	// merged-with-markers content sitting at path (path becomes a directory),
	// so stageConflictState must not try to read it back from disk.
	noMergedContent bool
}

const (
	maxMergeBaseBFSSteps = 1_000_000
	maxMergeBaseBFSDepth = 1_000_000
)

// These vars allow tests to tighten safety limits without affecting
// production defaults.
var (
	mergeBaseBFSStepsLimit = maxMergeBaseBFSSteps
	mergeBaseBFSDepthLimit = maxMergeBaseBFSDepth
)

type mergeBaseTraversalQueueItem struct {
	hash  object.Hash
	depth int
}

func mergeBaseTraversalLimits() (maxSteps int, maxDepth int) {
	maxSteps = normalizeMergeBaseTraversalLimit(mergeBaseBFSStepsLimit, maxMergeBaseBFSSteps)
	maxDepth = normalizeMergeBaseTraversalLimit(mergeBaseBFSDepthLimit, maxMergeBaseBFSDepth)

	return maxSteps, maxDepth
}

func normalizeMergeBaseTraversalLimit(limit, hardMax int) int {
	// Keep safety defaults as hard bounds; test hooks may only tighten.
	if limit <= 0 || limit > hardMax {
		return hardMax
	}
	return limit
}

func mergeBaseStepsLimitError(limit int) error {
	return fmt.Errorf("find merge base: traversal exceeded maximum steps (%d)", limit)
}

func mergeBaseDepthLimitError(limit int) error {
	return fmt.Errorf("find merge base: traversal exceeded maximum depth (%d)", limit)
}

// FindMergeBase finds a common ancestor of two commits. It uses cached
// generation numbers for pruning, fast ancestor checks for linear histories,
// and a memoized pair cache for repeated queries.
func (r *Repo) FindMergeBase(a, b object.Hash) (object.Hash, error) {
	if a == "" || b == "" {
		return "", nil
	}
	if a == b {
		return a, nil
	}

	state := r.getMergeTraversalState()
	if cached, ok := state.loadMergeBase(a, b); ok {
		if cached.found {
			return cached.base, nil
		}
		return "", nil
	}

	genA, err := state.generation(r, a)
	if err != nil {
		return "", err
	}
	genB, err := state.generation(r, b)
	if err != nil {
		return "", err
	}

	// Fast path: one side already contains the other.
	if genA <= genB {
		isAncestor, err := r.isAncestorWithGeneration(state, a, b, genA, genB)
		if err != nil {
			return "", err
		}
		if isAncestor {
			state.storeMergeBase(a, b, a, true)
			return a, nil
		}
		isAncestor, err = r.isAncestorWithGeneration(state, b, a, genB, genA)
		if err != nil {
			return "", err
		}
		if isAncestor {
			state.storeMergeBase(a, b, b, true)
			return b, nil
		}
	} else {
		isAncestor, err := r.isAncestorWithGeneration(state, b, a, genB, genA)
		if err != nil {
			return "", err
		}
		if isAncestor {
			state.storeMergeBase(a, b, b, true)
			return b, nil
		}
		isAncestor, err = r.isAncestorWithGeneration(state, a, b, genA, genB)
		if err != nil {
			return "", err
		}
		if isAncestor {
			state.storeMergeBase(a, b, a, true)
			return a, nil
		}
	}

	base, found, err := r.findMergeBaseWithPruning(state, a, b, genA, genB)
	if err != nil {
		return "", err
	}
	state.storeMergeBase(a, b, base, found)
	if !found {
		return "", nil
	}
	return base, nil
}

func (r *Repo) isAncestorWithGeneration(state *mergeBaseTraversalState, ancestor, descendant object.Hash, ancestorGeneration, descendantGeneration uint64) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}
	if ancestorGeneration > descendantGeneration {
		return false, nil
	}

	maxSteps, maxDepth := mergeBaseTraversalLimits()
	visited := map[object.Hash]struct{}{descendant: {}}
	queue := []mergeBaseTraversalQueueItem{{hash: descendant, depth: 0}}
	steps := 0

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		steps++
		if steps > maxSteps {
			return false, mergeBaseStepsLimitError(maxSteps)
		}
		if item.depth > maxDepth {
			return false, mergeBaseDepthLimitError(maxDepth)
		}

		cur := item.hash
		if cur == ancestor {
			return true, nil
		}

		curGeneration, err := state.generation(r, cur)
		if err != nil {
			return false, err
		}
		if curGeneration <= ancestorGeneration {
			continue
		}

		commit, err := state.readCommit(r, cur)
		if err != nil {
			return false, err
		}
		for _, p := range commit.Parents {
			if p == "" {
				continue
			}
			if _, seen := visited[p]; seen {
				continue
			}
			parentGeneration, err := state.generation(r, p)
			if err != nil {
				return false, err
			}
			if parentGeneration < ancestorGeneration {
				continue
			}
			childDepth := item.depth + 1
			if childDepth > maxDepth {
				return false, mergeBaseDepthLimitError(maxDepth)
			}
			visited[p] = struct{}{}
			queue = append(queue, mergeBaseTraversalQueueItem{hash: p, depth: childDepth})
		}
	}

	return false, nil
}

func (r *Repo) findMergeBaseWithPruning(state *mergeBaseTraversalState, a, b object.Hash, genA, genB uint64) (object.Hash, bool, error) {
	maxSteps, maxDepth := mergeBaseTraversalLimits()

	visitedA := map[object.Hash]struct{}{a: {}}
	visitedB := map[object.Hash]struct{}{b: {}}
	depthA := map[object.Hash]int{a: 0}
	depthB := map[object.Hash]int{b: 0}

	queueA := mergeBaseMaxHeap{{hash: a, generation: genA}}
	queueB := mergeBaseMaxHeap{{hash: b, generation: genB}}
	heap.Init(&queueA)
	heap.Init(&queueB)

	best := object.Hash("")
	var bestGeneration uint64
	steps := 0

	for queueA.Len() > 0 || queueB.Len() > 0 {
		if best != "" {
			topA, okA := queueA.Peek()
			topB, okB := queueB.Peek()
			if (!okA || topA.generation < bestGeneration) && (!okB || topB.generation < bestGeneration) {
				break
			}
		}

		traverseA := false
		switch {
		case queueA.Len() == 0:
			traverseA = false
		case queueB.Len() == 0:
			traverseA = true
		default:
			topA := queueA[0]
			topB := queueB[0]
			if topA.generation > topB.generation {
				traverseA = true
			} else if topA.generation < topB.generation {
				traverseA = false
			} else {
				traverseA = topA.hash <= topB.hash
			}
		}

		var item mergeBaseQueueItem
		if traverseA {
			item = heap.Pop(&queueA).(mergeBaseQueueItem)
		} else {
			item = heap.Pop(&queueB).(mergeBaseQueueItem)
		}

		steps++
		if steps > maxSteps {
			return "", false, mergeBaseStepsLimitError(maxSteps)
		}
		if best != "" && item.generation < bestGeneration {
			continue
		}

		itemDepth := 0
		if traverseA {
			itemDepth = depthA[item.hash]
		} else {
			itemDepth = depthB[item.hash]
		}
		if itemDepth > maxDepth {
			return "", false, mergeBaseDepthLimitError(maxDepth)
		}

		if traverseA {
			if _, seen := visitedB[item.hash]; seen {
				best, bestGeneration = chooseBetterMergeBase(best, bestGeneration, item.hash, item.generation)
			}
		} else {
			if _, seen := visitedA[item.hash]; seen {
				best, bestGeneration = chooseBetterMergeBase(best, bestGeneration, item.hash, item.generation)
			}
		}

		commit, err := state.readCommit(r, item.hash)
		if err != nil {
			return "", false, err
		}

		for _, p := range commit.Parents {
			if p == "" {
				continue
			}

			parentGeneration, err := state.generation(r, p)
			if err != nil {
				return "", false, err
			}
			if best != "" && parentGeneration < bestGeneration {
				continue
			}

			childDepth := itemDepth + 1
			if childDepth > maxDepth {
				return "", false, mergeBaseDepthLimitError(maxDepth)
			}

			if traverseA {
				if _, seen := visitedA[p]; seen {
					continue
				}
				visitedA[p] = struct{}{}
				depthA[p] = childDepth
				heap.Push(&queueA, mergeBaseQueueItem{hash: p, generation: parentGeneration})
				if _, seen := visitedB[p]; seen {
					best, bestGeneration = chooseBetterMergeBase(best, bestGeneration, p, parentGeneration)
				}
			} else {
				if _, seen := visitedB[p]; seen {
					continue
				}
				visitedB[p] = struct{}{}
				depthB[p] = childDepth
				heap.Push(&queueB, mergeBaseQueueItem{hash: p, generation: parentGeneration})
				if _, seen := visitedA[p]; seen {
					best, bestGeneration = chooseBetterMergeBase(best, bestGeneration, p, parentGeneration)
				}
			}
		}
	}

	if best == "" {
		return "", false, nil
	}
	return best, true, nil
}

func chooseBetterMergeBase(best object.Hash, bestGeneration uint64, candidate object.Hash, candidateGeneration uint64) (object.Hash, uint64) {
	if best == "" {
		return candidate, candidateGeneration
	}
	if candidateGeneration > bestGeneration {
		return candidate, candidateGeneration
	}
	if candidateGeneration < bestGeneration {
		return best, bestGeneration
	}
	if candidate < best {
		return candidate, candidateGeneration
	}
	return best, bestGeneration
}

// Merge merges the named branch into the current HEAD.
//
// Algorithm:
//  1. Resolve current HEAD and branch name to commit hashes
//  2. FindMergeBase(headHash, branchHash)
//  3. Flatten all three trees (base, ours=HEAD, theirs=branch)
//  4. Collect all file paths across all three trees
//  5. For each file, perform the appropriate merge action
//  6. If clean: write files, stage, auto-commit with two parents
//  7. If conflicts: write conflict-marker files, do NOT commit
func (r *Repo) Merge(branchName string) (*MergeReport, error) {
	if err := r.ensureClean(); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	if kind, inProgress := r.InProgressOperation(); inProgress {
		return nil, fmt.Errorf("merge: %w: %s", ErrOperationInProgress, kind)
	}

	// 1. Resolve HEAD and branch.
	headHash, err := r.ResolveRef("HEAD")
	if err != nil {
		return nil, fmt.Errorf("merge: resolve HEAD: %w", err)
	}
	branchHash, err := r.ResolveRef("refs/heads/" + branchName)
	if err != nil {
		return nil, fmt.Errorf("merge: resolve branch %q: %w", branchName, err)
	}

	oursLabel := "HEAD"
	if head, err := r.Head(); err == nil && strings.HasPrefix(head, "refs/heads/") {
		oursLabel = strings.TrimPrefix(head, "refs/heads/")
	}
	theirsLabel := branchName

	// 2. Find merge base.
	baseHash, err := r.FindMergeBase(headHash, branchHash)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	// 3. Flatten all three trees.
	headCommit, err := r.Store.ReadCommit(headHash)
	if err != nil {
		return nil, fmt.Errorf("merge: read head commit: %w", err)
	}
	branchCommit, err := r.Store.ReadCommit(branchHash)
	if err != nil {
		return nil, fmt.Errorf("merge: read branch commit: %w", err)
	}

	oursFiles, err := r.FlattenTree(headCommit.TreeHash)
	if err != nil {
		return nil, fmt.Errorf("merge: flatten ours tree: %w", err)
	}
	theirsFiles, err := r.FlattenTree(branchCommit.TreeHash)
	if err != nil {
		return nil, fmt.Errorf("merge: flatten theirs tree: %w", err)
	}

	if baseHash == branchHash {
		// Branch tip is already an ancestor of HEAD: nothing to do.
		return nil, fmt.Errorf("merge: %w", ErrAlreadyUpToDate)
	}

	// Base tree may be empty if this is the first merge (no common ancestor).
	var baseFiles []TreeFileEntry
	if baseHash != "" {
		baseCommit, err := r.Store.ReadCommit(baseHash)
		if err != nil {
			return nil, fmt.Errorf("merge: read base commit: %w", err)
		}
		baseFiles, err = r.FlattenTree(baseCommit.TreeHash)
		if err != nil {
			return nil, fmt.Errorf("merge: flatten base tree: %w", err)
		}
	}

	if baseHash == headHash {
		// HEAD is an ancestor of the branch: fast-forward instead of
		// creating a merge commit.
		return r.fastForwardMerge(headHash, branchHash, theirsFiles)
	}

	applied, err := r.applyThreeWay(baseFiles, oursFiles, theirsFiles, oursLabel, theirsLabel)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	report := applied.report

	if err := r.writeMergedFiles(applied); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	message := fmt.Sprintf("Merge branch '%s'", branchName)

	if !report.HasConflicts {
		mergeHash, err := r.commitMerge(message, "", headHash, branchHash)
		if err != nil {
			return nil, fmt.Errorf("merge: commit: %w", err)
		}
		report.MergeCommit = mergeHash
		return report, nil
	}

	if err := r.BeginOperation(OperationState{
		Kind:       OperationMerge,
		OntoHash:   headHash,
		TargetHash: branchHash,
		Message:    message,
	}); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	return report, nil
}

// fastForwardMerge moves the current branch ref directly to branchHash and
// repopulates the working tree and index from its tree, used when HEAD is
// itself an ancestor of the branch being merged.
func (r *Repo) fastForwardMerge(headHash, branchHash object.Hash, targetFiles []TreeFileEntry) (*MergeReport, error) {
	currentFiles := r.trackedFiles()
	for path := range currentFiles {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(path))
		if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("merge: remove %q: %w", path, err)
		}
		r.removeEmptyParents(filepath.Dir(absPath))
	}

	report := &MergeReport{}
	for _, f := range targetFiles {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return nil, fmt.Errorf("merge: mkdir %q: %w", filepath.Dir(absPath), err)
		}
		blob, err := r.Store.ReadBlob(f.BlobHash)
		if err != nil {
			return nil, fmt.Errorf("merge: read blob for %q: %w", f.Path, err)
		}
		if err := os.WriteFile(absPath, blob.Data, filePermFromMode(f.Mode)); err != nil {
			return nil, fmt.Errorf("merge: write %q: %w", f.Path, err)
		}
		report.Files = append(report.Files, FileMergeReport{Path: f.Path, Status: "clean"})
	}

	idx := &Index{Entries: make(map[string]*IndexEntry, len(targetFiles))}
	for _, f := range targetFiles {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(f.Path))
		info, err := os.Stat(absPath)
		if err != nil {
			return nil, fmt.Errorf("merge: stat %q: %w", f.Path, err)
		}
		idx.Entries[f.Path] = indexEntryFromStat(f.Path, f.BlobHash, normalizeFileMode(f.Mode), info)
	}
	if err := r.WriteIndex(idx); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	r.invalidateStatusCache()

	head, err := r.Head()
	if err != nil {
		return nil, fmt.Errorf("merge: read HEAD: %w", err)
	}
	if strings.HasPrefix(head, "refs/") {
		if err := r.UpdateRefCAS(head, branchHash, headHash); err != nil {
			return nil, fmt.Errorf("merge: update ref %q: %w", head, err)
		}
	} else {
		if err := r.UpdateRefCAS("HEAD", branchHash, headHash); err != nil {
			return nil, fmt.Errorf("merge: update detached HEAD: %w", err)
		}
	}

	report.MergeCommit = branchHash
	return report, nil
}

// mergeFileWrite is a merged file's final content and mode, ready to be
// written to the working tree and staged.
type mergeFileWrite struct {
	path    string
	content []byte
	mode    string
}

// mergeApplyResult is the outcome of running a three-way merge over every
// path in base/ours/theirs, before any working-tree or index writes happen.
type mergeApplyResult struct {
	report          *MergeReport
	mergedFiles     []mergeFileWrite
	conflictedFiles []mergeConflictState
	deletedPaths    []string
	// untrackedFiles holds rename-on-collision writes (file/directory
	// conflicts): written to the working tree but never staged.
	untrackedFiles []mergeFileWrite
	// collisionPaths are original file/directory collision paths whose stale
	// working-tree file (if any) must be removed before mergedFiles are
	// written, since a sibling path now needs to create a directory there.
	collisionPaths []string
}

// applyThreeWay runs the per-path three-way merge decision tree shared by
// Merge, Revert, and CherryPick: base/ours/theirs differ only in what each
// operation flattens them from (a common ancestor for Merge, a commit and
// its parent for Revert/CherryPick).
func (r *Repo) applyThreeWay(baseFiles, oursFiles, theirsFiles []TreeFileEntry, oursLabel, theirsLabel string) (*mergeApplyResult, error) {
	baseMap := indexByPath(baseFiles)
	oursMap := indexByPath(oursFiles)
	theirsMap := indexByPath(theirsFiles)

	allPaths := collectAllPaths(baseMap, oursMap, theirsMap)

	// A file on one side colliding with a directory on the other: detected by
	// checking whether a file path on one side is ever used as a directory
	// prefix by the other side's paths.
	oursDirs := directoryPrefixes(oursMap)
	theirsDirs := directoryPrefixes(theirsMap)
	collisionSide := make(map[string]string) // path -> "ours" or "theirs" (which side holds the file)
	for path := range oursMap {
		if _, isDir := theirsDirs[path]; isDir {
			collisionSide[path] = "ours"
		}
	}
	for path := range theirsMap {
		if _, isDir := oursDirs[path]; isDir {
			collisionSide[path] = "theirs"
		}
	}

	report := &MergeReport{}
	var mergedFiles []mergeFileWrite
	var conflictedFiles []mergeConflictState
	var deletedPaths []string
	var untrackedFiles []mergeFileWrite
	var collisionPaths []string

	for _, path := range allPaths {
		if fileSide, collides := collisionSide[path]; collides {
			label := oursLabel
			fileEntry := oursMap[path]
			if fileSide == "theirs" {
				label = theirsLabel
				fileEntry = theirsMap[path]
			}

			content, err := r.readBlobData(fileEntry.BlobHash)
			if err != nil {
				return nil, fmt.Errorf("merge read %q: %w", path, err)
			}

			renamedPath := path + "~" + label
			untrackedFiles = append(untrackedFiles, mergeFileWrite{
				path:    renamedPath,
				content: content,
				mode:    normalizeFileMode(fileEntry.Mode),
			})
			collisionPaths = append(collisionPaths, path)

			report.Files = append(report.Files, FileMergeReport{
				Path:          path,
				Status:        "conflict",
				ConflictCount: 1,
			})
			report.HasConflicts = true
			report.TotalConflicts++

			cf := mergeConflictState{
				path:            path,
				mode:            normalizeFileMode(fileEntry.Mode),
				noMergedContent: true,
			}
			if b, ok := baseMap[path]; ok {
				cf.baseHash = b.BlobHash
			}
			if fileSide == "ours" {
				cf.oursHash = fileEntry.BlobHash
			} else {
				cf.theirsHash = fileEntry.BlobHash
			}
			conflictedFiles = append(conflictedFiles, cf)
			continue
		}

		_, inBase := baseMap[path]
		_, inOurs := oursMap[path]
		_, inTheirs := theirsMap[path]

		switch {
		case inBase && inOurs && inTheirs:
			// In all three: three-way merge. The executable bit is merged by
			// the same tie-break rule as content, independent of whether the
			// content itself merged cleanly.
			mergedMode, modeConflict := resolveMergedMode(
				normalizeFileMode(baseMap[path].Mode),
				normalizeFileMode(oursMap[path].Mode),
				normalizeFileMode(theirsMap[path].Mode),
			)

			fr, content, err := r.mergeThreeWay(path, baseMap[path], oursMap[path], theirsMap[path], oursLabel, theirsLabel)
			if err != nil {
				return nil, fmt.Errorf("merge file %q: %w", path, err)
			}
			if modeConflict {
				fr.Status = "conflict"
				fr.ConflictCount++
			}
			report.Files = append(report.Files, fr)
			if fr.Status == "conflict" {
				report.HasConflicts = true
				report.TotalConflicts += fr.ConflictCount
				conflictedFiles = append(conflictedFiles, mergeConflictState{
					path:       path,
					baseHash:   baseMap[path].BlobHash,
					oursHash:   oursMap[path].BlobHash,
					theirsHash: theirsMap[path].BlobHash,
					mode:       mergedMode,
				})
			}
			mergedFiles = append(mergedFiles, mergeFileWrite{
				path:    path,
				content: content,
				mode:    mergedMode,
			})

		case !inBase && inOurs && inTheirs:
			// New in both branches (not in base).
			if oursMap[path].BlobHash == theirsMap[path].BlobHash {
				// Same content: take either.
				content, err := r.readBlobData(oursMap[path].BlobHash)
				if err != nil {
					return nil, fmt.Errorf("merge read %q: %w", path, err)
				}
				report.Files = append(report.Files, FileMergeReport{
					Path:   path,
					Status: "clean",
				})
				mergedFiles = append(mergedFiles, mergeFileWrite{
					path:    path,
					content: content,
					mode:    normalizeFileMode(oursMap[path].Mode),
				})
			} else {
				// Different content: conflict.
				oursData, err := r.readBlobData(oursMap[path].BlobHash)
				if err != nil {
					return nil, fmt.Errorf("merge read ours %q: %w", path, err)
				}
				theirsData, err := r.readBlobData(theirsMap[path].BlobHash)
				if err != nil {
					return nil, fmt.Errorf("merge read theirs %q: %w", path, err)
				}
				// Try structural merge with empty base.
				fr, content, err := r.mergeFileContents(path, nil, oursData, theirsData, oursLabel, theirsLabel)
				if err != nil {
					return nil, fmt.Errorf("merge file %q: %w", path, err)
				}
				report.Files = append(report.Files, fr)
				if fr.Status == "conflict" {
					report.HasConflicts = true
					report.TotalConflicts += fr.ConflictCount
					conflictedFiles = append(conflictedFiles, mergeConflictState{
						path:       path,
						baseHash:   "",
						oursHash:   oursMap[path].BlobHash,
						theirsHash: theirsMap[path].BlobHash,
						mode:       normalizeFileMode(oursMap[path].Mode),
					})
				}
				mergedFiles = append(mergedFiles, mergeFileWrite{
					path:    path,
					content: content,
					mode:    normalizeFileMode(oursMap[path].Mode),
				})
			}

		case inBase && inOurs && !inTheirs:
			// Deleted by theirs.
			if oursMap[path].BlobHash == baseMap[path].BlobHash {
				// Ours unchanged: clean delete.
				report.Files = append(report.Files, FileMergeReport{
					Path:   path,
					Status: "deleted",
				})
				deletedPaths = append(deletedPaths, path)
				continue
			}

			// Delete-vs-modify must be a conflict (avoid silent data loss).
			oursData, err := r.readBlobData(oursMap[path].BlobHash)
			if err != nil {
				return nil, fmt.Errorf("merge read ours %q: %w", path, err)
			}
			content := renderFileConflict(oursData, nil, oursLabel, theirsLabel)
			report.Files = append(report.Files, FileMergeReport{
				Path:          path,
				Status:        "conflict",
				ConflictCount: 1,
			})
			report.HasConflicts = true
			report.TotalConflicts++
			mergedFiles = append(mergedFiles, mergeFileWrite{
				path:    path,
				content: content,
				mode:    normalizeFileMode(oursMap[path].Mode),
			})
			conflictedFiles = append(conflictedFiles, mergeConflictState{
				path:       path,
				baseHash:   baseMap[path].BlobHash,
				oursHash:   oursMap[path].BlobHash,
				theirsHash: "",
				mode:       normalizeFileMode(oursMap[path].Mode),
			})

		case inBase && !inOurs && inTheirs:
			// Deleted by ours.
			if theirsMap[path].BlobHash == baseMap[path].BlobHash {
				// Theirs unchanged: clean delete.
				report.Files = append(report.Files, FileMergeReport{
					Path:   path,
					Status: "deleted",
				})
				deletedPaths = append(deletedPaths, path)
				continue
			}

			// Delete-vs-modify must be a conflict (avoid silent data loss).
			theirsData, err := r.readBlobData(theirsMap[path].BlobHash)
			if err != nil {
				return nil, fmt.Errorf("merge read theirs %q: %w", path, err)
			}
			content := renderFileConflict(nil, theirsData, oursLabel, theirsLabel)
			report.Files = append(report.Files, FileMergeReport{
				Path:          path,
				Status:        "conflict",
				ConflictCount: 1,
			})
			report.HasConflicts = true
			report.TotalConflicts++
			mergedFiles = append(mergedFiles, mergeFileWrite{
				path:    path,
				content: content,
				mode:    normalizeFileMode(theirsMap[path].Mode),
			})
			conflictedFiles = append(conflictedFiles, mergeConflictState{
				path:       path,
				baseHash:   baseMap[path].BlobHash,
				oursHash:   "",
				theirsHash: theirsMap[path].BlobHash,
				mode:       normalizeFileMode(theirsMap[path].Mode),
			})

		case !inBase && inOurs && !inTheirs:
			// New in ours only: keep as-is.
			content, err := r.readBlobData(oursMap[path].BlobHash)
			if err != nil {
				return nil, fmt.Errorf("merge read %q: %w", path, err)
			}
			report.Files = append(report.Files, FileMergeReport{
				Path:   path,
				Status: "added",
			})
			mergedFiles = append(mergedFiles, mergeFileWrite{
				path:    path,
				content: content,
				mode:    normalizeFileMode(oursMap[path].Mode),
			})

		case !inBase && !inOurs && inTheirs:
			// New in theirs only: add.
			content, err := r.readBlobData(theirsMap[path].BlobHash)
			if err != nil {
				return nil, fmt.Errorf("merge read %q: %w", path, err)
			}
			report.Files = append(report.Files, FileMergeReport{
				Path:   path,
				Status: "added",
			})
			mergedFiles = append(mergedFiles, mergeFileWrite{
				path:    path,
				content: content,
				mode:    normalizeFileMode(theirsMap[path].Mode),
			})

		case inBase && !inOurs && !inTheirs:
			// Both deleted: remove.
			report.Files = append(report.Files, FileMergeReport{
				Path:   path,
				Status: "deleted",
			})
			deletedPaths = append(deletedPaths, path)
		}
	}

	return &mergeApplyResult{
		report:          report,
		mergedFiles:     mergedFiles,
		conflictedFiles: conflictedFiles,
		deletedPaths:    deletedPaths,
		untrackedFiles:  untrackedFiles,
		collisionPaths:  collisionPaths,
	}, nil
}

// directoryPrefixes returns the set of paths that appear as a directory
// ancestor of some entry in m (e.g. for "pkg/util/util.go" it contains
// "pkg" and "pkg/util").
func directoryPrefixes(m map[string]TreeFileEntry) map[string]struct{} {
	dirs := make(map[string]struct{})
	for p := range m {
		dir := path.Dir(p)
		for dir != "." && dir != "/" && dir != "" {
			if _, ok := dirs[dir]; ok {
				break
			}
			dirs[dir] = struct{}{}
			dir = path.Dir(dir)
		}
	}
	return dirs
}

// resolveMergedMode applies the same unchanged-side tie-break used for file
// content to the executable bit: a side that didn't change from base defers
// to the other; both sides changing to the same mode is clean; both sides
// changing to different modes is a conflict (mergedMode still returns ours'
// mode, a usable default for the working-tree file permissions).
func resolveMergedMode(baseMode, oursMode, theirsMode string) (mergedMode string, conflict bool) {
	if oursMode == theirsMode {
		return oursMode, false
	}
	if oursMode == baseMode {
		return theirsMode, false
	}
	if theirsMode == baseMode {
		return oursMode, false
	}
	return oursMode, true
}

// writeMergedFiles writes merge results to the working tree and, on a
// clean (conflict-free) result, stages them. On conflict, it records the
// conflicted paths in the index via stageConflictState.
func (r *Repo) writeMergedFiles(result *mergeApplyResult) error {
	// Collision paths must be cleared first: a file/directory conflict means
	// some mergedFiles entry below needs to create a directory where this
	// path's stale file currently sits.
	for _, p := range result.collisionPaths {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(p))
		if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %q: %w", p, err)
		}
	}

	for _, mf := range result.mergedFiles {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(mf.path))
		dir := filepath.Dir(absPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %q: %w", dir, err)
		}
		if err := os.WriteFile(absPath, mf.content, filePermFromMode(mf.mode)); err != nil {
			return fmt.Errorf("write %q: %w", mf.path, err)
		}
		// WriteFile only applies the permissions when it creates the file.
		if err := os.Chmod(absPath, filePermFromMode(mf.mode)); err != nil {
			return fmt.Errorf("chmod %q: %w", mf.path, err)
		}
	}

	for _, uf := range result.untrackedFiles {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(uf.path))
		dir := filepath.Dir(absPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %q: %w", dir, err)
		}
		if err := os.WriteFile(absPath, uf.content, filePermFromMode(uf.mode)); err != nil {
			return fmt.Errorf("write %q: %w", uf.path, err)
		}
	}

	for _, path := range result.deletedPaths {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(path))
		if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %q: %w", path, err)
		}
		r.removeEmptyParents(filepath.Dir(absPath))
	}

	if result.report.HasConflicts {
		return r.stageConflictState(result.conflictedFiles, result.deletedPaths)
	}

	var pathsToAdd []string
	for _, mf := range result.mergedFiles {
		pathsToAdd = append(pathsToAdd, mf.path)
	}
	if len(pathsToAdd) > 0 {
		if err := r.Add(pathsToAdd); err != nil {
			return fmt.Errorf("stage: %w", err)
		}
	}

	if len(result.deletedPaths) > 0 {
		stg, err := r.ReadIndex()
		if err != nil {
			return fmt.Errorf("read staging: %w", err)
		}
		for _, p := range result.deletedPaths {
			delete(stg.Entries, p)
		}
		if err := r.WriteIndex(stg); err != nil {
			return fmt.Errorf("write staging: %w", err)
		}
	}
	return nil
}

func (r *Repo) stageConflictState(conflicted []mergeConflictState, deletedPaths []string) error {
	stg, err := r.ReadIndex()
	if err != nil {
		return fmt.Errorf("read staging: %w", err)
	}

	for _, p := range deletedPaths {
		delete(stg.Entries, p)
	}

	for _, cf := range conflicted {
		if !cf.noMergedContent {
			absPath := filepath.Join(r.RootDir, filepath.FromSlash(cf.path))
			data, err := os.ReadFile(absPath)
			if err != nil {
				return fmt.Errorf("read conflicted file %q: %w", cf.path, err)
			}

			// The merged-with-markers blob stays on disk so the user can edit
			// it, but is not itself one of the three conflict sides recorded
			// in the index — those point at the original base/ours/theirs
			// blobs.
			if _, err := r.Store.WriteBlob(&object.Blob{Data: data}); err != nil {
				return fmt.Errorf("write conflicted blob %q: %w", cf.path, err)
			}
		}

		var base, ours, theirs *ConflictSide
		mode := normalizeFileMode(cf.mode)
		if cf.baseHash != "" {
			base = &ConflictSide{Mode: mode, BlobHash: cf.baseHash}
		}
		if cf.oursHash != "" {
			ours = &ConflictSide{Mode: mode, BlobHash: cf.oursHash}
		}
		if cf.theirsHash != "" {
			theirs = &ConflictSide{Mode: mode, BlobHash: cf.theirsHash}
		}
		r.AddConflict(stg, cf.path, base, ours, theirs)
	}

	if err := r.WriteIndex(stg); err != nil {
		return fmt.Errorf("write staging: %w", err)
	}
	return nil
}

func renderFileConflict(ours, theirs []byte, oursLabel, theirsLabel string) []byte {
	var buf bytes.Buffer
	buf.WriteString("<<<<<<< " + oursLabel + "\n")
	buf.Write(ours)
	if len(ours) > 0 && ours[len(ours)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.WriteString("=======\n")
	buf.Write(theirs)
	if len(theirs) > 0 && theirs[len(theirs)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.WriteString(">>>>>>> " + theirsLabel + "\n")
	return buf.Bytes()
}

// commitMerge creates a commit with two parents (for merge commits).
// This is similar to Commit() but takes explicit parent hashes instead
// of deriving them from HEAD.
func (r *Repo) commitMerge(message, author string, parent1, parent2 object.Hash) (object.Hash, error) {
	stg, err := r.ReadIndex()
	if err != nil {
		return "", fmt.Errorf("merge commit: %w", err)
	}
	if len(stg.Entries) == 0 {
		return "", fmt.Errorf("merge commit: nothing staged")
	}

	treeHash, err := r.BuildTree(stg)
	if err != nil {
		return "", fmt.Errorf("merge commit: %w", err)
	}

	authorIdentity, err := r.ResolveAuthorIdentity(author)
	if err != nil {
		return "", fmt.Errorf("merge commit: %w", err)
	}
	committerIdentity, err := r.ResolveCommitterIdentity(authorIdentity.Name)
	if err != nil {
		return "", fmt.Errorf("merge commit: %w", err)
	}

	commitObj := &object.CommitObj{
		TreeHash:           treeHash,
		Parents:            []object.Hash{parent1, parent2},
		Author:             authorIdentity.Name,
		AuthorEmail:        authorIdentity.Email,
		Timestamp:          authorIdentity.Timestamp,
		AuthorTimezone:     authorIdentity.Timezone,
		Committer:          committerIdentity.Name,
		CommitterEmail:     committerIdentity.Email,
		CommitterTimestamp: committerIdentity.Timestamp,
		CommitterTimezone:  committerIdentity.Timezone,
		Message:            message,
	}

	commitHash, err := r.Store.WriteCommit(commitObj)
	if err != nil {
		return "", fmt.Errorf("merge commit: write: %w", err)
	}

	// Update current branch ref.
	head, err := r.Head()
	if err != nil {
		return "", fmt.Errorf("merge commit: read HEAD: %w", err)
	}
	if strings.HasPrefix(head, "refs/") {
		if err := r.UpdateRefCAS(head, commitHash, parent1); err != nil {
			return "", fmt.Errorf("merge commit: update ref %q: %w", head, err)
		}
	} else {
		if err := r.UpdateRefCAS("HEAD", commitHash, parent1); err != nil {
			return "", fmt.Errorf("merge commit: update detached HEAD: %w", err)
		}
	}

	r.invalidateStatusCache()

	return commitHash, nil
}

// mergeThreeWay performs a three-way structural merge of a file that exists
// in base, ours, and theirs.
func (r *Repo) mergeThreeWay(path string, base, ours, theirs TreeFileEntry, oursLabel, theirsLabel string) (FileMergeReport, []byte, error) {
	// If ours and theirs have the same blob hash, no merge needed.
	if ours.BlobHash == theirs.BlobHash {
		content, err := r.readBlobData(ours.BlobHash)
		if err != nil {
			return FileMergeReport{}, nil, err
		}
		return FileMergeReport{Path: path, Status: "clean"}, content, nil
	}

	// If only one side changed from base, take that side.
	if ours.BlobHash == base.BlobHash {
		// Only theirs changed.
		content, err := r.readBlobData(theirs.BlobHash)
		if err != nil {
			return FileMergeReport{}, nil, err
		}
		return FileMergeReport{Path: path, Status: "clean"}, content, nil
	}
	if theirs.BlobHash == base.BlobHash {
		// Only ours changed.
		content, err := r.readBlobData(ours.BlobHash)
		if err != nil {
			return FileMergeReport{}, nil, err
		}
		return FileMergeReport{Path: path, Status: "clean"}, content, nil
	}

	// Both sides changed: full three-way merge.
	baseData, err := r.readBlobData(base.BlobHash)
	if err != nil {
		return FileMergeReport{}, nil, err
	}
	oursData, err := r.readBlobData(ours.BlobHash)
	if err != nil {
		return FileMergeReport{}, nil, err
	}
	theirsData, err := r.readBlobData(theirs.BlobHash)
	if err != nil {
		return FileMergeReport{}, nil, err
	}

	return r.mergeFileContents(path, baseData, oursData, theirsData, oursLabel, theirsLabel)
}

// mergeFileContents calls the structural merge engine on raw file contents.
func (r *Repo) mergeFileContents(path string, base, ours, theirs []byte, oursLabel, theirsLabel string) (FileMergeReport, []byte, error) {
	result, err := merge.MergeFiles(base, ours, theirs, oursLabel, theirsLabel)
	if err != nil {
		return FileMergeReport{}, nil, fmt.Errorf("structural merge %q: %w", path, err)
	}

	fr := FileMergeReport{
		Path:          path,
		ConflictCount: result.ConflictCount,
	}
	if result.HasConflicts {
		fr.Status = "conflict"
	} else {
		fr.Status = "clean"
	}

	return fr, result.Merged, nil
}

// readBlobData reads a blob from the store and returns its raw data.
func (r *Repo) readBlobData(h object.Hash) ([]byte, error) {
	blob, err := r.Store.ReadBlob(h)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", h, err)
	}
	return blob.Data, nil
}

// indexByPath creates a map from file path to TreeFileEntry.
func indexByPath(entries []TreeFileEntry) map[string]TreeFileEntry {
	m := make(map[string]TreeFileEntry, len(entries))
	for _, e := range entries {
		m[e.Path] = e
	}
	return m
}

// collectAllPaths returns a sorted, deduplicated list of all file paths
// across three file maps.
func collectAllPaths(base, ours, theirs map[string]TreeFileEntry) []string {
	seen := make(map[string]bool)
	for p := range base {
		seen[p] = true
	}
	for p := range ours {
		seen[p] = true
	}
	for p := range theirs {
		seen[p] = true
	}

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
