package repo

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spacalexandru02/asheraflow/pkg/object"
)

// Commit creates a new commit from the current staging area.
//
//  1. Read staging
//  2. BuildTree from staging
//  3. Resolve HEAD to get parent commit hash (if any)
//  4. Create CommitObj with tree hash, parent, author, current timestamp, message
//  5. Write commit to store
//  6. Update current branch ref to new commit hash
//  7. Return commit hash
func (r *Repo) Commit(message, author string) (object.Hash, error) {
	// 1. Read staging.
	stg, err := r.ReadIndex()
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	if len(stg.Entries) == 0 {
		return "", fmt.Errorf("commit: nothing staged")
	}

	// 2. Build tree from staging.
	treeHash, err := r.BuildTree(stg)
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	// 3. Resolve HEAD to get parent (may not exist for first commit).
	var parents []object.Hash
	parentHash, err := r.ResolveRef("HEAD")
	if err == nil && parentHash != "" {
		parents = append(parents, parentHash)
	}
	// If HEAD resolution fails (e.g., first commit, no ref file), that's fine.

	// A plain commit finishes a conflicted merge the way git does: the
	// staged resolution becomes a two-parent commit and the operation state
	// is cleared. Revert and cherry-pick are left alone here; they resume
	// only via --continue (ContinueOperation), which also restores their
	// prepared message and preserved author identity.
	var resolvingMerge bool
	if kind, inProgress := r.InProgressOperation(); inProgress && kind == OperationMerge {
		state, err := r.ReadOperationState(kind)
		if err != nil {
			return "", fmt.Errorf("commit: %w", err)
		}
		resolvingMerge = true
		parents = append(parents, state.TargetHash)
	}

	authorIdentity, err := r.ResolveAuthorIdentity(author)
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	committerIdentity, err := r.ResolveCommitterIdentity(authorIdentity.Name)
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	// 4. Create CommitObj.
	commitObj := &object.CommitObj{
		TreeHash:           treeHash,
		Parents:            parents,
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

	// 5. Write commit to store.
	commitHash, err := r.Store.WriteCommit(commitObj)
	if err != nil {
		return "", fmt.Errorf("commit: write commit: %w", err)
	}

	// 6. Update current branch ref.
	head, err := r.Head()
	if err != nil {
		return "", fmt.Errorf("commit: read HEAD: %w", err)
	}

	// head is either a ref path ("refs/heads/main") or a detached hash.
	if strings.HasPrefix(head, "refs/") {
		var updateErr error
		if parentHash == "" {
			updateErr = r.UpdateRefCAS(head, commitHash)
		} else {
			updateErr = r.UpdateRefCAS(head, commitHash, parentHash)
		}
		if updateErr != nil {
			return "", fmt.Errorf("commit: update ref %q: %w", head, updateErr)
		}
	} else {
		// Detached HEAD: update HEAD directly with a CAS against the old hash.
		if err := r.UpdateRefCAS("HEAD", commitHash, object.Hash(strings.TrimSpace(head))); err != nil {
			return "", fmt.Errorf("commit: update detached HEAD: %w", err)
		}
	}

	r.invalidateStatusCache()

	if resolvingMerge {
		if err := r.EndOperation(OperationMerge); err != nil {
			return "", fmt.Errorf("commit: %w", err)
		}
	}

	// 7. Return commit hash.
	return commitHash, nil
}

// Log walks the commit history starting from the given hash, following
// first-parent links, returning up to limit commits in reverse-chronological
// order (newest first).
func (r *Repo) Log(start object.Hash, limit int) ([]*object.CommitObj, error) {
	var commits []*object.CommitObj
	current := start

	for len(commits) < limit {
		c, err := r.Store.ReadCommit(current)
		if err != nil {
			// If we can't read the commit (e.g., doesn't exist), stop.
			if errors.Is(err, os.ErrNotExist) {
				break
			}
			return nil, fmt.Errorf("log: read commit %s: %w", current, err)
		}
		commits = append(commits, c)

		// Follow first parent.
		if len(c.Parents) == 0 {
			break
		}
		current = c.Parents[0]
	}

	return commits, nil
}
