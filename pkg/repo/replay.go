package repo

import (
	"fmt"
	"strings"

	"github.com/spacalexandru02/asheraflow/pkg/object"
)

// replayKind distinguishes the two single-commit replay operations, which
// share everything but which side of the three-way merge the target commit
// plays and how the prepared commit message is phrased.
type replayKind int

const (
	replayRevert replayKind = iota
	replayCherryPick
)

// Revert applies the inverse of commit C: a three-way merge with C as the
// base, HEAD as ours, and C's parent as theirs.
func (r *Repo) Revert(commitRef string) (*MergeReport, error) {
	return r.replayCommit(replayRevert, commitRef)
}

// CherryPick re-applies commit C on top of HEAD: a three-way merge with C's
// parent as the base, HEAD as ours, and C as theirs.
func (r *Repo) CherryPick(commitRef string) (*MergeReport, error) {
	return r.replayCommit(replayCherryPick, commitRef)
}

func (r *Repo) replayCommit(kind replayKind, commitRef string) (*MergeReport, error) {
	verb := replayVerb(kind)

	if err := r.ensureClean(); err != nil {
		return nil, fmt.Errorf("%s: %w", verb, err)
	}
	if kind, inProgress := r.InProgressOperation(); inProgress {
		return nil, fmt.Errorf("%s: %w: %s", verb, ErrOperationInProgress, kind)
	}

	targetHash, err := r.resolveCommittish(commitRef)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", verb, err)
	}
	target, err := r.Store.ReadCommit(targetHash)
	if err != nil {
		return nil, fmt.Errorf("%s: read commit %s: %w", verb, targetHash, err)
	}
	if len(target.Parents) == 0 {
		return nil, fmt.Errorf("%s: %w", verb, ErrNoParent)
	}
	parentHash := target.Parents[0]
	parentCommit, err := r.Store.ReadCommit(parentHash)
	if err != nil {
		return nil, fmt.Errorf("%s: read parent commit %s: %w", verb, parentHash, err)
	}

	headHash, err := r.ResolveRef("HEAD")
	if err != nil {
		return nil, fmt.Errorf("%s: resolve HEAD: %w", verb, err)
	}
	headCommit, err := r.Store.ReadCommit(headHash)
	if err != nil {
		return nil, fmt.Errorf("%s: read head commit: %w", verb, err)
	}
	oursFiles, err := r.FlattenTree(headCommit.TreeHash)
	if err != nil {
		return nil, fmt.Errorf("%s: flatten ours tree: %w", verb, err)
	}

	var baseFiles, theirsFiles []TreeFileEntry
	theirsLabel := shortHash(targetHash)
	switch kind {
	case replayRevert:
		baseFiles, err = r.FlattenTree(target.TreeHash)
		if err != nil {
			return nil, fmt.Errorf("%s: flatten commit tree: %w", verb, err)
		}
		theirsFiles, err = r.FlattenTree(parentCommit.TreeHash)
		if err != nil {
			return nil, fmt.Errorf("%s: flatten parent tree: %w", verb, err)
		}
		theirsLabel = "parent of " + theirsLabel
	case replayCherryPick:
		baseFiles, err = r.FlattenTree(parentCommit.TreeHash)
		if err != nil {
			return nil, fmt.Errorf("%s: flatten parent tree: %w", verb, err)
		}
		theirsFiles, err = r.FlattenTree(target.TreeHash)
		if err != nil {
			return nil, fmt.Errorf("%s: flatten commit tree: %w", verb, err)
		}
	}

	applied, err := r.applyThreeWay(baseFiles, oursFiles, theirsFiles, "HEAD", theirsLabel)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", verb, err)
	}
	report := applied.report

	if err := r.writeMergedFiles(applied); err != nil {
		return nil, fmt.Errorf("%s: %w", verb, err)
	}

	message := replayMessage(kind, target, targetHash)

	if !report.HasConflicts {
		commitHash, err := r.commitReplay(message, target, headHash)
		if err != nil {
			return nil, fmt.Errorf("%s: commit: %w", verb, err)
		}
		report.MergeCommit = commitHash
		return report, nil
	}

	if err := r.BeginOperation(OperationState{
		Kind:       replayOperationKind(kind),
		OntoHash:   headHash,
		TargetHash: targetHash,
		Message:    message,
	}); err != nil {
		return nil, fmt.Errorf("%s: %w", verb, err)
	}

	return report, nil
}

// commitReplay commits the currently-staged tree as a single-parent commit,
// preserving the original commit's author identity but stamping the
// committer with the caller's current resolved identity.
func (r *Repo) commitReplay(message string, original *object.CommitObj, parent object.Hash) (object.Hash, error) {
	stg, err := r.ReadIndex()
	if err != nil {
		return "", fmt.Errorf("read staging: %w", err)
	}
	if len(stg.Entries) == 0 {
		return "", fmt.Errorf("nothing staged")
	}

	treeHash, err := r.BuildTree(stg)
	if err != nil {
		return "", err
	}

	committerIdentity, err := r.ResolveCommitterIdentity(original.Author)
	if err != nil {
		return "", err
	}

	commitObj := &object.CommitObj{
		TreeHash:           treeHash,
		Parents:            []object.Hash{parent},
		Author:             original.Author,
		AuthorEmail:        original.AuthorEmail,
		Timestamp:          original.Timestamp,
		AuthorTimezone:     original.AuthorTimezone,
		Committer:          committerIdentity.Name,
		CommitterEmail:     committerIdentity.Email,
		CommitterTimestamp: committerIdentity.Timestamp,
		CommitterTimezone:  committerIdentity.Timezone,
		Message:            message,
	}

	commitHash, err := r.Store.WriteCommit(commitObj)
	if err != nil {
		return "", fmt.Errorf("write commit: %w", err)
	}

	head, err := r.Head()
	if err != nil {
		return "", fmt.Errorf("read HEAD: %w", err)
	}
	if strings.HasPrefix(head, "refs/") {
		if err := r.UpdateRefCAS(head, commitHash, parent); err != nil {
			return "", fmt.Errorf("update ref %q: %w", head, err)
		}
	} else {
		if err := r.UpdateRefCAS("HEAD", commitHash, parent); err != nil {
			return "", fmt.Errorf("update detached HEAD: %w", err)
		}
	}

	r.invalidateStatusCache()
	return commitHash, nil
}

func replayVerb(kind replayKind) string {
	if kind == replayRevert {
		return "revert"
	}
	return "cherry-pick"
}

func replayOperationKind(kind replayKind) OperationKind {
	if kind == replayRevert {
		return OperationRevert
	}
	return OperationCherryPick
}

func replayMessage(kind replayKind, target *object.CommitObj, targetHash object.Hash) string {
	subject := commitSubject(target)
	if kind == replayRevert {
		return fmt.Sprintf("Revert \"%s\"\n\nThis reverts commit %s.\n", subject, targetHash)
	}
	return fmt.Sprintf("%s\n\n(cherry picked from commit %s)\n", subject, targetHash)
}

func commitSubject(c *object.CommitObj) string {
	if i := strings.IndexByte(c.Message, '\n'); i >= 0 {
		return c.Message[:i]
	}
	return c.Message
}

func shortHash(h object.Hash) string {
	s := string(h)
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
