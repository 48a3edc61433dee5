package repo

import (
	"fmt"
	"strings"

	"github.com/spacalexandru02/asheraflow/pkg/object"
)

// Amend replaces HEAD with a new commit carrying the currently staged tree.
// The original commit's parents and author identity are preserved; only the
// committer identity and timestamp advance, so the amended commit's OID
// always differs from the original even when tree and message are
// unchanged.
//
// message, when non-empty, overrides the original commit's message.
// reuseMessageFrom, when non-empty, is a committish whose message is used
// verbatim instead (covers both --reuse-message and, absent an interactive
// editor, --reedit-message); it takes priority over message.
func (r *Repo) Amend(message, reuseMessageFrom string) (object.Hash, error) {
	headHash, err := r.ResolveRef("HEAD")
	if err != nil {
		return "", fmt.Errorf("amend: resolve HEAD: %w", err)
	}
	original, err := r.Store.ReadCommit(headHash)
	if err != nil {
		return "", fmt.Errorf("amend: read HEAD commit: %w", err)
	}

	stg, err := r.ReadIndex()
	if err != nil {
		return "", fmt.Errorf("amend: %w", err)
	}
	treeHash, err := r.BuildTree(stg)
	if err != nil {
		return "", fmt.Errorf("amend: %w", err)
	}

	switch {
	case reuseMessageFrom != "":
		sourceHash, err := r.resolveCommittish(reuseMessageFrom)
		if err != nil {
			return "", fmt.Errorf("amend: %w", err)
		}
		source, err := r.Store.ReadCommit(sourceHash)
		if err != nil {
			return "", fmt.Errorf("amend: read %q: %w", reuseMessageFrom, err)
		}
		message = source.Message
	case message == "":
		message = original.Message
	}

	committerIdentity, err := r.ResolveCommitterIdentity(original.Author)
	if err != nil {
		return "", fmt.Errorf("amend: %w", err)
	}

	commitObj := &object.CommitObj{
		TreeHash:           treeHash,
		Parents:            original.Parents,
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
		return "", fmt.Errorf("amend: write commit: %w", err)
	}

	head, err := r.Head()
	if err != nil {
		return "", fmt.Errorf("amend: read HEAD: %w", err)
	}
	if strings.HasPrefix(head, "refs/") {
		if err := r.UpdateRefCAS(head, commitHash, headHash); err != nil {
			return "", fmt.Errorf("amend: update ref %q: %w", head, err)
		}
	} else {
		if err := r.UpdateRefCAS("HEAD", commitHash, headHash); err != nil {
			return "", fmt.Errorf("amend: update detached HEAD: %w", err)
		}
	}

	r.invalidateStatusCache()
	return commitHash, nil
}
