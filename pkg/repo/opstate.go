package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spacalexandru02/asheraflow/pkg/object"
)

// OperationKind names a multi-step operation whose progress is recorded
// under a dedicated control-dir subdirectory so it can be resumed with
// --continue or abandoned with --abort.
type OperationKind string

const (
	OperationMerge      OperationKind = "merge"
	OperationRevert     OperationKind = "revert"
	OperationCherryPick OperationKind = "cherry_pick"
)

var allOperationKinds = []OperationKind{OperationMerge, OperationRevert, OperationCherryPick}

// OperationState is the on-disk record of an in-progress merge/revert/
// cherry-pick: the commit HEAD pointed at before the operation started, the
// commit being merged/reverted/picked, and the message to commit with once
// conflicts are resolved.
type OperationState struct {
	Kind       OperationKind
	OntoHash   object.Hash // HEAD when the operation began
	TargetHash object.Hash // commit being merged, reverted, or cherry-picked
	Message    string
}

func (r *Repo) operationDir(kind OperationKind) string {
	return filepath.Join(r.ControlDir, string(kind))
}

// InProgressOperation reports the kind of operation in progress, if any.
func (r *Repo) InProgressOperation() (OperationKind, bool) {
	for _, kind := range allOperationKinds {
		if info, err := os.Stat(r.operationDir(kind)); err == nil && info.IsDir() {
			return kind, true
		}
	}
	return "", false
}

// BeginOperation records that an operation has started, refusing if another
// operation is already in progress.
func (r *Repo) BeginOperation(state OperationState) error {
	if kind, inProgress := r.InProgressOperation(); inProgress {
		return fmt.Errorf("%w: %s", ErrOperationInProgress, kind)
	}

	dir := r.operationDir(state.Kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("begin %s: %w", state.Kind, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ONTO_HEAD"), []byte(string(state.OntoHash)+"\n"), 0o644); err != nil {
		return fmt.Errorf("begin %s: %w", state.Kind, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "TARGET_HEAD"), []byte(string(state.TargetHash)+"\n"), 0o644); err != nil {
		return fmt.Errorf("begin %s: %w", state.Kind, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "MESSAGE"), []byte(state.Message), 0o644); err != nil {
		return fmt.Errorf("begin %s: %w", state.Kind, err)
	}
	return nil
}

// ReadOperationState loads the state for an in-progress operation of the
// given kind. Returns ErrNoSuchOperation if none is in progress.
func (r *Repo) ReadOperationState(kind OperationKind) (*OperationState, error) {
	dir := r.operationDir(kind)

	onto, err := os.ReadFile(filepath.Join(dir, "ONTO_HEAD"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSuchOperation
		}
		return nil, fmt.Errorf("read %s state: %w", kind, err)
	}
	target, err := os.ReadFile(filepath.Join(dir, "TARGET_HEAD"))
	if err != nil {
		return nil, fmt.Errorf("read %s state: %w", kind, err)
	}
	message, err := os.ReadFile(filepath.Join(dir, "MESSAGE"))
	if err != nil {
		return nil, fmt.Errorf("read %s state: %w", kind, err)
	}

	return &OperationState{
		Kind:       kind,
		OntoHash:   object.Hash(strings.TrimSpace(string(onto))),
		TargetHash: object.Hash(strings.TrimSpace(string(target))),
		Message:    string(message),
	}, nil
}

// EndOperation removes the operation-state directory for the given kind,
// used after both --continue (on a successful commit) and --abort.
func (r *Repo) EndOperation(kind OperationKind) error {
	if err := os.RemoveAll(r.operationDir(kind)); err != nil {
		return fmt.Errorf("end %s: %w", kind, err)
	}
	return nil
}

// abortOperation discards an in-progress operation's conflict staging and
// restores the working tree and index to the commit HEAD pointed at before
// the operation began.
func (r *Repo) abortOperation(kind OperationKind) error {
	state, err := r.ReadOperationState(kind)
	if err != nil {
		return err
	}
	if err := r.Reset(string(state.OntoHash), ResetHard, nil); err != nil {
		return fmt.Errorf("abort %s: %w", kind, err)
	}
	return r.EndOperation(kind)
}

// AbortOperation discards whichever merge/revert/cherry-pick is in progress.
// Returns ErrNoSuchOperation if none is.
func (r *Repo) AbortOperation() error {
	kind, inProgress := r.InProgressOperation()
	if !inProgress {
		return ErrNoSuchOperation
	}
	return r.abortOperation(kind)
}

// ContinueOperation finalizes whichever merge/revert/cherry-pick is in
// progress, committing the currently-staged tree with the operation's
// prepared message. The caller is responsible for having resolved and
// staged any conflict markers first.
func (r *Repo) ContinueOperation() (object.Hash, error) {
	kind, inProgress := r.InProgressOperation()
	if !inProgress {
		return "", ErrNoSuchOperation
	}
	state, err := r.ReadOperationState(kind)
	if err != nil {
		return "", err
	}

	headHash, err := r.ResolveRef("HEAD")
	if err != nil {
		return "", fmt.Errorf("continue %s: resolve HEAD: %w", kind, err)
	}

	var commitHash object.Hash
	switch kind {
	case OperationMerge:
		commitHash, err = r.commitMerge(state.Message, "", headHash, state.TargetHash)
	case OperationRevert, OperationCherryPick:
		var target *object.CommitObj
		target, err = r.Store.ReadCommit(state.TargetHash)
		if err == nil {
			commitHash, err = r.commitReplay(state.Message, target, headHash)
		}
	default:
		err = fmt.Errorf("continue: unknown operation %q", kind)
	}
	if err != nil {
		return "", fmt.Errorf("continue %s: %w", kind, err)
	}

	if err := r.EndOperation(kind); err != nil {
		return "", fmt.Errorf("continue %s: %w", kind, err)
	}
	return commitHash, nil
}
