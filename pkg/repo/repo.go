package repo

import (
	"sync"

	"github.com/spacalexandru02/asheraflow/pkg/object"
)

// Repo represents an opened repository.
type Repo struct {
	RootDir    string        // working directory root
	ControlDir string        // .store/ directory
	Store      *object.Store // content-addressed object store

	mergeTraversalStateOnce sync.Once
	mergeTraversalState     *mergeBaseTraversalState

	statusHashCacheMu sync.Mutex
	statusHashCache   map[string]statusFileHashCacheEntry
	statusBlobHasher  func(data []byte) object.Hash
}

func (r *Repo) getMergeTraversalState() *mergeBaseTraversalState {
	r.mergeTraversalStateOnce.Do(func() {
		r.mergeTraversalState = newMergeBaseTraversalState()
	})
	return r.mergeTraversalState
}
